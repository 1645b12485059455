// Package testutil builds synthetic GameCube disc images for tests.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// DiscFile is one file to place in a synthetic disc.
type DiscFile struct {
	// Path is '/'-separated; intermediate directories are created.
	Path string
	Data []byte
}

// Layout offsets of discs produced by [BuildDisc].
const (
	DiscDOLOffset = 0x2500
	DiscDOLLength = 0x180
	DiscFSTOffset = 0x2700
	DiscAppLength = 0x60

	discAlign = 0x20
)

type discNode struct {
	name     string
	data     []byte
	isDir    bool
	children []*discNode
}

func (n *discNode) child(name string) *discNode {
	for _, c := range n.children {
		if c.name == name && c.isDir {
			return c
		}
	}

	c := &discNode{name: name, isDir: true}
	n.children = append(n.children, c)

	return c
}

// BuildDisc returns a minimal but structurally valid GCM image holding files.
// Files keep their given order inside each directory. File data starts on
// 0x20-aligned offsets after the FST.
func BuildDisc(files ...DiscFile) []byte {
	root := &discNode{isDir: true}

	for _, f := range files {
		parts := strings.Split(strings.Trim(f.Path, "/"), "/")
		dir := root

		for _, p := range parts[:len(parts)-1] {
			dir = dir.child(p)
		}

		dir.children = append(dir.children, &discNode{name: parts[len(parts)-1], data: f.Data})
	}

	// Flatten depth first so directory "next" indices can be computed.
	type rec struct {
		node   *discNode
		parent int
		next   int
		nameAt int
		offset int
	}

	var recs []rec

	var names []byte

	var walk func(n *discNode, parent int)
	walk = func(n *discNode, parent int) {
		for _, c := range n.children {
			idx := len(recs) + 1
			recs = append(recs, rec{node: c, parent: parent, nameAt: len(names)})
			names = append(append(names, c.name...), 0)

			if c.isDir {
				walk(c, idx)
				recs[idx-1].next = len(recs) + 1
			}
		}
	}
	walk(root, 0)

	count := len(recs) + 1
	fstSize := count*12 + len(names)

	cursor := alignUp(DiscFSTOffset+fstSize, discAlign)
	for i := range recs {
		if recs[i].node.isDir {
			continue
		}

		recs[i].offset = cursor
		cursor = alignUp(cursor+len(recs[i].node.data), discAlign)
	}

	size := cursor
	if size < DiscFSTOffset+fstSize {
		size = DiscFSTOffset + fstSize
	}

	disc := make([]byte, size)
	be := binary.BigEndian

	// boot.bin
	copy(disc[0x000:], "GMNE")
	copy(disc[0x004:], "01")
	be.PutUint32(disc[0x01C:], 0xC2339F3D)
	copy(disc[0x020:], "MANGLE TEST DISC")
	be.PutUint32(disc[0x420:], DiscDOLOffset)
	be.PutUint32(disc[0x424:], DiscFSTOffset)
	be.PutUint32(disc[0x428:], uint32(fstSize))
	be.PutUint32(disc[0x42C:], uint32(fstSize))

	// apploader: header + 0x40 bytes of code, no trailer.
	copy(disc[0x2440:], "2026/10/18\x00\x00\x00\x00\x00\x00")
	be.PutUint32(disc[0x2440+0x14:], DiscAppLength-0x20)

	// main.dol: one text section right after the header.
	be.PutUint32(disc[DiscDOLOffset+0x00:], 0x100)
	be.PutUint32(disc[DiscDOLOffset+0x90:], DiscDOLLength-0x100)

	// FST
	fst := disc[DiscFSTOffset:]
	fst[0] = 1
	be.PutUint32(fst[8:], uint32(count))

	for i, r := range recs {
		out := fst[(i+1)*12:]
		out[1] = byte(r.nameAt >> 16)
		out[2] = byte(r.nameAt >> 8)
		out[3] = byte(r.nameAt)

		if r.node.isDir {
			out[0] = 1
			be.PutUint32(out[4:], uint32(r.parent))
			be.PutUint32(out[8:], uint32(r.next))

			continue
		}

		be.PutUint32(out[4:], uint32(r.offset))
		be.PutUint32(out[8:], uint32(len(r.node.data)))
		copy(disc[r.offset:], r.node.data)
	}

	copy(fst[count*12:], names)

	return disc
}

// WriteDisc builds a disc and writes it to dir/name, returning the path.
func WriteDisc(t *testing.T, dir, name string, files ...DiscFile) string {
	t.Helper()

	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, BuildDisc(files...), 0o644); err != nil {
		t.Fatalf("write disc %s: %v", path, err)
	}

	return path
}

// Fill returns n bytes of value v.
func Fill(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}

	return b
}

// DirEntries lists the names in dir, sorted.
func DirEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	sort.Strings(names)

	return names
}

func alignUp(v, a int) int {
	return (v + a - 1) / a * a
}
