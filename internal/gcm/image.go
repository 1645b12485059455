// Package gcm reads the layout of GameCube GCM disc images: the boot
// header, the system files and the file system table (FST). It only locates
// entry regions; it never interprets file contents.
package gcm

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/calvinalkan/mangle/internal/fs"
	"github.com/calvinalkan/mangle/internal/image"
)

// SystemDir prefixes the names of entries that live outside the FST.
const SystemDir = "sys/"

// Image is a parsed disc. A structurally broken disc still yields an Image;
// [Image.Valid] is false and [Image.Problem] says why.
type Image struct {
	header  Header
	size    int64
	files   []image.Entry
	system  []image.Entry
	byPath  map[string]image.Entry
	byBase  map[string][]image.Entry
	problem error
}

// Open reads the disc at path through fsys. Only I/O failures are returned
// as errors.
func Open(fsys fs.FS, name string) (*Image, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	return Parse(f, info.Size()), nil
}

// Parse reads the disc layout from r, which holds size bytes.
func Parse(r io.ReaderAt, size int64) *Image {
	img := &Image{
		size:   size,
		byPath: make(map[string]image.Entry),
		byBase: make(map[string][]image.Entry),
	}

	img.problem = img.parse(r)

	return img
}

func (img *Image) parse(r io.ReaderAt) error {
	if img.size < apploaderOff {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, img.size)
	}

	boot := make([]byte, bootSize)
	if _, err := r.ReadAt(boot, 0); err != nil {
		return fmt.Errorf("boot header: %w", err)
	}

	header, err := parseHeader(boot)
	img.header = header

	if err != nil {
		return err
	}

	img.addSystem("boot.bin", 0, bootSize)
	img.addSystem("bi2.bin", bi2Offset, bi2Size)

	appLen, err := apploaderLength(r)
	if err != nil {
		return err
	}

	img.addSystem("apploader.img", apploaderOff, appLen)

	if header.DOLOffset != 0 {
		dolLen, err := dolLength(r, int64(header.DOLOffset))
		if err != nil {
			return err
		}

		img.addSystem("main.dol", int64(header.DOLOffset), dolLen)
	}

	fstEnd := int64(header.FSTOffset) + int64(header.FSTSize)
	if header.FSTSize < fstRecordSize || fstEnd > img.size {
		return fmt.Errorf("%w: FST at 0x%X+0x%X in %d bytes", ErrBadFST, header.FSTOffset, header.FSTSize, img.size)
	}

	img.addSystem("fst.bin", int64(header.FSTOffset), int64(header.FSTSize))

	fst := make([]byte, header.FSTSize)
	if _, err := r.ReadAt(fst, int64(header.FSTOffset)); err != nil {
		return fmt.Errorf("read FST: %w", err)
	}

	files, err := parseFST(fst)
	if err != nil {
		return err
	}

	img.files = files

	for _, e := range files {
		img.index(e)
	}

	var problems []error

	for _, e := range img.Entries() {
		if e.Offset < 0 || e.End() > img.size {
			problems = append(problems, fmt.Errorf("%w: %s", ErrRegionOutOfFile, e))
		}
	}

	return errors.Join(problems...)
}

func (img *Image) addSystem(name string, off, length int64) {
	e := image.Entry{Name: SystemDir + name, Offset: off, Length: length}
	img.system = append(img.system, e)
}

func (img *Image) index(e image.Entry) {
	if _, dup := img.byPath[e.Name]; !dup {
		img.byPath[e.Name] = e
	}

	base := path.Base(e.Name)
	img.byBase[base] = append(img.byBase[base], e)
}

// Header returns the parsed boot header.
func (img *Image) Header() Header {
	return img.header
}

// Size returns the image size in bytes.
func (img *Image) Size() int64 {
	return img.size
}

// Valid reports whether the disc structure parsed without problems.
func (img *Image) Valid() bool {
	return img.problem == nil
}

// Problem returns why the disc is invalid, or nil.
func (img *Image) Problem() error {
	return img.problem
}

// Files returns the FST files in table order.
func (img *Image) Files() []image.Entry {
	return append([]image.Entry(nil), img.files...)
}

// Entries returns the FST files followed by the system entries.
func (img *Image) Entries() []image.Entry {
	all := make([]image.Entry, 0, len(img.files)+len(img.system))
	all = append(all, img.files...)

	return append(all, img.system...)
}

// Lookup resolves name to an entry.
//
// An exact path wins (a leading '/' is ignored). A name without '/' then
// matches a unique FST base name, and finally a system entry by base name.
func (img *Image) Lookup(name string) (image.Entry, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return image.Entry{}, fmt.Errorf("%w: empty name", image.ErrEntryNotFound)
	}

	if e, ok := img.byPath[name]; ok {
		return e, nil
	}

	for _, e := range img.system {
		if e.Name == name {
			return e, nil
		}
	}

	if strings.Contains(name, "/") {
		return image.Entry{}, fmt.Errorf("%w: %q", image.ErrEntryNotFound, name)
	}

	switch matches := img.byBase[name]; len(matches) {
	case 0:
	case 1:
		return matches[0], nil
	default:
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.Name
		}

		return image.Entry{}, fmt.Errorf("%w: %q matches %s: %w",
			ErrAmbiguousEntry, name, strings.Join(paths, ", "), image.ErrEntryNotFound)
	}

	for _, e := range img.system {
		if path.Base(e.Name) == name {
			return e, nil
		}
	}

	return image.Entry{}, fmt.Errorf("%w: %q", image.ErrEntryNotFound, name)
}

// Compile-time interface check.
var _ image.Image = (*Image)(nil)
