package gcm

import (
	"encoding/binary"
	"fmt"
	"path"

	"github.com/calvinalkan/mangle/internal/image"
)

const fstRecordSize = 12

type fstDir struct {
	prefix string
	end    uint32
}

// parseFST walks the file system table and returns one entry per file, in
// table order, with '/'-joined paths.
func parseFST(fst []byte) ([]image.Entry, error) {
	if len(fst) < fstRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadFST, len(fst))
	}

	be := binary.BigEndian

	if fst[0] != 1 {
		return nil, fmt.Errorf("%w: root is not a directory", ErrBadFST)
	}

	count := be.Uint32(fst[8:])
	if count == 0 || uint64(count)*fstRecordSize > uint64(len(fst)) {
		return nil, fmt.Errorf("%w: %d records do not fit in %d bytes", ErrBadFST, count, len(fst))
	}

	names := fst[count*fstRecordSize:]
	stack := []fstDir{{prefix: "", end: count}}

	var files []image.Entry

	for i := uint32(1); i < count; i++ {
		for len(stack) > 1 && stack[len(stack)-1].end <= i {
			stack = stack[:len(stack)-1]
		}

		rec := fst[i*fstRecordSize : (i+1)*fstRecordSize]
		nameOff := uint32(rec[1])<<16 | uint32(rec[2])<<8 | uint32(rec[3])

		name, err := nameAt(names, nameOff)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		full := path.Join(stack[len(stack)-1].prefix, name)

		if rec[0] != 0 {
			next := be.Uint32(rec[8:])
			if next <= i || next > stack[len(stack)-1].end {
				return nil, fmt.Errorf("%w: directory %q ends at record %d", ErrBadFST, full, next)
			}

			stack = append(stack, fstDir{prefix: full, end: next})

			continue
		}

		files = append(files, image.Entry{
			Name:   full,
			Offset: int64(be.Uint32(rec[4:])),
			Length: int64(be.Uint32(rec[8:])),
		})
	}

	return files, nil
}

func nameAt(names []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(names)) {
		return "", fmt.Errorf("%w: name offset 0x%X outside string table", ErrBadFST, off)
	}

	name := cString(names[off:])
	if name == "" {
		return "", fmt.Errorf("%w: empty name at 0x%X", ErrBadFST, off)
	}

	return name, nil
}
