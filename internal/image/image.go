// Package image defines the contract between the corruption engine and the
// container formats it works on: an [Image] resolves logical names to
// [Entry] regions, and an [Entry] moves its raw bytes in and out of an open
// stream.
package image

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrEntryNotFound is returned by [Image.Lookup] when no entry matches.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrLengthMismatch is returned by [Entry.Write] when the buffer does not
	// have the entry's length. Entries are never resized.
	ErrLengthMismatch = errors.New("buffer length does not match entry")
)

// Image is a parsed container image.
type Image interface {
	// Valid reports whether the container structure parsed correctly.
	Valid() bool

	// Lookup resolves a logical name to its entry. Fails with an error
	// wrapping [ErrEntryNotFound] when nothing matches.
	Lookup(name string) (Entry, error)
}

// Entry is one named byte region inside an image.
type Entry struct {
	Name   string
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the entry.
func (e Entry) End() int64 {
	return e.Offset + e.Length
}

func (e Entry) String() string {
	return fmt.Sprintf("%s@0x%X+0x%X", e.Name, e.Offset, e.Length)
}

// Read extracts the entry's raw bytes from stream. A zero-length entry
// returns an empty, non-nil buffer.
func (e Entry) Read(stream io.ReadSeeker) ([]byte, error) {
	if _, err := stream.Seek(e.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", e.Name, err)
	}

	buf := make([]byte, e.Length)

	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}

	return buf, nil
}

// Write stores buf at the entry's region in stream.
func (e Entry) Write(stream io.WriteSeeker, buf []byte) error {
	if int64(len(buf)) != e.Length {
		return fmt.Errorf("%w: %s has %d bytes, got %d", ErrLengthMismatch, e.Name, e.Length, len(buf))
	}

	if _, err := stream.Seek(e.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", e.Name, err)
	}

	if _, err := stream.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", e.Name, err)
	}

	return nil
}
