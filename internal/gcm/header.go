package gcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Disc layout constants.
const (
	// Magic is the DVD magic word at [offMagic].
	Magic uint32 = 0xC2339F3D

	// Extension is the file extension of a GCM disc image.
	Extension = ".gcm"

	bootSize      = 0x440
	bi2Offset     = 0x440
	bi2Size       = 0x2000
	apploaderOff  = 0x2440
	apploaderHead = 0x20

	offGameCode  = 0x000
	offMaker     = 0x004
	offDiscNum   = 0x006
	offVersion   = 0x007
	offMagic     = 0x01C
	offTitle     = 0x020
	titleSize    = 0x3E0
	offDOL       = 0x420
	offFST       = 0x424
	offFSTSize   = 0x428
	offFSTMax    = 0x42C
	dolHeadSize  = 0x100
	dolSections  = 18
	dolSizeTable = 0x90
)

// Header holds the fields of boot.bin that locate the rest of the disc.
type Header struct {
	GameCode   string
	MakerCode  string
	DiscNumber uint8
	Version    uint8
	Magic      uint32
	Title      string
	DOLOffset  uint32
	FSTOffset  uint32
	FSTSize    uint32
	FSTMaxSize uint32
}

// ID returns the six-character game ID (game code plus maker code).
func (h Header) ID() string {
	return h.GameCode + h.MakerCode
}

func parseHeader(boot []byte) (Header, error) {
	if len(boot) < bootSize {
		return Header{}, fmt.Errorf("%w: boot header has %d bytes", ErrTruncated, len(boot))
	}

	be := binary.BigEndian

	h := Header{
		GameCode:   string(boot[offGameCode : offGameCode+4]),
		MakerCode:  string(boot[offMaker : offMaker+2]),
		DiscNumber: boot[offDiscNum],
		Version:    boot[offVersion],
		Magic:      be.Uint32(boot[offMagic:]),
		Title:      cString(boot[offTitle : offTitle+titleSize]),
		DOLOffset:  be.Uint32(boot[offDOL:]),
		FSTOffset:  be.Uint32(boot[offFST:]),
		FSTSize:    be.Uint32(boot[offFSTSize:]),
		FSTMaxSize: be.Uint32(boot[offFSTMax:]),
	}

	if h.Magic != Magic {
		return h, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, h.Magic)
	}

	return h, nil
}

// apploaderLength reads the apploader header and returns the full size of
// the apploader image.
func apploaderLength(r io.ReaderAt) (int64, error) {
	var head [apploaderHead]byte

	if _, err := r.ReadAt(head[:], apploaderOff); err != nil {
		return 0, fmt.Errorf("apploader header: %w", err)
	}

	size := binary.BigEndian.Uint32(head[0x14:])
	trailer := binary.BigEndian.Uint32(head[0x18:])

	return apploaderHead + int64(size) + int64(trailer), nil
}

// dolLength reads the DOL header at off and returns the end of its last
// section relative to off.
func dolLength(r io.ReaderAt, off int64) (int64, error) {
	var head [dolHeadSize]byte

	if _, err := r.ReadAt(head[:], off); err != nil {
		return 0, fmt.Errorf("dol header: %w", err)
	}

	be := binary.BigEndian
	length := int64(dolHeadSize)

	for s := range dolSections {
		secOff := int64(be.Uint32(head[s*4:]))
		secLen := int64(be.Uint32(head[dolSizeTable+s*4:]))

		if secLen > 0 && secOff+secLen > length {
			length = secOff + secLen
		}
	}

	return length, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
