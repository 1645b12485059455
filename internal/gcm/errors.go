package gcm

import "errors"

// Error variables for disc parsing and lookup. Structural problems are not
// returned from [Open]; they are reported by [Image.Problem].
var (
	ErrBadMagic        = errors.New("missing GameCube disc magic")
	ErrTruncated       = errors.New("image is truncated")
	ErrBadFST          = errors.New("malformed file system table")
	ErrAmbiguousEntry  = errors.New("entry name is ambiguous")
	ErrRegionOutOfFile = errors.New("entry region lies outside the image")
)
