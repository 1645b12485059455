package image

import "fmt"

// WholeFile is the name of the single entry exposed by [Raw].
const WholeFile = "*"

// Raw treats an entire file as one entry named [WholeFile]. It is always
// valid; use it for files that have no container structure.
type Raw struct {
	size int64
}

// NewRaw returns a [Raw] image for a file of the given size.
func NewRaw(size int64) *Raw {
	return &Raw{size: size}
}

// Valid always reports true.
func (r *Raw) Valid() bool {
	return true
}

// Lookup returns the whole-file entry for [WholeFile] and fails otherwise.
func (r *Raw) Lookup(name string) (Entry, error) {
	if name != WholeFile {
		return Entry{}, fmt.Errorf("%w: %q (raw images only have %q)", ErrEntryNotFound, name, WholeFile)
	}

	return Entry{Name: WholeFile, Offset: 0, Length: r.size}, nil
}

// Entries lists the single whole-file entry.
func (r *Raw) Entries() []Entry {
	return []Entry{{Name: WholeFile, Offset: 0, Length: r.size}}
}

// Compile-time interface check.
var _ Image = (*Raw)(nil)
