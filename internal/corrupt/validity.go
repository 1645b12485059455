package corrupt

import (
	"fmt"
	"strconv"
	"strings"
)

// Validator decides whether candidate may be written at index of an entry
// buffer. It is consulted before every commit and must not have side effects.
type Validator func(candidate byte, index int) bool

// AlwaysValid accepts every byte at every index.
func AlwaysValid(byte, int) bool {
	return true
}

// NeverValid rejects everything.
func NeverValid(byte, int) bool {
	return false
}

// All returns a validator that accepts only when every given validator
// accepts. Nil validators are ignored; with none left it accepts everything.
func All(validators ...Validator) Validator {
	active := make([]Validator, 0, len(validators))

	for _, v := range validators {
		if v != nil {
			active = append(active, v)
		}
	}

	switch len(active) {
	case 0:
		return AlwaysValid
	case 1:
		return active[0]
	}

	return func(candidate byte, index int) bool {
		for _, v := range active {
			if !v(candidate, index) {
				return false
			}
		}

		return true
	}
}

// Range is a half-open index interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Contains reports whether index lies in the range.
func (r Range) Contains(index int) bool {
	return index >= r.Start && index < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("0x%X-0x%X", r.Start, r.End)
}

// ParseRange parses "START-END" with decimal or 0x-prefixed hex bounds.
// END is exclusive and must not be below START.
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, fmt.Errorf("range %q: want START-END", s)
	}

	start, err := strconv.ParseUint(strings.TrimSpace(lo), 0, 32)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: start: %w", s, err)
	}

	end, err := strconv.ParseUint(strings.TrimSpace(hi), 0, 32)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: end: %w", s, err)
	}

	if end < start {
		return Range{}, fmt.Errorf("range %q: end before start", s)
	}

	return Range{Start: int(start), End: int(end)}, nil
}

// Protect rejects any candidate whose index falls in one of ranges, so
// headers and other fragile regions keep their bytes.
func Protect(ranges ...Range) Validator {
	if len(ranges) == 0 {
		return AlwaysValid
	}

	protected := append([]Range(nil), ranges...)

	return func(_ byte, index int) bool {
		for _, r := range protected {
			if r.Contains(index) {
				return false
			}
		}

		return true
	}
}

// Forbid rejects the given candidate values anywhere.
func Forbid(values ...byte) Validator {
	if len(values) == 0 {
		return AlwaysValid
	}

	var deny [256]bool
	for _, v := range values {
		deny[v] = true
	}

	return func(candidate byte, _ int) bool {
		return !deny[candidate]
	}
}

// ParseByte parses a decimal or 0x-prefixed hex value in 0..255.
func ParseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("byte %q: %w", s, err)
	}

	return byte(v), nil
}
