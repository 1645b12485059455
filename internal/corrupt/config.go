package corrupt

import "math"

// Config describes what to corrupt and how. It is built once and only read
// afterwards; the engine never modifies it.
type Config struct {
	Operation Operation

	// Operand is the shift or swap distance, the added or set value, the
	// bitmask, or the rotation count, depending on Operation.
	Operand byte

	// RangeStart and RangeEnd bound the visited indices inside each entry
	// buffer: RangeStart <= i < RangeEnd. RangeStart > RangeEnd is allowed
	// and visits nothing.
	RangeStart uint32
	RangeEnd   uint32

	// Stride is the step between visited indices. Zero visits nothing.
	Stride uint32

	// Targets are the entry names to corrupt, in order. Duplicates are
	// processed again; unknown names are skipped.
	Targets []string

	// OutputPath is the explicit save location. Empty means derived from
	// the original file name.
	OutputPath string
}

// DefaultConfig returns a config that covers every index with stride 1 and
// does nothing until an operation and targets are set.
func DefaultConfig() Config {
	return Config{
		Operation:  None,
		RangeStart: 0,
		RangeEnd:   math.MaxUint32,
		Stride:     1,
	}
}

// Active reports whether a run with this config can change anything: an
// operation is selected and at least one target is named.
func (c Config) Active() bool {
	return c.Operation != None && len(c.Targets) > 0
}

// Validate checks the invariants the engine relies on for forward progress.
func (c Config) Validate() error {
	if _, ok := operations[c.Operation]; !ok {
		return ErrUnknownOperation
	}

	if c.Stride == 0 {
		return ErrStrideZero
	}

	return nil
}
