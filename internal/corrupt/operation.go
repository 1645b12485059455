package corrupt

import (
	"fmt"
	"strings"
)

// Operation selects the per-byte transformation rule.
type Operation int

// The closed set of transformation rules. None stops iteration at the first
// index, so a config with it never mutates anything.
const (
	None Operation = iota
	Shift
	Swap
	Add
	Set
	Random
	RotateLeft
	RotateRight
	And
	Or
	Xor
	Complement
)

type opInfo struct {
	name    string
	aliases []string
	usage   string
}

var operations = map[Operation]opInfo{
	None:        {name: "none", usage: "do nothing"},
	Shift:       {name: "shift", usage: "copy the byte VALUE positions ahead into the current one"},
	Swap:        {name: "swap", usage: "exchange the current byte with the one VALUE positions ahead"},
	Add:         {name: "add", usage: "add VALUE to the byte (wraps at 8 bits)"},
	Set:         {name: "set", usage: "replace the byte with VALUE"},
	Random:      {name: "random", aliases: []string{"rand"}, usage: "replace the byte with a random value"},
	RotateLeft:  {name: "rol", aliases: []string{"rotate-left"}, usage: "rotate the byte left by VALUE bits"},
	RotateRight: {name: "ror", aliases: []string{"rotate-right"}, usage: "rotate the byte right by VALUE bits"},
	And:         {name: "and", usage: "bitwise AND the byte with VALUE"},
	Or:          {name: "or", usage: "bitwise OR the byte with VALUE"},
	Xor:         {name: "xor", usage: "bitwise XOR the byte with VALUE"},
	Complement:  {name: "not", aliases: []string{"complement"}, usage: "invert every bit of the byte"},
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	ops := make([]Operation, 0, len(operations))
	for op := None; op <= Complement; op++ {
		ops = append(ops, op)
	}

	return ops
}

// String returns the canonical name used on the command line.
func (op Operation) String() string {
	if info, ok := operations[op]; ok {
		return info.name
	}

	return fmt.Sprintf("Operation(%d)", int(op))
}

// Usage returns a one-line description of the operation.
func (op Operation) Usage() string {
	return operations[op].usage
}

// Aliases returns the alternative names accepted by [ParseOperation].
func (op Operation) Aliases() []string {
	return operations[op].aliases
}

// NeedsOperand reports whether VALUE changes what the operation does.
func (op Operation) NeedsOperand() bool {
	switch op {
	case None, Random, Complement:
		return false
	default:
		return true
	}
}

// ParseOperation resolves a name or alias, case-insensitively. The empty
// string parses as [None].
func ParseOperation(name string) (Operation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}

	for op, info := range operations {
		if info.name == name {
			return op, nil
		}

		for _, alias := range info.aliases {
			if alias == name {
				return op, nil
			}
		}
	}

	return None, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

// MarshalText implements [encoding.TextMarshaler].
func (op Operation) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (op *Operation) UnmarshalText(text []byte) error {
	parsed, err := ParseOperation(string(text))
	if err != nil {
		return err
	}

	*op = parsed

	return nil
}
