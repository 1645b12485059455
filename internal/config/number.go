package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is an unsigned config value written either as a JSON number or as
// a string holding a decimal or 0x-prefixed hex literal.
type Number uint64

// ParseNumber parses a decimal or 0x-prefixed hex literal.
func ParseNumber(s string) (Number, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, err)
	}

	return Number(v), nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string

		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}

		v, err := ParseNumber(s)
		if err != nil {
			return err
		}

		*n = v

		return nil
	}

	var v uint64

	err := json.Unmarshal(data, &v)
	if err != nil {
		return fmt.Errorf("number %s: %w", data, err)
	}

	*n = Number(v)

	return nil
}

// Hex formats n as 0x-prefixed uppercase hex.
func (n Number) Hex() string {
	return fmt.Sprintf("0x%X", uint64(n))
}
