package corrupt

import "errors"

// Error variables for engine configuration and runs.
var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrStrideZero       = errors.New("step must be greater than zero")
	ErrInvalidImage     = errors.New("image structure is invalid")
)
