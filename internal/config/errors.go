package config

import "errors"

// Error variables for config loading and validation.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrUnknownFormat      = errors.New("unknown image format")
	ErrUnknownColor       = errors.New("unknown color mode")
	ErrValueRange         = errors.New("value out of range")
	ErrExtensionEmpty     = errors.New("extension cannot be empty")
)
