package config

import "errors"

var (
	// ErrConfigFileRead indicates the config file could not be opened.
	ErrConfigFileRead = errors.New("failed to read config file")

	// ErrConfigParse indicates the TOML document could not be parsed.
	ErrConfigParse = errors.New("failed to parse config")

	// ErrConfigInvalid wraps every validation failure in the document.
	ErrConfigInvalid = errors.New("invalid config")

	// ErrInvalidValue indicates a field holds an unsupported value.
	ErrInvalidValue = errors.New("invalid value")

	// ErrMissingValue indicates a required field is absent.
	ErrMissingValue = errors.New("missing value")
)
