package config

import "errors"

var (
	ErrConfigRead       = errors.New("failed to read config file")
	ErrConfigParse      = errors.New("failed to parse config file")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrInvalidURI       = errors.New("invalid VM service URI")
	ErrInvalidTimeout   = errors.New("timeout must be positive")
	ErrInvalidSizeLimit = errors.New("max_state_bytes must be positive")
)
