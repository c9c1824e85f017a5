package mcpserver

import "errors"

// ErrNilConfig is returned by New when no configuration is supplied.
var ErrNilConfig = errors.New("config cannot be nil")
