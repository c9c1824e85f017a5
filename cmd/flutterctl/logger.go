package main

import (
	"github.com/flutterctl/flutterctl/internal/logging"
)

// SetupLogger configures the default logger based on provided log level and format
func SetupLogger(logLevel, format string) {
	logging.SetupLogger(logLevel, format)
}
