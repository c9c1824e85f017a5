// Package config holds the runtime configuration for the flutterctl MCP
// server. Configuration is optional: every field has a default, a TOML file
// can override the defaults, and CLI flags override the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	// VMServiceURI, when set, is connected to when the server starts.
	// Tools can connect or reconnect later regardless.
	VMServiceURI string `toml:"vm_service_uri"`

	// ConnectTimeout bounds the WebSocket dial to the VM service.
	ConnectTimeout Duration `toml:"connect_timeout"`

	// CallTimeout bounds each VM service round trip made by a tool call.
	CallTimeout Duration `toml:"call_timeout"`

	// MaxStateBytes trims the rendered widget tree returned by
	// get_app_state.
	MaxStateBytes int `toml:"max_state_bytes"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		ConnectTimeout: Duration{10 * time.Second},
		CallTimeout:    Duration{30 * time.Second},
		MaxStateBytes:  1_000_000,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads a TOML config file over the defaults. An empty path returns the
// defaults unchanged. Load does not validate; callers apply flag overrides
// first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}
	return cfg, nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "warning": true, "error": true,
}

// Validate checks the configuration, joining all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat))
	}
	if c.ConnectTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%w: connect_timeout", ErrInvalidTimeout))
	}
	if c.CallTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%w: call_timeout", ErrInvalidTimeout))
	}
	if c.MaxStateBytes <= 0 {
		errs = append(errs, ErrInvalidSizeLimit)
	}
	if c.VMServiceURI != "" {
		u, err := url.Parse(c.VMServiceURI)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidURI, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidURI, u.Scheme))
		}
	}

	return errors.Join(errs...)
}
