package config

import "errors"

var errMissing = errors.New("required but not set")

// ConfigError is a fatal startup error tied to one configuration key or source.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Err.Error()
	}
	return "config: " + e.Key + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }
