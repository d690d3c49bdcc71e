// loader.go implements the configuration loading lifecycle:
//
//  1. Load a .env file via godotenv (non-fatal if absent; never overrides
//     variables already set in the environment).
//  2. Populate the Config struct from envconfig struct tags.
//  3. Validate the struct using go-playground/validator.
//  4. Parse the JSON override tables so malformed overrides fail startup
//     rather than surfacing mid-run.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrorType classifies configuration failures for diagnostics.
type ErrorType string

const (
	ErrParsing    ErrorType = "PARSING"
	ErrValidation ErrorType = "VALIDATION"
	ErrOverride   ErrorType = "OVERRIDE"
)

// ConfigError is a diagnostic error returned by Load.
type ConfigError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load loads and validates the daemon configuration from the environment.
func Load() (*Config, error) {
	// A .env file seeds the environment for bench setups. Absence is the
	// normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if _, err := cfg.Window.Signatures(); err != nil {
		return nil, &ConfigError{
			Type:    ErrOverride,
			Message: "invalid signature table",
			Err:     err,
		}
	}
	if _, err := cfg.Window.Policies(); err != nil {
		return nil, &ConfigError{
			Type:    ErrOverride,
			Message: "invalid policy table",
			Err:     err,
		}
	}

	return &cfg, nil
}
