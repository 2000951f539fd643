package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Environment variables consumed by FromEnv.
const (
	EnvMaxSessions          = "RESOURCE_MAX_SESSIONS"
	EnvProcessWarnThreshold = "RESOURCE_PROCESS_WARN_THRESHOLD"
	EnvProcessHardLimit     = "RESOURCE_PROCESS_HARD_LIMIT"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultMaxSessions          = 3
	DefaultProcessWarnThreshold = 1500
	DefaultProcessHardLimit     = 2000
)

// ErrInvalidConfig wraps all resource-config validation failures.
var ErrInvalidConfig = errors.New("invalid resource config")

// ResourceConfig holds the session and process-count limits. It is validated
// at construction and never mutated afterwards.
type ResourceConfig struct {
	MaxSessions          int `mapstructure:"max_sessions"`
	ProcessWarnThreshold int `mapstructure:"process_warn_threshold"`
	ProcessHardLimit     int `mapstructure:"process_hard_limit"`
}

// NewResourceConfig constructs and validates a config from explicit values.
func NewResourceConfig(maxSessions, warnThreshold, hardLimit int) (ResourceConfig, error) {
	c := ResourceConfig{
		MaxSessions:          maxSessions,
		ProcessWarnThreshold: warnThreshold,
		ProcessHardLimit:     hardLimit,
	}
	if err := c.validate(); err != nil {
		return ResourceConfig{}, err
	}
	return c, nil
}

// FromEnv reads the three RESOURCE_* environment variables, substituting the
// documented defaults for unset ones, and validates the result.
func FromEnv() (ResourceConfig, error) {
	v := viper.New()
	v.SetDefault("max_sessions", DefaultMaxSessions)
	v.SetDefault("process_warn_threshold", DefaultProcessWarnThreshold)
	v.SetDefault("process_hard_limit", DefaultProcessHardLimit)
	_ = v.BindEnv("max_sessions", EnvMaxSessions)
	_ = v.BindEnv("process_warn_threshold", EnvProcessWarnThreshold)
	_ = v.BindEnv("process_hard_limit", EnvProcessHardLimit)
	return NewResourceConfig(
		v.GetInt("max_sessions"),
		v.GetInt("process_warn_threshold"),
		v.GetInt("process_hard_limit"),
	)
}

func (c ResourceConfig) validate() error {
	if c.MaxSessions < 1 {
		return fmt.Errorf("%w: max_sessions must be >= 1, got %d", ErrInvalidConfig, c.MaxSessions)
	}
	if c.ProcessWarnThreshold < 0 {
		return fmt.Errorf("%w: process_warn_threshold must be >= 0, got %d", ErrInvalidConfig, c.ProcessWarnThreshold)
	}
	if c.ProcessHardLimit < 0 {
		return fmt.Errorf("%w: process_hard_limit must be >= 0, got %d", ErrInvalidConfig, c.ProcessHardLimit)
	}
	if c.ProcessWarnThreshold >= c.ProcessHardLimit {
		return fmt.Errorf("%w: process_warn_threshold (%d) must be < process_hard_limit (%d)",
			ErrInvalidConfig, c.ProcessWarnThreshold, c.ProcessHardLimit)
	}
	return nil
}
