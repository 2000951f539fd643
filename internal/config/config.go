package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultRegistryPath is the well-known registry file location when no path
// is configured. It lives in the shared temp directory so every process on
// the host agrees on it.
func DefaultRegistryPath() string {
	return filepath.Join(os.TempDir(), "sessiond-sessions.lock")
}

// FileConfig is the top-level TOML structure for the sessiond daemon.
type FileConfig struct {
	Registry  string          `toml:"registry" mapstructure:"registry"`
	Resources *ResourceLimits `toml:"resources" mapstructure:"resources"`
	Server    *ServerConfig   `toml:"server" mapstructure:"server"`
	History   []string        `toml:"history" mapstructure:"history"`
	Log       *LogConfig      `toml:"log" mapstructure:"log"`
}

// ResourceLimits mirrors ResourceConfig for file parsing. Fields are
// pointers so an absent key falls back to the environment/defaults while an
// explicit zero (a valid warn threshold) is still honored.
type ResourceLimits struct {
	MaxSessions          *int `toml:"max_sessions" mapstructure:"max_sessions"`
	ProcessWarnThreshold *int `toml:"process_warn_threshold" mapstructure:"process_warn_threshold"`
	ProcessHardLimit     *int `toml:"process_hard_limit" mapstructure:"process_hard_limit"`
}

type ServerConfig struct {
	Listen        string `toml:"listen" mapstructure:"listen"`
	BasePath      string `toml:"base_path" mapstructure:"base_path"`
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`
}

type LogConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	Level      string `toml:"level" mapstructure:"level"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// LoadFromTOML parses a TOML daemon config file.
func LoadFromTOML(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// RegistryPath returns the configured registry path or the default.
func (fc *FileConfig) RegistryPath() string {
	if fc != nil && fc.Registry != "" {
		return fc.Registry
	}
	return DefaultRegistryPath()
}

// ResourceConfig builds the effective limits: environment (with defaults) as
// the base, then file values override where the key was present.
func (fc *FileConfig) ResourceConfig() (ResourceConfig, error) {
	base, err := FromEnv()
	if err != nil {
		return ResourceConfig{}, err
	}
	if fc == nil || fc.Resources == nil {
		return base, nil
	}
	max := base.MaxSessions
	warn := base.ProcessWarnThreshold
	hard := base.ProcessHardLimit
	if fc.Resources.MaxSessions != nil {
		max = *fc.Resources.MaxSessions
	}
	if fc.Resources.ProcessWarnThreshold != nil {
		warn = *fc.Resources.ProcessWarnThreshold
	}
	if fc.Resources.ProcessHardLimit != nil {
		hard = *fc.Resources.ProcessHardLimit
	}
	return NewResourceConfig(max, warn, hard)
}
