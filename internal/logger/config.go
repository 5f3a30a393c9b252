package logger

import (
	"fmt"
	"time"
)

// Config holds the operational logging configuration.
type Config struct {
	Level    string         `mapstructure:"level" json:"level"`
	Format   string         `mapstructure:"format" json:"format"` // "json" or "text"
	Console  ConsoleConfig  `mapstructure:"console" json:"console"`
	File     FileConfig     `mapstructure:"file" json:"file"`
	Rotation RotationConfig `mapstructure:"rotation" json:"rotation"`
	Async    AsyncConfig    `mapstructure:"async" json:"async"`
}

// ConsoleConfig controls stdout output.
type ConsoleConfig struct {
	Enabled     bool `mapstructure:"enabled" json:"enabled"`
	ForceColors bool `mapstructure:"force_colors" json:"force_colors"`
}

// FileConfig controls file output. Path is the log file itself; rotation
// siblings are managed next to it.
type FileConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// RotationConfig controls rotation of the operational log file. This is
// the agent's own diagnostic log, unrelated to the customer-data rotation
// the archiving pipeline performs.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size" json:"max_size"`
	MaxAgeDays int  `mapstructure:"max_age" json:"max_age"`
	MaxBackups int  `mapstructure:"max_backups" json:"max_backups"`
	Compress   bool `mapstructure:"compress" json:"compress"`
}

// AsyncConfig controls the buffered writer in front of the log file.
type AsyncConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	BufferSize      int           `mapstructure:"buffer_size" json:"buffer_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval" json:"flush_interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Console: ConsoleConfig{
			Enabled: true,
		},
		File: FileConfig{
			Enabled: true,
			Path:    "logs/s3archiver.log",
		},
		Rotation: RotationConfig{
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 10,
			Compress:   true,
		},
		Async: AsyncConfig{
			Enabled:         true,
			BufferSize:      1000,
			FlushInterval:   5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("logger: invalid format %q (must be \"json\" or \"text\")", c.Format)
	}
	if !c.Console.Enabled && !c.File.Enabled {
		return fmt.Errorf("logger: at least one of console or file output must be enabled")
	}
	if c.File.Enabled {
		if c.File.Path == "" {
			return fmt.Errorf("logger: file.path is required when file output is enabled")
		}
		if c.Rotation.MaxSizeMB <= 0 {
			return fmt.Errorf("logger: rotation.max_size must be positive")
		}
		if c.Rotation.MaxBackups < 0 {
			return fmt.Errorf("logger: rotation.max_backups cannot be negative")
		}
	}
	if c.Async.Enabled {
		if c.Async.BufferSize <= 0 {
			return fmt.Errorf("logger: async.buffer_size must be positive")
		}
		if c.Async.FlushInterval <= 0 {
			return fmt.Errorf("logger: async.flush_interval must be positive")
		}
		if c.Async.ShutdownTimeout <= 0 {
			return fmt.Errorf("logger: async.shutdown_timeout must be positive")
		}
	}
	return nil
}
