// Package config provides configuration file support for the vibepruner
// work directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the work directory configuration, loaded from
// .vibepruner/config.yaml. A missing file means defaults.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Audit    AuditConfig    `yaml:"audit"`
	Rollback RollbackConfig `yaml:"rollback"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SessionConfig configures session locking and checkpointing.
type SessionConfig struct {
	LockStaleness      string `yaml:"lock_staleness"`
	CheckpointInterval string `yaml:"checkpoint_interval"`
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	MaxLogSizeMB    int  `yaml:"max_log_size_mb"`
	RetentionDays   int  `yaml:"retention_days"`
	IncludeUserInfo bool `yaml:"include_user_info"`
}

// RollbackConfig configures rollback point housekeeping.
type RollbackConfig struct {
	KeepDays int `yaml:"keep_days"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			LockStaleness:      "300s",
			CheckpointInterval: "30s",
		},
		Audit: AuditConfig{
			MaxLogSizeMB:    100,
			RetentionDays:   365,
			IncludeUserInfo: true,
		},
		Rollback: RollbackConfig{
			KeepDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LockStaleness returns the parsed lock staleness threshold.
func (c *Config) LockStaleness() time.Duration {
	return parseDuration(c.Session.LockStaleness, 300*time.Second)
}

// CheckpointInterval returns the parsed periodic checkpoint interval.
func (c *Config) CheckpointInterval() time.Duration {
	return parseDuration(c.Session.CheckpointInterval, 30*time.Second)
}

// MaxLogSizeBytes returns the audit rotation ceiling in bytes.
func (c *Config) MaxLogSizeBytes() int64 {
	if c.Audit.MaxLogSizeMB <= 0 {
		return 100 * 1024 * 1024
	}
	return int64(c.Audit.MaxLogSizeMB) * 1024 * 1024
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load loads configuration from <workDir>/config.yaml.
// Returns default config if the file doesn't exist.
func Load(workDir string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(workDir, "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes configuration to <workDir>/config.yaml.
func Save(workDir string, cfg *Config) error {
	cfgPath := filepath.Join(workDir, "config.yaml")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
