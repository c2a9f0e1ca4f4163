// Package config loads and validates the broker's runtime configuration
// from flags, environment variables, and an optional config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all broker runtime configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// WSPort is the port of the single listener that serves both the HTTP
	// routes and the WebSocket upgrade. Zero means use Port; when WSPort is
	// set, nothing listens on Port.
	WSPort int `mapstructure:"ws_port"`

	// CleanupIntervalMs is how often the broker scans for offline users and
	// empty sessions, in milliseconds.
	CleanupIntervalMs int64 `mapstructure:"cleanup_interval_ms"`
	// SessionTimeoutMs is how long an empty session lingers before it is
	// reaped, in milliseconds.
	SessionTimeoutMs int64 `mapstructure:"session_timeout_ms"`
	// SocketTimeoutMs is the per-connection liveness window, in
	// milliseconds: pings go out every half of it, and a connection that
	// returns no pong within it is closed.
	SocketTimeoutMs int64 `mapstructure:"socket_timeout_ms"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogEnabled    bool   `mapstructure:"log_enabled"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// StaticDir, if set, is served for the out-of-scope browser UI shell.
	// The broker has no knowledge of what's inside it.
	StaticDir string `mapstructure:"static_dir"`

	// WSPath is the HTTP path the WebSocket transport adapter upgrades on.
	WSPath string `mapstructure:"ws_path"`

	Environment string `mapstructure:"environment"`
}

// Default returns a Config populated with the broker's default values.
func Default() *Config {
	return &Config{
		Host:              "localhost",
		Port:              3000,
		WSPort:            0, // 0 means "same as Port"
		CleanupIntervalMs: 5 * 60 * 1000,
		SessionTimeoutMs:  10 * 60 * 1000,
		SocketTimeoutMs:   30 * 1000,
		LogLevel:          "info",
		LogFormat:         "text",
		LogEnabled:        true,
		LogMaxSizeMB:      50,
		LogMaxBackups:     3,
		WSPath:            "/api/v1/ws",
		Environment:       "development",
	}
}

// EffectiveWSPort returns WSPort, falling back to Port when unset.
func (c *Config) EffectiveWSPort() int {
	if c.WSPort == 0 {
		return c.Port
	}
	return c.WSPort
}

// CleanupInterval returns CleanupIntervalMs as a time.Duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// SessionTimeout returns SessionTimeoutMs as a time.Duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}

// SocketTimeout returns SocketTimeoutMs as a time.Duration.
func (c *Config) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutMs) * time.Millisecond
}

// Load reads configuration from cfgFile (if non-empty), the environment
// (prefixed CADENCE_), and finally falls back to Default. Fatal validation
// errors block startup; soft errors are clamped in place and returned as
// warnings for the caller to log.
func Load(cfgFile string) (*Config, *ValidationResult, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cadence")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CADENCE")
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows, so bind each one to
	// its CADENCE_<KEY> variable explicitly.
	for _, key := range []string{
		"host", "port", "ws_port",
		"cleanup_interval_ms", "session_timeout_ms", "socket_timeout_ms",
		"log_level", "log_format", "log_enabled", "log_file", "log_max_size_mb", "log_max_backups",
		"static_dir", "ws_path", "environment",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return nil, result, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, result, nil
}
