package config

import (
	"fmt"
	"strings"
)

// ValidationResult separates configuration problems that must block startup
// from ones that were clamped to a safe value and only need to be logged.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal validation error was recorded.
func (r *ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// to log everything that was wrong.
func (r *ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

func (r *ValidationResult) fatal(format string, args ...any) {
	r.Fatals = append(r.Fatals, fmt.Errorf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Errorf(format, args...))
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

var validEnvironments = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

const (
	minPort = 1
	maxPort = 65535

	minCleanupIntervalMs = 1000
	maxCleanupIntervalMs = 60 * 60 * 1000

	minSessionTimeoutMs = 1000
	maxSessionTimeoutMs = 24 * 60 * 60 * 1000

	minSocketTimeoutMs = 1000
	maxSocketTimeoutMs = 10 * 60 * 1000
)

// ValidateTiered checks the config for problems. Host and port are fatal
// when malformed since the broker has no safe fallback for "listen where?".
// Interval-style fields are clamped into range and reported as warnings,
// since a conservative default keeps the broker running.
func (c *Config) ValidateTiered() *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(c.Host) == "" {
		result.fatal("host must not be empty")
	}

	if c.Port < minPort || c.Port > maxPort {
		result.fatal("port %d out of range [%d, %d]", c.Port, minPort, maxPort)
	}

	if c.WSPort != 0 && (c.WSPort < minPort || c.WSPort > maxPort) {
		result.fatal("ws_port %d out of range [%d, %d]", c.WSPort, minPort, maxPort)
	}

	if c.CleanupIntervalMs < minCleanupIntervalMs || c.CleanupIntervalMs > maxCleanupIntervalMs {
		result.warn("cleanup_interval_ms %d out of range [%d, %d], clamping", c.CleanupIntervalMs, minCleanupIntervalMs, maxCleanupIntervalMs)
		c.CleanupIntervalMs = clampInt64(c.CleanupIntervalMs, minCleanupIntervalMs, maxCleanupIntervalMs)
	}

	if c.SessionTimeoutMs < minSessionTimeoutMs || c.SessionTimeoutMs > maxSessionTimeoutMs {
		result.warn("session_timeout_ms %d out of range [%d, %d], clamping", c.SessionTimeoutMs, minSessionTimeoutMs, maxSessionTimeoutMs)
		c.SessionTimeoutMs = clampInt64(c.SessionTimeoutMs, minSessionTimeoutMs, maxSessionTimeoutMs)
	}

	if c.SocketTimeoutMs < minSocketTimeoutMs || c.SocketTimeoutMs > maxSocketTimeoutMs {
		result.warn("socket_timeout_ms %d out of range [%d, %d], clamping", c.SocketTimeoutMs, minSocketTimeoutMs, maxSocketTimeoutMs)
		c.SocketTimeoutMs = clampInt64(c.SocketTimeoutMs, minSocketTimeoutMs, maxSocketTimeoutMs)
	}

	level := strings.ToLower(strings.TrimSpace(c.LogLevel))
	if !validLogLevels[level] {
		result.warn("unknown log_level %q, defaulting to info", c.LogLevel)
		c.LogLevel = "info"
	}

	format := strings.ToLower(strings.TrimSpace(c.LogFormat))
	if !validLogFormats[format] {
		result.warn("unknown log_format %q, defaulting to text", c.LogFormat)
		c.LogFormat = "text"
	}

	env := strings.ToLower(strings.TrimSpace(c.Environment))
	if !validEnvironments[env] {
		result.warn("unknown environment %q, defaulting to development", c.Environment)
		c.Environment = "development"
	}

	return result
}

func clampInt64(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
