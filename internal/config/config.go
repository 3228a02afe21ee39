// Package config loads bones engine configuration from .bones/config.yaml,
// the user config directory, and BONES_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at process startup, before any engine handle is opened.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD to find project .bones/config.yaml.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".bones", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/bn/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "bn", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory fallback (~/.bones/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".bones", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g. BONES_AGENT, BONES_LOG, BONES_LOCK_TIMEOUT_MS.
	v.SetEnvPrefix("BONES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("agent", "")
	v.SetDefault("log", "info")
	v.SetDefault("lock-timeout", "5s")
	v.SetDefault("fsync", true)
	v.SetDefault("db", "")

	// Bench fixture sizing (spec.md §6.3: BONES_BENCH_MAX_EVENTS, BONES_BENCH_ITEMS).
	v.SetDefault("bench.max-events", 0)
	v.SetDefault("bench.items", 0)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value (used by CLI flags).
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ResolveAgent determines the writer identity stamped on new events.
//
// Priority chain:
//  1. flagValue (--agent)
//  2. BONES_AGENT env var / config.yaml "agent" field (viper handles both)
//  3. git config user.name
//  4. hostname
func ResolveAgent(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if agent := GetString("agent"); agent != "" {
		return agent
	}
	if cmd := exec.Command("git", "config", "user.name"); true {
		if output, err := cmd.Output(); err == nil {
			if gitUser := strings.TrimSpace(string(output)); gitUser != "" {
				return gitUser
			}
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}

// LockTimeout returns the configured shard append lock timeout (§5, default
// 5s): BONES_LOCK_TIMEOUT_MS in milliseconds when set above zero, else the
// "lock-timeout" duration (BONES_LOCK_TIMEOUT or the config file).
func LockTimeout() time.Duration {
	if ms := GetInt("lock-timeout-ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	d := GetDuration("lock-timeout")
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// BenchMaxEvents returns BONES_BENCH_MAX_EVENTS for sizing bench fixtures.
func BenchMaxEvents() int { return GetInt("bench.max-events") }

// BenchItems returns BONES_BENCH_ITEMS for sizing bench fixtures.
func BenchItems() int { return GetInt("bench.items") }
