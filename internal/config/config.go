// Package config loads the ballotdesk configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing, and a
// reference to an unset variable is an error rather than an empty string.
// Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store"`
	Cache        CacheConfig        `yaml:"cache"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	SessionCache SessionCacheConfig `yaml:"session_cache"`
	Log          LogConfig          `yaml:"log"`
}

type StoreConfig struct {
	Path string `yaml:"path"`

	// OpenAttempts bounds how often the CLI retries an unavailable store.
	OpenAttempts int           `yaml:"open_attempts"`
	OpenInterval time.Duration `yaml:"open_interval"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ReconcileConfig struct {
	// Delay before the background revalidation pass. Zero disables it.
	Delay time.Duration `yaml:"delay"`
}

type SessionCacheConfig struct {
	Dir          string `yaml:"dir"`
	CompactAfter int    `yaml:"compact_after"`
	NoSync       bool   `yaml:"no_sync"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Path:         "ballotdesk.db",
			OpenAttempts: 5,
			OpenInterval: 200 * time.Millisecond,
		},
		Cache:     CacheConfig{Enabled: true},
		Reconcile: ReconcileConfig{Delay: 2 * time.Second},
		SessionCache: SessionCacheConfig{
			Dir:          "ballotdesk-sessions",
			CompactAfter: 256,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw, cfg)
}

// Parse expands and decodes data over base and validates the result.
func Parse(data []byte, base Config) (Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return Config{}, err
	}

	cfg := base
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\${([^}]+)}`)

// ExpandEnvStrict expands ${VAR} references and fails on unset variables.
func ExpandEnvStrict(s string) (string, error) {
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if _, ok := os.LookupEnv(name); !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
	}
	return os.ExpandEnv(s), nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.OpenAttempts < 1 {
		errs = append(errs, fmt.Errorf("store.open_attempts must be at least 1, got %d", c.Store.OpenAttempts))
	}
	if c.Store.OpenInterval < 0 {
		errs = append(errs, fmt.Errorf("store.open_interval must not be negative, got %s", c.Store.OpenInterval))
	}
	if c.Reconcile.Delay < 0 {
		errs = append(errs, fmt.Errorf("reconcile.delay must not be negative, got %s", c.Reconcile.Delay))
	}
	if c.SessionCache.Dir == "" {
		errs = append(errs, errors.New("session_cache.dir is required"))
	}
	if c.SessionCache.CompactAfter < 0 {
		errs = append(errs, fmt.Errorf("session_cache.compact_after must not be negative, got %d", c.SessionCache.CompactAfter))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", name)
}
