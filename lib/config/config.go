// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Crucible harness
// binaries.
//
// Configuration is loaded from a single file specified by:
//   - CRUCIBLE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Every value has a
// working default, so most suites run with no config file at all; the
// file exists for the cases that need one (shared stores, sealed
// exports, slow tasks that want a longer run timeout).
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Crucible harness.
type Config struct {
	// Paths configures directory and file locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures payload compression and at-rest encryption.
	Store StoreConfig `yaml:"store"`

	// Runner configures worker subprocess execution.
	Runner RunnerConfig `yaml:"runner"`

	// Dashboard configures the terminal dashboard.
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// PathsConfig configures directory and file locations.
type PathsConfig struct {
	// Root is the base directory for Crucible data. Databases and
	// export archives land under it unless overridden.
	Root string `yaml:"root"`

	// Store overrides the database file path entirely. Empty derives
	// the path from the suite name under Root.
	Store string `yaml:"store"`

	// Exports is where export archives are written when no explicit
	// output path is given.
	Exports string `yaml:"exports"`
}

// StoreConfig configures payload handling in the store.
type StoreConfig struct {
	// Compression names the blob compression algorithm: "none", "lz4",
	// or "zstd". Empty selects zstd.
	Compression string `yaml:"compression"`

	// KeyFile is the path to a 64-hex-character file holding the
	// 32-byte at-rest encryption key. Empty disables encryption.
	KeyFile string `yaml:"key_file"`

	// PoolSize is the SQLite connection count. Zero picks the pool
	// default.
	PoolSize int `yaml:"pool_size"`
}

// RunnerConfig configures worker subprocess execution.
type RunnerConfig struct {
	// Parallelism is the number of concurrent workers. Zero means one
	// worker per CPU.
	Parallelism int `yaml:"parallelism"`

	// Timeout is the per-run wall clock limit as a Go duration string.
	// A run exceeding it is killed and recorded as failed.
	// Default: 10m
	Timeout string `yaml:"timeout"`

	// WorkerBinary overrides the binary spawned for worker
	// subprocesses. Empty re-executes the current binary in worker
	// mode, which is correct for every single-binary suite.
	WorkerBinary string `yaml:"worker_binary"`
}

// DashboardConfig configures the terminal dashboard.
type DashboardConfig struct {
	// Refresh is the store polling interval as a Go duration string.
	// Default: 2s
	Refresh string `yaml:"refresh"`
}

// DefaultRunTimeout applies when runner.timeout is empty.
const DefaultRunTimeout = 10 * time.Minute

// DefaultDashboardRefresh applies when dashboard.refresh is empty.
const DefaultDashboardRefresh = 2 * time.Second

// Default returns the default configuration. These defaults are a
// complete working setup: a project-local .crucible directory, zstd
// compression, no encryption, one worker per CPU.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:    ".crucible",
			Store:   "",
			Exports: filepath.Join(".crucible", "exports"),
		},
		Store: StoreConfig{
			Compression: "zstd",
			KeyFile:     "",
			PoolSize:    0,
		},
		Runner: RunnerConfig{
			Parallelism: 0,
			Timeout:     "10m",
		},
		Dashboard: DashboardConfig{
			Refresh: "2s",
		},
	}
}

// Load loads configuration from the CRUCIBLE_CONFIG environment
// variable, falling back to defaults when it is unset. Unlike most of
// the loader there IS a fallback here: a missing variable means "use
// defaults", because a bare harness run must work out of the box.
func Load() (*Config, error) {
	configPath := os.Getenv("CRUCIBLE_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CRUCIBLE_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CRUCIBLE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Store = expandVars(c.Paths.Store, vars)
	c.Paths.Exports = expandVars(c.Paths.Exports, vars)
	c.Store.KeyFile = expandVars(c.Store.KeyFile, vars)
	c.Runner.WorkerBinary = expandVars(c.Runner.WorkerBinary, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	switch c.Store.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("store.compression must be one of: none, lz4, zstd"))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative"))
	}

	if c.Runner.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("runner.parallelism must not be negative"))
	}
	if c.Runner.Timeout != "" {
		if _, err := time.ParseDuration(c.Runner.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("runner.timeout: %w", err))
		}
	}

	if c.Dashboard.Refresh != "" {
		if _, err := time.ParseDuration(c.Dashboard.Refresh); err != nil {
			errs = append(errs, fmt.Errorf("dashboard.refresh: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RunTimeout returns the parsed per-run timeout. Zero, empty, or
// unparseable values (Validate catches the latter) fall back to
// DefaultRunTimeout.
func (c *Config) RunTimeout() time.Duration {
	if c.Runner.Timeout == "" {
		return DefaultRunTimeout
	}
	timeout, err := time.ParseDuration(c.Runner.Timeout)
	if err != nil || timeout <= 0 {
		return DefaultRunTimeout
	}
	return timeout
}

// DashboardRefresh returns the parsed dashboard polling interval,
// falling back to DefaultDashboardRefresh.
func (c *Config) DashboardRefresh() time.Duration {
	if c.Dashboard.Refresh == "" {
		return DefaultDashboardRefresh
	}
	refresh, err := time.ParseDuration(c.Dashboard.Refresh)
	if err != nil || refresh <= 0 {
		return DefaultDashboardRefresh
	}
	return refresh
}

// StoreKey reads and decodes the at-rest encryption key named by
// store.key_file. Returns nil with no error when no key file is
// configured.
func (c *Config) StoreKey() ([]byte, error) {
	if c.Store.KeyFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.Store.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading store key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding store key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store key must be 32 bytes (64 hex characters), got %d bytes", len(key))
	}
	return key, nil
}

// WorkerBinary resolves the binary spawned for worker subprocesses. An
// explicit override wins; otherwise the current executable re-runs
// itself in worker mode.
func (c *Config) WorkerBinary() (string, error) {
	if c.Runner.WorkerBinary != "" {
		return c.Runner.WorkerBinary, nil
	}
	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving current executable: %w", err)
	}
	return executable, nil
}

// DatabasePath resolves the store database file for a suite name.
// paths.store wins when set; otherwise the file is derived from the
// suite name under paths.root.
func (c *Config) DatabasePath(suiteName string) string {
	if c.Paths.Store != "" {
		return c.Paths.Store
	}
	return filepath.Join(c.Paths.Root, suiteName+".db")
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Exports,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
