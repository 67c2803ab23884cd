// Package testsupport provides shared helpers for package tests: temp-dir
// backed configs and preopened task stores.
package testsupport

import (
	"path/filepath"
	"testing"

	"taskmill/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockDir = filepath.Join(base, "locks")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithIgnore sets the enqueue ignore list on the test config.
func WithIgnore(handlers ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.Ignore = handlers
	}
}
