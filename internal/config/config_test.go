package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskmill/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, path, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if path != missing {
		t.Fatalf("resolved path = %q, want %q", path, missing)
	}
	if cfg.Worker.BatchSize != 10 || cfg.Worker.MaxIdle != 10 {
		t.Fatalf("worker defaults not applied: %+v", cfg.Worker)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults not applied: %+v", cfg.Logging)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+base+`/data"
log_dir = "`+base+`/logs"
lock_dir = "`+base+`/locks"

[queue]
default_priority = 5
default_retries = 2
ignore = ["noisy"]
allow_closures = true

[worker]
batch_size = 25
max_idle = 3
min_sleep_ms = 10
max_sleep_ms = 100
event_log = true

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved %q exists=%v", resolved, exists)
	}
	if cfg.Queue.DefaultPriority != 5 || cfg.Queue.DefaultRetries != 2 || !cfg.Queue.AllowClosures {
		t.Fatalf("queue section mismatch: %+v", cfg.Queue)
	}
	if len(cfg.Queue.Ignore) != 1 || cfg.Queue.Ignore[0] != "noisy" {
		t.Fatalf("ignore list mismatch: %v", cfg.Queue.Ignore)
	}
	if cfg.Worker.BatchSize != 25 || !cfg.Worker.EventLog {
		t.Fatalf("worker section mismatch: %+v", cfg.Worker)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging values not normalized: %+v", cfg.Logging)
	}
	if got := cfg.DatabasePath(); got != filepath.Join(base, "data", "tasks.db") {
		t.Fatalf("DatabasePath = %q", got)
	}
}

func TestLoadExpandsHomePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
[paths]
data_dir = "~/taskdata"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Paths.DataDir != filepath.Join(home, "taskdata") {
		t.Fatalf("data_dir = %q, want under %q", cfg.Paths.DataDir, home)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero batch size", "[worker]\nbatch_size = 0\n", "batch_size"},
		{"inverted sleep bounds", "[worker]\nmin_sleep_ms = 500\nmax_sleep_ms = 100\n", "max_sleep_ms"},
		{"priority out of range", "[queue]\ndefault_priority = 300\n", "default_priority"},
		{"negative retries", "[queue]\ndefault_retries = -1\n", "default_retries"},
		{"unknown log format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"unknown log level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := config.Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("sample config not detected")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}
