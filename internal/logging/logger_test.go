package logging_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taskmill/internal/logging"
)

func logToFile(t *testing.T, format string, emit func(*slog.Logger)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      format,
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("logging.New failed: %v", err)
	}
	emit(logger)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestConsoleHandlerFormatsKeyValues(t *testing.T) {
	out := logToFile(t, "console", func(logger *slog.Logger) {
		logger.Info("task completed",
			logging.String(logging.FieldComponent, "worker"),
			logging.Int64(logging.FieldTaskID, 42),
			logging.String(logging.FieldGroup, "reports"),
		)
	})

	for _, want := range []string{"INFO", "worker: task completed", "task_id=42", "group=reports"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONHandlerEmitsParsableRecords(t *testing.T) {
	out := logToFile(t, "json", func(logger *slog.Logger) {
		logger.Info("task completed", logging.Int64(logging.FieldTaskID, 42))
	})

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if record["msg"] != "task completed" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("level = %v", record["level"])
	}
	if record["task_id"] != float64(42) {
		t.Fatalf("task_id = %v", record["task_id"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("record has no ts field")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestWithComponentPrefixesRecords(t *testing.T) {
	plain := logToFile(t, "console", func(logger *slog.Logger) {
		logger.Info("probe")
	})
	if strings.Contains(plain, "queue:") {
		t.Fatalf("component prefix appeared without WithComponent:\n%s", plain)
	}

	prefixed := logToFile(t, "console", func(logger *slog.Logger) {
		logging.WithComponent(logger, "queue").Info("probe")
	})
	if !strings.Contains(prefixed, "queue: probe") {
		t.Fatalf("component prefix missing:\n%s", prefixed)
	}
}
