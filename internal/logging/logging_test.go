package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("json format emits parseable lines", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, LevelDebug, FormatJSON)

		logger.Info("worker started", "worker_id", 3)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
		}
		if entry["msg"] != "worker started" {
			t.Errorf("msg = %v, want %q", entry["msg"], "worker started")
		}
		if entry["worker_id"] != float64(3) {
			t.Errorf("worker_id = %v, want 3", entry["worker_id"])
		}
	})

	t.Run("text format by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, LevelInfo, "unknown")

		logger.Info("pool created", "min", 1)

		if !strings.Contains(buf.String(), "msg=\"pool created\"") {
			t.Errorf("unexpected text output: %q", buf.String())
		}
	})

	t.Run("level filters lower messages", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, LevelWarn, FormatText)

		logger.Info("hidden")
		logger.Debug("hidden")
		logger.Warn("shown")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info/debug should be filtered: %q", out)
		}
		if !strings.Contains(out, "shown") {
			t.Errorf("warn should be logged: %q", out)
		}
	})
}

func TestOpen(t *testing.T) {
	t.Run("creates file and parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "pool.log")

		logger, closeFn, err := Open(path, LevelInfo, FormatJSON)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		logger.Info("hello")
		if err := closeFn(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if !strings.Contains(string(data), "hello") {
			t.Errorf("log file missing entry: %q", data)
		}
	})

	t.Run("empty path logs to stderr", func(t *testing.T) {
		logger, closeFn, err := Open("", LevelInfo, FormatText)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if logger == nil {
			t.Fatal("expected logger")
		}
		if err := closeFn(); err != nil {
			t.Errorf("close should be a no-op, got %v", err)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNop(t *testing.T) {
	// Must not panic and must not write anywhere visible.
	Nop().Error("discarded", "k", "v")
}
