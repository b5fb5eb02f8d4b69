package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{" Info ", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"off", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelText(t *testing.T) {
	var cfg struct {
		Level Level `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"warn"}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Level != LevelWarn {
		t.Errorf("got %v, want WARN", cfg.Level)
	}

	out, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"level":"warn"}` {
		t.Errorf("got %s", out)
	}
}

func TestNewLoggerFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, err := New(LevelInfo, logPath, "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message")
	logger.Debug("should not appear")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	logger.Info("after close")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	contentStr := string(content)

	if !strings.Contains(contentStr, "test message") {
		t.Errorf("Log file missing info message")
	}
	if strings.Contains(contentStr, "should not appear") || strings.Contains(contentStr, "after close") {
		t.Errorf("Log file contains filtered messages: %s", contentStr)
	}
	if !strings.Contains(contentStr, "[test]") {
		t.Errorf("Log file missing prefix")
	}
	if !strings.Contains(contentStr, fmt.Sprintf("pid=%d", os.Getpid())) {
		t.Errorf("Log file missing pid: %s", contentStr)
	}
}

func TestWriterWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(LevelInfo, &buf, "parent")

	logger.WithPrefix("child").Info("hello %d", 7)

	line := buf.String()
	if !strings.Contains(line, "[INFO]") || !strings.Contains(line, "[parent:child] hello 7") {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriter(LevelInfo, &buf, "")

	logger.Info("info1")
	logger.Debug("debug1")
	logger.SetLevel(LevelDebug)
	logger.Debug("debug2")

	out := buf.String()
	if strings.Contains(out, "debug1") {
		t.Errorf("debug1 should not appear (level was INFO)")
	}
	if !strings.Contains(out, "debug2") || !strings.Contains(out, "info1") {
		t.Errorf("missing messages: %q", out)
	}
	if logger.GetLevel() != LevelDebug {
		t.Errorf("GetLevel() = %v", logger.GetLevel())
	}
}

func TestLoggerDisabled(t *testing.T) {
	logger, err := New(LevelNone, "", "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Debug("debug")
	logger.Error("error")

	var buf bytes.Buffer
	NewWriter(LevelNone, &buf, "").Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("LevelNone wrote %q", buf.String())
	}
}

func TestGlobalLogger(t *testing.T) {
	if Global() == nil {
		t.Fatal("Global() returned nil")
	}

	var buf bytes.Buffer
	prev := Global()
	SetGlobal(NewWriter(LevelWarn, &buf, "g"))
	t.Cleanup(func() { SetGlobal(prev) })

	Info("quiet")
	Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "[g] loud") {
		t.Errorf("unexpected global output: %q", buf.String())
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelDebug, &buf, "http")

	slog.New(NewSlogHandler(l)).WithGroup("req").Warn("slow", "path", "/debug/state", "ms", 12)
	if !strings.Contains(buf.String(), "[WARN]") || !strings.Contains(buf.String(), "slow req.path=/debug/state req.ms=12") {
		t.Errorf("unexpected slog line: %q", buf.String())
	}

	buf.Reset()
	NewStdLogger(l, slog.LevelError).Printf("accept: %s", "boom")
	if !strings.Contains(buf.String(), "[ERROR]") || !strings.Contains(buf.String(), "accept: boom") {
		t.Errorf("unexpected std line: %q", buf.String())
	}
}
