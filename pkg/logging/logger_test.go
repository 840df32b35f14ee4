package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"verbose": INFO,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, true)
	logger.SetOutput(&buf)

	logger.WithField("node_id", "n1").Info("refreshed", map[string]interface{}{"memory_mb": 2048})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "refreshed" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["node_id"] != "n1" {
		t.Errorf("node_id = %v", entry["node_id"])
	}
	if entry["memory_mb"] != float64(2048) {
		t.Errorf("memory_mb = %v", entry["memory_mb"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, true)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below WARN, got %q", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
	if logger.Enabled(INFO) || !logger.Enabled(ERROR) {
		t.Error("Enabled() disagrees with level")
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DEBUG, false)
	logger.SetOutput(&buf)

	logger.Debug("tick", map[string]interface{}{"interval_ms": 5000})
	out := buf.String()
	if !strings.Contains(out, "tick") || !strings.Contains(out, "interval_ms=5000") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("dropped")
	logger.WithField("k", "v").Warn("dropped")
	if logger.Enabled(FATAL) {
		t.Error("Nop logger should not enable any level")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, true)
	parent.SetOutput(&buf)

	_ = parent.WithField("child", true)
	parent.Info("plain")

	if strings.Contains(buf.String(), "child") {
		t.Errorf("parent picked up child field: %q", buf.String())
	}
}

func TestGenerateLogrotateConfig(t *testing.T) {
	cfg := GenerateLogrotateConfig("watch", RotateOptions{Days: 7, User: "svc"})
	for _, want := range []string{"/var/log/edgecap/watch/*.log", "rotate 7", "create 0644 svc svc"} {
		if !strings.Contains(cfg, want) {
			t.Errorf("config missing %q:\n%s", want, cfg)
		}
	}

	def := GenerateLogrotateConfig("describe", RotateOptions{})
	if !strings.Contains(def, "rotate 14") || !strings.Contains(def, "create 0644 edgecap edgecap") {
		t.Errorf("defaults not applied:\n%s", def)
	}
}

func TestRotateIfNeeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch", "edgecap.log")
	l, err := OpenFileLogger(path, INFO, true)
	if err != nil {
		t.Fatalf("OpenFileLogger: %v", err)
	}
	defer l.Close()
	child := l.WithField("node_id", "n1")

	child.Info("before rotation")
	if err := l.RotateIfNeeded(1 << 20); err != nil {
		t.Fatalf("RotateIfNeeded below limit: %v", err)
	}
	if matches, _ := filepath.Glob(path + ".*"); len(matches) != 0 {
		t.Fatalf("rotated below limit: %v", matches)
	}

	if err := l.RotateIfNeeded(1); err != nil {
		t.Fatalf("RotateIfNeeded: %v", err)
	}
	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 1 {
		t.Fatalf("backups = %v, want one", matches)
	}
	backup, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(backup), "before rotation") {
		t.Errorf("backup missing old entries: %q", backup)
	}

	// Children made before the rotation follow the new file
	child.Info("after rotation")
	current, _ := os.ReadFile(path)
	if !strings.Contains(string(current), "after rotation") {
		t.Errorf("child wrote to the old file: %q", current)
	}
	if strings.Contains(string(current), "before rotation") {
		t.Errorf("new file carries rotated entries: %q", current)
	}
}

func TestRotateIfNeededWithoutFile(t *testing.T) {
	if err := NewLogger(INFO, false).RotateIfNeeded(1); err != nil {
		t.Errorf("RotateIfNeeded on stdout logger = %v", err)
	}
}
