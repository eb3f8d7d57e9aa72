package utils

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	prev := defaultLogger
	t.Cleanup(func() { defaultLogger = prev })

	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "stage", "dissolve")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["msg"] != "shown" || entry["stage"] != "dissolve" {
		t.Errorf("entry = %v", entry)
	}
	if L() != logger {
		t.Error("L() should return the configured logger")
	}
}

func TestSetupLoggerText(t *testing.T) {
	prev := defaultLogger
	t.Cleanup(func() { defaultLogger = prev })

	var buf bytes.Buffer
	setupLogger(&buf, "", "").Debug("hidden")
	L().Info("visible")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("output = %q", buf.String())
	}
}
