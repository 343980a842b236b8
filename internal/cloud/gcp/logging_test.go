package gcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCloudLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("run-1", WithWriter(&buf), WithLabels(map[string]string{"piece": "feature-flow"}))
	cl.SetMovement("plan")
	cl.Log(SeverityInfo, "movement started", map[string]interface{}{"iteration": 0})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry.Severity != SeverityInfo {
		t.Errorf("severity = %s, want INFO", entry.Severity)
	}
	if entry.RunID != "run-1" || entry.Movement != "plan" {
		t.Errorf("run labels = %q/%q", entry.RunID, entry.Movement)
	}
	if entry.Labels["piece"] != "feature-flow" || entry.Labels["component"] != "ensemble-engine" {
		t.Errorf("labels = %v", entry.Labels)
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestCloudLoggerSeverityHelpers(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("run-1", WithWriter(&buf))
	cl.LogInfo("a")
	cl.LogWarning("b")
	cl.LogError("c")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}
	for i, want := range []Severity{SeverityInfo, SeverityWarning, SeverityError} {
		var entry LogEntry
		if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if entry.Severity != want {
			t.Errorf("line %d severity = %s, want %s", i, entry.Severity, want)
		}
	}
}

func TestCloudLoggerClosedDropsEntries(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCloudLogger("run-1", WithWriter(&buf))
	if err := cl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	cl.LogInfo("after close")
	if buf.Len() != 0 {
		t.Errorf("closed logger wrote output: %q", buf.String())
	}
}

func TestFallbackLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	fl := NewFallbackLogger(&buf, "run-2")
	fl.LogWarning("loop detected")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.RunID != "run-2" || entry.Severity != SeverityWarning {
		t.Errorf("entry = %+v", entry)
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sk-ant-abc123", "[REDACTED_API_KEY]"},
		{"ghp_abcdef", "[REDACTED_GITHUB_TOKEN]"},
		{"Bearer topsecret", "Bearer [REDACTED]"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
