package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterAdapter(&buf)

	log.Info("agent connected", "remote", "127.0.0.1:123")
	log.Warn("buffer full")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if first["level"] != "INFO" {
		t.Errorf("level = %v", first["level"])
	}
	if first["message"] != "agent connected" {
		t.Errorf("message = %v", first["message"])
	}
	if first["remote"] != "127.0.0.1:123" {
		t.Errorf("key-value args lost: %v", first)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if second["level"] != "WARN" {
		t.Errorf("level = %v", second["level"])
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterAdapter(&buf).WithField("component", "relay")

	log.Info("listening", "addr", ":8765")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["component"] != "relay" {
		t.Errorf("bound field lost: %v", entry)
	}
	if entry["addr"] != ":8765" {
		t.Errorf("call-site arg lost: %v", entry)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"relay":         "relay",
		"my component!": "my_component_",
		"":              "app",
		"a/b\\c":        "a_b_c",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
