package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", "json", &buf)
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
	l.WithField("backend", "vision").Debug("read")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if entry["backend"] != "vision" || entry["msg"] != "read" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("loud", "text", &buf)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
	if !strings.Contains(buf.String(), "unknown log level") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}
