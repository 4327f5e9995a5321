package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"WARNING", LevelWarn},
		{" error ", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf, Service: "test"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.WithContext(ctx).
		WithField("submission_id", 7).
		WithError(errors.New("boom")).
		Warn("cycle skipped: %s", "mailbox down")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if got["level"] != "WARN" {
		t.Errorf("expected level WARN, got %v", got["level"])
	}
	if got["message"] != "cycle skipped: mailbox down" {
		t.Errorf("unexpected message %v", got["message"])
	}
	if got["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", got["request_id"])
	}
	if got["error"] != "boom" {
		t.Errorf("expected error boom, got %v", got["error"])
	}
	fields, _ := got["fields"].(map[string]any)
	if fields["submission_id"] != float64(7) {
		t.Errorf("expected submission_id field, got %v", fields)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf})

	log.Info("hidden")
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	log.Error("shown")
	if !strings.Contains(buf.String(), `"shown"`) {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelInfo, Output: &buf})
	_ = parent.WithField("k", "v")

	parent.Info("plain")
	if strings.Contains(buf.String(), `"k"`) {
		t.Fatalf("parent logger picked up child field: %q", buf.String())
	}
}
