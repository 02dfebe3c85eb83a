// Package logger provides structured logging for EntMesh.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("dispatching operation", "type", "INVOKE", "entity", "org.example.Counter/c1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "dispatching operation" {
		t.Errorf("msg = %v, want %q", entry["msg"], "dispatching operation")
	}
	if entry["type"] != "INVOKE" {
		t.Errorf("type = %v, want INVOKE", entry["type"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("dropped")
	l.Info("dropped too")
	if buf.Len() != 0 {
		t.Errorf("below-level entries should be dropped, got %q", buf.String())
	}

	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn entry missing from output: %q", buf.String())
	}
}

func TestSetLevelDynamic(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer SetLevel("info")

	l.Debug("before")
	if buf.Len() != 0 {
		t.Fatal("debug should be filtered at info level")
	}

	SetLevel("debug")
	if GetLevel() != "debug" {
		t.Errorf("GetLevel() = %q, want debug", GetLevel())
	}
	l.Debug("after")
	if !strings.Contains(buf.String(), "after") {
		t.Error("debug entry missing after SetLevel(debug)")
	}
}

func TestOpaquePayloadSummarized(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	big := make([]byte, 1024)
	l.Info("applying sync chunk", "payload", big)

	out := buf.String()
	if strings.Contains(out, strings.Repeat("0,", 32)) {
		t.Error("raw payload bytes leaked into the log")
	}
	if !strings.Contains(out, "1024 bytes") {
		t.Errorf("expected size summary in output: %q", out)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"nil", nil, "<nil>"},
		{"short", []byte{0xAB}, "<1 bytes: ab>"},
		{"long", bytes.Repeat([]byte{0x01}, 20), "<20 bytes: 0101010101010101...>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.in); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextLogger(t *testing.T) {
	ctx := context.Background()

	if FromContext(ctx) == nil {
		t.Fatal("FromContext should fall back to the default logger")
	}

	var buf bytes.Buffer
	l, _ := New(Config{Level: "debug", Format: "json", Output: &buf})
	ctx = WithLogger(ctx, l)
	ctx = WithTransactionID(ctx, 42)

	L(ctx).Info("completing")
	if !strings.Contains(buf.String(), `"transaction_id":42`) {
		t.Errorf("transaction id missing from entry: %q", buf.String())
	}
}
