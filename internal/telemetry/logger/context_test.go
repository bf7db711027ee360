package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	l := Discard()
	ctx := WithLogger(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Error("FromContext() did not return the stored logger")
	}
}

func TestFromContext_Default(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext() without logger should return slog.Default()")
	}
}

func TestConnIDFromContext(t *testing.T) {
	if id := ConnIDFromContext(context.Background()); id != "" {
		t.Errorf("empty context conn id = %q", id)
	}
	ctx := WithConnID(context.Background(), "01HZY")
	if id := ConnIDFromContext(ctx); id != "01HZY" {
		t.Errorf("conn id = %q, want 01HZY", id)
	}
}

func TestL_WithConnID(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithConnID(WithLogger(context.Background(), l), "01HZY")
	L(ctx).Info("accepted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if entry["conn_id"] != "01HZY" {
		t.Errorf("conn_id = %v, want 01HZY", entry["conn_id"])
	}
}
