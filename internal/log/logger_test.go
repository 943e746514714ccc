package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormatAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentWorker, Output: &buf})

	logger.Info("hello", FieldTemplateID, 42)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry[FieldComponent] != ComponentWorker {
		t.Errorf("component = %v, want %v", entry[FieldComponent], ComponentWorker)
	}
	if entry[FieldTemplateID] != float64(42) {
		t.Errorf("template_id = %v, want 42", entry[FieldTemplateID])
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger.Component() != "unknown" {
		t.Errorf("Component() = %q, want unknown", logger.Component())
	}
}

func TestMiddleware_RequestIDAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentApp, Output: &buf})
	hl := NewHTTPLogger(logger)

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hl.LogHTTPEnd(r.Context(), r, http.StatusNotFound, 3, "127.0.0.1", "user-1")
			hl.LogError(r.Context(), "boom", errors.New("bad"), OpRead, nil)
		})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/transactions", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var end, failure map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &end); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &failure); err != nil {
		t.Fatal(err)
	}
	if end["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for 404", end["level"])
	}
	if end[FieldRequestID] != "req-1" || end[FieldUserID] != "user-1" {
		t.Errorf("missing request fields: %v", end)
	}
	if failure["level"] != "ERROR" || failure[FieldError] != "bad" {
		t.Errorf("unexpected error entry: %v", failure)
	}
}
