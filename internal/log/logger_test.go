package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentLedger})
	logger.Info("Movement appended", FieldAccountID, 7)
	logger.WithComponent(ComponentBatch).Warn("Diferencia")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "account_id=7") {
		t.Errorf("missing ledger fields in %q", out)
	}
	if !strings.Contains(out, "component=batch") {
		t.Errorf("missing batch component in %q", out)
	}
}

func TestStructuredLogger_LogHTTPEnd(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusUnprocessableEntity, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(New(Config{Output: &buf}))
		r := httptest.NewRequest(http.MethodPost, "/api/batches?x=1", nil)
		sl.LogHTTPEnd(context.Background(), r, tt.status, 12, "192.0.2.1")

		out := buf.String()
		if !strings.Contains(out, tt.level) {
			t.Errorf("status %d: log %q missing %s", tt.status, out, tt.level)
		}
		if !strings.Contains(out, "path=/api/batches") || !strings.Contains(out, "client_ip=192.0.2.1") {
			t.Errorf("status %d: log %q missing request fields", tt.status, out)
		}
	}
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))
	sl.LogError(context.Background(), "Request failed", errors.New("disk full"), ComponentHTTP, "submit_batch", ErrorTypeTransaction)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "operation=submit_batch", "error_type=transaction_error", `error="disk full"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentHTTP})

	var got *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.InfoContext(r.Context(), "inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("FromContext() component = %v", got)
	}
	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("log %q missing request id", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("FromContext without logger should fall back to the default")
	}
}
