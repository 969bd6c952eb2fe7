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
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewJSONFormatAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentSettings, Output: &buf})

	logger.Info("Setting updated", FieldSettingKey, "month_start_day")
	logger.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec[FieldComponent] != ComponentSettings || rec[FieldSettingKey] != "month_start_day" {
		t.Errorf("record = %v", rec)
	}
}

func TestWithComponentDoesNotDuplicate(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Component: ComponentApp}).WithComponent(ComponentHTTP)

	logger.Info("hello")
	if n := strings.Count(buf.String(), "component="); n != 1 {
		t.Errorf("component appears %d times: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "component=http") {
		t.Errorf("wrong component: %s", buf.String())
	}
}

func TestComponentMiddleware(t *testing.T) {
	var got string
	h := ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context()).Component()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != ComponentHTTP {
		t.Errorf("component = %q, want %q", got, ComponentHTTP)
	}
	if c := FromContext(context.Background()).Component(); c != "unknown" {
		t.Errorf("FromContext without logger = %q", c)
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf, Format: "json"}))

	sl.LogError(context.Background(), "Request failed", errors.New("boom"), ComponentHTTP, OpCreate, NewFields().WithRequestID("req_1"))

	out := buf.String()
	for _, want := range []string{`"error":"boom"`, `"operation":"create"`, `"request_id":"req_1"`, `"level":"ERROR"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}
