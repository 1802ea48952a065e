package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/envelope-ledger/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusBadRequest, zapcore.WarnLevel},
		{http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := observability.ZapLoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/budget/accounts", nil))

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.want {
				t.Errorf("expected level %s, got %s", tt.want, entries[0].Level)
			}
			if got := entries[0].ContextMap()["path"]; got != "/api/budget/accounts" {
				t.Errorf("expected path field, got %v", got)
			}
		})
	}
}

func TestTracingMiddleware_PropagatesTraceID(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	core, logs := observer.New(zapcore.InfoLevel)
	h := observability.TracingMiddleware(
		observability.ZapLoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["trace_id"]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected inbound trace id, got %v", got)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		logger := observability.NewLogger(tt.in)
		if !logger.Core().Enabled(tt.want) || (tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1)) {
			t.Errorf("NewLogger(%q): level is not %s", tt.in, tt.want)
		}
	}
}
