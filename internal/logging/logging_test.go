package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger, err := New("development", "chatty")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) || logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected info level for an unknown level name")
	}
}

func TestMiddlewareInjectsRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	var fromHandler *zap.Logger
	handler := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromHandler = FromContext(r.Context(), nil)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if fromHandler == nil || fromHandler == base {
		t.Fatalf("expected a request-scoped logger in the context")
	}
	entries := logs.FilterMessage("http request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log line, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusTeapot) {
		t.Fatalf("expected logged status 418, got %v", got)
	}
}

func TestFromContextFallback(t *testing.T) {
	fallback := zap.NewExample()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	if got := FromContext(context.Background(), nil); got == nil {
		t.Fatalf("expected a nop logger, got nil")
	}
}
