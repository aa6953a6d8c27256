package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/bills/{id}/receipt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bills/"+id+"/receipt", nil))
	}

	got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/bills/{id}/receipt", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests under the route pattern, got %v", got)
	}
}

func TestObserveOperationAndExposition(t *testing.T) {
	m := New()
	m.ObserveOperation("createBill", "ok", 15*time.Millisecond)
	m.ObserveOperation("createBill", "failed-precondition", time.Millisecond)
	m.ObserveAttempts("createBill", 2)

	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("createBill", "ok")); got != 1 {
		t.Fatalf("expected 1 ok operation, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"billdesk_operations_total", "billdesk_transaction_attempts_bucket"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in exposition", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("createBill", "ok", time.Millisecond)
	m.ObserveAttempts("createBill", 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if m.Middleware(next) == nil {
		t.Fatalf("expected pass-through handler")
	}
}
