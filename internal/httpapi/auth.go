package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"billdesk/backend/internal/logging"
	"billdesk/backend/internal/service"
)

// requireAuth turns a Bearer token into the caller uid. Nothing else is
// taken from the token; the service re-reads role and shop per call.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeStatus(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])
		uid, err := a.tokens.Parse(token)
		if err != nil {
			writeStatus(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}

		ctx := service.WithCaller(r.Context(), uid)
		logger := logging.FromContext(ctx, a.logger).With(zap.String("caller_uid", uid))
		ctx = logging.WithContext(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it is within the
// limit for the sliding window.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
