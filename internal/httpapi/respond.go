package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/logging"
)

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON decodes exactly one JSON value and rejects unknown fields, so a
// client cannot slip in fields the handler would silently drop.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.InvalidArgument, "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidArgument, "request body is required")
		}
		return apperr.Wrap(apperr.InvalidArgument, err, fmt.Sprintf("invalid request body: %v", err))
	}
	if decoder.More() {
		return apperr.New(apperr.InvalidArgument, "request body must contain a single JSON object")
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeStatus(w, http.StatusMethodNotAllowed, "method-not-allowed", "method not allowed")
}

// writeError maps err to its status code. Internal errors are logged and
// answered with a generic message.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.Normalize(err)
	status := apperr.HTTPStatus(appErr.Kind)
	msg := appErr.Message
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), a.logger).Error("request failed", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeStatus(w, status, string(appErr.Kind), msg)
}

func writeStatus(w http.ResponseWriter, status int, kind string, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
