package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

type erroringGate struct{}

func (erroringGate) Authorize(ctx context.Context, passkey string) error {
	return errors.New("hash store unavailable")
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		gate           AdminAuthorizer
		passkey        string
		expectedStatus int
		expectNext     bool
	}{
		{name: "missing passkey", gate: gateStub{passkey: "secret"}, expectedStatus: http.StatusUnauthorized},
		{name: "wrong passkey", gate: gateStub{passkey: "secret"}, passkey: "guess", expectedStatus: http.StatusUnauthorized},
		{name: "no gate configured", passkey: "secret", expectedStatus: http.StatusUnauthorized},
		{name: "gate failure", gate: erroringGate{}, passkey: "secret", expectedStatus: http.StatusInternalServerError},
		{name: "valid passkey", gate: gateStub{passkey: "secret"}, passkey: "secret", expectedStatus: http.StatusNoContent, expectNext: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			called := false
			handler := RequireAdmin(tc.gate, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
			if tc.passkey != "" {
				req.Header.Set(AdminPasskeyHeader, tc.passkey)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected %d, got %d", tc.expectedStatus, rec.Code)
			}
			if called != tc.expectNext {
				t.Fatalf("expected next called=%v, got %v", tc.expectNext, called)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var scoped *slog.Logger
	handler := middleware.RequestID(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", nil))

	if scoped == nil {
		t.Fatalf("expected request logger in context")
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["msg"] != "request completed" || entry["method"] != "POST" || entry["path"] != "/appointments" {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if entry["status"] != float64(http.StatusAccepted) {
		t.Fatalf("expected status to be logged, got %v", entry["status"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Fatalf("expected request id, got %v", entry["request_id"])
	}
}
