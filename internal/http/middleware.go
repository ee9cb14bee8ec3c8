package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/carepulse/internal/application"
)

// AdminPasskeyHeader carries the admin dashboard passkey.
const AdminPasskeyHeader = "X-Admin-Passkey"

// AdminAuthorizer verifies the admin passkey.
type AdminAuthorizer interface {
	Authorize(ctx context.Context, passkey string) error
}

// RequireAdmin rejects requests whose X-Admin-Passkey header does not verify.
func RequireAdmin(gate AdminAuthorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passkey := strings.TrimSpace(r.Header.Get(AdminPasskeyHeader))
			if passkey == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPasskey)
				return
			}
			if gate == nil {
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}

			if err := gate.Authorize(r.Context(), passkey); err != nil {
				if errors.Is(err, application.ErrUnauthorized) {
					responder.handleServiceError(r.Context(), w, err)
					return
				}
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "admin gate failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request scoped logger and records start and completion.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
