package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether backing stores are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Appointments *AppointmentHandler
	Patients     *PatientHandler
	AdminGate    AdminAuthorizer
	Metrics      http.Handler
	Health       HealthChecker
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, logger))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Patients != nil {
		r.Post("/users", cfg.Patients.CreateUser)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", cfg.Patients.GetUser)
			r.Get("/patient", cfg.Patients.GetPatient)
		})
		r.Post("/patients", cfg.Patients.RegisterPatient)
	}

	if cfg.Appointments != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.Appointments.Create)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", cfg.Appointments.Get)
				r.Post("/schedule", cfg.Appointments.Schedule)
				r.Post("/cancel", cfg.Appointments.Cancel)
			})
		})

		r.Route("/admin", func(admin chi.Router) {
			admin.Use(RequireAdmin(cfg.AdminGate, logger))
			admin.Get("/appointments", cfg.Appointments.Summary)
		})
	}

	return r
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	responder := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
