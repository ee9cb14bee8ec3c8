package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/example/carepulse/internal/application"
	"github.com/example/carepulse/internal/blob"
	"github.com/example/carepulse/internal/config"
	httptransport "github.com/example/carepulse/internal/http"
	"github.com/example/carepulse/internal/idempotency"
	"github.com/example/carepulse/internal/metrics"
	"github.com/example/carepulse/internal/notify"
	"github.com/example/carepulse/internal/persistence/sqlite"
)

// carePulse holds the wired service graph for one process.
type carePulse struct {
	cfg          config.Config
	logger       *slog.Logger
	storage      *sqlite.Storage
	redis        *redis.Client
	appointments *application.AppointmentService
	patients     *application.PatientService
	worker       *application.OutboxWorker
	handler      http.Handler
}

type dependencies struct {
	idGenerator func() string
	now         func() time.Time
	registry    *prometheus.Registry
	s3Client    blob.S3API
	httpClient  *http.Client
}

func defaultDependencies() dependencies {
	return dependencies{
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlite.Storage, error) {
	storage, err := sqlite.Open(cfg.SQLiteDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}
	return storage, nil
}

func newCarePulse(ctx context.Context, cfg config.Config, logger *slog.Logger, deps dependencies) (*carePulse, error) {
	if deps.idGenerator == nil || deps.now == nil {
		defaults := defaultDependencies()
		if deps.idGenerator == nil {
			deps.idGenerator = defaults.idGenerator
		}
		if deps.now == nil {
			deps.now = defaults.now
		}
	}
	if deps.registry == nil {
		deps.registry = prometheus.NewRegistry()
		deps.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &carePulse{cfg: cfg, logger: logger, storage: storage}

	if err := app.wire(ctx, deps); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *carePulse) wire(ctx context.Context, deps dependencies) error {
	cfg, logger := a.cfg, a.logger

	lifecycleMetrics := metrics.NewLifecycleMetrics(deps.registry)
	httpMetrics := metrics.NewHTTPMetrics(deps.registry)

	users := newUserRepositoryAdapter(a.storage)
	patients := newPatientRepositoryAdapter(a.storage)
	appointments := newAppointmentRepositoryAdapter(a.storage)
	outbox := newOutboxAdapter(a.storage)

	var gateway application.Gateway = notify.NewLoggingGateway(logger, deps.idGenerator)
	if cfg.SMSBaseURL != "" {
		httpGateway, err := notify.NewHTTPGateway(notify.HTTPGatewayConfig{
			BaseURL:    cfg.SMSBaseURL,
			APIKey:     cfg.SMSAPIKey,
			From:       cfg.SMSFrom,
			HTTPClient: deps.httpClient,
		}, users, logger)
		if err != nil {
			return fmt.Errorf("configure sms gateway: %w", err)
		}
		gateway = httpGateway
	} else {
		logger.Warn("sms gateway not configured, notifications will only be logged")
	}

	policy := application.DefaultRetryPolicy
	policy.MaxAttempts = cfg.OutboxMaxAttempts
	dispatcher := application.NewDispatcher(gateway, outbox, policy, lifecycleMetrics, deps.idGenerator, deps.now, logger)
	a.worker = application.NewOutboxWorker(outbox, gateway, application.OutboxWorkerConfig{
		Interval:  cfg.OutboxInterval,
		BatchSize: cfg.OutboxBatchSize,
		Policy:    policy,
	}, lifecycleMetrics, deps.now, logger)

	opts := []application.AppointmentServiceOption{
		application.WithMetrics(lifecycleMetrics),
		application.WithMessages(application.Messages{ProductName: cfg.ProductName, Location: cfg.NotificationLocation}),
	}
	if cfg.RedisEnabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := idempotency.NewStore(a.redis, cfg.IdempotencyTTL)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, idempotency keys will fall back to the database index", "error", err)
		}
		opts = append(opts, application.WithIdempotencyStore(store))
	}
	a.appointments = application.NewAppointmentServiceWithLogger(appointments, dispatcher, deps.idGenerator, deps.now, logger, opts...)

	var blobs application.BlobStore
	if cfg.BlobStorageEnabled() {
		client := deps.s3Client
		if client == nil {
			s3Client, err := blob.NewS3Client(ctx, blob.ClientConfig{
				Region:          cfg.S3Region,
				Endpoint:        cfg.S3Endpoint,
				AccessKeyID:     cfg.S3AccessKeyID,
				SecretAccessKey: cfg.S3SecretAccessKey,
			})
			if err != nil {
				return err
			}
			client = s3Client
		}
		blobs = blob.NewStore(client, blob.Options{
			Bucket:       cfg.S3Bucket,
			ViewEndpoint: cfg.StorageEndpoint,
			Project:      cfg.StorageProject,
		}, logger)
	}
	a.patients = application.NewPatientServiceWithLogger(users, patients, blobs, deps.idGenerator, deps.now, logger)

	gate, err := application.NewAdminGate(cfg.AdminPasskeyHash, cfg.AdminPasskey, logger)
	if err != nil {
		return fmt.Errorf("configure admin gate: %w", err)
	}

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Appointments: httptransport.NewAppointmentHandler(a.appointments, logger),
		Patients:     httptransport.NewPatientHandler(a.patients, logger),
		AdminGate:    gate,
		Metrics:      metrics.Handler(deps.registry),
		Health:       a.storage,
		Logger:       logger,
		Middleware:   []func(http.Handler) http.Handler{httpMetrics.Middleware},
	})
	return nil
}

// Close releases the storage and Redis connections.
func (a *carePulse) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
