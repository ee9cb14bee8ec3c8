package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/carepulse/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

func (f *ServiceFactory) defaults(idGen func() string, now func() time.Time) (func() string, func() time.Time) {
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return idGen, now
}

// AppointmentServiceDeps captures dependencies for constructing a lifecycle service.
type AppointmentServiceDeps struct {
	Appointments application.AppointmentRepository
	Notifier     application.Notifier
	Idempotency  application.IdempotencyStore
	Metrics      application.Metrics
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewAppointmentService builds a lifecycle service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewAppointmentService(deps AppointmentServiceDeps) *application.AppointmentService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	opts := []application.AppointmentServiceOption{application.WithMetrics(deps.Metrics)}
	if deps.Idempotency != nil {
		opts = append(opts, application.WithIdempotencyStore(deps.Idempotency))
	}
	return application.NewAppointmentServiceWithLogger(
		deps.Appointments,
		deps.Notifier,
		idGen,
		now,
		deps.Logger,
		opts...,
	)
}

// PatientServiceDeps captures dependencies for constructing an intake service.
type PatientServiceDeps struct {
	Users       application.UserRepository
	Patients    application.PatientRepository
	Blobs       application.BlobStore
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewPatientService builds an intake service using the supplied dependencies.
func (f *ServiceFactory) NewPatientService(deps PatientServiceDeps) *application.PatientService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewPatientServiceWithLogger(
		deps.Users,
		deps.Patients,
		deps.Blobs,
		idGen,
		now,
		deps.Logger,
	)
}

// DispatcherDeps captures dependencies for constructing a notification dispatcher.
type DispatcherDeps struct {
	Gateway     application.Gateway
	Outbox      application.NotificationOutbox
	Policy      application.RetryPolicy
	Metrics     application.Metrics
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewDispatcher builds a dispatcher. A zero Policy falls back to DefaultRetryPolicy.
func (f *ServiceFactory) NewDispatcher(deps DispatcherDeps) *application.Dispatcher {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	policy := deps.Policy
	if policy == (application.RetryPolicy{}) {
		policy = application.DefaultRetryPolicy
	}
	return application.NewDispatcher(deps.Gateway, deps.Outbox, policy, deps.Metrics, idGen, now, deps.Logger)
}
