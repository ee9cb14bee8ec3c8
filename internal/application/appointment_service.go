package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/carepulse/internal/persistence"
)

var appointmentTracer = otel.Tracer("carepulse.internal.application.appointments")

// AppointmentRepository captures the persistence operations needed by the lifecycle service.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) (Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	FindAppointmentByIdempotencyKey(ctx context.Context, key string) (Appointment, error)
	// ListAppointments returns every appointment ordered by CreatedAt descending.
	ListAppointments(ctx context.Context) (AppointmentPage, error)
	UpdateAppointment(ctx context.Context, appointment Appointment, expectedRevision int) (Appointment, error)
}

// IdempotencyStore records which appointment a client submission key produced.
type IdempotencyStore interface {
	// Claim binds key to id. When the key is already bound, claimed is false
	// and existingID names the earlier appointment.
	Claim(ctx context.Context, key, id string) (existingID string, claimed bool, err error)
	Release(ctx context.Context, key string) error
}

// AppointmentService owns appointment state transitions and the admin summary.
type AppointmentService struct {
	appointments AppointmentRepository
	notifier     Notifier
	idempotency  IdempotencyStore
	messages     Messages
	metrics      Metrics
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// AppointmentServiceOption customises optional collaborators.
type AppointmentServiceOption func(*AppointmentService)

// WithIdempotencyStore enables deduplication of create requests carrying a key.
func WithIdempotencyStore(store IdempotencyStore) AppointmentServiceOption {
	return func(s *AppointmentService) { s.idempotency = store }
}

// WithMessages overrides the notification texts.
func WithMessages(messages Messages) AppointmentServiceOption {
	return func(s *AppointmentService) { s.messages = messages }
}

// WithMetrics attaches lifecycle counters.
func WithMetrics(metrics Metrics) AppointmentServiceOption {
	return func(s *AppointmentService) { s.metrics = metricsOrNop(metrics) }
}

// NewAppointmentService wires dependencies for the lifecycle service.
func NewAppointmentService(appointments AppointmentRepository, notifier Notifier, idGenerator func() string, now func() time.Time, opts ...AppointmentServiceOption) *AppointmentService {
	return NewAppointmentServiceWithLogger(appointments, notifier, idGenerator, now, nil, opts...)
}

// NewAppointmentServiceWithLogger constructs the lifecycle service with a specified logger.
func NewAppointmentServiceWithLogger(appointments AppointmentRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger, opts ...AppointmentServiceOption) *AppointmentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	s := &AppointmentService{
		appointments: appointments,
		notifier:     notifier,
		messages:     Messages{ProductName: "CarePulse", Location: time.UTC},
		metrics:      nopMetrics{},
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AppointmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AppointmentService", operation, attrs...)
}

// Create validates the booking and persists a pending appointment. No notification is sent.
func (s *AppointmentService) Create(ctx context.Context, input CreateAppointmentInput) (appointment Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	if s.appointments == nil {
		err = fmt.Errorf("appointment repository not configured")
		return
	}

	ctx, span := appointmentTracer.Start(ctx, "appointments.create")
	defer span.End()

	replayed := false
	logger := s.loggerWith(ctx, "Create",
		"user_id", input.UserID,
		"patient_id", input.PatientID,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.AppointmentCreated("error")
			logger.ErrorContext(ctx, "failed to create appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if replayed {
			s.metrics.AppointmentCreated("replayed")
			logger.With("appointment_id", appointment.ID).InfoContext(ctx, "appointment replayed for idempotency key")
			return
		}
		s.metrics.AppointmentCreated("created")
		logger.With("appointment_id", appointment.ID).InfoContext(ctx, "appointment created")
	}()

	vErr := validateCreateAppointment(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	id := s.idGenerator()
	span.SetAttributes(attribute.String("carepulse.appointment_id", id), attribute.Bool("carepulse.idempotent", key != ""))

	claimed := false
	if key != "" && s.idempotency != nil {
		existingID, ok, claimErr := s.idempotency.Claim(ctx, key, id)
		switch {
		case claimErr != nil:
			logger.WarnContext(ctx, "idempotency store unavailable, creating without deduplication", "error", claimErr)
		case !ok:
			appointment, err = s.replay(ctx, existingID)
			replayed = err == nil
			return
		default:
			claimed = true
		}
	}

	createdAt := s.now()
	record := Appointment{
		ID:               id,
		UserID:           strings.TrimSpace(input.UserID),
		PatientID:        strings.TrimSpace(input.PatientID),
		PrimaryPhysician: strings.TrimSpace(input.PrimaryPhysician),
		Schedule:         input.Schedule,
		Status:           StatusPending,
		Reason:           strings.TrimSpace(input.Reason),
		Note:             trimmedOptional(input.Note),
		Revision:         1,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	if key != "" {
		record.IdempotencyKey = &key
	}

	persisted, createErr := s.appointments.CreateAppointment(ctx, record)
	if createErr != nil {
		if claimed {
			if relErr := s.idempotency.Release(ctx, key); relErr != nil {
				logger.WarnContext(ctx, "failed to release idempotency key", "error", relErr)
			}
		}
		if key != "" && errors.Is(createErr, persistence.ErrDuplicate) {
			existing, findErr := s.appointments.FindAppointmentByIdempotencyKey(ctx, key)
			if findErr == nil {
				appointment, replayed = existing, true
				return
			}
		}
		err = mapAppointmentRepoError(createErr)
		return
	}

	appointment = persisted
	return
}

func (s *AppointmentService) replay(ctx context.Context, existingID string) (Appointment, error) {
	existing, err := s.appointments.GetAppointment(ctx, existingID)
	if err == nil {
		return existing, nil
	}
	mapped := mapAppointmentRepoError(err)
	if errors.Is(mapped, ErrNotFound) {
		// The first request holding the key has not persisted yet.
		return Appointment{}, fmt.Errorf("%w: idempotency key in use by a request in progress", ErrConflict)
	}
	return Appointment{}, mapped
}

// Get returns the appointment with the given ID.
func (s *AppointmentService) Get(ctx context.Context, appointmentID string) (Appointment, error) {
	if s == nil {
		return Appointment{}, fmt.Errorf("AppointmentService is nil")
	}
	if s.appointments == nil {
		return Appointment{}, fmt.Errorf("appointment repository not configured")
	}
	if strings.TrimSpace(appointmentID) == "" {
		return Appointment{}, ErrNotFound
	}

	ctx, span := appointmentTracer.Start(ctx, "appointments.get",
		trace.WithAttributes(attribute.String("carepulse.appointment_id", appointmentID)))
	defer span.End()

	appointment, err := s.appointments.GetAppointment(ctx, appointmentID)
	if err != nil {
		err = mapAppointmentRepoError(err)
		endSpan(span, err)
		return Appointment{}, err
	}
	return appointment, nil
}

// Update applies a schedule or cancel transition, persists it, and sends one notification.
// A failed notification is queued by the notifier and does not fail the update.
func (s *AppointmentService) Update(ctx context.Context, params UpdateAppointmentParams) (appointment Appointment, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	if s.appointments == nil {
		err = fmt.Errorf("appointment repository not configured")
		return
	}

	ctx, span := appointmentTracer.Start(ctx, "appointments.update", trace.WithAttributes(
		attribute.String("carepulse.appointment_id", params.AppointmentID),
		attribute.String("carepulse.mode", string(params.Mode)),
	))
	defer span.End()

	logger := s.loggerWith(ctx, "Update",
		"appointment_id", params.AppointmentID,
		"mode", string(params.Mode),
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.AppointmentTransitioned(params.Mode, ErrorKind(err))
			logger.ErrorContext(ctx, "failed to update appointment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.metrics.AppointmentTransitioned(params.Mode, "ok")
		logger.With("status", appointment.Status.String(), "revision", appointment.Revision).InfoContext(ctx, "appointment updated")
	}()

	vErr := validatePatch(params.Mode, params.Patch)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	current, getErr := s.appointments.GetAppointment(ctx, params.AppointmentID)
	if getErr != nil {
		err = mapAppointmentRepoError(getErr)
		return
	}

	target := targetStatus(params.Mode)
	if !canTransition(current.Status, target) {
		err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
		return
	}
	if params.Patch.ExpectedRevision != 0 && params.Patch.ExpectedRevision != current.Revision {
		err = fmt.Errorf("%w: expected %d, stored %d", ErrStaleRevision, params.Patch.ExpectedRevision, current.Revision)
		return
	}

	updated := current
	switch params.Mode {
	case ModeSchedule:
		updated.PrimaryPhysician = strings.TrimSpace(params.Patch.PrimaryPhysician)
		updated.Schedule = params.Patch.Schedule
		updated.CancellationReason = nil
	case ModeCancel:
		reason := strings.TrimSpace(params.Patch.CancellationReason)
		updated.CancellationReason = &reason
	}
	updated.Status = target
	updated.Revision = current.Revision + 1
	updated.UpdatedAt = s.now()

	persisted, updErr := s.appointments.UpdateAppointment(ctx, updated, current.Revision)
	if updErr != nil {
		err = mapAppointmentRepoError(updErr)
		return
	}
	appointment = persisted

	// The transition is committed; a caller hanging up must not drop its notification.
	s.notify(context.WithoutCancel(ctx), logger, appointment, params.Mode)
	return
}

func (s *AppointmentService) notify(ctx context.Context, logger *slog.Logger, appointment Appointment, mode UpdateMode) {
	if s.notifier == nil {
		logger.WarnContext(ctx, "no notifier configured, skipping notification")
		return
	}

	body := s.messages.Scheduled(appointment)
	if mode == ModeCancel {
		body = s.messages.Cancelled(appointment)
	}

	notification := Notification{
		ID:              s.idGenerator(),
		AppointmentID:   appointment.ID,
		RecipientUserID: appointment.UserID,
		Body:            body,
		CreatedAt:       s.now(),
	}
	if err := s.notifier.Dispatch(ctx, notification); err != nil {
		logger.WarnContext(ctx, "notification not delivered", "error", err, "error_kind", ErrorKind(err), "notification_id", notification.ID)
	}
}

// ListRecentWithSummary lists every appointment newest first with per-status counts.
func (s *AppointmentService) ListRecentWithSummary(ctx context.Context) (summary AppointmentSummary, err error) {
	if s == nil {
		err = fmt.Errorf("AppointmentService is nil")
		return
	}
	if s.appointments == nil {
		err = fmt.Errorf("appointment repository not configured")
		return
	}

	ctx, span := appointmentTracer.Start(ctx, "appointments.list_recent")
	defer span.End()

	logger := s.loggerWith(ctx, "ListRecentWithSummary")
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to list appointments", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "appointments listed", "total", summary.TotalCount, "returned", len(summary.Documents))
	}()

	page, listErr := s.appointments.ListAppointments(ctx)
	if listErr != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, listErr)
		return
	}

	summary = Summarize(page)
	if summary.UnknownCount > 0 {
		logger.WarnContext(ctx, "appointments with unrecognised status", "count", summary.UnknownCount)
	}
	span.SetAttributes(attribute.Int("carepulse.total", summary.TotalCount))
	return
}

// Summarize counts statuses over page.Items in a single pass. The four counts
// always sum to len(Documents).
func Summarize(page AppointmentPage) AppointmentSummary {
	summary := AppointmentSummary{
		TotalCount: page.Total,
		Documents:  make([]Appointment, 0, len(page.Items)),
	}
	for _, a := range page.Items {
		switch a.Status {
		case StatusScheduled:
			summary.ScheduledCount++
		case StatusPending:
			summary.PendingCount++
		case StatusCancelled:
			summary.CancelledCount++
		default:
			summary.UnknownCount++
		}
		summary.Documents = append(summary.Documents, a)
	}
	return summary
}

func targetStatus(mode UpdateMode) Status {
	if mode == ModeCancel {
		return StatusCancelled
	}
	return StatusScheduled
}

// canTransition reports whether from -> to is an allowed edge. Cancelled is terminal.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusScheduled || to == StatusCancelled
	case StatusScheduled:
		return to == StatusScheduled || to == StatusCancelled
	default:
		return false
	}
}

func mapAppointmentRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrStale), errors.Is(err, ErrStaleRevision):
		return ErrStaleRevision
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, ErrorKind(err))
}
