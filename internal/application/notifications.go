package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Gateway sends text messages to users.
type Gateway interface {
	SendText(ctx context.Context, recipientUserID, body string) (MessageRef, error)
}

// NotificationOutbox persists notifications awaiting redelivery.
type NotificationOutbox interface {
	EnqueueNotification(ctx context.Context, notification Notification) error
	ListDueNotifications(ctx context.Context, reference time.Time, maxAttempts, limit int) ([]Notification, error)
	MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	MarkNotificationFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error
}

// Notifier delivers the notification produced by a lifecycle transition.
type Notifier interface {
	Dispatch(ctx context.Context, notification Notification) error
}

// RetryPolicy controls outbox redelivery.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy doubles a 30 second delay per attempt up to one hour, giving up after five attempts.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:   30 * time.Second,
	MaxDelay:    time.Hour,
	MaxAttempts: 5,
}

// Delay returns the wait before the next attempt once attempts deliveries have failed.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Dispatcher sends notifications inline and falls back to the outbox when the
// gateway fails.
type Dispatcher struct {
	gateway     Gateway
	outbox      NotificationOutbox
	policy      RetryPolicy
	sendTimeout time.Duration
	metrics     Metrics
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// DefaultSendTimeout bounds the inline delivery attempt made by Dispatch.
const DefaultSendTimeout = 10 * time.Second

// NewDispatcher constructs a Dispatcher. A nil outbox disables queuing.
func NewDispatcher(gateway Gateway, outbox NotificationOutbox, policy RetryPolicy, metrics Metrics, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Dispatcher {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	return &Dispatcher{
		gateway:     gateway,
		outbox:      outbox,
		policy:      policy,
		sendTimeout: DefaultSendTimeout,
		metrics:     metricsOrNop(metrics),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Dispatch attempts delivery once. On failure the notification is queued for
// retry and a wrapped ErrNotification is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, notification Notification) error {
	if d == nil || d.gateway == nil {
		return fmt.Errorf("%w: gateway not configured", ErrNotification)
	}
	if notification.ID == "" {
		notification.ID = d.idGenerator()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = d.now()
	}

	logger := serviceLogger(ctx, d.logger, "Dispatcher", "Dispatch",
		"notification_id", notification.ID,
		"appointment_id", notification.AppointmentID,
		"recipient_user_id", notification.RecipientUserID,
	)

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	ref, sendErr := d.gateway.SendText(sendCtx, notification.RecipientUserID, notification.Body)
	cancel()
	if sendErr == nil {
		d.metrics.NotificationAttempted("inline", "delivered")
		logger.InfoContext(ctx, "notification delivered", "message_id", ref.ID)
		return nil
	}

	err := fmt.Errorf("%w: %w", ErrNotification, sendErr)
	if d.outbox == nil {
		d.metrics.NotificationAttempted("inline", "failed")
		return err
	}

	// Undeliverable messages are recorded with exhausted attempts so the worker never resends them.
	lastError := sendErr.Error()
	notification.Attempts = 1
	notification.LastError = &lastError
	notification.NextAttemptAt = d.now().Add(d.policy.Delay(1))
	outcome := "queued"
	if errors.Is(sendErr, ErrUndeliverable) {
		notification.Attempts = d.policy.MaxAttempts
		notification.NextAttemptAt = d.now()
		outcome = "abandoned"
	}

	if qErr := d.outbox.EnqueueNotification(context.WithoutCancel(ctx), notification); qErr != nil {
		d.metrics.NotificationAttempted("inline", "failed")
		logger.ErrorContext(ctx, "failed to queue notification", "error", qErr)
		return errors.Join(err, fmt.Errorf("%w: %w", ErrPersistence, qErr))
	}

	d.metrics.NotificationAttempted("inline", outcome)
	if outcome == "abandoned" {
		logger.ErrorContext(ctx, "notification rejected by gateway, not retrying", "error", sendErr)
		return err
	}
	logger.WarnContext(ctx, "notification queued for retry", "error", sendErr, "next_attempt_at", notification.NextAttemptAt)
	return err
}

// OutboxWorker redelivers queued notifications.
type OutboxWorker struct {
	outbox    NotificationOutbox
	gateway   Gateway
	policy    RetryPolicy
	interval  time.Duration
	batchSize int
	metrics   Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// OutboxWorkerConfig tunes the polling loop.
type OutboxWorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Policy    RetryPolicy
}

// NewOutboxWorker constructs a worker polling outbox every cfg.Interval.
func NewOutboxWorker(outbox NotificationOutbox, gateway Gateway, cfg OutboxWorkerConfig, metrics Metrics, now func() time.Time, logger *slog.Logger) *OutboxWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	return &OutboxWorker{
		outbox:    outbox,
		gateway:   gateway,
		policy:    cfg.Policy,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		metrics:   metricsOrNop(metrics),
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) {
	logger := serviceLogger(ctx, w.logger, "OutboxWorker", "Run")
	logger.InfoContext(ctx, "outbox worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "outbox pass failed", "error", err, "error_kind", ErrorKind(err))
		}
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue resends every due notification once and reports how many were delivered.
func (w *OutboxWorker) ProcessDue(ctx context.Context) (int, error) {
	if w == nil || w.outbox == nil || w.gateway == nil {
		return 0, nil
	}

	due, err := w.outbox.ListDueNotifications(ctx, w.now(), w.policy.MaxAttempts, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	delivered := 0
	for _, n := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		logger := serviceLogger(ctx, w.logger, "OutboxWorker", "ProcessDue",
			"notification_id", n.ID,
			"appointment_id", n.AppointmentID,
			"attempts", n.Attempts,
		)

		ref, sendErr := w.gateway.SendText(ctx, n.RecipientUserID, n.Body)
		if sendErr == nil {
			if err := w.outbox.MarkNotificationDelivered(ctx, n.ID, w.now()); err != nil {
				logger.ErrorContext(ctx, "failed to mark notification delivered", "error", err)
				continue
			}
			delivered++
			w.metrics.NotificationAttempted("outbox", "delivered")
			logger.InfoContext(ctx, "queued notification delivered", "message_id", ref.ID)
			continue
		}

		attempts := n.Attempts + 1
		next := w.now().Add(w.policy.Delay(attempts))
		outcome := "failed"
		if errors.Is(sendErr, ErrUndeliverable) && attempts < w.policy.MaxAttempts {
			attempts = w.policy.MaxAttempts
		}
		if attempts >= w.policy.MaxAttempts {
			outcome = "abandoned"
		}
		w.metrics.NotificationAttempted("outbox", outcome)
		if err := w.outbox.MarkNotificationFailed(ctx, n.ID, attempts, sendErr.Error(), next); err != nil {
			logger.ErrorContext(ctx, "failed to record notification attempt", "error", err)
			continue
		}
		logger.WarnContext(ctx, "queued notification failed", "error", sendErr, "outcome", outcome, "next_attempt_at", next)
	}
	return delivered, nil
}

// Messages renders the texts sent on lifecycle transitions.
type Messages struct {
	ProductName string
	Location    *time.Location
}

const scheduleLayout = "Jan 2, 2006, 3:04 PM"

func (m Messages) product() string {
	if m.ProductName == "" {
		return "CarePulse"
	}
	return m.ProductName
}

// Scheduled renders the confirmation sent when an appointment is scheduled.
func (m Messages) Scheduled(a Appointment) string {
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("Hi, it's %s. Your Appointment has been scheduled for %s with Dr. %s",
		m.product(), a.Schedule.In(loc).Format(scheduleLayout), a.PrimaryPhysician)
}

// Cancelled renders the notice sent when an appointment is cancelled.
func (m Messages) Cancelled(a Appointment) string {
	reason := ""
	if a.CancellationReason != nil {
		reason = *a.CancellationReason
	}
	return fmt.Sprintf("Hi, it's %s. We regret to inform you that your appointment has been cancelled for the following reason: %s",
		m.product(), reason)
}
