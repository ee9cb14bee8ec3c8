package persistence

import (
	"context"
	"time"
)

// UserRepository exposes the identity directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// PatientRepository stores patient registrations.
type PatientRepository interface {
	CreatePatient(ctx context.Context, patient Patient) error
	GetPatient(ctx context.Context, id string) (Patient, error)
	GetPatientByUserID(ctx context.Context, userID string) (Patient, error)
}

// AppointmentFilter narrows appointment listings. A zero Limit returns every row.
type AppointmentFilter struct {
	Limit int
}

// AppointmentRepository stores appointment records.
type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appointment Appointment) error
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	FindAppointmentByIdempotencyKey(ctx context.Context, key string) (Appointment, error)
	// ListAppointments returns appointments ordered by CreatedAt descending.
	ListAppointments(ctx context.Context, filter AppointmentFilter) (AppointmentPage, error)
	// UpdateAppointment writes the record only when the stored revision equals
	// expectedRevision, returning ErrStale otherwise.
	UpdateAppointment(ctx context.Context, appointment Appointment, expectedRevision int) error
}

// NotificationOutbox persists notifications whose delivery must be retried.
type NotificationOutbox interface {
	EnqueueNotification(ctx context.Context, notification Notification) error
	// ListDueNotifications returns undelivered notifications due at reference
	// that have been attempted fewer than maxAttempts times.
	ListDueNotifications(ctx context.Context, reference time.Time, maxAttempts, limit int) ([]Notification, error)
	MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	MarkNotificationFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error
}
