package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/carepulse/internal/persistence"
)

const appointmentColumns = `
	id, user_id, patient_id, primary_physician, schedule, status, reason, note,
	cancellation_reason, idempotency_key, revision, created_at, updated_at`

// AppointmentRepository implements persistence.AppointmentRepository using SQLite.
type AppointmentRepository struct {
	pool *ConnectionPool
}

// NewAppointmentRepository creates a new SQLite appointment repository.
func NewAppointmentRepository(pool *ConnectionPool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// CreateAppointment inserts a new appointment. A reused idempotency key is
// rejected with persistence.ErrDuplicate.
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, a persistence.Appointment) error {
	if a.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if a.Revision == 0 {
		a.Revision = 1
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.UserID,
		a.PatientID,
		a.PrimaryPhysician,
		formatTime(a.Schedule),
		a.Status,
		a.Reason,
		nullString(a.Note),
		nullString(a.CancellationReason),
		nullString(a.IdempotencyKey),
		a.Revision,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	return mapError(err)
}

// GetAppointment retrieves an appointment by ID.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (persistence.Appointment, error) {
	if id == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	return scanAppointment(row)
}

// FindAppointmentByIdempotencyKey retrieves the appointment created with key.
func (r *AppointmentRepository) FindAppointmentByIdempotencyKey(ctx context.Context, key string) (persistence.Appointment, error) {
	if key == "" {
		return persistence.Appointment{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE idempotency_key = ?`, key)
	return scanAppointment(row)
}

// ListAppointments returns appointments newest first. Rows sharing a creation
// timestamp are ordered by insertion, latest first.
func (r *AppointmentRepository) ListAppointments(ctx context.Context, filter persistence.AppointmentFilter) (persistence.AppointmentPage, error) {
	var page persistence.AppointmentPage

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&page.Total); err != nil {
			return mapError(err)
		}

		query := `SELECT ` + appointmentColumns + ` FROM appointments ORDER BY created_at DESC, rowid DESC`
		args := []any{}
		if filter.Limit > 0 {
			query += ` LIMIT ?`
			args = append(args, filter.Limit)
		}

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return mapError(err)
		}
		defer rows.Close()

		page.Items = make([]persistence.Appointment, 0)
		for rows.Next() {
			a, err := scanAppointment(rows)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, a)
		}
		return rows.Err()
	})
	if err != nil {
		return persistence.AppointmentPage{}, fmt.Errorf("list appointments: %w", err)
	}
	return page, nil
}

// UpdateAppointment persists a.Revision only when the stored revision still
// equals expectedRevision.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, a persistence.Appointment, expectedRevision int) error {
	if a.ID == "" {
		return persistence.ErrNotFound
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE appointments
		SET primary_physician = ?, schedule = ?, status = ?, reason = ?, note = ?,
			cancellation_reason = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`,
		a.PrimaryPhysician,
		formatTime(a.Schedule),
		a.Status,
		a.Reason,
		nullString(a.Note),
		nullString(a.CancellationReason),
		a.Revision,
		formatTime(a.UpdatedAt),
		a.ID,
		expectedRevision,
	)
	if err != nil {
		return mapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.pool.DB().QueryRowContext(ctx, `SELECT 1 FROM appointments WHERE id = ?`, a.ID).Scan(&exists)
	if err != nil {
		return mapError(err)
	}
	return persistence.ErrStale
}

func scanAppointment(row rowScanner) (persistence.Appointment, error) {
	var (
		a                  persistence.Appointment
		schedule           string
		note               sql.NullString
		cancellationReason sql.NullString
		idempotencyKey     sql.NullString
		createdAt          string
		updatedAt          string
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.PatientID,
		&a.PrimaryPhysician,
		&schedule,
		&a.Status,
		&a.Reason,
		&note,
		&cancellationReason,
		&idempotencyKey,
		&a.Revision,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Appointment{}, mapError(err)
	}

	if a.Schedule, err = parseTime(schedule); err != nil {
		return persistence.Appointment{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Appointment{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Appointment{}, err
	}
	a.Note = stringPtr(note)
	a.CancellationReason = stringPtr(cancellationReason)
	a.IdempotencyKey = stringPtr(idempotencyKey)
	return a, nil
}
