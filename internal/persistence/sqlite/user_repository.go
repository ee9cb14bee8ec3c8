package sqlite

import (
	"context"
	"strings"

	"github.com/example/carepulse/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool *ConnectionPool
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool}
}

// CreateUser inserts a new user. A second user with the same email (case-insensitive)
// is rejected with persistence.ErrDuplicate.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		user.ID,
		user.Name,
		normalizeEmail(user.Email),
		user.Phone,
		formatTime(user.CreatedAt),
	)
	return mapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM users
		WHERE email = ? COLLATE NOCASE
	`, normalized)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user      persistence.User
		createdAt string
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &createdAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
