package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is a single embedded schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// AppliedMigration records a migration previously executed against the database.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// MigrationError wraps a failure with the migration it occurred in.
type MigrationError struct {
	Version   string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("migration %s: %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration: %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// ErrInvalidMigrationFile indicates an embedded migration does not follow the NNNN_description.sql convention.
var ErrInvalidMigrationFile = errors.New("invalid migration file name")

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewMigrator constructs a Migrator for db.
func NewMigrator(db *sql.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger, now: time.Now}
}

// LoadMigrations returns the embedded migrations sorted by version.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, &MigrationError{Operation: "read embedded migrations", Err: err}
	}

	migrations := make([]Migration, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, ok := strings.Cut(strings.TrimSuffix(entry.Name(), ".sql"), "_")
		if !ok || version == "" || strings.Trim(version, "0123456789") != "" {
			return nil, &MigrationError{Operation: "parse " + entry.Name(), Err: ErrInvalidMigrationFile}
		}
		if _, dup := seen[version]; dup {
			return nil, &MigrationError{Version: version, Operation: "parse " + entry.Name(), Err: fmt.Errorf("duplicate version")}
		}
		seen[version] = struct{}{}

		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, &MigrationError{Version: version, Operation: "read " + entry.Name(), Err: err}
		}
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(description, "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Run applies every pending migration and returns the versions it executed.
func (m *Migrator) Run(ctx context.Context) ([]string, error) {
	if err := m.initializeVersionTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := LoadMigrations()
	if err != nil {
		return nil, err
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	executed := make([]string, 0)
	for _, migration := range migrations {
		if _, ok := done[migration.Version]; ok {
			continue
		}
		start := m.now()
		if err := m.execute(ctx, migration, start); err != nil {
			return executed, err
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", m.now().Sub(start),
		)
		executed = append(executed, migration.Version)
	}

	if len(executed) == 0 {
		m.logger.DebugContext(ctx, "schema up to date")
	}
	return executed, nil
}

// Applied lists migrations recorded in schema_migrations ordered by version.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT version, applied_at, COALESCE(execution_time_ms, 0)
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, &MigrationError{Operation: "list applied versions", Err: err}
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var version, appliedAt string
		var executionMs int64
		if err := rows.Scan(&version, &appliedAt, &executionMs); err != nil {
			return nil, &MigrationError{Operation: "scan applied version", Err: err}
		}
		at, err := parseTime(appliedAt)
		if err != nil {
			return nil, &MigrationError{Version: version, Operation: "parse applied_at", Err: err}
		}
		applied = append(applied, AppliedMigration{
			Version:       version,
			AppliedAt:     at,
			ExecutionTime: time.Duration(executionMs) * time.Millisecond,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &MigrationError{Operation: "iterate applied versions", Err: err}
	}
	return applied, nil
}

func (m *Migrator) initializeVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER
		)
	`)
	if err != nil {
		return &MigrationError{Operation: "create schema_migrations table", Err: err}
	}
	return nil
}

func (m *Migrator) execute(ctx context.Context, migration Migration, start time.Time) error {
	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return &MigrationError{Version: migration.Version, Operation: "parse SQL", Err: fmt.Errorf("no SQL statements found")}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return &MigrationError{Version: migration.Version, Operation: "begin transaction", Err: err}
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return &MigrationError{Version: migration.Version, Operation: fmt.Sprintf("execute statement %d", i+1), Err: err}
		}
	}

	elapsed := m.now().Sub(start)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, execution_time_ms) VALUES (?, ?, ?)`,
		migration.Version, formatTime(m.now()), elapsed.Milliseconds(),
	); err != nil {
		_ = tx.Rollback()
		return &MigrationError{Version: migration.Version, Operation: "record migration", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: migration.Version, Operation: "commit transaction", Err: err}
	}
	return nil
}

// splitStatements splits migration content on semicolons and drops comment-only lines.
func splitStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
