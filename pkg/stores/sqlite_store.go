package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRunID is returned when an ID prefix matches several runs.
var ErrAmbiguousRunID = errors.New("run ID prefix matches several runs")

// SQLiteStore keeps the deployment history in a SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	// Path is the database file, or ":memory:".
	Path string

	// MaxOpenConns defaults to 1; an in-memory database must keep it there.
	MaxOpenConns int

	// BusyTimeout is how long a writer waits for a lock. Defaults to 5s.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store in one call. Missing parent
// directories of path are created.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database in WAL mode with foreign keys enabled.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun inserts a run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, project, target, status, error, failed_step, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Project,
		run.Target,
		run.Status,
		run.Error,
		run.FailedStep,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun stores the final status, identity and error of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs
		SET project = ?, target = ?, status = ?, error = ?, failed_step = ?, finished_at = ?
		WHERE id = ?
	`

	finishedAt := run.FinishedAt
	if finishedAt == nil {
		now := time.Now()
		finishedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query,
		run.Project,
		run.Target,
		run.Status,
		run.Error,
		run.FailedStep,
		finishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, project, target, status, error, failed_step, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// FindRun retrieves the run whose ID is id or starts with id.
func (s *SQLiteStore) FindRun(ctx context.Context, id string) (*Run, error) {
	if id == "" || strings.ContainsAny(id, "%_") {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, id)
	}

	query := `
		SELECT id, project, target, status, error, failed_step, started_at, finished_at
		FROM runs
		WHERE id LIKE ? || '%'
		LIMIT 2
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
}

// ListRuns lists runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Project != "" {
		where = append(where, "project = ?")
		args = append(args, filter.Project)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
		SELECT id, project, target, status, error, failed_step, started_at, finished_at
		FROM runs`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY started_at DESC\n\t\tLIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and its steps
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

// PruneRuns keeps the most recent keep runs and deletes the rest.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)
	`

	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

// RecordStep appends a step to a run.
func (s *SQLiteStore) RecordStep(ctx context.Context, step *Step) error {
	changes, err := json.Marshal(nonNil(step.Changes))
	if err != nil {
		return fmt.Errorf("failed to encode changes: %w", err)
	}

	query := `
		INSERT INTO steps (run_id, seq, state, outcome, message, changes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		step.RunID,
		step.Seq,
		step.State,
		step.Outcome,
		step.Message,
		string(changes),
		step.StartedAt,
		step.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}

	return nil
}

// ListSteps returns the steps of a run in execution order.
func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]*Step, error) {
	query := `
		SELECT run_id, seq, state, outcome, message, changes, started_at, duration_ms
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []*Step{}
	for rows.Next() {
		var (
			step       Step
			changes    string
			durationMs int64
		)
		err := rows.Scan(
			&step.RunID,
			&step.Seq,
			&step.State,
			&step.Outcome,
			&step.Message,
			&changes,
			&step.StartedAt,
			&durationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &step.Changes); err != nil {
			return nil, fmt.Errorf("failed to decode changes: %w", err)
		}
		step.Duration = time.Duration(durationMs) * time.Millisecond
		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.Project,
		&run.Target,
		&run.Status,
		&run.Error,
		&run.FailedStep,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
