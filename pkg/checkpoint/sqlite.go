package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"assistant/pkg/logx"
)

// currentSchemaVersion defines the checkpoint schema version for migrations.
const currentSchemaVersion = 1

// SQLiteStore persists checkpoints to a SQLite database so suspended threads
// survive process restarts.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewSQLiteStore opens (or creates) the checkpoint database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Open with WAL mode and busy timeout
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping checkpoint database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{
		db:     db,
		logger: logx.NewLogger("checkpoint"),
	}, nil
}

// Get returns the latest checkpoint for a thread, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, state, interrupt, status, updated_at
		FROM checkpoints WHERE thread_id = ?`, threadID)

	var rec Record
	var interrupt sql.NullString
	var updatedAt string
	if err := row.Scan(&rec.ThreadID, (*[]byte)(&rec.State), &interrupt, &rec.Status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint for thread %s: %w", threadID, err)
	}

	if interrupt.Valid && interrupt.String != "" {
		rec.Interrupt = []byte(interrupt.String)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint timestamp %q: %w", updatedAt, err)
	}
	rec.UpdatedAt = ts

	return &rec, nil
}

// Put replaces the thread's checkpoint.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	var interrupt any
	if len(rec.Interrupt) > 0 {
		interrupt = string(rec.Interrupt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, interrupt, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			state = excluded.state,
			interrupt = excluded.interrupt,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		rec.ThreadID, []byte(rec.State), interrupt, rec.Status,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store checkpoint for thread %s: %w", rec.ThreadID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// initializeSchema ensures the database schema is at the current version.
func initializeSchema(db *sql.DB) error {
	version, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version == 0 {
		return createSchema(db)
	}
	if version == currentSchemaVersion {
		return nil
	}
	return fmt.Errorf("unknown checkpoint schema version: %d", version)
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			interrupt TEXT,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_version'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
