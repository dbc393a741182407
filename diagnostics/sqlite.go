package diagnostics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

const createDiagnosticsTable = `
CREATE TABLE IF NOT EXISTS diagnostics (
    id           TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL,
    source       TEXT NOT NULL,
    subject      TEXT NOT NULL,
    severity     TEXT NOT NULL,
    message      TEXT NOT NULL,
    created_at   DATETIME NOT NULL
)`

const createDiagnosticsExecutionIndex = `
CREATE INDEX IF NOT EXISTS idx_diagnostics_execution ON diagnostics (execution_id)`

// Record is a diagnostic as read back from the store. The original error value
// is not recoverable, only its message.
type Record struct {
	ID          string
	ExecutionID string
	Source      string
	Subject     string
	Severity    Severity
	Message     string
	CreatedAt   time.Time
}

// Compile-time interface satisfaction check.
var _ Sink = (*SQLiteStore)(nil)

// SQLiteStore persists diagnostics, so that warnings collected during a
// long backup survive the process.
type SQLiteStore struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
// Insert failures during Report are logged to logger (may be nil).
func NewSQLiteStore(dbPath string, logger logrus.FieldLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createDiagnosticsTable, createDiagnosticsExecutionIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate diagnostics table: %w", err)
		}
	}

	if logger == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		logger = discard
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Report implements Sink. The context may already be cancelled when a step
// is being torn down, so the insert runs detached from it.
func (s *SQLiteStore) Report(ctx context.Context, d Diagnostic) {
	if err := s.Insert(context.WithoutCancel(ctx), d); err != nil {
		s.logger.WithError(err).WithField("diagnostic_id", d.ID).Error("failed to persist diagnostic")
	}
}

// Insert stores one diagnostic.
func (s *SQLiteStore) Insert(ctx context.Context, d Diagnostic) error {
	if d.ID == "" {
		return errors.New("diagnostic id is required")
	}
	created := d.Time
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diagnostics (id, execution_id, source, subject, severity, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ExecutionID, d.Source, d.Subject, string(d.Severity), d.Message(), created,
	)
	if err != nil {
		return fmt.Errorf("insert diagnostic: %w", err)
	}
	return nil
}

// List returns the diagnostics of one execution ordered by id, which is
// report order since ids are ULIDs.
func (s *SQLiteStore) List(ctx context.Context, executionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, source, subject, severity, message, created_at
		 FROM diagnostics WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var severity string
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.Source, &r.Subject, &severity, &r.Message, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		r.Severity = Severity(severity)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountBySeverity returns how many diagnostics of each severity were stored.
func (s *SQLiteStore) CountBySeverity(ctx context.Context) (map[Severity]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM diagnostics GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("count diagnostics: %w", err)
	}
	defer rows.Close()

	out := make(map[Severity]int)
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("scan diagnostic count: %w", err)
		}
		out[Severity(severity)] = n
	}
	return out, rows.Err()
}
