package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
)

// Store persists sessions and their failure logs.
type Store struct {
	db     *sqlx.DB
	logger logger.Logger
}

// NewStore creates a session store backed by the given database.
func NewStore(db *sqlx.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

// EnsureSchema creates the session tables when they do not exist yet. The
// service runs it on startup so a fresh database needs no manual setup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS import_sessions (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			file_path TEXT NOT NULL,
			total_records INTEGER NOT NULL DEFAULT 0,
			processed_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS import_failures (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			record_data JSONB NOT NULL,
			error_message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_failures_session_id
			ON import_failures (session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure session schema: %w", err)
		}
	}

	s.logger.Info("session schema ensured")
	return nil
}

// Create inserts a new session for an analyzed dataset file and returns it
// in the ready state.
func (s *Store) Create(ctx context.Context, filePath string, totalRecords int) (*models.ImportSession, error) {
	now := time.Now()
	sess := &models.ImportSession{
		SessionID:    uuid.NewString(),
		FilePath:     filePath,
		TotalRecords: totalRecords,
		Status:       models.StatusReady,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO import_sessions
			(session_id, file_path, total_records, processed_count, failed_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5, $5)
		RETURNING id
	`

	if err := s.db.GetContext(ctx, &sess.ID, query,
		sess.SessionID, sess.FilePath, sess.TotalRecords, sess.Status, now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created",
		logger.String("session_id", sess.SessionID),
		logger.String("file_path", filePath),
		logger.Int("total_records", totalRecords),
		logger.Time("created_at", now))
	return sess, nil
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.ImportSession, error) {
	var sess models.ImportSession
	query := `SELECT * FROM import_sessions WHERE session_id = $1`

	if err := s.db.GetContext(ctx, &sess, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", sessionID, models.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// Advance applies one batch's deltas and the new status in a single
// read-modify-write. Counters only ever grow through this path.
func (s *Store) Advance(ctx context.Context, sessionID string, processedDelta, failedDelta int, status string) error {
	query := `
		UPDATE import_sessions
		SET processed_count = processed_count + $2,
			failed_count = failed_count + $3,
			status = $4,
			updated_at = $5
		WHERE session_id = $1
	`

	result, err := s.db.ExecContext(ctx, query, sessionID, processedDelta, failedDelta, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to advance session: %w", err)
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, models.ErrSessionNotFound)
	}

	s.logger.Debug("session advanced",
		logger.String("session_id", sessionID),
		logger.Int("processed_delta", processedDelta),
		logger.Int("failed_delta", failedDelta),
		logger.String("status", status))
	return nil
}

// SetStatus overwrites the session status without touching counters.
func (s *Store) SetStatus(ctx context.Context, sessionID, status string) error {
	query := `UPDATE import_sessions SET status = $2, updated_at = $3 WHERE session_id = $1`

	result, err := s.db.ExecContext(ctx, query, sessionID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, models.ErrSessionNotFound)
	}
	return nil
}

// Reset zeroes the counters, returns the session to ready, and purges its
// failure log, all in one transaction.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE import_sessions
		SET processed_count = 0, failed_count = 0, status = $2, updated_at = $3
		WHERE session_id = $1
	`, sessionID, models.StatusReady, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		return fmt.Errorf("session %q: %w", sessionID, models.ErrSessionNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM import_failures WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to purge session failures: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}

	s.logger.Info("session reset", logger.String("session_id", sessionID))
	return nil
}

// RecordFailure appends one failure with the raw record payload.
func (s *Store) RecordFailure(ctx context.Context, sessionID string, payload []byte, message string) error {
	query := `
		INSERT INTO import_failures (session_id, record_data, error_message, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.db.ExecContext(ctx, query, sessionID, payload, message, time.Now()); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// ListFailures returns the failure log for a session, oldest first.
func (s *Store) ListFailures(ctx context.Context, sessionID string) ([]models.FailureRecord, error) {
	var failures []models.FailureRecord
	query := `
		SELECT id, session_id, record_data, error_message, created_at
		FROM import_failures
		WHERE session_id = $1
		ORDER BY id
	`

	if err := s.db.SelectContext(ctx, &failures, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	return failures, nil
}
