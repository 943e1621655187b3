package session_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/session"
)

func newMockStore(t *testing.T) (*session.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	return session.NewStore(sqlxDB, logger.NewNopLogger()), mock
}

func sessionColumns() []string {
	return []string{
		"id", "session_id", "file_path", "total_records",
		"processed_count", "failed_count", "status", "created_at", "updated_at",
	}
}

func TestStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO import_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	sess, err := store.Create(ctx, "/data/export.json", 150)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	if sess.ID != 7 {
		t.Errorf("Create() id = %d, want 7", sess.ID)
	}
	if sess.SessionID == "" {
		t.Error("Create() returned empty session_id")
	}
	if sess.Status != models.StatusReady {
		t.Errorf("Create() status = %q, want %q", sess.Status, models.StatusReady)
	}
	if sess.TotalRecords != 150 {
		t.Errorf("Create() total_records = %d, want 150", sess.TotalRecords)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreGet(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "returns session when found",
			setupMock: func(mock sqlmock.Sqlmock) {
				now := time.Now()
				rows := sqlmock.NewRows(sessionColumns()).
					AddRow(int64(1), "sess-1", "/data/export.json", 150, 30, 2, models.StatusProcessing, now, now)
				mock.ExpectQuery("SELECT \\* FROM import_sessions").
					WithArgs("sess-1").
					WillReturnRows(rows)
			},
		},
		{
			name: "maps missing row to session not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM import_sessions").
					WithArgs("sess-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: models.ErrSessionNotFound,
		},
		{
			name: "propagates database failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT \\* FROM import_sessions").
					WithArgs("sess-1").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tc.setupMock(mock)

			sess, err := store.Get(context.Background(), "sess-1")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Get() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() unexpected error: %v", err)
			}
			if sess.SessionID != "sess-1" {
				t.Errorf("Get() session_id = %q, want sess-1", sess.SessionID)
			}
			if sess.ProcessedCount != 30 {
				t.Errorf("Get() processed_count = %d, want 30", sess.ProcessedCount)
			}
		})
	}
}

func TestStoreAdvance(t *testing.T) {
	testCases := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "applies deltas",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE import_sessions").
					WithArgs("sess-1", 10, 2, models.StatusProcessing, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "unknown session",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE import_sessions").
					WithArgs("sess-1", 10, 2, models.StatusProcessing, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: models.ErrSessionNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tc.setupMock(mock)

			err := store.Advance(context.Background(), "sess-1", 10, 2, models.StatusProcessing)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Advance() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestStoreSetStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE import_sessions SET status").
		WithArgs("sess-1", models.StatusPaused, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetStatus(context.Background(), "sess-1", models.StatusPaused); err != nil {
		t.Errorf("SetStatus() unexpected error: %v", err)
	}
}

func TestStoreReset(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE import_sessions").
		WithArgs("sess-1", models.StatusReady, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM import_failures").
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := store.Reset(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Reset() unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreResetUnknownSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE import_sessions").
		WithArgs("missing", models.StatusReady, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Reset(context.Background(), "missing")
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("Reset() error = %v, want %v", err, models.ErrSessionNotFound)
	}
}

func TestStoreRecordFailure(t *testing.T) {
	store, mock := newMockStore(t)

	payload := []byte(`{"slug":"broken-record"}`)
	mock.ExpectExec("INSERT INTO import_failures").
		WithArgs("sess-1", payload, "create document: boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.RecordFailure(context.Background(), "sess-1", payload, "create document: boom"); err != nil {
		t.Errorf("RecordFailure() unexpected error: %v", err)
	}
}

func TestStoreListFailures(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "record_data", "error_message", "created_at"}).
		AddRow(int64(1), "sess-1", []byte(`{"slug":"a"}`), "boom", now).
		AddRow(int64(2), "sess-1", []byte(`{"slug":"b"}`), "bang", now)
	mock.ExpectQuery("SELECT id, session_id, record_data, error_message").
		WithArgs("sess-1").
		WillReturnRows(rows)

	failures, err := store.ListFailures(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListFailures() unexpected error: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("ListFailures() returned %d entries, want 2", len(failures))
	}
	if failures[0].ErrorMessage != "boom" {
		t.Errorf("first failure message = %q, want boom", failures[0].ErrorMessage)
	}
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS import_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS import_failures").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_import_failures_session_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
