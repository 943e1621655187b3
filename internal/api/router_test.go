package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/post-importer/internal/api"
	"github.com/jonesrussell/post-importer/internal/batch"
	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/engine"
	"github.com/jonesrussell/post-importer/internal/lock"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/metrics"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/session"
	"github.com/jonesrussell/post-importer/internal/store"
	"github.com/jonesrussell/post-importer/internal/store/memory"
)

// passResolver satisfies the engine's asset surface without any network.
type passResolver struct {
	stores store.Stores
}

func (r *passResolver) Resolve(ctx context.Context, rawURL, _, ownerDocID string, _ bool) (string, error) {
	asset, err := r.stores.Assets.Store(ctx, &store.NewAsset{SourceURL: rawURL, Filename: "banner.jpg", PipelineOwned: true})
	if err != nil {
		return "", err
	}
	return asset.ID, r.stores.Documents.SetFeaturedAsset(ctx, ownerDocID, asset.ID)
}

type passRewriter struct{}

func (passRewriter) Rewrite(_ context.Context, html, _, _ string) string { return html }

type apiFixture struct {
	engine *gin.Engine
	mock   sqlmock.Sqlmock
	locks  *lock.SessionLock
	stores store.Stores
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	log := logger.NewNopLogger()
	sessions := session.NewStore(sqlxDB, log)
	stores := memory.New().Stores()
	resolver := &passResolver{stores: stores}

	importer := engine.NewImportEngine(stores, resolver, passRewriter{}, sessions, log)
	reimporter := engine.NewReimportEngine(importer)

	registry := prometheus.NewRegistry()
	coordinator := batch.NewCoordinator(sessions, importer, reimporter, metrics.New(registry), log)
	locks := lock.New(redisClient, time.Minute, log)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Host: "localhost", DBName: "importer"},
		Importer: config.ImporterConfig{BatchSize: config.DefaultBatchSize},
	}

	router := api.NewRouter(sessions, coordinator, importer, reimporter, locks,
		sqlxDB, redisClient, registry, cfg, log)

	return &apiFixture{engine: router.Engine(), mock: mock, locks: locks, stores: stores}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func writeDatasetFile(t *testing.T, records int) string {
	t.Helper()

	content := "["
	for i := 0; i < records; i++ {
		if i > 0 {
			content += ","
		}
		content += fmt.Sprintf(`{"id": %d, "slug": "record-%d", "title": "Record %d", "content": "<p>body</p>"}`, i+1, i+1, i+1)
	}
	content += "]"

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "post-importer", body["service"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSession(t *testing.T) {
	f := newAPIFixture(t)
	path := writeDatasetFile(t, 3)

	f.mock.ExpectQuery("INSERT INTO import_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	w := f.request(t, http.MethodPost, "/api/v1/sessions", gin.H{"file_path": path})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, float64(3), body["total_records"])
}

func TestCreateSessionInvalidDataset(t *testing.T) {
	f := newAPIFixture(t)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	w := f.request(t, http.MethodPost, "/api/v1/sessions", gin.H{"file_path": path})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSessionMissingFile(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/sessions",
		gin.H{"file_path": filepath.Join(t.TempDir(), "absent.json")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSessionMissingPayload(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/sessions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectQuery("SELECT \\* FROM import_sessions").
		WillReturnError(sql.ErrNoRows)

	w := f.request(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSession(t *testing.T) {
	f := newAPIFixture(t)

	now := time.Now()
	f.mock.ExpectQuery("SELECT \\* FROM import_sessions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "file_path", "total_records",
			"processed_count", "failed_count", "status", "created_at", "updated_at",
		}).AddRow(int64(1), "sess-1", "/data/export.json", 100, 25, 0, models.StatusProcessing, now, now))

	w := f.request(t, http.MethodGet, "/api/v1/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(25), body["percentage"])
}

func TestRunBatch(t *testing.T) {
	f := newAPIFixture(t)
	path := writeDatasetFile(t, 2)

	now := time.Now()
	f.mock.ExpectQuery("SELECT \\* FROM import_sessions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "file_path", "total_records",
			"processed_count", "failed_count", "status", "created_at", "updated_at",
		}).AddRow(int64(1), "sess-1", path, 2, 0, 0, models.StatusReady, now, now))
	f.mock.ExpectExec("UPDATE import_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.request(t, http.MethodPost, "/api/v1/sessions/sess-1/batches", gin.H{"batch_size": 10})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["imported"])
	assert.Equal(t, models.StatusCompleted, body["status"])
	assert.Equal(t, float64(100), body["percentage"])

	// The batch really imported: the documents exist in the store.
	_, err := f.stores.Documents.GetBySlug(context.Background(), "record-1")
	assert.NoError(t, err)
}

func TestRunBatchInvalidMode(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/sessions/sess-1/batches", gin.H{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunBatchBusySession(t *testing.T) {
	f := newAPIFixture(t)

	_, err := f.locks.Acquire(context.Background(), "sess-1")
	require.NoError(t, err)

	w := f.request(t, http.MethodPost, "/api/v1/sessions/sess-1/batches", gin.H{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRunBatchUnknownSession(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectQuery("SELECT \\* FROM import_sessions").
		WillReturnError(sql.ErrNoRows)

	w := f.request(t, http.MethodPost, "/api/v1/sessions/missing/batches", gin.H{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPauseSession(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectExec("UPDATE import_sessions SET status").
		WithArgs("sess-1", models.StatusPaused, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.request(t, http.MethodPost, "/api/v1/sessions/sess-1/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPauseSessionNotFound(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectExec("UPDATE import_sessions SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := f.request(t, http.MethodPost, "/api/v1/sessions/missing/pause", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetSessionNotFound(t *testing.T) {
	f := newAPIFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE import_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	w := f.request(t, http.MethodPost, "/api/v1/sessions/missing/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFailures(t *testing.T) {
	f := newAPIFixture(t)

	now := time.Now()
	f.mock.ExpectQuery("SELECT \\* FROM import_sessions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "file_path", "total_records",
			"processed_count", "failed_count", "status", "created_at", "updated_at",
		}).AddRow(int64(1), "sess-1", "/data/export.json", 10, 10, 1, models.StatusCompleted, now, now))
	f.mock.ExpectQuery("SELECT id, session_id, record_data, error_message").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "record_data", "error_message", "created_at"}).
			AddRow(int64(1), "sess-1", []byte(`{"slug":"broken"}`), "create document: boom", now))

	w := f.request(t, http.MethodGet, "/api/v1/sessions/sess-1/failures", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["count"])
}

func TestImportRecord(t *testing.T) {
	f := newAPIFixture(t)

	record := gin.H{"id": 1, "slug": "single-record", "title": "Single", "content": "<p>x</p>"}

	w := f.request(t, http.MethodPost, "/api/v1/records/import", gin.H{"record": record})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "imported", body["outcome"])
	assert.Equal(t, "single-record", body["slug"])

	// A second import of the same record is an idempotent skip.
	w = f.request(t, http.MethodPost, "/api/v1/records/import", gin.H{"record": record})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "skipped", decodeBody(t, w)["outcome"])
}

func TestImportRecordMissingSlug(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/records/import",
		gin.H{"record": gin.H{"title": "No Slug"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateImagesUnknownDocument(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, http.MethodPost, "/api/v1/records/update-images",
		gin.H{"record": gin.H{"slug": "never-imported"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
