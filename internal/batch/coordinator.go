// Package batch drives one slice of a session's dataset through the
// import or reimport engine and persists the session's progress.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/post-importer/internal/dataset"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/metrics"
	"github.com/jonesrussell/post-importer/internal/models"
)

// SessionStore is the progress persistence surface the coordinator needs.
// Satisfied by session.Store.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.ImportSession, error)
	Advance(ctx context.Context, sessionID string, processedDelta, failedDelta int, status string) error
}

// Importer processes one record in create mode.
type Importer interface {
	ImportOne(ctx context.Context, rec *models.SourceRecord, sessionID string) models.Outcome
}

// Reimporter processes one record in update mode.
type Reimporter interface {
	ReimportOne(ctx context.Context, rec *models.SourceRecord, sessionID string, forceReplace bool) models.Outcome
}

// Coordinator runs batches. It is stateless between calls: the dataset is
// re-read from the session's file every invocation, so a resumed session
// picks up exactly where the persisted processed count left off.
type Coordinator struct {
	sessions   SessionStore
	importer   Importer
	reimporter Reimporter
	metrics    *metrics.Metrics
	logger     logger.Logger
	tracer     trace.Tracer
}

// NewCoordinator wires a batch coordinator.
func NewCoordinator(
	sessions SessionStore,
	importer Importer,
	reimporter Reimporter,
	m *metrics.Metrics,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		sessions:   sessions,
		importer:   importer,
		reimporter: reimporter,
		metrics:    m,
		logger:     log,
		tracer:     otel.Tracer("batch-coordinator"),
	}
}

// Run processes the next batchSize records of the session in source order
// and persists the advanced progress. Record failures never abort the
// slice; only session-level problems (unknown session, unreadable or
// invalid dataset) return an error, and those leave progress untouched.
func (c *Coordinator) Run(ctx context.Context, sessionID string, batchSize int, mode models.Mode) (*models.BatchResult, error) {
	if !mode.Valid() {
		return nil, models.ErrInvalidMode
	}
	if batchSize < 0 {
		batchSize = 0
	}

	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	records, err := dataset.Load(sess.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reload dataset %q: %w", sess.FilePath, err)
	}

	start := sess.ProcessedCount
	if start > len(records) {
		start = len(records)
	}
	end := start + batchSize
	if end > len(records) {
		end = len(records)
	}
	slice := records[start:end]

	ctx, span := c.tracer.Start(ctx, "batch.run",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("mode", string(mode)),
			attribute.Int("slice_size", len(slice)),
			attribute.Int("offset", start),
		))
	defer span.End()

	log := c.logger.With(
		logger.String("session_id", sessionID),
		logger.String("mode", string(mode)),
	)
	log.Info("batch started",
		logger.Int("offset", start),
		logger.Int("slice_size", len(slice)),
		logger.Int("total_records", sess.TotalRecords))

	began := time.Now()
	var imported, skipped, failed int
	for i := range slice {
		var outcome models.Outcome
		if mode == models.ModeReimport {
			outcome = c.reimporter.ReimportOne(ctx, &slice[i], sessionID, true)
		} else {
			outcome = c.importer.ImportOne(ctx, &slice[i], sessionID)
		}

		switch outcome {
		case models.OutcomeImported:
			imported++
		case models.OutcomeSkipped:
			skipped++
		case models.OutcomeFailed:
			failed++
		}
		c.metrics.RecordsProcessed.WithLabelValues(string(mode), outcome.String()).Inc()
	}
	c.metrics.BatchDuration.WithLabelValues(string(mode)).Observe(time.Since(began).Seconds())

	processed := sess.ProcessedCount + len(slice)
	status := models.StatusProcessing
	if processed >= sess.TotalRecords {
		status = models.StatusCompleted
	}

	if err := c.sessions.Advance(ctx, sessionID, len(slice), failed, status); err != nil {
		return nil, err
	}

	result := &models.BatchResult{
		Imported:       imported,
		Failed:         failed,
		Skipped:        skipped,
		TotalProcessed: processed,
		TotalRecords:   sess.TotalRecords,
		Status:         status,
		Percentage:     models.ProgressPercentage(processed, sess.TotalRecords),
	}

	log.Info("batch finished",
		logger.Int("imported", imported),
		logger.Int("skipped", skipped),
		logger.Int("failed", failed),
		logger.Int("total_processed", processed),
		logger.String("status", status),
		logger.Float64("percentage", result.Percentage),
		logger.Duration("elapsed", time.Since(began)))
	return result, nil
}
