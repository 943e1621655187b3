package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/post-importer/internal/dataset"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
)

type createSessionRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

type runBatchRequest struct {
	BatchSize int         `json:"batch_size"`
	Mode      models.Mode `json:"mode"`
}

// createSession analyzes a dataset file and opens a session for it
// POST /api/v1/sessions
func (r *Router) createSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	total, err := dataset.Analyze(req.FilePath)
	if err != nil {
		if errors.Is(err, models.ErrInvalidDataset) || errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid dataset file",
				"details": err.Error(),
			})
			return
		}
		r.logger.Error("dataset analysis failed",
			logger.String("file_path", req.FilePath),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to analyze dataset",
		})
		return
	}

	sess, err := r.sessions.Create(ctx, req.FilePath, total)
	if err != nil {
		r.logger.Error("session creation failed",
			logger.String("file_path", req.FilePath),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create session",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":    sess.SessionID,
		"total_records": sess.TotalRecords,
	})
}

// getSession returns the session projection
// GET /api/v1/sessions/:id
func (r *Router) getSession(c *gin.Context) {
	ctx := c.Request.Context()

	sess, err := r.sessions.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":    sess,
		"percentage": sess.Percentage(),
	})
}

// runBatch processes the next slice of the session's dataset
// POST /api/v1/sessions/:id/batches
func (r *Router) runBatch(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	var req runBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}

	if req.Mode == "" {
		req.Mode = models.ModeImport
	}
	if !req.Mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": models.ErrInvalidMode.Error(),
		})
		return
	}
	batchSize := r.cfg.Importer.ClampBatchSize(req.BatchSize)

	// One batch at a time per session; a concurrent call would double
	// process the same slice.
	token, err := r.locks.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionBusy) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "A batch is already running for this session",
			})
			return
		}
		r.logger.Error("session lock acquisition failed",
			logger.String("session_id", sessionID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to lock session",
		})
		return
	}
	defer func() {
		if releaseErr := r.locks.Release(ctx, sessionID, token); releaseErr != nil {
			r.logger.Warn("session lock release failed",
				logger.String("session_id", sessionID),
				logger.Error(releaseErr))
		}
	}()

	result, err := r.coordinator.Run(ctx, sessionID, batchSize, req.Mode)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
		case errors.Is(err, models.ErrInvalidDataset), errors.Is(err, os.ErrNotExist):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Dataset file is no longer readable",
				"details": err.Error(),
			})
		default:
			r.logger.Error("batch run failed",
				logger.String("session_id", sessionID),
				logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Batch run failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// pauseSession marks the session paused so external drivers stop polling
// POST /api/v1/sessions/:id/pause
func (r *Router) pauseSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if err := r.sessions.SetStatus(ctx, sessionID, models.StatusPaused); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		r.logger.Error("session pause failed",
			logger.String("session_id", sessionID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to pause session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session paused",
	})
}

// resetSession zeroes counters and purges the failure log
// POST /api/v1/sessions/:id/reset
func (r *Router) resetSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if err := r.sessions.Reset(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		r.logger.Error("session reset failed",
			logger.String("session_id", sessionID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session reset successfully",
	})
}

type failureResponse struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"session_id"`
	RecordData   json.RawMessage `json:"record_data"`
	ErrorMessage string          `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
}

// listFailures returns the session's failure log
// GET /api/v1/sessions/:id/failures
func (r *Router) listFailures(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := r.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Session not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get session",
		})
		return
	}

	failures, err := r.sessions.ListFailures(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list failures",
		})
		return
	}

	items := make([]failureResponse, 0, len(failures))
	for _, f := range failures {
		items = append(items, failureResponse{
			ID:           f.ID,
			SessionID:    f.SessionID,
			RecordData:   json.RawMessage(f.RecordData),
			ErrorMessage: f.ErrorMessage,
			CreatedAt:    f.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"failures": items,
		"count":    len(items),
	})
}
