package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/post-importer/internal/models"
)

type importRecordRequest struct {
	Record       models.SourceRecord `json:"record" binding:"required"`
	ForceReplace bool                `json:"force_replace"`
}

type updateImagesRequest struct {
	Record models.SourceRecord `json:"record" binding:"required"`
}

// importRecord processes one record outside any file session. With
// force_replace the record goes through the reimport path, replacing the
// featured asset of an existing document.
// POST /api/v1/records/import
func (r *Router) importRecord(c *gin.Context) {
	ctx := c.Request.Context()

	var req importRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}
	if req.Record.Slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Record slug is required",
		})
		return
	}

	sessionID := fmt.Sprintf("api_import_%d", time.Now().Unix())

	var outcome models.Outcome
	if req.ForceReplace {
		outcome = r.reimporter.ReimportOne(ctx, &req.Record, sessionID, true)
	} else {
		outcome = r.importer.ImportOne(ctx, &req.Record, sessionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":    outcome.String(),
		"session_id": sessionID,
		"slug":       req.Record.Slug,
	})
}

// updateImages refreshes only the featured asset and body images of an
// existing document.
// POST /api/v1/records/update-images
func (r *Router) updateImages(c *gin.Context) {
	ctx := c.Request.Context()

	var req updateImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request payload",
			"details": err.Error(),
		})
		return
	}
	if req.Record.Slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Record slug is required",
		})
		return
	}

	docID, err := r.reimporter.UpdateImages(ctx, &req.Record)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No document matches this record",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update images",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Images updated successfully",
		"doc_id":  docID,
	})
}
