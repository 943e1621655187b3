package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/mapper"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

// ReimportEngine updates already-materialized documents in place. Records
// with no existing document delegate to the import engine, so a reimport
// pass over a mixed dataset is safe.
type ReimportEngine struct {
	importer *ImportEngine
}

// NewReimportEngine wires a reimport engine on top of an import engine;
// the two share every collaborator.
func NewReimportEngine(importer *ImportEngine) *ReimportEngine {
	return &ReimportEngine{importer: importer}
}

// ReimportOne processes a single record in update mode. forceReplace
// controls whether the featured asset is replaced and the old one cleaned
// up; batch reimport always passes true.
func (e *ReimportEngine) ReimportOne(ctx context.Context, rec *models.SourceRecord, sessionID string, forceReplace bool) models.Outcome {
	outcome, err := e.reimportOne(ctx, rec, sessionID, forceReplace)
	if err != nil {
		e.importer.captureFailure(ctx, sessionID, rec, err)
		return models.OutcomeFailed
	}
	return outcome
}

func (e *ReimportEngine) reimportOne(ctx context.Context, rec *models.SourceRecord, sessionID string, forceReplace bool) (models.Outcome, error) {
	imp := e.importer
	log := imp.logger.With(
		logger.String("slug", rec.Slug),
		logger.String("original_id", rec.ID.String()),
		logger.String("session_id", sessionID),
	)

	existing, err := imp.findExisting(ctx, rec)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if existing == nil {
		log.Debug("no existing document, delegating to import")
		return imp.importOne(ctx, rec, sessionID)
	}
	log = log.With(logger.String("doc_id", existing.ID))

	// The stored publish timestamp is authoritative; only the source's
	// modified time is recomputed, and even that lands in metadata while
	// the store stamps the actual modified time itself.
	fields := mapper.ToDocumentFields(rec)
	updated := &store.Document{
		ID:          existing.ID,
		Slug:        fields.Slug,
		Title:       fields.Title,
		Body:        fields.Body,
		Excerpt:     fields.Excerpt,
		Status:      store.StatusPublished,
		AuthorID:    existing.AuthorID,
		PublishedAt: existing.PublishedAt,
	}
	if err := imp.stores.Documents.Update(ctx, updated); err != nil {
		return models.OutcomeFailed, fmt.Errorf("update document: %w", err)
	}

	imp.applyTaxonomy(ctx, existing.ID, rec, true, log)
	imp.resolveFeatured(ctx, existing.ID, rec, forceReplace, log)

	if err := imp.applyAuthor(ctx, existing.ID, rec, log); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.clearContributorMeta(ctx, existing.ID); err != nil {
		return models.OutcomeFailed, err
	}
	if err := imp.applyContributorMeta(ctx, existing.ID, rec); err != nil {
		return models.OutcomeFailed, err
	}
	if err := imp.applyMetadataBag(ctx, existing.ID, rec); err != nil {
		return models.OutcomeFailed, err
	}
	if err := imp.stampCorrelation(ctx, existing.ID, rec, sessionID); err != nil {
		return models.OutcomeFailed, err
	}
	if err := imp.rewriteBody(ctx, existing.ID, fields.Body, rec.Title); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.incrementCounter(ctx, existing.ID, mapper.KeyReimportCount); err != nil {
		return models.OutcomeFailed, err
	}

	log.Info("record reimported")
	return models.OutcomeImported, nil
}

// UpdateImages refreshes only the image side of an existing document: the
// featured asset is force-replaced and the body images re-rewritten. The
// document's text fields are left alone. Returns the document id.
func (e *ReimportEngine) UpdateImages(ctx context.Context, rec *models.SourceRecord) (string, error) {
	imp := e.importer

	existing, err := imp.findExisting(ctx, rec)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", fmt.Errorf("update images for %q: %w", rec.Slug, models.ErrNotFound)
	}

	log := imp.logger.With(
		logger.String("slug", rec.Slug),
		logger.String("doc_id", existing.ID),
	)

	imp.resolveFeatured(ctx, existing.ID, rec, true, log)

	body := rec.BodyContent()
	if body == "" {
		body = existing.Body
	}
	if err := imp.rewriteBody(ctx, existing.ID, body, rec.Title); err != nil {
		return "", err
	}
	if err := e.incrementCounter(ctx, existing.ID, mapper.KeyImageUpdateCount); err != nil {
		return "", err
	}

	log.Info("document images updated")
	return existing.ID, nil
}

// clearContributorMeta drops the denormalized contributor entries before
// they are re-applied, so stale names do not accumulate across reimports.
func (e *ReimportEngine) clearContributorMeta(ctx context.Context, docID string) error {
	for _, key := range []string{mapper.KeyContributors, mapper.KeyContributorNames, mapper.KeyUpdatedBy} {
		if err := e.importer.stores.Documents.DeleteMeta(ctx, docID, key); err != nil {
			return fmt.Errorf("clear metadata %q: %w", key, err)
		}
	}
	return nil
}

func (e *ReimportEngine) incrementCounter(ctx context.Context, docID, key string) error {
	raw, err := e.importer.stores.Documents.GetMeta(ctx, docID, key)
	if err != nil {
		return fmt.Errorf("read counter %q: %w", key, err)
	}
	count := 0
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			count = parsed
		}
	}
	if err := e.importer.stores.Documents.SetMeta(ctx, docID, key, strconv.Itoa(count+1)); err != nil {
		return fmt.Errorf("increment counter %q: %w", key, err)
	}
	return nil
}
