package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/mapper"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

// ImportEngine creates one document per new source record. Records whose
// slug or original id already materialized are skipped, which makes import
// idempotent at the identity level.
type ImportEngine struct {
	stores   store.Stores
	resolver AssetResolver
	rewriter ContentRewriter
	failures FailureSink
	logger   logger.Logger
}

// NewImportEngine wires an import engine.
func NewImportEngine(
	stores store.Stores,
	resolver AssetResolver,
	rewriter ContentRewriter,
	failures FailureSink,
	log logger.Logger,
) *ImportEngine {
	return &ImportEngine{
		stores:   stores,
		resolver: resolver,
		rewriter: rewriter,
		failures: failures,
		logger:   log,
	}
}

// ImportOne processes a single record. Unrecoverable errors are captured
// as a failure record for the session and surfaced as OutcomeFailed; they
// never propagate as errors, so a batch always continues.
func (e *ImportEngine) ImportOne(ctx context.Context, rec *models.SourceRecord, sessionID string) models.Outcome {
	outcome, err := e.importOne(ctx, rec, sessionID)
	if err != nil {
		e.captureFailure(ctx, sessionID, rec, err)
		return models.OutcomeFailed
	}
	return outcome
}

func (e *ImportEngine) importOne(ctx context.Context, rec *models.SourceRecord, sessionID string) (models.Outcome, error) {
	log := e.logger.With(
		logger.String("slug", rec.Slug),
		logger.String("original_id", rec.ID.String()),
		logger.String("session_id", sessionID),
	)

	existing, err := e.findExisting(ctx, rec)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if existing != nil {
		log.Debug("record already materialized, skipping",
			logger.String("doc_id", existing.ID))
		return models.OutcomeSkipped, nil
	}

	fields := mapper.ToDocumentFields(rec)
	docID, err := e.stores.Documents.Create(ctx, &store.Document{
		Slug:        fields.Slug,
		Title:       fields.Title,
		Body:        fields.Body,
		Excerpt:     fields.Excerpt,
		Status:      store.StatusPublished,
		PublishedAt: fields.PublishedAt,
		ModifiedAt:  fields.ModifiedAt,
	})
	if err != nil {
		return models.OutcomeFailed, fmt.Errorf("create document: %w", err)
	}
	log = log.With(logger.String("doc_id", docID))

	e.applyTaxonomy(ctx, docID, rec, false, log)
	e.resolveFeatured(ctx, docID, rec, false, log)

	if err := e.applyAuthor(ctx, docID, rec, log); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.applyContributorMeta(ctx, docID, rec); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.applyMetadataBag(ctx, docID, rec); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.stampCorrelation(ctx, docID, rec, sessionID); err != nil {
		return models.OutcomeFailed, err
	}
	if err := e.rewriteBody(ctx, docID, fields.Body, rec.Title); err != nil {
		return models.OutcomeFailed, err
	}

	log.Info("record imported")
	return models.OutcomeImported, nil
}

// findExisting resolves record identity: slug first, then the original id
// correlation metadata. Returns nil when the record is new.
func (e *ImportEngine) findExisting(ctx context.Context, rec *models.SourceRecord) (*store.Document, error) {
	doc, err := e.stores.Documents.GetBySlug(ctx, rec.Slug)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup document by slug: %w", err)
	}

	if rec.ID.IsZero() {
		return nil, nil
	}
	doc, err = e.stores.Documents.FindByMeta(ctx, mapper.KeyOriginalID, rec.ID.String())
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("lookup document by original id: %w", err)
	}
	return nil, nil
}

// applyTaxonomy resolves categories and tags by slug, creating missing
// terms. A failed term is logged and the rest of the list still applies.
// With replace the stored associations are overwritten with exactly the
// resolved set, clearing them when the record carries no terms.
func (e *ImportEngine) applyTaxonomy(ctx context.Context, docID string, rec *models.SourceRecord, replace bool, log logger.Logger) {
	e.applyTerms(ctx, docID, store.KindCategory, rec.Categories, replace, log)
	e.applyTerms(ctx, docID, store.KindTag, rec.Tags, replace, log)

	if rec.PrimaryCategory != nil && rec.PrimaryCategory.Slug != "" {
		termID, err := e.stores.Taxonomies.GetOrCreate(ctx, store.KindCategory,
			rec.PrimaryCategory.Name, rec.PrimaryCategory.Slug)
		if err != nil {
			log.Warn("primary category resolution failed",
				logger.String("term_slug", rec.PrimaryCategory.Slug), logger.Error(err))
			return
		}
		if err := e.stores.Documents.SetMeta(ctx, docID, mapper.KeyPrimaryCategory, termID); err != nil {
			log.Warn("primary category stamp failed", logger.Error(err))
		}
	}
}

func (e *ImportEngine) applyTerms(ctx context.Context, docID string, kind store.TermKind, terms []models.Term, replace bool, log logger.Logger) {
	if len(terms) == 0 && !replace {
		return
	}

	ids := make([]string, 0, len(terms))
	for _, t := range terms {
		if t.Slug == "" {
			continue
		}
		id, err := e.stores.Taxonomies.GetOrCreate(ctx, kind, t.Name, t.Slug)
		if err != nil {
			log.Warn("term resolution failed",
				logger.String("kind", string(kind)),
				logger.String("term_slug", t.Slug),
				logger.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 && !replace {
		return
	}
	if err := e.stores.Documents.SetTerms(ctx, docID, kind, ids); err != nil {
		log.Warn("term association failed",
			logger.String("kind", string(kind)), logger.Error(err))
	}
}

// resolveFeatured tries each banner candidate in order until one resolves.
// Resolution failure never fails the record; the outcome is stamped as
// metadata either way.
func (e *ImportEngine) resolveFeatured(ctx context.Context, docID string, rec *models.SourceRecord, forceReplace bool, log logger.Logger) {
	resolved := false
	for _, candidate := range rec.BannerCandidates() {
		if _, err := e.resolver.Resolve(ctx, candidate, rec.Title, docID, forceReplace); err != nil {
			log.Warn("featured asset resolution failed",
				logger.String("url", candidate), logger.Error(err))
			continue
		}
		resolved = true
		break
	}

	if err := e.stores.Documents.SetMeta(ctx, docID, mapper.KeyBannerImported, strconv.FormatBool(resolved)); err != nil {
		log.Warn("banner outcome stamp failed", logger.Error(err))
	}
}

// applyAuthor resolves the record's author identity by email, then login,
// creating a fresh identity when neither matches.
func (e *ImportEngine) applyAuthor(ctx context.Context, docID string, rec *models.SourceRecord, log logger.Logger) error {
	if rec.Member == nil {
		return nil
	}

	identityID, err := e.resolveIdentity(ctx, rec.Member)
	if err != nil {
		return fmt.Errorf("resolve author: %w", err)
	}
	if identityID == "" {
		return nil
	}
	if err := e.stores.Documents.SetAuthor(ctx, docID, identityID); err != nil {
		return fmt.Errorf("assign author: %w", err)
	}
	log.Debug("author assigned", logger.String("identity_id", identityID))
	return nil
}

func (e *ImportEngine) resolveIdentity(ctx context.Context, author *models.Author) (string, error) {
	if author.Email != "" {
		ident, err := e.stores.Identities.LookupByEmail(ctx, author.Email)
		if err == nil {
			return ident.ID, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return "", fmt.Errorf("lookup identity by email: %w", err)
		}
	}

	login := deriveLogin(author)
	if login == "" {
		return "", nil
	}

	ident, err := e.stores.Identities.LookupByLogin(ctx, login)
	if err == nil {
		return ident.ID, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("lookup identity by login: %w", err)
	}

	identityID, err := e.stores.Identities.Create(ctx, &store.Identity{
		Login:       login,
		Email:       author.Email,
		DisplayName: author.Name,
		Bio:         author.Description,
		Facebook:    author.Facebook,
		LinkedIn:    author.LinkedIn,
		Instagram:   author.Instagram,
		Twitter:     author.Twitter,
	})
	if err != nil {
		return "", fmt.Errorf("create identity: %w", err)
	}

	if !author.ID.IsZero() {
		if err := e.stores.Identities.SetMeta(ctx, identityID, "original_author_id", author.ID.String()); err != nil {
			return "", fmt.Errorf("stamp identity correlation id: %w", err)
		}
	}
	return identityID, nil
}

func deriveLogin(author *models.Author) string {
	if author.Slug != "" {
		return author.Slug
	}
	if author.Name != "" {
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(author.Name), " ", "-"))
	}
	if at := strings.Index(author.Email, "@"); at > 0 {
		return strings.ToLower(author.Email[:at])
	}
	return ""
}

// applyContributorMeta denormalizes contributors and the updated-by record
// into metadata; these are informational, not relational.
func (e *ImportEngine) applyContributorMeta(ctx context.Context, docID string, rec *models.SourceRecord) error {
	if len(rec.Contributors) > 0 {
		names := mapper.ContributorNames(rec)
		if names != "" {
			if err := e.stores.Documents.SetMeta(ctx, docID, mapper.KeyContributorNames, names); err != nil {
				return fmt.Errorf("stamp contributor names: %w", err)
			}
		}
		encoded, err := json.Marshal(rec.Contributors)
		if err != nil {
			return fmt.Errorf("encode contributors: %w", err)
		}
		if err := e.stores.Documents.SetMeta(ctx, docID, mapper.KeyContributors, string(encoded)); err != nil {
			return fmt.Errorf("stamp contributors: %w", err)
		}
	}

	if rec.UpdatedBy != nil {
		encoded, err := json.Marshal(rec.UpdatedBy)
		if err != nil {
			return fmt.Errorf("encode updated-by: %w", err)
		}
		if err := e.stores.Documents.SetMeta(ctx, docID, mapper.KeyUpdatedBy, string(encoded)); err != nil {
			return fmt.Errorf("stamp updated-by: %w", err)
		}
	}
	return nil
}

// applyMetadataBag copies the record's free-form metadata through the
// mapper's denylist filter.
func (e *ImportEngine) applyMetadataBag(ctx context.Context, docID string, rec *models.SourceRecord) error {
	for key, value := range mapper.MetadataBag(rec) {
		if err := e.stores.Documents.SetMeta(ctx, docID, key, value); err != nil {
			return fmt.Errorf("copy metadata %q: %w", key, err)
		}
	}
	return nil
}

// stampCorrelation writes the identity and passthrough metadata that later
// runs use for dedupe and diagnostics.
func (e *ImportEngine) stampCorrelation(ctx context.Context, docID string, rec *models.SourceRecord, sessionID string) error {
	entries := map[string]string{
		mapper.KeySessionID:        sessionID,
		mapper.KeySourceModifiedAt: rec.LastPublishedAt,
	}
	if !rec.ID.IsZero() {
		entries[mapper.KeyOriginalID] = rec.ID.String()
	}
	if rec.AbsoluteURL != "" {
		entries[mapper.KeyOriginalURL] = rec.AbsoluteURL
	}
	if rec.LegacyURL != "" {
		entries[mapper.KeyLegacyURL] = rec.LegacyURL
	}
	if rec.WordCount > 0 {
		entries[mapper.KeyWordCount] = rec.WordCountString()
	}
	if rec.ArticleType != "" {
		entries[mapper.KeyArticleType] = rec.ArticleType
	}
	if rec.LanguageCode != "" {
		entries[mapper.KeyLanguageCode] = rec.LanguageCode
	}
	if rec.AccessType != "" {
		entries[mapper.KeyAccessType] = rec.AccessType
	}
	if rec.BannerDescription != "" {
		entries[mapper.KeyBannerDesc] = rec.BannerDescription
	}
	if rec.HideBannerImage != nil {
		entries[mapper.KeyHideBanner] = strconv.FormatBool(*rec.HideBannerImage)
	}
	if rec.MediaFileBanner != nil {
		encoded, err := json.Marshal(rec.MediaFileBanner)
		if err != nil {
			return fmt.Errorf("encode alternate banner: %w", err)
		}
		entries[mapper.KeyAlternateBanner] = string(encoded)
	}
	if len(rec.CacheTags) > 0 {
		encoded, err := json.Marshal(rec.CacheTags)
		if err != nil {
			return fmt.Errorf("encode cache tags: %w", err)
		}
		entries[mapper.KeyCacheTags] = string(encoded)
	}

	for key, value := range entries {
		if err := e.stores.Documents.SetMeta(ctx, docID, key, value); err != nil {
			return fmt.Errorf("stamp %q: %w", key, err)
		}
	}
	return nil
}

// rewriteBody runs the content rewriter and persists the body only when it
// actually changed. Asset resolution needs a real document id, which is
// why the body lands in a second write after creation.
func (e *ImportEngine) rewriteBody(ctx context.Context, docID, body, label string) error {
	rewritten := e.rewriter.Rewrite(ctx, body, docID, label)
	if rewritten == body {
		return nil
	}
	if err := e.stores.Documents.UpdateBody(ctx, docID, rewritten); err != nil {
		return fmt.Errorf("persist rewritten body: %w", err)
	}
	return nil
}

// captureFailure persists the raw record and error message so the failure
// log can drive later inspection or retry.
func (e *ImportEngine) captureFailure(ctx context.Context, sessionID string, rec *models.SourceRecord, cause error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"slug":%q}`, rec.Slug))
	}
	if err := e.failures.RecordFailure(ctx, sessionID, payload, cause.Error()); err != nil {
		e.logger.Error("failure record persistence failed",
			logger.String("session_id", sessionID),
			logger.String("slug", rec.Slug),
			logger.Error(err))
	}
	e.logger.Error("record import failed",
		logger.String("session_id", sessionID),
		logger.String("slug", rec.Slug),
		logger.Error(cause))
}
