// Package mapper projects a source record into the field and metadata
// shapes the document store accepts. Pure transformation, no I/O.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/post-importer/internal/dates"
	"github.com/jonesrussell/post-importer/internal/models"
)

// Metadata keys stamped on documents. Engines and the mapper share these
// so lookups and writes always agree.
const (
	KeyOriginalID       = "original_id"
	KeySessionID        = "session_id"
	KeyOriginalURL      = "original_url"
	KeyLegacyURL        = "legacy_url"
	KeyWordCount        = "word_count"
	KeyArticleType      = "article_type"
	KeyLanguageCode     = "language_code"
	KeyAccessType       = "access_type"
	KeyBannerImported   = "banner_imported"
	KeyBannerDesc       = "banner_description"
	KeyHideBanner       = "hide_banner_image"
	KeyAlternateBanner  = "alternate_banner"
	KeyCacheTags        = "cache_tags"
	KeyContributors     = "contributors"
	KeyContributorNames = "contributor_names"
	KeyUpdatedBy        = "updated_by"
	KeyPrimaryCategory  = "primary_category_id"
	KeySourceModifiedAt = "source_modified_at"
	KeyReimportCount    = "reimport_count"
	KeyImageUpdateCount = "image_update_count"
)

// metadataDenylist names source metadata keys that collide with
// store-internal fields and must never be copied verbatim.
var metadataDenylist = map[string]struct{}{
	"_thumbnail_id":           {},
	"thumbnail_id":            {},
	"_wp_attached_file":       {},
	"_wp_attachment_metadata": {},
	"_edit_lock":              {},
	"_edit_last":              {},
}

// DocumentFields is the normalized projection of one source record.
type DocumentFields struct {
	Title       string
	Slug        string
	Excerpt     string
	Body        string
	PublishedAt time.Time
	ModifiedAt  time.Time
}

// ToDocumentFields normalizes the record's core fields. Missing datetimes
// fall back to the current instant per the date normalizer's contract.
func ToDocumentFields(rec *models.SourceRecord) DocumentFields {
	return DocumentFields{
		Title:       rec.Title,
		Slug:        rec.Slug,
		Excerpt:     rec.Excerpt(),
		Body:        rec.BodyContent(),
		PublishedAt: dates.Normalize(rec.FirstPublishedAt),
		ModifiedAt:  dates.Normalize(rec.LastPublishedAt),
	}
}

// MetadataBag filters the record's free-form metadata through the denylist
// and normalizes values: singleton lists unwrap to their only element, and
// string values have stray bracket/quote padding trimmed. The trim is a
// compatibility quirk of the upstream export format, preserved as-is.
func MetadataBag(rec *models.SourceRecord) map[string]string {
	out := make(map[string]string, len(rec.Meta))
	for key, value := range rec.Meta {
		if _, blocked := metadataDenylist[key]; blocked {
			continue
		}
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) string {
	if list, ok := value.([]any); ok && len(list) == 1 {
		value = list[0]
	}
	if s, ok := value.(string); ok {
		return strings.Trim(s, `[]'"`)
	}
	return fmt.Sprint(value)
}

// ContributorNames joins the display names of the record's contributors
// for the denormalized metadata entry.
func ContributorNames(rec *models.SourceRecord) string {
	names := make([]string, 0, len(rec.Contributors))
	for _, c := range rec.Contributors {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}
