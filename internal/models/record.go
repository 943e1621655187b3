// Package models defines the domain entities shared across the importer.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RecordID is an opaque stable identifier carried by source records.
// Exports encode it either as a JSON string or a JSON number, so it
// normalizes both to a string form.
type RecordID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id must be string or number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// String returns the normalized identifier.
func (id RecordID) String() string {
	return string(id)
}

// IsZero reports whether the identifier is absent.
func (id RecordID) IsZero() bool {
	return id == ""
}

// Term is one category or tag entry on a source record.
type Term struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Author is the nested author/contributor shape carried by source records.
// Absent fields decode to zero values; callers never probe raw maps.
type Author struct {
	ID          RecordID `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Email       string   `json:"email"`
	Description string   `json:"description"`
	Facebook    string   `json:"facebook"`
	LinkedIn    string   `json:"linkedin"`
	Instagram   string   `json:"instagram"`
	Twitter     string   `json:"twitter"`
}

// MediaBanner is the alternate banner reference some exports carry in
// place of a plain banner URL.
type MediaBanner struct {
	Path string `json:"path"`
}

// SourceRecord is one parsed article entry from the ingested dataset.
// Records are immutable once decoded; engines only project them.
type SourceRecord struct {
	ID    RecordID `json:"id"`
	Slug  string   `json:"slug"`
	Title string   `json:"title"`

	// The export format is not consistent about where body HTML lives;
	// the mapper resolves the first non-empty of these in order.
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
	PostContent string `json:"post_content"`
	Body        string `json:"body"`

	ShortDescription string `json:"short_description"`
	Summary          string `json:"summary"`

	FirstPublishedAt string `json:"formatted_first_published_at_datetime"`
	LastPublishedAt  string `json:"formatted_last_published_at_datetime"`

	Categories      []Term `json:"categories"`
	Tags            []Term `json:"tags"`
	PrimaryCategory *Term  `json:"primary_category"`

	Member       *Author  `json:"member"`
	Contributors []Author `json:"contributors"`
	UpdatedBy    *Author  `json:"updated_by"`

	BannerURL         string       `json:"banner_url"`
	MediaFileBanner   *MediaBanner `json:"media_file_banner"`
	BannerDescription string       `json:"banner_description"`
	HideBannerImage   *bool        `json:"hide_banner_image"`

	Meta map[string]any `json:"meta_data"`

	WordCount    int      `json:"word_count"`
	ArticleType  string   `json:"type"`
	LanguageCode string   `json:"language_code"`
	AccessType   string   `json:"access_type"`
	AbsoluteURL  string   `json:"absolute_url"`
	LegacyURL    string   `json:"legacy_url"`
	CacheTags    []string `json:"Cache-Tags"`
}

// Excerpt returns the short description, falling back to the summary.
func (r *SourceRecord) Excerpt() string {
	if r.ShortDescription != "" {
		return r.ShortDescription
	}
	return r.Summary
}

// BodyContent returns the first non-empty body field. The ordered fallback
// is a compatibility shim for heterogeneous export schemas.
func (r *SourceRecord) BodyContent() string {
	for _, v := range []string{r.Content, r.ContentHTML, r.PostContent, r.Body} {
		if v != "" {
			return v
		}
	}
	return ""
}

// BannerCandidates returns the banner URLs to try in order: the primary
// banner URL first, then the alternate media banner path.
func (r *SourceRecord) BannerCandidates() []string {
	candidates := make([]string, 0, 2)
	if r.BannerURL != "" {
		candidates = append(candidates, r.BannerURL)
	}
	if r.MediaFileBanner != nil && r.MediaFileBanner.Path != "" {
		candidates = append(candidates, r.MediaFileBanner.Path)
	}
	return candidates
}

// WordCountString returns the word count as a string for metadata stamping.
func (r *SourceRecord) WordCountString() string {
	return strconv.Itoa(r.WordCount)
}
