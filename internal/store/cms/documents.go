package cms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

type documentPayload struct {
	ID          string    `json:"id,omitempty"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Status      string    `json:"status"`
	AuthorID    string    `json:"author_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	ModifiedAt  time.Time `json:"modified_at,omitempty"`
}

type documentList struct {
	Items []documentPayload `json:"items"`
}

type idResponse struct {
	ID string `json:"id"`
}

func toPayload(doc *store.Document) documentPayload {
	return documentPayload{
		ID:          doc.ID,
		Slug:        doc.Slug,
		Title:       doc.Title,
		Body:        doc.Body,
		Excerpt:     doc.Excerpt,
		Status:      doc.Status,
		AuthorID:    doc.AuthorID,
		PublishedAt: doc.PublishedAt,
		ModifiedAt:  doc.ModifiedAt,
	}
}

func fromPayload(p documentPayload) *store.Document {
	return &store.Document{
		ID:          p.ID,
		Slug:        p.Slug,
		Title:       p.Title,
		Body:        p.Body,
		Excerpt:     p.Excerpt,
		Status:      p.Status,
		AuthorID:    p.AuthorID,
		PublishedAt: p.PublishedAt,
		ModifiedAt:  p.ModifiedAt,
	}
}

type documents struct{ c *Client }

func (d *documents) Create(ctx context.Context, doc *store.Document) (string, error) {
	var resp idResponse
	if err := d.c.do(ctx, http.MethodPost, "/api/documents", toPayload(doc), &resp); err != nil {
		return "", fmt.Errorf("create document %q: %w", doc.Slug, err)
	}

	d.c.logger.Info("document created",
		logger.String("doc_id", resp.ID),
		logger.String("slug", doc.Slug))
	return resp.ID, nil
}

func (d *documents) Update(ctx context.Context, doc *store.Document) error {
	path := "/api/documents/" + url.PathEscape(doc.ID)
	if err := d.c.do(ctx, http.MethodPatch, path, toPayload(doc), nil); err != nil {
		return fmt.Errorf("update document %q: %w", doc.ID, err)
	}
	return nil
}

func (d *documents) UpdateBody(ctx context.Context, docID, body string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/body"
	payload := map[string]string{"body": body}
	if err := d.c.do(ctx, http.MethodPatch, path, payload, nil); err != nil {
		return fmt.Errorf("update document body %q: %w", docID, err)
	}
	return nil
}

func (d *documents) GetBySlug(ctx context.Context, slug string) (*store.Document, error) {
	var payload documentPayload
	path := "/api/documents/slug/" + url.PathEscape(slug)
	if err := d.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("get document by slug %q: %w", slug, err)
	}
	return fromPayload(payload), nil
}

func (d *documents) FindByMeta(ctx context.Context, key, value string) (*store.Document, error) {
	var list documentList
	path := fmt.Sprintf("/api/documents?meta_key=%s&meta_value=%s",
		url.QueryEscape(key), url.QueryEscape(value))
	if err := d.c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("find document by meta %s=%s: %w", key, value, err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("document meta %s=%s: %w", key, value, models.ErrNotFound)
	}
	return fromPayload(list.Items[0]), nil
}

func (d *documents) SetMeta(ctx context.Context, docID, key string, value any) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/meta/" + url.PathEscape(key)
	payload := map[string]string{"value": fmt.Sprint(value)}
	if err := d.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set document meta %q: %w", key, err)
	}
	return nil
}

func (d *documents) GetMeta(ctx context.Context, docID, key string) (string, error) {
	var resp struct {
		Value string `json:"value"`
	}
	path := "/api/documents/" + url.PathEscape(docID) + "/meta/" + url.PathEscape(key)
	if err := d.c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get document meta %q: %w", key, err)
	}
	return resp.Value, nil
}

func (d *documents) DeleteMeta(ctx context.Context, docID, key string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/meta/" + url.PathEscape(key)
	if err := d.c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete document meta %q: %w", key, err)
	}
	return nil
}

func (d *documents) SetTerms(ctx context.Context, docID string, kind store.TermKind, termIDs []string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/terms/" + url.PathEscape(string(kind))
	payload := map[string][]string{"term_ids": termIDs}
	if err := d.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set %s terms: %w", kind, err)
	}
	return nil
}

func (d *documents) SetAuthor(ctx context.Context, docID, identityID string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/author"
	payload := map[string]string{"identity_id": identityID}
	if err := d.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set document author: %w", err)
	}
	return nil
}

func (d *documents) SetFeaturedAsset(ctx context.Context, docID, assetID string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/featured-asset"
	payload := map[string]string{"asset_id": assetID}
	if err := d.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set featured asset: %w", err)
	}
	return nil
}

func (d *documents) FeaturedAsset(ctx context.Context, docID string) (string, error) {
	var resp struct {
		AssetID string `json:"asset_id"`
	}
	path := "/api/documents/" + url.PathEscape(docID) + "/featured-asset"
	if err := d.c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get featured asset: %w", err)
	}
	return resp.AssetID, nil
}

func (d *documents) RemoveFeaturedAsset(ctx context.Context, docID string) error {
	path := "/api/documents/" + url.PathEscape(docID) + "/featured-asset"
	if err := d.c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("remove featured asset: %w", err)
	}
	return nil
}

func (d *documents) CountFeaturedAssetRefs(ctx context.Context, assetID, excludeDocID string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	path := fmt.Sprintf("/api/assets/%s/references?exclude=%s",
		url.PathEscape(assetID), url.QueryEscape(excludeDocID))
	if err := d.c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("count asset references: %w", err)
	}
	return resp.Count, nil
}
