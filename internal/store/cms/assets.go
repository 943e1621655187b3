package cms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

type assetPayload struct {
	ID            string    `json:"id,omitempty"`
	SourceURL     string    `json:"source_url"`
	Filename      string    `json:"filename"`
	Title         string    `json:"title,omitempty"`
	LocalURL      string    `json:"local_url,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	PipelineOwned bool      `json:"pipeline_owned"`
	DownloadedAt  time.Time `json:"downloaded_at,omitempty"`
	// Data carries the binary on upload; responses leave it empty.
	Data string `json:"data,omitempty"`
}

func fromAssetPayload(p assetPayload) *store.Asset {
	return &store.Asset{
		ID:            p.ID,
		SourceURL:     p.SourceURL,
		Filename:      p.Filename,
		Title:         p.Title,
		LocalURL:      p.LocalURL,
		ContentType:   p.ContentType,
		PipelineOwned: p.PipelineOwned,
		DownloadedAt:  p.DownloadedAt,
	}
}

type assets struct{ c *Client }

func (a *assets) FindBySourceURL(ctx context.Context, sourceURL string) (*store.Asset, error) {
	var payload assetPayload
	path := "/api/assets/by-source-url?url=" + url.QueryEscape(sourceURL)
	if err := a.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("find asset by source url: %w", err)
	}
	return fromAssetPayload(payload), nil
}

func (a *assets) FindByFilename(ctx context.Context, name string) (*store.Asset, error) {
	var payload assetPayload
	path := "/api/assets/by-filename?name=" + url.QueryEscape(name)
	if err := a.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("find asset by filename: %w", err)
	}
	return fromAssetPayload(payload), nil
}

func (a *assets) Store(ctx context.Context, asset *store.NewAsset) (*store.Asset, error) {
	var resp assetPayload
	payload := assetPayload{
		SourceURL:     asset.SourceURL,
		Filename:      asset.Filename,
		Title:         asset.Title,
		ContentType:   asset.ContentType,
		PipelineOwned: asset.PipelineOwned,
		Data:          base64.StdEncoding.EncodeToString(asset.Data),
	}
	if err := a.c.do(ctx, http.MethodPost, "/api/assets", payload, &resp); err != nil {
		return nil, fmt.Errorf("store asset %q: %w", asset.Filename, err)
	}

	a.c.logger.Info("asset stored",
		logger.String("asset_id", resp.ID),
		logger.String("filename", asset.Filename),
		logger.Int("size_bytes", len(asset.Data)))
	return fromAssetPayload(resp), nil
}

func (a *assets) Get(ctx context.Context, assetID string) (*store.Asset, error) {
	var payload assetPayload
	path := "/api/assets/" + url.PathEscape(assetID)
	if err := a.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("get asset %q: %w", assetID, err)
	}
	return fromAssetPayload(payload), nil
}

func (a *assets) Delete(ctx context.Context, assetID string) error {
	path := "/api/assets/" + url.PathEscape(assetID)
	if err := a.c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete asset %q: %w", assetID, err)
	}

	a.c.logger.Info("asset deleted", logger.String("asset_id", assetID))
	return nil
}

func (a *assets) SetMeta(ctx context.Context, assetID, key string, value any) error {
	path := "/api/assets/" + url.PathEscape(assetID) + "/meta/" + url.PathEscape(key)
	payload := map[string]string{"value": fmt.Sprint(value)}
	if err := a.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set asset meta %q: %w", key, err)
	}
	return nil
}
