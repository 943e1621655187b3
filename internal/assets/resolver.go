// Package assets resolves remote image URLs into stored assets: reuse by
// source URL or filename, download on miss, attach as a document's
// featured asset, and clean up orphans on forced replacement.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/metrics"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

// ErrAttachInconsistent reports that the featured asset attachment did not
// survive the read-back verification even after the direct-write retry.
var ErrAttachInconsistent = errors.New("featured asset attachment inconsistent")

const defaultContentType = "application/octet-stream"

// Resolver turns remote URLs into stored asset ids. Downloads for the same
// URL are collapsed through a singleflight group so concurrent records
// referencing one image produce a single asset.
type Resolver struct {
	assets  store.AssetStore
	docs    store.DocumentStore
	client  *http.Client
	metrics *metrics.Metrics
	logger  logger.Logger
	group   singleflight.Group
}

// NewResolver wires a resolver. The client's timeout bounds both the
// liveness check and the download.
func NewResolver(
	assets store.AssetStore,
	docs store.DocumentStore,
	client *http.Client,
	m *metrics.Metrics,
	log logger.Logger,
) *Resolver {
	return &Resolver{
		assets:  assets,
		docs:    docs,
		client:  client,
		metrics: m,
		logger:  log,
	}
}

// Resolve resolves rawURL to a stored asset and attaches it as ownerDocID's
// featured asset. With forceReplace the reuse lookups are bypassed, a fresh
// asset is downloaded, and the previously attached asset is detached and
// deleted when it is pipeline-owned and referenced by no other document.
//
// A non-nil error means the owner has no new featured asset; callers log it
// and continue, it never fails the owning record.
func (r *Resolver) Resolve(ctx context.Context, rawURL, label, ownerDocID string, forceReplace bool) (string, error) {
	log := r.logger.With(
		logger.String("url", rawURL),
		logger.String("owner_doc_id", ownerDocID),
		logger.Bool("force_replace", forceReplace),
	)

	if err := validateURL(rawURL); err != nil {
		return "", err
	}

	previousID := ""
	if forceReplace {
		prev, err := r.docs.FeaturedAsset(ctx, ownerDocID)
		if err != nil {
			return "", fmt.Errorf("read current featured asset: %w", err)
		}
		previousID = prev
	}

	asset, reused, err := r.obtain(ctx, rawURL, label, forceReplace)
	if err != nil {
		return "", err
	}
	r.record(asset, reused)

	// Detach the replaced asset first so a failed attach never leaves the
	// document pointing at an asset that is about to be deleted.
	if forceReplace && previousID != "" && previousID != asset.ID {
		if err := r.docs.RemoveFeaturedAsset(ctx, ownerDocID); err != nil {
			return "", fmt.Errorf("detach previous featured asset: %w", err)
		}
	}

	if err := r.attach(ctx, ownerDocID, asset.ID); err != nil {
		return "", err
	}

	if forceReplace && previousID != "" && previousID != asset.ID {
		if err := r.cleanupOrphan(ctx, previousID, ownerDocID); err != nil {
			// Cleanup failure leaves a stale asset behind but the new
			// attachment already succeeded.
			log.Warn("orphan cleanup failed",
				logger.String("previous_asset_id", previousID),
				logger.Error(err))
		}
	}

	return asset.ID, nil
}

// Obtain resolves rawURL to a stored asset without attaching it to any
// document. Content rewriting uses this for inline images, which must
// never displace the owner's featured asset.
func (r *Resolver) Obtain(ctx context.Context, rawURL, label string) (*store.Asset, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	asset, reused, err := r.obtain(ctx, rawURL, label, false)
	if err != nil {
		return nil, err
	}
	r.record(asset, reused)
	return asset, nil
}

func (r *Resolver) record(asset *store.Asset, reused bool) {
	if reused {
		r.metrics.AssetsReused.Inc()
		r.logger.Debug("reusing existing asset",
			logger.String("asset_id", asset.ID),
			logger.String("url", asset.SourceURL))
		return
	}
	r.metrics.AssetsDownloaded.Inc()
	r.logger.Info("downloaded new asset",
		logger.String("asset_id", asset.ID),
		logger.String("url", asset.SourceURL),
		logger.String("filename", asset.Filename))
}

// obtain returns the asset backing rawURL, reusing an existing one unless
// forceReplace demands a fresh download.
func (r *Resolver) obtain(ctx context.Context, rawURL, label string, forceReplace bool) (*store.Asset, bool, error) {
	if forceReplace {
		asset, err := r.download(ctx, rawURL, label)
		return asset, false, err
	}

	type outcome struct {
		asset  *store.Asset
		reused bool
	}

	v, err, _ := r.group.Do(rawURL, func() (any, error) {
		if existing, err := r.assets.FindBySourceURL(ctx, rawURL); err == nil {
			return outcome{existing, true}, nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("lookup asset by url: %w", err)
		}

		if existing, err := r.assets.FindByFilename(ctx, deriveFilename(rawURL)); err == nil {
			return outcome{existing, true}, nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("lookup asset by filename: %w", err)
		}

		asset, err := r.download(ctx, rawURL, label)
		if err != nil {
			return nil, err
		}
		return outcome{asset, false}, nil
	})
	if err != nil {
		return nil, false, err
	}

	out := v.(outcome)
	return out.asset, out.reused, nil
}

// download verifies the URL is live, fetches it, and stores the binary as
// a new pipeline-owned asset.
func (r *Resolver) download(ctx context.Context, rawURL, label string) (*store.Asset, error) {
	if err := r.checkLiveness(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download asset: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}

	filename := deriveFilename(rawURL)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	title := label
	if title == "" {
		title = strings.TrimSuffix(filename, path.Ext(filename))
	}

	asset, err := r.assets.Store(ctx, &store.NewAsset{
		SourceURL:     rawURL,
		Filename:      filename,
		Title:         title,
		ContentType:   contentType,
		Data:          data,
		PipelineOwned: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store asset: %w", err)
	}
	r.logger.Debug("asset payload stored",
		logger.String("asset_id", asset.ID),
		logger.Int64("size_bytes", int64(len(data))))

	if label != "" {
		if err := r.assets.SetMeta(ctx, asset.ID, "label", label); err != nil {
			r.logger.Warn("stamp asset label failed",
				logger.String("asset_id", asset.ID), logger.Error(err))
		}
	}

	return asset, nil
}

// checkLiveness issues a HEAD request so dead URLs fail before the full
// download. The client timeout bounds the wait.
func (r *Resolver) checkLiveness(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build liveness request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("asset liveness check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset liveness check: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// attach sets the featured asset and verifies it stuck. On a failed
// read-back it retries with a direct metadata write before giving up.
func (r *Resolver) attach(ctx context.Context, ownerDocID, assetID string) error {
	if err := r.docs.SetFeaturedAsset(ctx, ownerDocID, assetID); err != nil {
		return fmt.Errorf("attach featured asset: %w", err)
	}

	current, err := r.docs.FeaturedAsset(ctx, ownerDocID)
	if err != nil {
		return fmt.Errorf("verify featured asset: %w", err)
	}
	if current == assetID {
		return nil
	}

	r.logger.Warn("featured asset attachment did not stick, retrying via metadata",
		logger.String("owner_doc_id", ownerDocID),
		logger.String("asset_id", assetID))

	if err := r.docs.SetMeta(ctx, ownerDocID, store.MetaFeaturedAsset, assetID); err != nil {
		return fmt.Errorf("retry featured asset via metadata: %w", err)
	}

	current, err = r.docs.FeaturedAsset(ctx, ownerDocID)
	if err != nil {
		return fmt.Errorf("re-verify featured asset: %w", err)
	}
	if current != assetID {
		return fmt.Errorf("attach asset %s to %s: %w", assetID, ownerDocID, ErrAttachInconsistent)
	}
	return nil
}

// cleanupOrphan deletes the detached asset when it was created by this
// pipeline and no other document still references it.
func (r *Resolver) cleanupOrphan(ctx context.Context, assetID, excludeDocID string) error {
	asset, err := r.assets.Get(ctx, assetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load detached asset: %w", err)
	}

	if !asset.PipelineOwned {
		r.logger.Debug("keeping detached asset not owned by importer",
			logger.String("asset_id", assetID))
		return nil
	}

	refs, err := r.docs.CountFeaturedAssetRefs(ctx, assetID, excludeDocID)
	if err != nil {
		return fmt.Errorf("count asset references: %w", err)
	}
	if refs > 0 {
		r.logger.Debug("keeping detached asset still referenced",
			logger.String("asset_id", assetID), logger.Int("references", refs))
		return nil
	}

	if err := r.assets.Delete(ctx, assetID); err != nil {
		return fmt.Errorf("delete orphaned asset: %w", err)
	}
	r.metrics.AssetsDeleted.Inc()
	r.logger.Info("deleted orphaned asset", logger.String("asset_id", assetID))
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty asset url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse asset url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("asset url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("asset url %q: missing host", rawURL)
	}
	return nil
}

// deriveFilename returns the normalized basename of the URL path, used for
// the filename-based reuse lookup and the stored filename.
func deriveFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "asset"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "asset"
	}
	return strings.ToLower(name)
}
