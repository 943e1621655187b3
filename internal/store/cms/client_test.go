package cms_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
	"github.com/jonesrussell/post-importer/internal/store/cms"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

// newTestClient runs a fake content store that answers from the handler
// map keyed by "METHOD path" and records every request.
func newTestClient(t *testing.T, handlers map[string]func(w http.ResponseWriter, r *http.Request)) (store.Stores, *[]recordedRequest) {
	t.Helper()

	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		seen = append(seen, rec)

		if handler, ok := handlers[r.Method+" "+r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client, err := cms.NewClient(config.ContentStoreConfig{
		URL:     server.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, logger.NewNopLogger())
	require.NoError(t, err)

	return client.Stores(), &seen
}

func jsonResponse(status int, body any) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func TestNewClientValidation(t *testing.T) {
	log := logger.NewNopLogger()

	_, err := cms.NewClient(config.ContentStoreConfig{Token: "t"}, log)
	assert.Error(t, err, "URL is required")

	_, err = cms.NewClient(config.ContentStoreConfig{URL: "https://cms.example.com"}, log)
	assert.Error(t, err, "token is required")
}

func TestDocumentCreateSendsBearerToken(t *testing.T) {
	stores, seen := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /api/documents": jsonResponse(http.StatusCreated, map[string]string{"id": "doc-1"}),
	})

	id, err := stores.Documents.Create(context.Background(), &store.Document{
		Slug:   "first",
		Title:  "First",
		Status: store.StatusPublished,
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "Bearer test-token", req.auth)
	assert.Equal(t, "first", req.body["slug"])
	assert.Equal(t, store.StatusPublished, req.body["status"])
}

func TestDocumentGetBySlugNotFound(t *testing.T) {
	stores, _ := newTestClient(t, nil)

	_, err := stores.Documents.GetBySlug(context.Background(), "absent")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDocumentFindByMeta(t *testing.T) {
	stores, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /api/documents": jsonResponse(http.StatusOK, map[string]any{
			"items": []map[string]any{{"id": "doc-9", "slug": "matched"}},
		}),
	})

	doc, err := stores.Documents.FindByMeta(context.Background(), "original_id", "4711")
	require.NoError(t, err)
	assert.Equal(t, "doc-9", doc.ID)
}

func TestDocumentFindByMetaEmptyList(t *testing.T) {
	stores, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /api/documents": jsonResponse(http.StatusOK, map[string]any{"items": []any{}}),
	})

	_, err := stores.Documents.FindByMeta(context.Background(), "original_id", "4711")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDocumentGetMetaMissingKeyIsEmpty(t *testing.T) {
	stores, _ := newTestClient(t, nil)

	value, err := stores.Documents.GetMeta(context.Background(), "doc-1", "reimport_count")
	require.NoError(t, err, "a missing metadata key is not an error")
	assert.Empty(t, value)
}

func TestDocumentDeleteMetaToleratesMissing(t *testing.T) {
	stores, _ := newTestClient(t, nil)

	err := stores.Documents.DeleteMeta(context.Background(), "doc-1", "contributors")
	assert.NoError(t, err)
}

func TestErrorEnvelopeDecoding(t *testing.T) {
	stores, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /api/documents": jsonResponse(http.StatusUnprocessableEntity, map[string]any{
			"errors": []map[string]string{
				{"status": "422", "title": "Validation failed", "detail": "slug already exists"},
			},
		}),
	})

	_, err := stores.Documents.Create(context.Background(), &store.Document{Slug: "dup"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slug already exists")
}

func TestFeaturedAssetRoundTrip(t *testing.T) {
	stores, seen := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"PUT /api/documents/doc-1/featured-asset": jsonResponse(http.StatusOK, map[string]string{}),
		"GET /api/documents/doc-1/featured-asset": jsonResponse(http.StatusOK, map[string]string{"asset_id": "asset-5"}),
	})
	ctx := context.Background()

	require.NoError(t, stores.Documents.SetFeaturedAsset(ctx, "doc-1", "asset-5"))

	assetID, err := stores.Documents.FeaturedAsset(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "asset-5", assetID)

	require.Len(t, *seen, 2)
	assert.Equal(t, "asset-5", (*seen)[0].body["asset_id"])
}

func TestFeaturedAssetMissingIsEmpty(t *testing.T) {
	stores, _ := newTestClient(t, nil)

	assetID, err := stores.Documents.FeaturedAsset(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, assetID)
}

func TestCountFeaturedAssetRefs(t *testing.T) {
	stores, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /api/assets/asset-5/references": jsonResponse(http.StatusOK, map[string]int{"count": 2}),
	})

	count, err := stores.Documents.CountFeaturedAssetRefs(context.Background(), "asset-5", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAssetStoreEncodesData(t *testing.T) {
	stores, seen := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /api/assets": jsonResponse(http.StatusCreated, map[string]any{
			"id":        "asset-1",
			"local_url": "/assets/asset-1/banner.jpg",
		}),
	})

	asset, err := stores.Assets.Store(context.Background(), &store.NewAsset{
		SourceURL:     "https://cdn.example.com/banner.jpg",
		Filename:      "banner.jpg",
		ContentType:   "image/jpeg",
		Data:          []byte{0xFF, 0xD8},
		PipelineOwned: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "asset-1", asset.ID)
	assert.Equal(t, "/assets/asset-1/banner.jpg", asset.LocalURL)

	require.Len(t, *seen, 1)
	body := (*seen)[0].body
	assert.Equal(t, "banner.jpg", body["filename"])
	assert.NotEmpty(t, body["data"], "binary payload travels base64 encoded")
}

func TestAssetDeleteToleratesMissing(t *testing.T) {
	stores, _ := newTestClient(t, nil)

	assert.NoError(t, stores.Assets.Delete(context.Background(), "gone"))
}

func TestTaxonomyGetOrCreate(t *testing.T) {
	stores, seen := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /api/taxonomies/category": jsonResponse(http.StatusOK, map[string]string{"id": "term-3"}),
	})

	id, err := stores.Taxonomies.GetOrCreate(context.Background(), store.KindCategory, "News", "news")
	require.NoError(t, err)
	assert.Equal(t, "term-3", id)

	require.Len(t, *seen, 1)
	assert.Equal(t, "news", (*seen)[0].body["slug"])
}

func TestIdentityLookupAndCreate(t *testing.T) {
	stores, _ := newTestClient(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /api/identities/email/dana@example.com": jsonResponse(http.StatusOK, map[string]string{
			"id": "ident-1", "login": "dwhitefish", "email": "dana@example.com",
		}),
		"POST /api/identities": jsonResponse(http.StatusCreated, map[string]string{"id": "ident-2"}),
	})
	ctx := context.Background()

	ident, err := stores.Identities.LookupByEmail(ctx, "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ident-1", ident.ID)

	_, err = stores.Identities.LookupByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)

	id, err := stores.Identities.Create(ctx, &store.Identity{Login: "screwe", Email: "sam@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ident-2", id)
}
