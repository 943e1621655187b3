// Package store defines the contracts the import engines require from the
// target content store. The store itself is an external collaborator; the
// engines only depend on these interfaces, which are satisfied by the HTTP
// client in store/cms and the in-process implementation in store/memory.
package store

import (
	"context"
	"time"
)

// Document is the materialized content item the pipeline produces.
type Document struct {
	ID          string
	Slug        string
	Title       string
	Body        string
	Excerpt     string
	Status      string
	AuthorID    string
	PublishedAt time.Time
	ModifiedAt  time.Time
}

// StatusPublished is the status stamped on imported documents.
const StatusPublished = "published"

// MetaFeaturedAsset is the metadata key backing the featured asset pointer.
// The asset resolver falls back to a direct write of this key when the
// regular attachment call does not stick.
const MetaFeaturedAsset = "featured_asset_id"

// TermKind distinguishes the two taxonomy namespaces.
type TermKind string

// Taxonomy kinds.
const (
	KindCategory TermKind = "category"
	KindTag      TermKind = "tag"
)

// Asset is a stored binary (image) with provenance.
type Asset struct {
	ID            string
	SourceURL     string
	Filename      string
	Title         string
	LocalURL      string
	ContentType   string
	PipelineOwned bool
	DownloadedAt  time.Time
}

// NewAsset carries a freshly downloaded binary into the asset store.
type NewAsset struct {
	SourceURL   string
	Filename    string
	Title       string
	ContentType string
	Data        []byte
	// PipelineOwned marks the asset as created by this pipeline, which
	// gates later deletion during force replace.
	PipelineOwned bool
}

// Identity is an author account in the target store.
type Identity struct {
	ID          string
	Login       string
	Email       string
	DisplayName string
	Bio         string
	Facebook    string
	LinkedIn    string
	Instagram   string
	Twitter     string
}

// DocumentStore is the document surface the engines consume. Lookups
// return models.ErrNotFound when nothing matches.
type DocumentStore interface {
	// Create materializes a new document and returns its id.
	Create(ctx context.Context, doc *Document) (string, error)

	// Update rewrites the mutable fields of an existing document. The
	// store sets the stored modified time to now; callers that need the
	// source's modified time keep it as metadata instead.
	Update(ctx context.Context, doc *Document) error

	// UpdateBody patches only the body of an existing document. Used for
	// the second phase of the two-phase write after content rewriting.
	UpdateBody(ctx context.Context, docID, body string) error

	// GetBySlug returns the document with the given natural key.
	GetBySlug(ctx context.Context, slug string) (*Document, error)

	// FindByMeta returns the first document whose metadata key equals value.
	FindByMeta(ctx context.Context, key, value string) (*Document, error)

	// SetMeta writes one metadata entry on a document.
	SetMeta(ctx context.Context, docID, key string, value any) error

	// GetMeta reads one metadata entry; empty string if unset.
	GetMeta(ctx context.Context, docID, key string) (string, error)

	// DeleteMeta removes one metadata entry.
	DeleteMeta(ctx context.Context, docID, key string) error

	// SetTerms replaces the document's taxonomy associations of one kind.
	SetTerms(ctx context.Context, docID string, kind TermKind, termIDs []string) error

	// SetAuthor assigns the document's author identity.
	SetAuthor(ctx context.Context, docID, identityID string) error

	// SetFeaturedAsset attaches an asset as the document's featured asset.
	SetFeaturedAsset(ctx context.Context, docID, assetID string) error

	// FeaturedAsset returns the attached asset id, or "" when none is set.
	FeaturedAsset(ctx context.Context, docID string) (string, error)

	// RemoveFeaturedAsset detaches the featured asset without deleting it.
	RemoveFeaturedAsset(ctx context.Context, docID string) error

	// CountFeaturedAssetRefs counts documents other than excludeDocID that
	// reference assetID as their featured asset.
	CountFeaturedAssetRefs(ctx context.Context, assetID, excludeDocID string) (int, error)
}

// TaxonomyStore resolves categories and tags by slug, creating them on demand.
type TaxonomyStore interface {
	GetOrCreate(ctx context.Context, kind TermKind, name, slug string) (string, error)
}

// IdentityStore resolves and creates author identities.
type IdentityStore interface {
	LookupByEmail(ctx context.Context, email string) (*Identity, error)
	LookupByLogin(ctx context.Context, login string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) (string, error)
	SetMeta(ctx context.Context, identityID, key string, value any) error
}

// AssetStore persists downloaded binaries and answers the reuse lookups
// the resolver depends on.
type AssetStore interface {
	// FindBySourceURL returns the asset downloaded from exactly this URL.
	FindBySourceURL(ctx context.Context, url string) (*Asset, error)

	// FindByFilename returns an asset whose stored title or slug matches
	// the derived filename.
	FindByFilename(ctx context.Context, name string) (*Asset, error)

	// Store persists a downloaded binary and returns the stored asset.
	Store(ctx context.Context, asset *NewAsset) (*Asset, error)

	// Get returns a stored asset by id.
	Get(ctx context.Context, assetID string) (*Asset, error)

	// Delete removes a stored asset and its binary.
	Delete(ctx context.Context, assetID string) error

	// SetMeta writes one metadata entry on an asset.
	SetMeta(ctx context.Context, assetID, key string, value any) error
}

// Stores bundles the collaborator capabilities the engines are wired with.
type Stores struct {
	Documents  DocumentStore
	Taxonomies TaxonomyStore
	Identities IdentityStore
	Assets     AssetStore
}
