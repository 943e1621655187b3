// Package memory implements the store contracts in process. It backs dry
// runs and tests where no content store endpoint is configured.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

type document struct {
	doc      store.Document
	meta     map[string]string
	terms    map[store.TermKind][]string
	featured string
}

type term struct {
	id   string
	kind store.TermKind
	name string
	slug string
}

// Store holds all entities behind one mutex. The typed views returned by
// Stores expose it through the collaborator contracts.
type Store struct {
	mu         sync.RWMutex
	documents  map[string]*document
	slugs      map[string]string
	terms      map[string]*term
	identities map[string]*store.Identity
	idMeta     map[string]map[string]string
	assets     map[string]*store.Asset
	assetMeta  map[string]map[string]string
	blobs      map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		documents:  make(map[string]*document),
		slugs:      make(map[string]string),
		terms:      make(map[string]*term),
		identities: make(map[string]*store.Identity),
		idMeta:     make(map[string]map[string]string),
		assets:     make(map[string]*store.Asset),
		assetMeta:  make(map[string]map[string]string),
		blobs:      make(map[string][]byte),
	}
}

// Stores returns the store wired into every collaborator slot.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Documents:  &documents{s},
		Taxonomies: &taxonomies{s},
		Identities: &identities{s},
		Assets:     &assets{s},
	}
}

type documents struct{ s *Store }

func (d *documents) Create(_ context.Context, doc *store.Document) (string, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, exists := d.s.slugs[doc.Slug]; exists {
		return "", fmt.Errorf("create document %q: %w", doc.Slug, models.ErrAlreadyExists)
	}

	id := uuid.NewString()
	stored := *doc
	stored.ID = id
	stored.ModifiedAt = time.Now()
	d.s.documents[id] = &document{
		doc:   stored,
		meta:  make(map[string]string),
		terms: make(map[store.TermKind][]string),
	}
	d.s.slugs[doc.Slug] = id
	return id, nil
}

func (d *documents) Update(_ context.Context, doc *store.Document) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	existing, ok := d.s.documents[doc.ID]
	if !ok {
		return fmt.Errorf("update document %q: %w", doc.ID, models.ErrNotFound)
	}

	if existing.doc.Slug != doc.Slug {
		delete(d.s.slugs, existing.doc.Slug)
		d.s.slugs[doc.Slug] = doc.ID
	}
	updated := *doc
	updated.ModifiedAt = time.Now()
	existing.doc = updated
	return nil
}

func (d *documents) UpdateBody(_ context.Context, docID, body string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	existing, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("update document body %q: %w", docID, models.ErrNotFound)
	}
	existing.doc.Body = body
	existing.doc.ModifiedAt = time.Now()
	return nil
}

func (d *documents) GetBySlug(_ context.Context, slug string) (*store.Document, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	id, ok := d.s.slugs[slug]
	if !ok {
		return nil, fmt.Errorf("document slug %q: %w", slug, models.ErrNotFound)
	}
	doc := d.s.documents[id].doc
	return &doc, nil
}

func (d *documents) FindByMeta(_ context.Context, key, value string) (*store.Document, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	for _, entry := range d.s.documents {
		if entry.meta[key] == value {
			doc := entry.doc
			return &doc, nil
		}
	}
	return nil, fmt.Errorf("document meta %s=%s: %w", key, value, models.ErrNotFound)
}

func (d *documents) SetMeta(_ context.Context, docID, key string, value any) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("set meta on document %q: %w", docID, models.ErrNotFound)
	}
	entry.meta[key] = fmt.Sprint(value)
	return nil
}

func (d *documents) GetMeta(_ context.Context, docID, key string) (string, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return "", fmt.Errorf("get meta on document %q: %w", docID, models.ErrNotFound)
	}
	return entry.meta[key], nil
}

func (d *documents) DeleteMeta(_ context.Context, docID, key string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("delete meta on document %q: %w", docID, models.ErrNotFound)
	}
	delete(entry.meta, key)
	return nil
}

func (d *documents) SetTerms(_ context.Context, docID string, kind store.TermKind, termIDs []string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("set %s terms on document %q: %w", kind, docID, models.ErrNotFound)
	}
	entry.terms[kind] = append([]string(nil), termIDs...)
	return nil
}

func (d *documents) SetAuthor(_ context.Context, docID, identityID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("set author on document %q: %w", docID, models.ErrNotFound)
	}
	entry.doc.AuthorID = identityID
	return nil
}

func (d *documents) SetFeaturedAsset(_ context.Context, docID, assetID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("set featured asset on document %q: %w", docID, models.ErrNotFound)
	}
	if _, ok := d.s.assets[assetID]; !ok {
		return fmt.Errorf("set featured asset %q: %w", assetID, models.ErrNotFound)
	}
	entry.featured = assetID
	return nil
}

func (d *documents) FeaturedAsset(_ context.Context, docID string) (string, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return "", fmt.Errorf("featured asset of document %q: %w", docID, models.ErrNotFound)
	}
	return entry.featured, nil
}

func (d *documents) RemoveFeaturedAsset(_ context.Context, docID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	entry, ok := d.s.documents[docID]
	if !ok {
		return fmt.Errorf("remove featured asset of document %q: %w", docID, models.ErrNotFound)
	}
	entry.featured = ""
	return nil
}

func (d *documents) CountFeaturedAssetRefs(_ context.Context, assetID, excludeDocID string) (int, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	count := 0
	for id, entry := range d.s.documents {
		if id != excludeDocID && entry.featured == assetID {
			count++
		}
	}
	return count, nil
}

type taxonomies struct{ s *Store }

func (t *taxonomies) GetOrCreate(_ context.Context, kind store.TermKind, name, slug string) (string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, existing := range t.s.terms {
		if existing.kind == kind && existing.slug == slug {
			return existing.id, nil
		}
	}
	id := uuid.NewString()
	t.s.terms[id] = &term{id: id, kind: kind, name: name, slug: slug}
	return id, nil
}

type identities struct{ s *Store }

func (i *identities) LookupByEmail(_ context.Context, email string) (*store.Identity, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()

	for _, ident := range i.s.identities {
		if ident.Email == email {
			out := *ident
			return &out, nil
		}
	}
	return nil, fmt.Errorf("identity email %q: %w", email, models.ErrNotFound)
}

func (i *identities) LookupByLogin(_ context.Context, login string) (*store.Identity, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()

	for _, ident := range i.s.identities {
		if ident.Login == login {
			out := *ident
			return &out, nil
		}
	}
	return nil, fmt.Errorf("identity login %q: %w", login, models.ErrNotFound)
}

func (i *identities) Create(_ context.Context, identity *store.Identity) (string, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	id := uuid.NewString()
	stored := *identity
	stored.ID = id
	i.s.identities[id] = &stored
	i.s.idMeta[id] = make(map[string]string)
	return id, nil
}

func (i *identities) SetMeta(_ context.Context, identityID, key string, value any) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	m, ok := i.s.idMeta[identityID]
	if !ok {
		return fmt.Errorf("set meta on identity %q: %w", identityID, models.ErrNotFound)
	}
	m[key] = fmt.Sprint(value)
	return nil
}

type assets struct{ s *Store }

func (a *assets) FindBySourceURL(_ context.Context, url string) (*store.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	for _, asset := range a.s.assets {
		if asset.SourceURL == url {
			out := *asset
			return &out, nil
		}
	}
	return nil, fmt.Errorf("asset source url %q: %w", url, models.ErrNotFound)
}

func (a *assets) FindByFilename(_ context.Context, name string) (*store.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	base := strings.TrimSuffix(name, extension(name))
	for _, asset := range a.s.assets {
		if asset.Filename == name || asset.Title == base {
			out := *asset
			return &out, nil
		}
	}
	return nil, fmt.Errorf("asset filename %q: %w", name, models.ErrNotFound)
}

func (a *assets) Store(_ context.Context, asset *store.NewAsset) (*store.Asset, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	id := uuid.NewString()
	stored := &store.Asset{
		ID:            id,
		SourceURL:     asset.SourceURL,
		Filename:      asset.Filename,
		Title:         asset.Title,
		LocalURL:      "/assets/" + id + "/" + asset.Filename,
		ContentType:   asset.ContentType,
		PipelineOwned: asset.PipelineOwned,
		DownloadedAt:  time.Now(),
	}
	a.s.assets[id] = stored
	a.s.assetMeta[id] = make(map[string]string)
	a.s.blobs[id] = append([]byte(nil), asset.Data...)
	out := *stored
	return &out, nil
}

func (a *assets) Get(_ context.Context, assetID string) (*store.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	asset, ok := a.s.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", assetID, models.ErrNotFound)
	}
	out := *asset
	return &out, nil
}

func (a *assets) Delete(_ context.Context, assetID string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if _, ok := a.s.assets[assetID]; !ok {
		return fmt.Errorf("delete asset %q: %w", assetID, models.ErrNotFound)
	}
	delete(a.s.assets, assetID)
	delete(a.s.assetMeta, assetID)
	delete(a.s.blobs, assetID)
	return nil
}

func (a *assets) SetMeta(_ context.Context, assetID, key string, value any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	m, ok := a.s.assetMeta[assetID]
	if !ok {
		return fmt.Errorf("set meta on asset %q: %w", assetID, models.ErrNotFound)
	}
	m[key] = fmt.Sprint(value)
	return nil
}

func extension(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
