package cms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/store"
)

type taxonomies struct{ c *Client }

// GetOrCreate resolves a term by slug within its kind; the store creates
// it when absent and returns the existing id otherwise.
func (t *taxonomies) GetOrCreate(ctx context.Context, kind store.TermKind, name, slug string) (string, error) {
	var resp idResponse
	path := "/api/taxonomies/" + url.PathEscape(string(kind))
	payload := map[string]string{"name": name, "slug": slug}
	if err := t.c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", fmt.Errorf("get or create %s %q: %w", kind, slug, err)
	}
	return resp.ID, nil
}

type identityPayload struct {
	ID          string `json:"id,omitempty"`
	Login       string `json:"login"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Facebook    string `json:"facebook,omitempty"`
	LinkedIn    string `json:"linkedin,omitempty"`
	Instagram   string `json:"instagram,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
}

func fromIdentityPayload(p identityPayload) *store.Identity {
	return &store.Identity{
		ID:          p.ID,
		Login:       p.Login,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Facebook:    p.Facebook,
		LinkedIn:    p.LinkedIn,
		Instagram:   p.Instagram,
		Twitter:     p.Twitter,
	}
}

type identities struct{ c *Client }

func (i *identities) LookupByEmail(ctx context.Context, email string) (*store.Identity, error) {
	var payload identityPayload
	path := "/api/identities/email/" + url.PathEscape(email)
	if err := i.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("lookup identity by email: %w", err)
	}
	return fromIdentityPayload(payload), nil
}

func (i *identities) LookupByLogin(ctx context.Context, login string) (*store.Identity, error) {
	var payload identityPayload
	path := "/api/identities/login/" + url.PathEscape(login)
	if err := i.c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("lookup identity by login: %w", err)
	}
	return fromIdentityPayload(payload), nil
}

func (i *identities) Create(ctx context.Context, identity *store.Identity) (string, error) {
	var resp idResponse
	payload := identityPayload{
		Login:       identity.Login,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Bio:         identity.Bio,
		Facebook:    identity.Facebook,
		LinkedIn:    identity.LinkedIn,
		Instagram:   identity.Instagram,
		Twitter:     identity.Twitter,
	}
	if err := i.c.do(ctx, http.MethodPost, "/api/identities", payload, &resp); err != nil {
		return "", fmt.Errorf("create identity %q: %w", identity.Login, err)
	}

	i.c.logger.Info("identity created",
		logger.String("identity_id", resp.ID),
		logger.String("login", identity.Login))
	return resp.ID, nil
}

func (i *identities) SetMeta(ctx context.Context, identityID, key string, value any) error {
	path := "/api/identities/" + url.PathEscape(identityID) + "/meta/" + url.PathEscape(key)
	payload := map[string]string{"value": fmt.Sprint(value)}
	if err := i.c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("set identity meta %q: %w", key, err)
	}
	return nil
}
