// Package cms implements the store contracts against a REST content API
// with bearer-token authentication.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonesrussell/post-importer/internal/config"
	"github.com/jonesrussell/post-importer/internal/httpclient"
	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/models"
	"github.com/jonesrussell/post-importer/internal/store"
)

// Client talks to the content store API. The typed views returned by
// Stores expose it through the collaborator contracts.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// apiError is one entry of the store's error envelope.
type apiError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type errorEnvelope struct {
	Errors []apiError `json:"errors"`
}

// NewClient creates a content store client from configuration.
func NewClient(cfg config.ContentStoreConfig, log logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("content store URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("content store token is required")
	}

	client := httpclient.NewWithTLS(cfg.Timeout, cfg.SkipTLSVerify)
	if cfg.SkipTLSVerify {
		log.Warn("TLS certificate verification is disabled",
			logger.String("base_url", cfg.URL),
			logger.String("component", "cms_client"),
		)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  client,
		logger:  log,
	}, nil
}

// Stores returns the client wired into every collaborator slot.
func (c *Client) Stores() store.Stores {
	return store.Stores{
		Documents:  &documents{c},
		Taxonomies: &taxonomies{c},
		Identities: &identities{c},
		Assets:     &assets{c},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

// do issues one request and decodes the JSON response into out (out may be
// nil for fire-and-forget writes). 404s surface as models.ErrNotFound so
// callers can branch without string matching.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, models.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}

// decodeError extracts the error envelope for diagnostics; a body that is
// not an envelope falls back to the raw status.
func (c *Client) decodeError(resp *http.Response, method, path string) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var envelope errorEnvelope
	if decodeErr := json.Unmarshal(bodyBytes, &envelope); decodeErr == nil && len(envelope.Errors) > 0 {
		details := make([]string, len(envelope.Errors))
		for i, apiErr := range envelope.Errors {
			details[i] = fmt.Sprintf("%s: %s", apiErr.Title, apiErr.Detail)
		}
		allErrors := strings.Join(details, "; ")

		c.logger.Error("content store API error",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", resp.StatusCode),
			logger.Int("error_count", len(envelope.Errors)),
			logger.Strings("errors", details),
		)
		return fmt.Errorf("content store error (%d): %s", resp.StatusCode, allErrors)
	}

	c.logger.Error("content store API error",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status_code", resp.StatusCode),
		logger.String("response_body", string(bodyBytes)),
	)
	return fmt.Errorf("content store error: %d %s", resp.StatusCode, resp.Status)
}
