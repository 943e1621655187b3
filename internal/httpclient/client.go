// Package httpclient provides the shared HTTP client factory for the importer.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 100

	// DefaultMaxIdleConnsPerHost is the default maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10

	// DefaultIdleConnTimeout is the default idle connection timeout
	DefaultIdleConnTimeout = 90 * time.Second

	// DefaultResponseHeaderTimeout is the default response header timeout
	DefaultResponseHeaderTimeout = 30 * time.Second

	// DefaultTLSHandshakeTimeout is the default TLS handshake timeout
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// New creates an HTTP client with standardized transport configuration.
// A zero timeout selects DefaultTimeout.
func New(timeout time.Duration) *http.Client {
	return newClient(timeout, nil)
}

// NewWithTLS creates an HTTP client, optionally disabling TLS certificate
// verification. Callers that pass skipVerify=true should log a warning.
func NewWithTLS(timeout time.Duration, skipVerify bool) *http.Client {
	var tlsConfig *tls.Config
	if skipVerify {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // G402: opt-in for self-signed targets
		}
	}
	return newClient(timeout, tlsConfig)
}

func newClient(timeout time.Duration, tlsConfig *tls.Config) *http.Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
	}
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
