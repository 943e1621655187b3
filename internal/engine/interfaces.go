// Package engine orchestrates per-record import and reimport against the
// document store, delegating field mapping, asset resolution, and content
// rewriting to their own components.
package engine

import (
	"context"
)

// AssetResolver attaches a remote image as a document's featured asset.
// Satisfied by assets.Resolver.
type AssetResolver interface {
	Resolve(ctx context.Context, rawURL, label, ownerDocID string, forceReplace bool) (string, error)
}

// ContentRewriter rewrites body HTML so remote images reference stored
// assets. Satisfied by content.Rewriter.
type ContentRewriter interface {
	Rewrite(ctx context.Context, html, ownerDocID, label string) string
}

// FailureSink persists per-record failures for a session. Satisfied by
// session.Store.
type FailureSink interface {
	RecordFailure(ctx context.Context, sessionID string, payload []byte, message string) error
}
