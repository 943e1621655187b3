// Package content rewrites HTML article bodies so embedded remote images
// point at locally stored assets.
package content

import (
	"context"
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/post-importer/internal/logger"
	"github.com/jonesrussell/post-importer/internal/store"
)

// AssetObtainer resolves a remote URL to a stored asset without attaching
// it to a document. Satisfied by assets.Resolver.
type AssetObtainer interface {
	Obtain(ctx context.Context, rawURL, label string) (*store.Asset, error)
}

// Rewriter scans body HTML for remote images, routes each through the
// asset resolver, and substitutes the markup in place. Rewriting is
// idempotent: local and data-encoded sources are skipped, so a second pass
// over already-rewritten content changes nothing.
type Rewriter struct {
	resolver    AssetObtainer
	localPrefix string
	logger      logger.Logger
}

// NewRewriter wires a rewriter. localPrefix marks URLs already served from
// local storage; relative URLs are always treated as local.
func NewRewriter(resolver AssetObtainer, localPrefix string, log logger.Logger) *Rewriter {
	return &Rewriter{resolver: resolver, localPrefix: localPrefix, logger: log}
}

type imageRef struct {
	src    string
	alt    string
	class  string
	width  string
	height string
}

// Rewrite returns html with every resolvable remote image reference
// replaced by local markup. The original content comes back unchanged when
// nothing remote is found or every resolution fails. Both inline images
// and images wrapped in figure blocks are handled; the substitution only
// touches the img tag, so wrappers survive.
func (w *Rewriter) Rewrite(ctx context.Context, html, ownerDocID, label string) string {
	if html == "" || !strings.Contains(html, "<img") {
		return html
	}

	refs := w.scan(html, ownerDocID)
	if len(refs) == 0 {
		return html
	}

	out := html
	for _, ref := range refs {
		asset, err := w.resolver.Obtain(ctx, ref.src, label)
		if err != nil {
			w.logger.Warn("content image resolution failed",
				logger.String("owner_doc_id", ownerDocID),
				logger.String("url", ref.src),
				logger.Error(err))
			continue
		}
		out = substituteImage(out, ref, asset)
	}
	return out
}

// scan extracts one reference per distinct remote image URL, in document
// order, keeping the attributes of the first occurrence.
func (w *Rewriter) scan(html, ownerDocID string) []imageRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		w.logger.Warn("content parse failed, skipping image rewrite",
			logger.String("owner_doc_id", ownerDocID),
			logger.Error(err))
		return nil
	}

	seen := make(map[string]struct{})
	var refs []imageRef
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || !w.isRemote(src) {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}

		ref := imageRef{src: src}
		ref.alt, _ = sel.Attr("alt")
		ref.class, _ = sel.Attr("class")
		ref.width, _ = sel.Attr("width")
		ref.height, _ = sel.Attr("height")
		refs = append(refs, ref)
	})
	return refs
}

// isRemote reports whether src points outside local storage. Relative
// URLs, data-encoded images, and the configured local prefix short-circuit
// the rewrite, which also makes repeated passes no-ops.
func (w *Rewriter) isRemote(src string) bool {
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	if w.localPrefix != "" && strings.HasPrefix(src, w.localPrefix) {
		return false
	}
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// substituteImage replaces every img tag sourcing ref.src with markup
// pointing at the stored asset, preserving alt, class, and dimensions and
// tagging the element with an asset class.
func substituteImage(html string, ref imageRef, asset *store.Asset) string {
	pattern, err := regexp.Compile(`<img\b[^>]*src=["']?` + regexp.QuoteMeta(ref.src) + `["']?[^>]*/?>`)
	if err != nil {
		return html
	}
	return pattern.ReplaceAllString(html, buildImageTag(ref, asset))
}

func buildImageTag(ref imageRef, asset *store.Asset) string {
	class := "asset-" + asset.ID
	if ref.class != "" {
		class = ref.class + " " + class
	}

	// Attribute values need HTML escaping, not Go string quoting, or an
	// alt text with quotes or non-ASCII comes out mangled.
	var b strings.Builder
	fmt.Fprintf(&b, `<img src="%s" alt="%s" class="%s"`,
		stdhtml.EscapeString(asset.LocalURL),
		stdhtml.EscapeString(ref.alt),
		stdhtml.EscapeString(class))
	if ref.width != "" {
		fmt.Fprintf(&b, ` width="%s"`, stdhtml.EscapeString(ref.width))
	}
	if ref.height != "" {
		fmt.Fprintf(&b, ` height="%s"`, stdhtml.EscapeString(ref.height))
	}
	b.WriteString(" />")
	return b.String()
}
