// Package export runs the full publish pipeline: content rewriting,
// sanitization, theme resolution, style inlining, structural normalization
// and clipboard delivery.
package export

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"unipub/clipboard"
	"unipub/content"
	"unipub/inline"
	"unipub/normalize"
	"unipub/sanitize"
	"unipub/theme"
	"unipub/utils/htmlutil"
)

// ImageResolver is the slice of the image store the pipeline needs: editor
// handles for placeholders on the way in, durable data URLs on the way out.
type ImageResolver interface {
	EphemeralURL(id string) (string, bool)
	ResolveToDataURL(src string) (string, bool)
}

// Exporter wires the pipeline stages together. Stages run strictly in
// sequence per call; the exporter itself is safe for sequential reuse.
type Exporter struct {
	log        *zap.Logger
	images     ImageResolver
	themes     *theme.Resolver
	sanitizer  *sanitize.Sanitizer
	normalizer *normalize.Normalizer
	inliner    *inline.Inliner
	clip       *clipboard.Clipboard
}

// New builds an exporter. images may be nil, in which case image sources
// pass through untouched; themes and clip default to the built-in resolver
// and the system clipboard.
func New(images ImageResolver, themes *theme.Resolver, clip *clipboard.Clipboard, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("export")
	if themes == nil {
		themes = theme.NewResolver(log)
	}
	if clip == nil {
		clip = clipboard.New(nil, log)
	}

	var srcResolver normalize.SourceResolver
	if images != nil {
		srcResolver = images
	}

	return &Exporter{
		log:        log,
		images:     images,
		themes:     themes,
		sanitizer:  sanitize.New(log),
		normalizer: normalize.New(srcResolver, log),
		inliner:    inline.New(log),
		clip:       clip,
	}
}

// Fragment transforms body into the publishable fragment for the given
// card theme and page appearance.
func (e *Exporter) Fragment(ctx context.Context, body, cardTheme, appearance string) (string, error) {
	editor := body
	if e.images != nil {
		editor = content.ToEditorForm(ctx, body, e.images)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := e.sanitizer.Sanitize(editor)

	tokens, err := e.themes.Resolve(cardTheme, appearance)
	if err != nil {
		return "", fmt.Errorf("resolving theme: %w", err)
	}

	full := fmt.Sprintf(
		`<!doctype html><html><head><meta charset="utf-8"><style>%s</style></head><body><div class="article">%s</div></body></html>`,
		tokens.ContentCSS(), clean)
	merged := e.inliner.Merge(full)

	inner, ok := extractArticle(merged)
	if !ok {
		// degraded path, keep the sanitized fragment without inlined rules
		e.log.Warn("Inlined document lost the content root, exporting without merged styles")
		inner = clean
	}

	return e.normalizer.Apply(inner, tokens), nil
}

// ForClipboard runs the pipeline and delivers both clipboard payloads.
// Never fails: every error is logged and folded into the boolean result.
func (e *Exporter) ForClipboard(ctx context.Context, body, cardTheme, appearance string) bool {
	frag, err := e.Fragment(ctx, body, cardTheme, appearance)
	if err != nil {
		e.log.Warn("Export failed", zap.Error(err))
		return false
	}

	htmlPayload := `<!doctype html><html><head><meta charset="utf-8"></head><body>` + frag + `</body></html>`
	ok := e.clip.Copy(htmlPayload, PlainText(frag))
	e.log.Info("Export delivered to clipboard",
		zap.Bool("success", ok),
		zap.String("theme", cardTheme),
		zap.Int("html_bytes", len(htmlPayload)))
	return ok
}

// PlainText flattens an HTML fragment to its text content.
func PlainText(fragment string) string {
	container, err := htmlutil.ParseFragment(fragment)
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(htmlutil.Text(container))
}

// extractArticle pulls the inner HTML of the content root out of a full
// document.
func extractArticle(doc string) (string, bool) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", false
	}
	article := htmlutil.FindFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" && htmlutil.HasClass(n, "article")
	})
	if article == nil {
		return "", false
	}
	return htmlutil.RenderChildren(article), true
}
