// Package sanitize filters editor-produced HTML down to the fixed element
// and attribute allow-list the publishing target accepts. Output depends
// only on the input and the allow-lists, and sanitizing twice is the same
// as sanitizing once.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"unipub/utils/htmlutil"
)

type Sanitizer struct {
	log    *zap.Logger
	policy *bluemonday.Policy
}

func New(log *zap.Logger) *Sanitizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sanitizer{log: log.Named("sanitize"), policy: newPolicy()}
}

// Sanitize filters the fragment through the allow-list policy and applies
// the structural cleanups the policy alone cannot express. Empty or
// unparseable input is returned unchanged rather than failing.
func (s *Sanitizer) Sanitize(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return fragment
	}

	cleaned := s.policy.Sanitize(fragment)

	root, err := htmlutil.ParseFragment(cleaned)
	if err != nil {
		s.log.Warn("Sanitized fragment did not parse, returning policy output", zap.Error(err))
		return cleaned
	}
	enforceAnchorSafety(root)
	collapseBareSpans(root)
	return htmlutil.RenderChildren(root)
}

// enforceAnchorSafety forces target=_blank on every anchor and removes hrefs
// that are empty or would execute script when followed.
func enforceAnchorSafety(root *html.Node) {
	for _, a := range htmlutil.ElementsByTag(root, "a") {
		htmlutil.SetAttr(a, "target", "_blank")
		href := strings.TrimSpace(htmlutil.Attr(a, "href"))
		if href == "" || isScriptScheme(href) {
			htmlutil.DelAttr(a, "href")
		}
	}
}

func isScriptScheme(href string) bool {
	scheme, _, ok := strings.Cut(href, ":")
	if !ok {
		return false
	}
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	return scheme == "javascript" || scheme == "vbscript"
}

// collapseBareSpans unwraps span elements left with no attributes after
// stripping - they carry no information and upset some paste targets.
func collapseBareSpans(root *html.Node) {
	for _, span := range htmlutil.ElementsByTag(root, "span") {
		if len(span.Attr) == 0 {
			htmlutil.Unwrap(span)
		}
	}
}
