package sanitize

import "github.com/microcosm-cc/bluemonday"

// Tags whose entire subtree is dangerous and must be dropped, not unwrapped.
var droppedTags = []string{
	"script", "style", "link", "meta", "iframe", "object", "embed", "form", "video", "audio", "svg",
}

// allowedTags is the fixed element allow-list for the paste target. Anything
// else is unwrapped in place: children survive, the wrapper does not.
var allowedTags = []string{
	"p", "h1", "h2", "h3", "h4", "h5", "h6",
	"strong", "b", "em", "i", "u", "s",
	"blockquote", "pre", "code",
	"ul", "ol", "li",
	"a", "img",
	"table", "thead", "tbody", "tr", "th", "td",
	"hr", "br", "span",
}

// allowedAttrs lists the per-tag attribute allow-list. Attributes not listed
// here are stripped, with universal exceptions handled by the policy below.
var allowedAttrs = map[string][]string{
	"a":   {"href", "target", "rel", "title", "name", "download"},
	"img": {"src", "alt", "title", "width", "height", "loading", "crossorigin", "referrerpolicy", "sizes", "srcset", "usemap"},

	"table": {"border", "cellpadding", "cellspacing", "width", "height", "align", "bgcolor", "summary"},
	"td":    {"colspan", "rowspan", "align", "valign", "width", "height", "bgcolor", "scope", "headers"},
	"th":    {"colspan", "rowspan", "align", "valign", "width", "height", "bgcolor", "scope", "abbr"},
	"tr":    {"align", "valign", "bgcolor"},
	"thead": {"align", "valign"},
	"tbody": {"align", "valign"},

	"ol": {"type", "start", "reversed"},
	"ul": {"type"},
	"li": {"type", "value"},

	"blockquote": {"cite"},

	"p":  {"align"},
	"h1": {"align"},
	"h2": {"align"},
	"h3": {"align"},
	"h4": {"align"},
	"h5": {"align"},
	"h6": {"align"},
}

// universalAttrs are kept on every allowed element regardless of tag.
var universalAttrs = []string{
	"style", "role",
	"data-id", "data-type", "data-value",
	"aria-label", "aria-labelledby", "aria-describedby", "aria-hidden",
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(allowedTags...)
	for tag, attrs := range allowedAttrs {
		p.AllowAttrs(attrs...).OnElements(tag)
	}
	p.AllowAttrs(universalAttrs...).Globally()
	p.AllowAttrs("data-src").OnElements("img")

	// bluemonday unwraps disallowed elements keeping their children; these
	// must lose the whole subtree instead
	p.SkipElementsContent(droppedTags...)

	p.AllowURLSchemes("http", "https", "mailto", "data", "mem", "uni-image")
	p.AllowRelativeURLs(true)

	return p
}
