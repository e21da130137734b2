// Package normalize rewrites an HTML fragment for paste fidelity on the
// target platform: list nesting fixes, forced inline styles driven by
// resolved theme tokens, table wrapping, and durable image sources.
package normalize

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"unipub/theme"
	"unipub/utils/htmlutil"
)

// SourceResolver turns placeholder or session-local image URLs into
// durable data URLs.
type SourceResolver interface {
	ResolveToDataURL(src string) (string, bool)
}

// Normalizer applies the structural rewrites. A nil resolver leaves image
// sources untouched.
type Normalizer struct {
	log    *zap.Logger
	images SourceResolver
}

func New(images SourceResolver, log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{log: log.Named("normalize"), images: images}
}

// headingSizes is the fixed ladder of font sizes relative to base.
var headingSizes = map[string]string{
	"h1": "175%", "h2": "150%", "h3": "125%",
	"h4": "112.5%", "h5": "100%", "h6": "87.5%",
}

// Apply runs every rewrite in order and returns the new fragment. A failure
// on one element skips that element only; unparseable input is returned
// unchanged.
func (n *Normalizer) Apply(fragment string, tokens *theme.Tokens) string {
	if tokens == nil || strings.TrimSpace(fragment) == "" {
		return fragment
	}

	container, err := htmlutil.ParseFragment(fragment)
	if err != nil {
		n.log.Warn("Normalization skipped, fragment does not parse", zap.Error(err))
		return fragment
	}

	n.relocateNestedLists(container)
	n.styleHeadings(container, tokens)
	n.styleAnchors(container, tokens)
	n.styleImages(container, tokens)
	n.styleCode(container, tokens)
	n.wrapTables(container, tokens)
	n.resolveImageSources(container)
	n.insertCompatParagraphs(container)

	return htmlutil.RenderChildren(container)
}

// relocateNestedLists moves lists that are direct children of a list item
// to immediately after that item, keeping their relative order.
func (n *Normalizer) relocateNestedLists(root *html.Node) {
	for _, li := range htmlutil.ElementsByTag(root, "li") {
		anchor := li
		for _, child := range htmlutil.Collect(li, func(c *html.Node) bool {
			return c.Parent == li && c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol")
		}) {
			li.RemoveChild(child)
			htmlutil.InsertAfter(child, anchor)
			anchor = child
		}
	}
}

func (n *Normalizer) styleHeadings(root *html.Node, t *theme.Tokens) {
	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		for _, h := range htmlutil.ElementsByTag(root, tag) {
			css := fmt.Sprintf("color:%s;font-weight:700;margin:1.2em 0 .6em 0;font-size:%s;", t.Text, headingSizes[tag])
			if tag == "h1" || tag == "h2" {
				css += fmt.Sprintf("color:%s;", t.Accent)
			}
			htmlutil.PrependStyle(h, css)
		}
	}
}

// styleAnchors forces the link look and the safety attributes. The bottom
// border stands in for text-decoration, which some paste targets strip.
func (n *Normalizer) styleAnchors(root *html.Node, t *theme.Tokens) {
	for _, a := range htmlutil.ElementsByTag(root, "a") {
		htmlutil.PrependStyle(a, fmt.Sprintf("color:%s;text-decoration:none;border-bottom:1px solid %s;",
			t.Accent, theme.Alpha(t.Accent, "33")))
		htmlutil.SetAttr(a, "target", "_blank")
		href := strings.TrimSpace(htmlutil.Attr(a, "href"))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			htmlutil.DelAttr(a, "href")
		}
	}
}

// styleImages forces responsive sizing and converts legacy width/height
// attributes into explicit pixel styles.
func (n *Normalizer) styleImages(root *html.Node, t *theme.Tokens) {
	for _, img := range htmlutil.ElementsByTag(root, "img") {
		htmlutil.PrependStyle(img, fmt.Sprintf("max-width:100%%;height:auto;display:block;border-radius:%s;margin:16px 0;", t.Radius))

		if w := htmlutil.Attr(img, "width"); w != "" {
			htmlutil.DelAttr(img, "width")
			appendStyle(img, "width:"+withPxUnit(w)+";")
		}
		if h := htmlutil.Attr(img, "height"); h != "" {
			htmlutil.DelAttr(img, "height")
			appendStyle(img, "height:"+withPxUnit(h)+";")
		}
	}
}

func (n *Normalizer) styleCode(root *html.Node, t *theme.Tokens) {
	for _, pre := range htmlutil.ElementsByTag(root, "pre") {
		htmlutil.PrependStyle(pre, fmt.Sprintf("background:%s;color:%s;padding:12px;border-radius:%s;overflow:auto;margin:16px 0;font-family:%s;",
			t.CodeBg, t.Text, t.Radius, theme.MonoFontStack()))
	}
	for _, code := range htmlutil.ElementsByTag(root, "code") {
		htmlutil.PrependStyle(code, fmt.Sprintf("background:%s;color:%s;padding:2px 6px;border-radius:4px;font-family:%s;",
			t.CodeBg, t.Text, theme.MonoFontStack()))
	}
}

// wrapTables gives every table a rounded wrapper div and fully explicit
// cell styling. The platform flattens border-radius on tables themselves,
// so the wrapper does the clipping and only the outer cells of the first
// and last rows carry matching radii.
func (n *Normalizer) wrapTables(root *html.Node, t *theme.Tokens) {
	for _, table := range htmlutil.ElementsByTag(root, "table") {
		if table.Parent == nil {
			continue
		}

		wrapper := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
		htmlutil.SetAttr(wrapper, "style",
			fmt.Sprintf("border:1px solid %s;border-radius:%s;overflow:hidden;background-color:%s;margin:16px 0;",
				t.Border, t.Radius, t.Bg))
		parent := table.Parent
		parent.InsertBefore(wrapper, table)
		parent.RemoveChild(table)
		wrapper.AppendChild(table)

		htmlutil.SetAttr(table, "cellpadding", "0")
		htmlutil.SetAttr(table, "cellspacing", "0")
		htmlutil.SetAttr(table, "bgcolor", t.Bg)
		appendStyle(table, fmt.Sprintf("border-collapse:collapse;width:100%%;background-color:%s;border:none;margin:0;", t.Bg))

		n.styleTableCells(table, t)
	}
}

func (n *Normalizer) styleTableCells(table *html.Node, t *theme.Tokens) {
	radius := t.Radius
	thBg := theme.Alpha(t.Muted, "33")
	evenBg := theme.Alpha(t.Bg, "99")

	// header cells, top corners on the outer ones
	ths := htmlutil.ElementsByTag(table, "th")
	for i, th := range ths {
		css := fmt.Sprintf("background-color:%[1]s !important;background:%[1]s !important;font-weight:700;color:%[2]s !important;border:1px solid %[3]s !important;padding:8px 12px;text-align:left;",
			thBg, t.Accent, t.Border)
		if i == 0 {
			css += "border-top-left-radius:" + radius + ";"
		}
		if i == len(ths)-1 {
			css += "border-top-right-radius:" + radius + ";"
		}
		htmlutil.SetAttr(th, "style", css)
		htmlutil.SetAttr(th, "bgcolor", thBg)
	}

	rows := htmlutil.ElementsByTag(table, "tr")
	lastRow := (*html.Node)(nil)
	if len(rows) > 0 {
		lastRow = rows[len(rows)-1]
	}

	for _, td := range htmlutil.ElementsByTag(table, "td") {
		row := td.Parent
		if row == nil {
			continue
		}
		bg := t.Bg
		if rowIndexInSection(row)%2 == 1 {
			bg = evenBg
		}

		css := fmt.Sprintf("background-color:%[1]s !important;background:%[1]s !important;border:1px solid %[2]s !important;padding:8px 12px;color:%[3]s;text-align:left;vertical-align:top;",
			bg, t.Border, t.Text)
		if row == lastRow {
			first, last := outerCells(row)
			if td == first {
				css += "border-bottom-left-radius:" + radius + ";"
			}
			if td == last {
				css += "border-bottom-right-radius:" + radius + ";"
			}
		}
		htmlutil.SetAttr(td, "style", css)
		htmlutil.SetAttr(td, "bgcolor", bg)
	}

	// whole-row backgrounds as a fallback, header row excluded
	for i, tr := range rows {
		if i == 0 {
			continue
		}
		bg := t.Bg
		if rowIndexInSection(tr)%2 == 1 {
			bg = evenBg
		}
		htmlutil.SetAttr(tr, "bgcolor", bg)
		appendStyle(tr, "background-color:"+bg+";")
	}
}

// rowIndexInSection counts tr siblings before row within its section.
func rowIndexInSection(row *html.Node) int {
	idx := 0
	for s := row.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == "tr" {
			idx++
		}
	}
	return idx
}

// outerCells returns the first and last cell elements of a row.
func outerCells(row *html.Node) (first, last *html.Node) {
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			if first == nil {
				first = c
			}
			last = c
		}
	}
	return first, last
}

// resolveImageSources swaps session-local image URLs for durable data URLs
// so the fragment stays valid after the session ends.
func (n *Normalizer) resolveImageSources(root *html.Node) {
	if n.images == nil {
		return
	}
	for _, img := range htmlutil.ElementsByTag(root, "img") {
		src := htmlutil.Attr(img, "src")
		if src == "" {
			continue
		}
		if durable, ok := n.images.ResolveToDataURL(src); ok && durable != src {
			htmlutil.SetAttr(img, "src", durable)
		}
	}
}

// insertCompatParagraphs adds invisible paragraphs around the content, a
// shim some paste targets need to preserve surrounding whitespace.
func (n *Normalizer) insertCompatParagraphs(container *html.Node) {
	before := emptyParagraph()
	if container.FirstChild != nil {
		container.InsertBefore(before, container.FirstChild)
	} else {
		container.AppendChild(before)
	}
	container.AppendChild(emptyParagraph())
}

func emptyParagraph() *html.Node {
	p := &html.Node{Type: html.ElementNode, DataAtom: atom.P, Data: "p"}
	htmlutil.SetAttr(p, "style", "font-size:0;line-height:0;margin:0")
	p.AppendChild(&html.Node{Type: html.TextNode, Data: " "})
	return p
}

// withPxUnit appends px to bare numeric dimension values.
func withPxUnit(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	for _, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			return v
		}
	}
	return v + "px"
}

func appendStyle(n *html.Node, css string) {
	existing := strings.TrimSpace(htmlutil.Attr(n, "style"))
	if existing != "" && !strings.HasSuffix(existing, ";") {
		existing += ";"
	}
	htmlutil.SetAttr(n, "style", existing+css)
}
