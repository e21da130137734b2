// Package theme resolves design tokens for a (card theme, page appearance)
// pair. The tokens are CSS custom properties defined through class-based
// cascading, so resolution runs a real cascade against a detached probe
// tree instead of reading a static table.
package theme

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"unipub/css"
)

//go:embed themes.css
var builtinCSS []byte

// Appearances recognized by Resolve.
const (
	AppearanceLight = "light"
	AppearanceDark  = "dark"
)

// Fallback literals used when the stylesheet leaves a token unset.
const (
	fallbackText    = "#2b2b2b"
	fallbackMuted   = "#6b7280"
	fallbackAccent  = "#7c5cff"
	fallbackQuote   = "#8fb3ff"
	fallbackCodeBg  = "#f4f4f6"
	fallbackBg      = "#ffffff"
	fallbackBorder  = "rgba(255,255,255,0.08)"
	fallbackRadius  = "6px"
	fallbackShadow  = "rgba(0,0,0,0.1)"
	fallbackSize    = "16px"
	fallbackLeading = "1.6"
)

// WeChat renders CJK text poorly with the generic stacks, so both heading
// and body text pin the platform fonts explicitly.
const (
	bodyFontStack    = `"Microsoft YaHei", "PingFang SC", "Source Han Sans SC", "Noto Sans CJK SC", "Hiragino Sans GB", sans-serif`
	headingFontStack = bodyFontStack
	monoFontStack    = `ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, 'Liberation Mono', 'Courier New', monospace`
)

// Tokens is the flat map of resolved design values for one export call.
type Tokens struct {
	Text   string
	Muted  string
	Accent string
	Quote  string
	CodeBg string
	Bg     string
	Border string

	Radius string
	Shadow string

	BodyFont    string
	HeadingFont string
	FontSize    string
	LineHeight  string
}

// Resolver evaluates theme tokens against the built-in stylesheet, plus any
// authored overrides appended after it.
type Resolver struct {
	log    *zap.Logger
	sheets [][]byte
}

func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("theme"), sheets: [][]byte{builtinCSS}}
}

// AddStylesheet appends authored CSS after the built-in sheet. Later rules
// win ties, so overrides behave the way a loaded <link> would.
func (r *Resolver) AddStylesheet(data []byte) {
	r.sheets = append(r.sheets, data)
}

// Resolve computes the token map for the given card theme under the given
// page appearance. Tokens absent from the stylesheets fall back to fixed
// literals; the result is never cached, the stylesheets may have changed
// between calls.
func (r *Resolver) Resolve(cardTheme, appearance string) (*Tokens, error) {
	switch appearance {
	case AppearanceLight, AppearanceDark:
	case "":
		appearance = AppearanceLight
	default:
		return nil, fmt.Errorf("unknown page appearance %q", appearance)
	}
	if strings.TrimSpace(cardTheme) == "" {
		cardTheme = "classic"
	}

	parser := css.NewParser(r.log)
	sheet := &css.Stylesheet{}
	for _, data := range r.sheets {
		part := parser.Parse(data, "theme stylesheet")
		sheet.Rules = append(sheet.Rules, part.Rules...)
	}
	engine := css.NewEngine(sheet, r.log)

	probe := buildProbe(cardTheme, appearance)

	read := func(name, fallback string) string {
		v, ok := engine.CustomProperty(probe, name)
		if !ok || strings.TrimSpace(v) == "" {
			return fallback
		}
		return strings.TrimSpace(engine.ResolveValue(probe, v))
	}
	computed := func(prop, fallback string) string {
		v := strings.TrimSpace(engine.Resolve(probe, prop))
		if v == "" {
			return fallback
		}
		return v
	}

	accent := read("--card-accent", fallbackAccent)
	bg := read("--card-bg", fallbackBg)

	t := &Tokens{
		Text:   read("--card-text", fallbackText),
		Muted:  read("--card-muted", fallbackMuted),
		Accent: accent,
		Quote:  orElse(accent, fallbackQuote),
		CodeBg: orElse(bg, fallbackCodeBg),
		Bg:     bg,
		Border: read("--card-border", fallbackBorder),

		Radius: read("--border-radius", fallbackRadius),
		Shadow: read("--shadow", fallbackShadow),

		BodyFont:    bodyFontStack,
		HeadingFont: headingFontStack,
		FontSize:    computed("font-size", fallbackSize),
		LineHeight:  computed("line-height", fallbackLeading),
	}

	r.log.Debug("Resolved theme tokens",
		zap.String("theme", cardTheme),
		zap.String("appearance", appearance),
		zap.String("accent", t.Accent),
		zap.String("bg", t.Bg))
	return t, nil
}

// buildProbe constructs the detached tree the cascade is evaluated on:
// div.theme-<appearance> > div.card-theme.<theme>.
func buildProbe(cardTheme, appearance string) *html.Node {
	wrapper := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "class", Val: "theme-" + appearance}},
	}
	probe := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "class", Val: "card-theme " + cardTheme}},
	}
	wrapper.AppendChild(probe)
	return probe
}

func orElse(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// FontSizePx returns the base font size as a number of pixels.
func (t *Tokens) FontSizePx() float64 {
	return numericPrefix(t.FontSize, 16)
}

// LineHeightNum returns the unitless base line height.
func (t *Tokens) LineHeightNum() float64 {
	return numericPrefix(t.LineHeight, 1.6)
}

func numericPrefix(s string, fallback float64) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] == '.' || s[end] == '-' || s[end] == '+' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return fallback
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// Alpha derives a translucent variant of a hex color by appending a
// two-digit hex alpha value. Shorthand hex is expanded first; non-hex
// colors are returned unchanged since the suffix trick only works on hex.
func Alpha(color, alphaHex string) string {
	color = strings.TrimSpace(color)
	if !strings.HasPrefix(color, "#") {
		return color
	}
	hex := color[1:]
	switch len(hex) {
	case 3:
		var sb strings.Builder
		sb.WriteByte('#')
		for i := 0; i < 3; i++ {
			sb.WriteByte(hex[i])
			sb.WriteByte(hex[i])
		}
		sb.WriteString(alphaHex)
		return sb.String()
	case 6:
		return color + alphaHex
	default:
		return color
	}
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// ContentCSS renders the article stylesheet for these tokens. The output
// targets renderers that strip <style> blocks, so everything here is meant
// to be inlined before delivery.
func (t *Tokens) ContentCSS() string {
	size := t.FontSizePx()
	leading := t.LineHeightNum()

	var sb strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&sb, format+"\n", args...)
	}

	w(`.article{font-family:%s;font-size:%s;line-height:%s;color:%s;background:%s;background-color:%s;max-width:none;margin:0;padding:20px;border-radius:%s;}`,
		t.BodyFont, t.FontSize, t.LineHeight, t.Text, t.Bg, t.Bg, t.Radius)

	w(`.article h1,.article h2,.article h3,.article h4,.article h5,.article h6{font-family:%s;font-weight:700;color:%s;margin:1.2em 0 .6em 0;line-height:%s;}`,
		t.HeadingFont, t.Text, strconv.FormatFloat(leading*0.9, 'f', -1, 64))
	w(`.article h1{font-size:%s;color:%s;border-bottom:2px solid %s;padding-bottom:8px;}`, px(size*1.75), t.Accent, t.Accent)
	w(`.article h2{font-size:%s;color:%s;}`, px(size*1.5), t.Accent)
	w(`.article h3{font-size:%s;}`, px(size*1.25))
	w(`.article h4{font-size:%s;}`, px(size*1.125))
	w(`.article h5{font-size:%s;}`, t.FontSize)
	w(`.article h6{font-size:%s;}`, px(size*0.875))

	w(`.article p{margin:.9em 0;text-align:justify;line-height:%s;}`, t.LineHeight)

	// underline substitute, WeChat strips text-decoration on paste
	w(`.article a{color:%s;text-decoration:none;border-bottom:1px solid %s;}`, t.Accent, Alpha(t.Accent, "33"))

	w(`.article blockquote{border-left:4px solid %s;background:%s;padding:12px 16px;margin:16px 0;border-radius:%s;color:%s;font-style:italic;}`,
		t.Quote, Alpha(t.Quote, "1f"), t.Radius, t.Text)

	w(`.article pre{background:%s;color:%s;padding:12px;border-radius:%s;overflow:auto;margin:16px 0;font-family:%s;font-size:%s;line-height:1.4;}`,
		t.CodeBg, t.Text, t.Radius, monoFontStack, px(size*0.9))
	w(`.article code{background:%s;padding:2px 6px;border-radius:4px;font-family:%s;font-size:%s;color:%s;}`,
		t.CodeBg, monoFontStack, px(size*0.9), t.Text)

	w(`.article ul,.article ol{padding-left:24px;margin:12px 0;line-height:%s;}`, t.LineHeight)
	w(`.article li{margin:4px 0;color:%s;}`, t.Text)

	w(`.article img{max-width:100%%;border-radius:%s;margin:16px 0;display:block;}`, t.Radius)

	w(`.article table{border-collapse:collapse;width:100%%;margin:16px 0;border:1px solid %s;border-radius:%s;overflow:hidden;background-color:%s;}`,
		t.Border, t.Radius, t.Bg)
	w(`.article th,.article td{border:1px solid %s;border-collapse:collapse;padding:8px 12px;text-align:left;color:%s;vertical-align:top;word-wrap:break-word;}`,
		t.Border, t.Text)
	w(`.article th{background-color:%[1]s !important;background:%[1]s !important;font-weight:700;color:%[2]s !important;border:1px solid %[3]s !important;border-bottom:2px solid %[3]s !important;}`,
		Alpha(t.Muted, "33"), t.Accent, t.Border)
	w(`.article tbody tr:nth-child(even) td{background-color:%[1]s !important;background:%[1]s !important;}`,
		Alpha(t.Bg, "99"))

	w(`.article hr{border:none;height:1px;background:%s;margin:24px 0;opacity:0.6;}`, t.Border)

	w(`.article strong,.article b{color:%s;font-weight:700;}`, t.Accent)
	w(`.article em,.article i{color:%s;font-style:italic;}`, t.Accent)

	return sb.String()
}

// MonoFontStack is the code font used by ContentCSS; the normalizer reuses
// it when forcing inline styles on pre and code.
func MonoFontStack() string { return monoFontStack }
