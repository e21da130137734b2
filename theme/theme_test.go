package theme

import (
	"strings"
	"testing"
)

func TestResolveBuiltinThemes(t *testing.T) {
	r := NewResolver(nil)

	for _, name := range []string{"classic", "ocean", "sunset", "forest", "mono"} {
		for _, appearance := range []string{AppearanceLight, AppearanceDark} {
			tok, err := r.Resolve(name, appearance)
			if err != nil {
				t.Fatalf("%s/%s: %v", name, appearance, err)
			}
			for field, v := range map[string]string{
				"Text": tok.Text, "Muted": tok.Muted, "Accent": tok.Accent,
				"Bg": tok.Bg, "Border": tok.Border, "Radius": tok.Radius,
				"FontSize": tok.FontSize, "LineHeight": tok.LineHeight,
			} {
				if strings.TrimSpace(v) == "" {
					t.Errorf("%s/%s: empty token %s", name, appearance, field)
				}
			}
		}
	}
}

func TestResolveAppearancesDiffer(t *testing.T) {
	r := NewResolver(nil)

	light, err := r.Resolve("classic", AppearanceLight)
	if err != nil {
		t.Fatal(err)
	}
	dark, err := r.Resolve("classic", AppearanceDark)
	if err != nil {
		t.Fatal(err)
	}
	if light.Bg == dark.Bg {
		t.Errorf("light and dark backgrounds identical: %s", light.Bg)
	}
	if light.Text == dark.Text {
		t.Errorf("light and dark text colors identical: %s", light.Text)
	}
}

func TestResolveUnknownThemeFallsBack(t *testing.T) {
	r := NewResolver(nil)

	tok, err := r.Resolve("no-such-theme", AppearanceLight)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Text != fallbackText || tok.Accent != fallbackAccent || tok.Bg != fallbackBg {
		t.Errorf("unknown theme did not use fallbacks: %+v", tok)
	}
}

func TestResolveRejectsUnknownAppearance(t *testing.T) {
	r := NewResolver(nil)
	if _, err := r.Resolve("classic", "sepia"); err == nil {
		t.Error("expected error for unknown appearance")
	}
}

func TestResolveDefaultsEmptyInputs(t *testing.T) {
	r := NewResolver(nil)
	tok, err := r.Resolve("", "")
	if err != nil {
		t.Fatal(err)
	}
	want, err := r.Resolve("classic", AppearanceLight)
	if err != nil {
		t.Fatal(err)
	}
	if *tok != *want {
		t.Errorf("defaults differ from classic/light:\n%+v\n%+v", tok, want)
	}
}

func TestAddStylesheetOverrides(t *testing.T) {
	r := NewResolver(nil)
	r.AddStylesheet([]byte(`.theme-light .card-theme.classic { --card-accent: #123456; }`))

	tok, err := r.Resolve("classic", AppearanceLight)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Accent != "#123456" {
		t.Errorf("accent = %s, want override #123456", tok.Accent)
	}
}

func TestAlpha(t *testing.T) {
	tests := []struct{ color, alpha, want string }{
		{"#7c5cff", "33", "#7c5cff33"},
		{"#fff", "99", "#ffffff99"},
		{"rgba(255,255,255,0.08)", "33", "rgba(255,255,255,0.08)"},
		{"#12345", "33", "#12345"},
		{" #2b2b2b ", "1f", "#2b2b2b1f"},
	}
	for _, tc := range tests {
		if got := Alpha(tc.color, tc.alpha); got != tc.want {
			t.Errorf("Alpha(%q, %q) = %q, want %q", tc.color, tc.alpha, got, tc.want)
		}
	}
}

func TestContentCSS(t *testing.T) {
	r := NewResolver(nil)
	tok, err := r.Resolve("classic", AppearanceLight)
	if err != nil {
		t.Fatal(err)
	}
	css := tok.ContentCSS()

	for _, want := range []string{
		".article{",
		".article h1{font-size:28px;color:" + tok.Accent,
		".article h2{font-size:24px",
		".article h6{font-size:14px",
		"border-bottom:1px solid " + Alpha(tok.Accent, "33"),
		".article th{background-color:" + Alpha(tok.Muted, "33") + " !important",
		"tr:nth-child(even) td{background-color:" + Alpha(tok.Bg, "99"),
		"max-width:100%",
	} {
		if !strings.Contains(css, want) {
			t.Errorf("stylesheet missing %q", want)
		}
	}
}

func TestNumericPrefix(t *testing.T) {
	tests := []struct {
		in       string
		fallback float64
		want     float64
	}{
		{"16px", 16, 16},
		{"1.6", 1.6, 1.6},
		{"18.5px", 16, 18.5},
		{"normal", 1.6, 1.6},
		{"", 16, 16},
	}
	for _, tc := range tests {
		if got := numericPrefix(tc.in, tc.fallback); got != tc.want {
			t.Errorf("numericPrefix(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
