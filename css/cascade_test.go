package css

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// buildTree parses doc and returns the first element matching tag and class.
func buildTree(t *testing.T, doc, tag, class string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			if class == "" {
				found = n
				return
			}
			for _, a := range n.Attr {
				if a.Key == "class" && strings.Contains(" "+a.Val+" ", " "+class+" ") {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if found == nil {
		t.Fatalf("no <%s class=%q> in %q", tag, class, doc)
	}
	return found
}

func newEngine(t *testing.T, sheet string) *Engine {
	t.Helper()
	return NewEngine(NewParser(nil).Parse([]byte(sheet)), nil)
}

func TestCascadeSpecificityWins(t *testing.T) {
	e := newEngine(t, `
		p { color: red; }
		.note { color: blue; }
		p.note { color: green; }`)
	n := buildTree(t, `<p class="note">x</p>`, "p", "note")

	if got := e.Resolve(n, "color"); got != "green" {
		t.Errorf("color = %q, want green", got)
	}
}

func TestCascadeSourceOrderBreaksTies(t *testing.T) {
	e := newEngine(t, `
		p { color: red; }
		p { color: blue; }`)
	n := buildTree(t, `<p>x</p>`, "p", "")

	if got := e.Resolve(n, "color"); got != "blue" {
		t.Errorf("color = %q, want blue", got)
	}
}

func TestCascadeImportantBeatsSpecificity(t *testing.T) {
	e := newEngine(t, `
		p { color: red !important; }
		p.note { color: blue; }`)
	n := buildTree(t, `<p class="note">x</p>`, "p", "note")

	if got := e.Resolve(n, "color"); got != "red" {
		t.Errorf("color = %q, want red", got)
	}
}

func TestCustomPropertyInheritance(t *testing.T) {
	e := newEngine(t, `
		.outer { --tone: red; }
		.inner { color: var(--tone); }`)
	n := buildTree(t, `<div class="outer"><span class="inner">x</span></div>`, "span", "inner")

	if got := e.Resolve(n, "color"); got != "red" {
		t.Errorf("color = %q, want red", got)
	}
}

func TestCustomPropertyNearestAncestorWins(t *testing.T) {
	e := newEngine(t, `
		.outer { --tone: red; }
		.mid { --tone: blue; }
		.inner { color: var(--tone); }`)
	n := buildTree(t, `<div class="outer"><div class="mid"><span class="inner">x</span></div></div>`, "span", "inner")

	if got := e.Resolve(n, "color"); got != "blue" {
		t.Errorf("color = %q, want blue", got)
	}
}

func TestVarFallback(t *testing.T) {
	e := newEngine(t, `.inner { color: var(--missing, #2b2b2b); }`)
	n := buildTree(t, `<span class="inner">x</span>`, "span", "inner")

	if got := e.Resolve(n, "color"); got != "#2b2b2b" {
		t.Errorf("color = %q, want #2b2b2b", got)
	}
}

func TestVarChainAndComposite(t *testing.T) {
	e := newEngine(t, `
		.outer { --base: #7c5cff; --accent: var(--base); }
		.inner { border-bottom: 1px solid var(--accent); }`)
	n := buildTree(t, `<div class="outer"><span class="inner">x</span></div>`, "span", "inner")

	if got := e.Resolve(n, "border-bottom"); got != "1px solid #7c5cff" {
		t.Errorf("border-bottom = %q", got)
	}
}

func TestVarCycleDoesNotHang(t *testing.T) {
	e := newEngine(t, `
		.outer { --a: var(--b); --b: var(--a); }
		.inner { color: var(--a, red); }`)
	n := buildTree(t, `<div class="outer"><span class="inner">x</span></div>`, "span", "inner")

	// value of a cyclic chain is unspecified, the call just has to return
	_ = e.Resolve(n, "color")
}

func TestUnmatchedPropertyIsEmpty(t *testing.T) {
	e := newEngine(t, `h1 { color: red; }`)
	n := buildTree(t, `<p>x</p>`, "p", "")

	if got := e.Resolve(n, "color"); got != "" {
		t.Errorf("color = %q, want empty", got)
	}
}

func TestInvalidSelectorIsDropped(t *testing.T) {
	e := newEngine(t, `
		p::nonsense(( { color: red; }
		p { color: blue; }`)
	n := buildTree(t, `<p>x</p>`, "p", "")

	if got := e.Resolve(n, "color"); got != "blue" {
		t.Errorf("color = %q, want blue", got)
	}
}

// compile-time check that the matcher works on detached trees built by hand
func TestMatchesHandBuiltNodes(t *testing.T) {
	e := newEngine(t, `div.card-theme.classic { --card-text: #2b2b2b; }`)

	probe := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div",
		Attr: []html.Attribute{{Key: "class", Val: "card-theme classic"}}}

	if got, ok := e.CustomProperty(probe, "--card-text"); !ok || got != "#2b2b2b" {
		t.Errorf("resolved %q %v, want #2b2b2b true", got, ok)
	}
}
