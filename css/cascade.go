package css

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Engine computes the cascaded value of properties for nodes in an HTML
// tree. Rules are compiled once; per-property winners are picked by
// importance, then specificity, then source order.
type Engine struct {
	log   *zap.Logger
	rules []compiledRule
}

type compiledRule struct {
	sel   cascadia.Sel
	decls []Declaration
	order int
}

// propState tracks the current winner for one property during a cascade.
type propState struct {
	value     string
	spec      cascadia.Specificity
	order     int
	important bool
}

func (s propState) loses(important bool, spec cascadia.Specificity, order int) bool {
	if s.important != important {
		return important
	}
	if s.spec != spec {
		return s.spec.Less(spec)
	}
	return order >= s.order
}

// NewEngine compiles the stylesheet's selectors. Selectors cascadia cannot
// compile are dropped with a debug note; the rest of the sheet still works.
func NewEngine(sheet *Stylesheet, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{log: log.Named("cascade")}
	for i, r := range sheet.Rules {
		sel, err := cascadia.Parse(r.Selector)
		if err != nil {
			e.log.Debug("Dropping selector", zap.String("selector", r.Selector), zap.Error(err))
			continue
		}
		e.rules = append(e.rules, compiledRule{sel: sel, decls: r.Declarations, order: i})
	}
	return e
}

// ComputedStyle returns the winning declared value for every property that
// any rule assigns to n. Values are returned as declared, var() references
// are not expanded; use Resolve for that.
func (e *Engine) ComputedStyle(n *html.Node) map[string]string {
	winners := make(map[string]propState)
	for _, r := range e.rules {
		if !r.sel.Match(n) {
			continue
		}
		spec := r.sel.Specificity()
		for _, d := range r.decls {
			cur, seen := winners[d.Property]
			if !seen || cur.loses(d.Important, spec, r.order) {
				winners[d.Property] = propState{
					value:     d.Value,
					spec:      spec,
					order:     r.order,
					important: d.Important,
				}
			}
		}
	}

	out := make(map[string]string, len(winners))
	for prop, st := range winners {
		out[prop] = st.value
	}
	return out
}

// CustomProperty resolves a custom property for n, honoring inheritance:
// the value declared on the nearest ancestor (including n itself) wins.
func (e *Engine) CustomProperty(n *html.Node, name string) (string, bool) {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if v, ok := e.ComputedStyle(cur)[name]; ok {
			return v, true
		}
	}
	return "", false
}

// Resolve computes the cascaded value of prop on n with every var()
// reference expanded. Returns "" when nothing assigns the property.
func (e *Engine) Resolve(n *html.Node, prop string) string {
	v, ok := e.ComputedStyle(n)[prop]
	if !ok {
		return ""
	}
	return e.ResolveValue(n, v)
}

// ResolveValue expands var(--name[, fallback]) references in value against
// the cascade at n. Unresolvable references collapse to their fallback, or
// to nothing when no fallback is given.
func (e *Engine) ResolveValue(n *html.Node, value string) string {
	const maxDepth = 8 // cycle guard
	return e.resolveValue(n, value, maxDepth)
}

func (e *Engine) resolveValue(n *html.Node, value string, depth int) string {
	if depth <= 0 || !strings.Contains(value, "var(") {
		return value
	}

	var sb strings.Builder
	for {
		i := strings.Index(value, "var(")
		if i < 0 {
			sb.WriteString(value)
			return strings.TrimSpace(sb.String())
		}
		sb.WriteString(value[:i])

		body, rest, ok := cutBalanced(value[i+len("var("):])
		if !ok {
			// unterminated reference, keep as-is
			sb.WriteString(value[i:])
			return strings.TrimSpace(sb.String())
		}

		name, fallback := splitVarArgs(body)
		if v, found := e.CustomProperty(n, name); found {
			sb.WriteString(e.resolveValue(n, v, depth-1))
		} else if fallback != "" {
			sb.WriteString(e.resolveValue(n, fallback, depth-1))
		}
		value = rest
	}
}

// cutBalanced splits s at the parenthesis closing an already-open group.
func cutBalanced(s string) (inner, rest string, ok bool) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// splitVarArgs splits "--name, fallback" at the first top-level comma.
func splitVarArgs(body string) (name, fallback string) {
	depth := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(body[:i]), strings.TrimSpace(body[i+1:])
			}
		}
	}
	return strings.TrimSpace(body), ""
}
