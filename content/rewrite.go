// Package content converts document text between its three image reference
// encodings: durable placeholders (persisted form), ephemeral URLs (editor
// form) and data URLs. Only placeholders ever reach persistent storage.
package content

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"unipub/store"
)

// Image references appear either as markdown image targets or as HTML img
// src attributes.
var (
	reMarkdownPlaceholder = regexp.MustCompile(`!\[([^\]]*)\]\((uni-image://[^)]+)\)`)
	reHTMLPlaceholder     = regexp.MustCompile(`(<img[^>]*?)src=["'](uni-image://[^"']+)["']([^>]*>)`)
	reMarkdownEphemeral   = regexp.MustCompile(`!\[([^\]]*)\]\((mem://images/[^)]+)\)`)
	reHTMLEphemeral       = regexp.MustCompile(`(<img[^>]*?)src=["'](mem://images/[^"']+)["']([^>]*>)`)
	rePlaceholderID       = regexp.MustCompile(`uni-image://([^"'\s)]+)`)
)

// Resolver resolves a stored image id to an ephemeral URL. Lookups may block
// on storage I/O, which is why ToEditorForm fans resolution out.
type Resolver interface {
	EphemeralURL(id string) (string, bool)
}

// ReverseResolver maps an ephemeral URL back to its image id using only the
// in-memory cache.
type ReverseResolver interface {
	IDForURL(url string) (string, bool)
}

// ToEditorForm replaces every resolvable placeholder reference with the
// corresponding ephemeral URL. Unresolvable references are preserved
// verbatim. All non-matching text passes through unchanged and replacements
// land at their original positions regardless of resolution completion order.
func ToEditorForm(ctx context.Context, text string, res Resolver) string {
	if text == "" || res == nil {
		return text
	}
	out := replaceAllAsync(ctx, text, reMarkdownPlaceholder, func(g []string) (string, bool) {
		id, ok := store.IDFromPlaceholder(g[2])
		if !ok {
			return "", false
		}
		url, ok := res.EphemeralURL(id)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("![%s](%s)", g[1], url), true
	})
	return replaceAllAsync(ctx, out, reHTMLPlaceholder, func(g []string) (string, bool) {
		id, ok := store.IDFromPlaceholder(g[2])
		if !ok {
			return "", false
		}
		url, ok := res.EphemeralURL(id)
		if !ok {
			return "", false
		}
		return g[1] + `src="` + url + `"` + g[3], true
	})
}

// ToStorageForm replaces ephemeral URL references with the durable
// placeholder form. This is a best-effort, cache-only rewrite: an ephemeral
// URL with no known id is left untouched.
func ToStorageForm(text string, rev ReverseResolver) string {
	if text == "" || rev == nil {
		return text
	}
	out := reMarkdownEphemeral.ReplaceAllStringFunc(text, func(m string) string {
		g := reMarkdownEphemeral.FindStringSubmatch(m)
		id, ok := rev.IDForURL(g[2])
		if !ok {
			return m
		}
		return fmt.Sprintf("![%s](%s)", g[1], store.Placeholder(id))
	})
	return reHTMLEphemeral.ReplaceAllStringFunc(out, func(m string) string {
		g := reHTMLEphemeral.FindStringSubmatch(m)
		id, ok := rev.IDForURL(g[2])
		if !ok {
			return m
		}
		return g[1] + `src="` + store.Placeholder(id) + `"` + g[3]
	})
}

// ExtractReferencedIDs scans text for placeholder references in both
// markdown and HTML form and returns the set of referenced image ids. The
// result feeds the store's unused-image cleanup.
func ExtractReferencedIDs(text string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, m := range rePlaceholderID.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			ids[m[1]] = struct{}{}
		}
	}
	return ids
}

// replaceAllAsync rewrites every match of re in s. Matches are collected
// with their offsets in a single pass, replacements are computed
// concurrently, and the output is reassembled strictly left to right from
// the recorded offsets. A replacer reporting !ok keeps the match verbatim.
func replaceAllAsync(ctx context.Context, s string, re *regexp.Regexp, replace func(groups []string) (string, bool)) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 || ctx.Err() != nil {
		return s
	}

	repl := make([]string, len(matches))
	var wg sync.WaitGroup
	for i, m := range matches {
		groups := make([]string, 0, len(m)/2)
		for g := 0; g < len(m); g += 2 {
			if m[g] < 0 {
				groups = append(groups, "")
			} else {
				groups = append(groups, s[m[g]:m[g+1]])
			}
		}
		wg.Add(1)
		go func(i int, groups []string) {
			defer wg.Done()
			if out, ok := replace(groups); ok {
				repl[i] = out
			} else {
				repl[i] = groups[0]
			}
		}(i, groups)
	}
	wg.Wait()

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for i, m := range matches {
		b.WriteString(s[last:m[0]])
		b.WriteString(repl[i])
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
