// Package docs manages the editing sessions: an ordered set of markdown
// documents with an active selection, auto-titling, and a JSON cache file
// standing in for the editor's local storage.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/natural"
	"go.uber.org/zap"

	"unipub/content"
)

const (
	cacheVersion  = "1.0"
	untitledBase  = "Untitled"
	titleMaxRunes = 20
	// reading speed assumed by the platform's metrics
	wordsPerMinute = 350
)

// ModeWYSIWYG is the default editing surface for new documents.
const ModeWYSIWYG = "wysiwyg"

var reHTMLTag = regexp.MustCompile(`<[^>]+>`)

// Document is one editing session. Content is markdown text; it may embed
// image placeholder references.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Mode      string    `json:"mode"`
	Modified  bool      `json:"modified"`
	AutoTitle bool      `json:"autoTitle"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats summarizes a document the way the editor's status bar does.
type Stats struct {
	Words        int
	Minutes      int
	LastModified time.Time
}

type cacheEnvelope struct {
	Version   string     `json:"version"`
	SavedAt   time.Time  `json:"savedAt"`
	ActiveID  string     `json:"activeId,omitempty"`
	Documents []Document `json:"documents"`
}

// ImageBridge converts document content between its stored form (stable
// placeholders) and its editor form (session-local URLs). A *store.Store
// satisfies it.
type ImageBridge interface {
	EphemeralURL(id string) (string, bool)
	IDForURL(url string) (string, bool)
}

// Manager owns the document list. All methods are safe for concurrent use.
type Manager struct {
	log    *zap.Logger
	path   string
	images ImageBridge

	mu       sync.Mutex
	docs     []*Document
	activeID string
}

// NewManager creates a manager persisting to path. images may be nil, in
// which case content is cached verbatim.
func NewManager(path string, images ImageBridge, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log.Named("docs"), path: path, images: images}
}

// Load reads the cache file and converts content to editor form. A missing
// cache is not an error: the manager starts with a single empty document.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading document cache: %w", err)
		}
		m.createLocked("", "")
		return m.saveLocked()
	}

	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parsing document cache %s: %w", m.path, err)
	}

	m.docs = m.docs[:0]
	for i := range env.Documents {
		d := env.Documents[i]
		d.Content = ensureMarkdown(d.Content, m.log)
		if m.images != nil {
			d.Content = content.ToEditorForm(ctx, d.Content, m.images)
		}
		m.docs = append(m.docs, &d)
	}
	if len(m.docs) == 0 {
		m.createLocked("", "")
		return m.saveLocked()
	}

	m.activeID = env.ActiveID
	if m.byIDLocked(m.activeID) == nil {
		m.activeID = m.docs[0].ID
	}
	m.log.Debug("Loaded documents", zap.Int("count", len(m.docs)), zap.String("active", m.activeID))
	return nil
}

// Save writes the cache file, converting content back to storage form so
// the cache never depends on session-local URLs.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	env := cacheEnvelope{
		Version:   cacheVersion,
		SavedAt:   time.Now().UTC(),
		ActiveID:  m.activeID,
		Documents: make([]Document, 0, len(m.docs)),
	}
	for _, d := range m.docs {
		out := *d
		if m.images != nil {
			out.Content = content.ToStorageForm(out.Content, m.images)
		}
		env.Documents = append(env.Documents, out)
	}

	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing document cache: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing document cache: %w", err)
	}
	return nil
}

// Create adds a document and makes it active. An empty title gets the next
// free "Untitled N" name and keeps auto-titling on; content that looks
// like HTML is replaced with empty markdown.
func (m *Manager) Create(title, body string) *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.createLocked(title, body)
	if err := m.saveLocked(); err != nil {
		m.log.Warn("Cache save failed", zap.Error(err))
	}
	return doc
}

func (m *Manager) createLocked(title, body string) *Document {
	title = strings.TrimSpace(title)
	auto := title == ""
	if auto {
		title = m.nextUntitledLocked()
	}
	now := time.Now().UTC()
	doc := &Document{
		ID:        "doc_" + uuid.NewString(),
		Title:     title,
		Content:   ensureMarkdown(body, m.log),
		Mode:      ModeWYSIWYG,
		AutoTitle: auto,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.docs = append(m.docs, doc)
	m.activeID = doc.ID
	return doc
}

func (m *Manager) nextUntitledLocked() string {
	used := make(map[string]struct{}, len(m.docs))
	for _, d := range m.docs {
		used[d.Title] = struct{}{}
	}
	title := untitledBase
	for n := 2; ; n++ {
		if _, taken := used[title]; !taken {
			return title
		}
		title = fmt.Sprintf("%s %d", untitledBase, n)
	}
}

// Select makes the document active.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byIDLocked(id) == nil {
		return fmt.Errorf("no document %s", id)
	}
	m.activeID = id
	return m.saveLocked()
}

// Active returns a copy of the active document, or nil when none exists.
func (m *Manager) Active() *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.byIDLocked(m.activeID); d != nil {
		out := *d
		return &out
	}
	return nil
}

// Get returns a copy of the document with the given id.
func (m *Manager) Get(id string) (*Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byIDLocked(id)
	if d == nil {
		return nil, false
	}
	out := *d
	return &out, true
}

// UpdateContent replaces the document body. While auto-titling is on, the
// title follows the first markdown heading of the content.
func (m *Manager) UpdateContent(id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byIDLocked(id)
	if d == nil {
		return fmt.Errorf("no document %s", id)
	}

	body = ensureMarkdown(body, m.log)
	if d.AutoTitle {
		if t := titleFromContent(body); t != "" {
			d.Title = t
		}
	}
	d.Content = body
	d.Modified = strings.TrimSpace(body) != ""
	d.UpdatedAt = time.Now().UTC()
	return m.saveLocked()
}

// SetMode records the editing surface used for the document.
func (m *Manager) SetMode(id, mode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byIDLocked(id)
	if d == nil {
		return fmt.Errorf("no document %s", id)
	}
	d.Mode = mode
	return m.saveLocked()
}

// Rename sets an explicit title and turns auto-titling off.
func (m *Manager) Rename(id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byIDLocked(id)
	if d == nil {
		return fmt.Errorf("no document %s", id)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("empty title")
	}
	d.Title = title
	d.AutoTitle = false
	d.UpdatedAt = time.Now().UTC()
	return m.saveLocked()
}

// Duplicate copies a document, appending " copy" to the title. The copy
// never auto-titles.
func (m *Manager) Duplicate(id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.byIDLocked(id)
	if src == nil {
		return nil, fmt.Errorf("no document %s", id)
	}
	doc := m.createLocked(src.Title+" copy", src.Content)
	doc.Mode = src.Mode
	if err := m.saveLocked(); err != nil {
		m.log.Warn("Cache save failed", zap.Error(err))
	}
	out := *doc
	return &out, nil
}

// Close removes a document. The last remaining document cannot be closed.
// When the active document closes, selection moves to the next one, or the
// previous when it was last.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.docs) <= 1 {
		return fmt.Errorf("cannot close the last document")
	}
	idx := -1
	for i, d := range m.docs {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no document %s", id)
	}

	if m.activeID == id {
		next := idx + 1
		if next >= len(m.docs) {
			next = idx - 1
		}
		m.activeID = m.docs[next].ID
	}
	m.docs = append(m.docs[:idx], m.docs[idx+1:]...)
	return m.saveLocked()
}

// Move reorders the document list.
func (m *Manager) Move(from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from < 0 || from >= len(m.docs) || to < 0 || to >= len(m.docs) {
		return fmt.Errorf("index out of range")
	}
	if from == to {
		return nil
	}
	d := m.docs[from]
	m.docs = append(m.docs[:from], m.docs[from+1:]...)
	m.docs = append(m.docs[:to], append([]*Document{d}, m.docs[to:]...)...)
	return m.saveLocked()
}

// List returns the documents in tab order.
func (m *Manager) List() []*Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Document, 0, len(m.docs))
	for _, d := range m.docs {
		c := *d
		out = append(out, &c)
	}
	return out
}

// ListByTitle returns the documents sorted naturally by title, so
// "Untitled 10" lists after "Untitled 2".
func (m *Manager) ListByTitle() []*Document {
	out := m.List()
	sort.SliceStable(out, func(i, j int) bool {
		return natural.Less(out[i].Title, out[j].Title)
	})
	return out
}

// ActiveID returns the id of the active document.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Stats computes the document's reading metrics: CJK characters count as
// one word each, runs of other characters as one word per five.
func (m *Manager) Stats(id string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.byIDLocked(id)
	if d == nil {
		return Stats{}, fmt.Errorf("no document %s", id)
	}
	words := countWords(d.Content)
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return Stats{Words: words, Minutes: minutes, LastModified: d.UpdatedAt}, nil
}

// LiveImageIDs returns every image placeholder id referenced by any
// document, in storage form. The store's garbage collector treats these as
// roots.
func (m *Manager) LiveImageIDs() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := make(map[string]struct{})
	for _, d := range m.docs {
		text := d.Content
		if m.images != nil {
			text = content.ToStorageForm(text, m.images)
		}
		for id := range content.ExtractReferencedIDs(text) {
			live[id] = struct{}{}
		}
	}
	return live
}

func (m *Manager) byIDLocked(id string) *Document {
	for _, d := range m.docs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// ensureMarkdown keeps document bodies markdown. Content that looks like
// HTML is replaced with empty text rather than converted.
func ensureMarkdown(body string, log *zap.Logger) string {
	if body == "" {
		return ""
	}
	if reHTMLTag.MatchString(body) {
		if log != nil {
			log.Warn("Dropping HTML-looking document content")
		}
		return ""
	}
	return body
}

// titleFromContent extracts the first markdown heading, truncated to 20
// runes with an ellipsis.
func titleFromContent(body string) string {
	for line := range strings.SplitSeq(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		title := strings.TrimSpace(strings.TrimLeft(line, "#"))
		if title == "" {
			continue
		}
		runes := []rune(title)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "…"
		}
		return title
	}
	return ""
}

// countWords implements the platform's metric: CJK characters individually,
// everything else in groups of five.
func countWords(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if r >= 0x4e00 && r <= 0x9fa5 {
			cjk++
		} else {
			other++
		}
	}
	words := cjk
	if other > 0 {
		words += (other + 4) / 5
	}
	return words
}
