package docs

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"unipub/archive"
	"unipub/config"
	"unipub/content"
	"unipub/misc"
)

// bundleEntry is the archive member holding the document set.
const bundleEntry = "documents.json"

type bundleEnvelope struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Documents  []Document `json:"documents"`
}

// BundleName returns the dated archive file name for an export.
func BundleName(now time.Time) string {
	name := slug.Make(misc.GetAppName()+" documents") + "-" + now.Format("2006-01-02") + ".zip"
	return config.CleanFileName(name)
}

// ExportBundle writes every document to a zip archive in dir and returns
// the archive path. Content is stored in storage form, so the bundle stays
// valid across sessions and machines.
func (m *Manager) ExportBundle(dir string) (string, error) {
	m.mu.Lock()
	env := bundleEnvelope{
		Version:    cacheVersion,
		ExportedAt: time.Now().UTC(),
		Documents:  make([]Document, 0, len(m.docs)),
	}
	for _, d := range m.docs {
		out := *d
		if m.images != nil {
			out.Content = content.ToStorageForm(out.Content, m.images)
		}
		env.Documents = append(env.Documents, out)
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding bundle: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, BundleName(env.ExportedAt))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating bundle %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(bundleEntry)
	if err != nil {
		return "", fmt.Errorf("creating bundle entry: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("writing bundle entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finishing bundle: %w", err)
	}

	m.log.Info("Exported documents", zap.String("bundle", path), zap.Int("count", len(env.Documents)))
	return path, nil
}

// ImportBundle appends the documents from an exported archive. Imported
// documents get fresh ids and timestamps and never auto-title, so imports
// cannot collide with or rename existing work. Returns the number of
// documents added.
func (m *Manager) ImportBundle(ctx context.Context, path string) (int, error) {
	data, err := archive.ReadEntry(path, bundleEntry)
	if err != nil {
		return 0, fmt.Errorf("reading bundle %s: %w", path, err)
	}

	var env bundleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("parsing bundle %s: %w", path, err)
	}
	if len(env.Documents) == 0 {
		return 0, fmt.Errorf("bundle %s contains no documents", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i := range env.Documents {
		d := env.Documents[i]
		d.ID = "doc_" + uuid.NewString()
		d.Content = ensureMarkdown(d.Content, m.log)
		if m.images != nil {
			d.Content = content.ToEditorForm(ctx, d.Content, m.images)
		}
		d.AutoTitle = false
		d.CreatedAt = now
		d.UpdatedAt = now
		if d.Mode == "" {
			d.Mode = ModeWYSIWYG
		}
		doc := d
		m.docs = append(m.docs, &doc)
	}
	if err := m.saveLocked(); err != nil {
		return 0, err
	}

	m.log.Info("Imported documents", zap.String("bundle", path), zap.Int("count", len(env.Documents)))
	return len(env.Documents), nil
}
