// Package store implements content-addressed persistent storage for image
// blobs referenced from document content.
//
// Persisted content never carries runtime resource handles - it embeds stable
// placeholder references ("uni-image://<id>") instead. The store owns the
// bidirectional mapping between ids and the session-scoped ephemeral URLs it
// mints for the editor surface.
package store

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	// PlaceholderPrefix is the durable image reference scheme embedded in
	// persisted document content.
	PlaceholderPrefix = "uni-image://"

	// ephemeralPrefix is the session-scoped handle scheme. Handles are valid
	// only inside the current process and are revoked on Remove/ClearCache.
	ephemeralPrefix = "mem://images/"

	schemaVersion = 1
)

// ErrStorageUnavailable is returned when the persistence backend cannot be
// opened. Reads degrade to soft failure, writes surface this error.
var ErrStorageUnavailable = errors.New("image store: storage unavailable")

// Record is a persisted binary entry. Blob bytes are owned by the store and
// never mutated after Save.
type Record struct {
	ID        string
	Name      string
	MIME      string
	Size      int64
	Width     int
	Height    int
	CreatedAt time.Time
	Blob      []byte
}

// SavedImage describes a successful Save.
type SavedImage struct {
	ID   string
	URL  string
	Name string
}

// Store keeps image blobs in a SQLite database and serves ephemeral URL
// handles from an in-memory cache.
type Store struct {
	log  *zap.Logger
	path string

	openOnce sync.Once
	openErr  error
	dbMu     sync.Mutex // serializes access to conn
	conn     *sqlite.Conn

	cacheMu sync.Mutex
	urls    map[string]string // id -> ephemeral url
	ids     map[string]string // ephemeral url -> id
	blobs   map[string][]byte // ephemeral url -> backing bytes

	gcBusy atomic.Bool
}

// New creates a store over the database at path. The database is opened
// lazily on first access; concurrent first callers share a single open.
func New(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:   log.Named("images"),
		path:  path,
		urls:  make(map[string]string),
		ids:   make(map[string]string),
		blobs: make(map[string][]byte),
	}
}

// Placeholder returns the durable reference form for an image id.
func Placeholder(id string) string {
	return PlaceholderPrefix + id
}

// IDFromPlaceholder extracts the image id from a placeholder reference.
func IDFromPlaceholder(s string) (string, bool) {
	if !strings.HasPrefix(s, PlaceholderPrefix) {
		return "", false
	}
	id := s[len(PlaceholderPrefix):]
	return id, len(id) > 0
}

// IsEphemeralURL reports whether s looks like a handle minted by this store.
func IsEphemeralURL(s string) bool {
	return strings.HasPrefix(s, ephemeralPrefix)
}

func (s *Store) database() (*sqlite.Conn, error) {
	s.openOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			s.openErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			return
		}
		conn, err := sqlite.OpenConn(s.path, sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL)
		if err != nil {
			s.openErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			return
		}
		if err := migrate(conn); err != nil {
			conn.Close()
			s.openErr = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			return
		}
		s.conn = conn
	})
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.conn, nil
}

// migrate brings the database to the current schema version. Records written
// by older versions must survive a version bump.
func migrate(conn *sqlite.Conn) error {
	var version int64
	err := sqlitex.ExecuteTransient(conn, `PRAGMA user_version`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return err
	}
	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}
	err = sqlitex.ExecuteScript(conn, `
		CREATE TABLE IF NOT EXISTS images (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			mime       TEXT NOT NULL,
			size       INTEGER NOT NULL,
			width      INTEGER NOT NULL DEFAULT 0,
			height     INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			blob       BLOB NOT NULL
		);`, nil)
	if err != nil {
		return err
	}
	return sqlitex.ExecuteTransient(conn, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion), nil)
}

func generateImageID() string {
	return "img_" + uuid.NewString()
}

// Save persists image bytes under a freshly generated id and returns the id
// together with an ephemeral URL for immediate editor use. Unlike reads this
// is a hard failure path - the caller must know when bytes were not stored.
func (s *Store) Save(name, mimeType string, data []byte) (SavedImage, error) {
	if len(data) == 0 {
		return SavedImage{}, errors.New("image store: no data provided")
	}
	conn, err := s.database()
	if err != nil {
		return SavedImage{}, err
	}

	if mimeType == "" {
		if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
			mimeType = kind.MIME.Value
		} else {
			mimeType = "application/octet-stream"
		}
	}

	rec := Record{
		ID:        generateImageID(),
		Name:      name,
		MIME:      mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
		Blob:      data,
	}
	if rec.Name == "" {
		rec.Name = rec.ID
	}
	// dimensions are informational; undecodable input is not an error
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		rec.Width, rec.Height = cfg.Width, cfg.Height
	}

	s.dbMu.Lock()
	err = sqlitex.Execute(conn,
		`INSERT INTO images (id, name, mime, size, width, height, created_at, blob) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{rec.ID, rec.Name, rec.MIME, rec.Size, rec.Width, rec.Height, rec.CreatedAt.UnixMilli(), rec.Blob},
		})
	s.dbMu.Unlock()
	if err != nil {
		s.log.Warn("Failed to save image", zap.String("name", rec.Name), zap.Error(err))
		return SavedImage{}, fmt.Errorf("image store: save failed: %w", err)
	}

	url := s.cacheURL(rec.ID, rec.Blob)
	s.log.Debug("Image saved", zap.String("id", rec.ID), zap.String("mime", rec.MIME), zap.Int64("size", rec.Size))
	return SavedImage{ID: rec.ID, URL: url, Name: rec.Name}, nil
}

// Get reads a persisted record. Missing ids and storage failures both report
// !ok - callers treat images they cannot load as unresolved references.
func (s *Store) Get(id string) (Record, bool) {
	if id == "" {
		return Record{}, false
	}
	conn, err := s.database()
	if err != nil {
		s.log.Warn("Failed to read image record", zap.String("id", id), zap.Error(err))
		return Record{}, false
	}

	var rec Record
	found := false
	s.dbMu.Lock()
	err = sqlitex.Execute(conn,
		`SELECT id, name, mime, size, width, height, created_at, blob FROM images WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec.ID = stmt.ColumnText(0)
				rec.Name = stmt.ColumnText(1)
				rec.MIME = stmt.ColumnText(2)
				rec.Size = stmt.ColumnInt64(3)
				rec.Width = int(stmt.ColumnInt64(4))
				rec.Height = int(stmt.ColumnInt64(5))
				rec.CreatedAt = time.UnixMilli(stmt.ColumnInt64(6))
				rec.Blob = make([]byte, stmt.ColumnLen(7))
				stmt.ColumnBytes(7, rec.Blob)
				found = true
				return nil
			},
		})
	s.dbMu.Unlock()
	if err != nil {
		s.log.Warn("Failed to read image record", zap.String("id", id), zap.Error(err))
		return Record{}, false
	}
	return rec, found
}

// DataURL converts the stored blob to a base64 data URL.
func (s *Store) DataURL(id string) (string, bool) {
	rec, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return blobToDataURL(rec.MIME, rec.Blob), true
}

func blobToDataURL(mimeType string, blob []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(blob)
}

// EphemeralURL returns the cached session handle for an id, minting a new one
// from the persisted record when none exists yet.
func (s *Store) EphemeralURL(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	s.cacheMu.Lock()
	if url, ok := s.urls[id]; ok {
		s.cacheMu.Unlock()
		return url, true
	}
	s.cacheMu.Unlock()

	rec, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return s.cacheURL(id, rec.Blob), true
}

// cacheURL mints an ephemeral URL for id backed by blob, or returns the
// existing one. Forward and reverse maps are updated under one lock so they
// can never disagree.
func (s *Store) cacheURL(id string, blob []byte) string {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if url, ok := s.urls[id]; ok {
		return url
	}
	url := ephemeralPrefix + uuid.NewString()
	s.urls[id] = url
	s.ids[url] = id
	s.blobs[url] = blob
	return url
}

// IDForURL is the reverse lookup: ephemeral URL back to the stored id.
func (s *Store) IDForURL(url string) (string, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	id, ok := s.ids[url]
	return id, ok
}

// PlaceholderForURL maps an ephemeral URL to the durable placeholder form,
// used when freshly edited content must be rewritten before persisting.
func (s *Store) PlaceholderForURL(url string) (string, bool) {
	id, ok := s.IDForURL(url)
	if !ok {
		return "", false
	}
	return Placeholder(id), true
}

// BlobForURL returns the in-memory bytes backing an ephemeral URL.
func (s *Store) BlobForURL(url string) ([]byte, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	blob, ok := s.blobs[url]
	return blob, ok
}

// ResolveToDataURL resolves any image source form - placeholder, ephemeral
// URL or data URL - to a durable data URL. Unresolvable sources report !ok
// and the caller leaves the original reference in place.
func (s *Store) ResolveToDataURL(src string) (string, bool) {
	switch {
	case src == "":
		return "", false
	case strings.HasPrefix(src, "data:"):
		return src, true
	}

	if id, ok := IDFromPlaceholder(src); ok {
		return s.DataURL(id)
	}
	if id, ok := s.IDForURL(src); ok {
		if url, ok := s.DataURL(id); ok {
			return url, true
		}
	}
	// stale handle whose record is gone but whose bytes are still cached
	if IsEphemeralURL(src) {
		if blob, ok := s.BlobForURL(src); ok {
			return blobToDataURL(mimeForBlob(blob), blob), true
		}
	}
	return "", false
}

func mimeForBlob(blob []byte) string {
	if kind, err := filetype.Match(blob); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "application/octet-stream"
}

// Remove deletes the persisted record and revokes any cached handle.
// Removing an unknown id is a no-op.
func (s *Store) Remove(id string) error {
	if id == "" {
		return nil
	}
	conn, err := s.database()
	if err == nil {
		s.dbMu.Lock()
		err = sqlitex.Execute(conn, `DELETE FROM images WHERE id = ?`, &sqlitex.ExecOptions{Args: []any{id}})
		s.dbMu.Unlock()
	}
	if err != nil {
		s.log.Warn("Failed to delete image record", zap.String("id", id), zap.Error(err))
	}
	s.revoke(id)
	return err
}

func (s *Store) revoke(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if url, ok := s.urls[id]; ok {
		delete(s.ids, url)
		delete(s.blobs, url)
		delete(s.urls, id)
	}
}

// ClearCache revokes every ephemeral URL handle. Persisted records are not
// touched; handles are rebuilt lazily on next resolution.
func (s *Store) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.urls = make(map[string]string)
	s.ids = make(map[string]string)
	s.blobs = make(map[string][]byte)
}

// ListIDs enumerates all persisted image ids.
func (s *Store) ListIDs() ([]string, error) {
	conn, err := s.database()
	if err != nil {
		return nil, err
	}
	var ids []string
	s.dbMu.Lock()
	err = sqlitex.Execute(conn, `SELECT id FROM images ORDER BY created_at`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnText(0))
			return nil
		},
	})
	s.dbMu.Unlock()
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// List returns metadata for every persisted image (blob bytes not loaded).
func (s *Store) List() ([]Record, error) {
	conn, err := s.database()
	if err != nil {
		return nil, err
	}
	var recs []Record
	s.dbMu.Lock()
	err = sqlitex.Execute(conn,
		`SELECT id, name, mime, size, width, height, created_at FROM images ORDER BY created_at`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				recs = append(recs, Record{
					ID:        stmt.ColumnText(0),
					Name:      stmt.ColumnText(1),
					MIME:      stmt.ColumnText(2),
					Size:      stmt.ColumnInt64(3),
					Width:     int(stmt.ColumnInt64(4)),
					Height:    int(stmt.ColumnInt64(5)),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(6)),
				})
				return nil
			},
		})
	s.dbMu.Unlock()
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// CleanupUnused deletes every persisted record whose id is not in live.
// At most one cleanup pass runs at a time; overlapping calls are silent
// no-ops. Liveness is computed externally by scanning document content.
func (s *Store) CleanupUnused(live map[string]struct{}) error {
	if !s.gcBusy.CompareAndSwap(false, true) {
		return nil
	}
	defer s.gcBusy.Store(false)

	ids, err := s.ListIDs()
	if err != nil {
		s.log.Warn("Failed to cleanup unused images", zap.Error(err))
		return err
	}
	removed := 0
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		if err := s.Remove(id); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("Removed unreferenced images", zap.Int("count", removed))
	}
	return nil
}

// Close releases the database handle and every cached ephemeral URL.
func (s *Store) Close() error {
	s.ClearCache()
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
