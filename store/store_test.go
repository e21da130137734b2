package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"unipub/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "uni-editor.db"), zap.NewNop())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("pic.png", "image/png", []byte("not really a png"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(saved.ID, "img_") {
		t.Errorf("unexpected id format: %q", saved.ID)
	}
	if saved.URL == "" || !store.IsEphemeralURL(saved.URL) {
		t.Errorf("expected ephemeral URL, got %q", saved.URL)
	}
	if saved.Name != "pic.png" {
		t.Errorf("unexpected name: %q", saved.Name)
	}

	rec, ok := s.Get(saved.ID)
	if !ok {
		t.Fatal("record not found after save")
	}
	if rec.MIME != "image/png" || string(rec.Blob) != "not really a png" {
		t.Errorf("record mismatch: mime=%q blob=%q", rec.MIME, rec.Blob)
	}

	if _, ok := s.Get("img_unknown"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestSaveSniffsMIME(t *testing.T) {
	s := newTestStore(t)

	// real PNG header so filetype can match and DecodeConfig has a chance
	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16))
	saved, err := s.Save("", "", png)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, ok := s.Get(saved.ID)
	if !ok {
		t.Fatal("record not found")
	}
	if rec.MIME != "image/png" {
		t.Errorf("expected sniffed image/png, got %q", rec.MIME)
	}
	if rec.Name != saved.ID {
		t.Errorf("nameless save should fall back to id, got %q", rec.Name)
	}
}

func TestDataURL(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("a.gif", "image/gif", []byte{0x47, 0x49, 0x46})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	url, ok := s.DataURL(saved.ID)
	if !ok {
		t.Fatal("expected data URL")
	}
	if !strings.HasPrefix(url, "data:image/gif;base64,") {
		t.Errorf("unexpected data URL: %q", url)
	}
	if _, ok := s.DataURL("img_missing"); ok {
		t.Error("missing id must not produce a data URL")
	}
}

func TestEphemeralURLCacheAgreement(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("x", "image/png", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	url, ok := s.EphemeralURL(saved.ID)
	if !ok {
		t.Fatal("expected ephemeral URL")
	}
	if url != saved.URL {
		t.Errorf("expected cached handle %q, got %q", saved.URL, url)
	}
	// at most one live handle per id
	again, _ := s.EphemeralURL(saved.ID)
	if again != url {
		t.Errorf("second resolution minted a new handle: %q vs %q", again, url)
	}
	// reverse lookup must agree with forward lookup
	id, ok := s.IDForURL(url)
	if !ok || id != saved.ID {
		t.Errorf("reverse lookup disagreed: %q %v", id, ok)
	}
	ph, ok := s.PlaceholderForURL(url)
	if !ok || ph != store.Placeholder(saved.ID) {
		t.Errorf("unexpected placeholder: %q %v", ph, ok)
	}

	s.ClearCache()
	if _, ok := s.IDForURL(url); ok {
		t.Error("handle survived ClearCache")
	}
	// resolution after cache reset mints a fresh handle from the record
	fresh, ok := s.EphemeralURL(saved.ID)
	if !ok || fresh == url {
		t.Errorf("expected fresh handle after cache reset, got %q %v", fresh, ok)
	}
}

func TestResolveToDataURL(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("x", "image/png", []byte("blobbytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if got, ok := s.ResolveToDataURL("data:image/png;base64,AAAA"); !ok || got != "data:image/png;base64,AAAA" {
		t.Errorf("data URLs must pass through, got %q %v", got, ok)
	}
	if got, ok := s.ResolveToDataURL(store.Placeholder(saved.ID)); !ok || !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("placeholder did not resolve: %q %v", got, ok)
	}
	if got, ok := s.ResolveToDataURL(saved.URL); !ok || !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("ephemeral URL did not resolve: %q %v", got, ok)
	}
	if _, ok := s.ResolveToDataURL(store.Placeholder("img_gone")); ok {
		t.Error("unknown placeholder must stay unresolved")
	}
	if _, ok := s.ResolveToDataURL(""); ok {
		t.Error("empty source must stay unresolved")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save("x", "image/png", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Remove(saved.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.Get(saved.ID); ok {
		t.Error("record survived remove")
	}
	if _, ok := s.IDForURL(saved.URL); ok {
		t.Error("handle survived remove")
	}
	if err := s.Remove(saved.ID); err != nil {
		t.Errorf("second remove must be a no-op, got %v", err)
	}
	if err := s.Remove("img_never_existed"); err != nil {
		t.Errorf("removing unknown id must be a no-op, got %v", err)
	}
}

func TestCleanupUnused(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		saved, err := s.Save(name, "image/png", []byte(name))
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		ids = append(ids, saved.ID)
	}

	live := map[string]struct{}{ids[0]: {}, ids[2]: {}}
	if err := s.CleanupUnused(live); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	left, err := s.ListIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 2 || left[0] != ids[0] || left[1] != ids[2] {
		t.Errorf("expected exactly {a,c} to survive, got %v", left)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uni-editor.db")

	s := store.New(path, zap.NewNop())
	saved, err := s.Save("keep.png", "image/png", []byte("payload"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := store.New(path, zap.NewNop())
	defer s2.Close()
	rec, ok := s2.Get(saved.ID)
	if !ok {
		t.Fatal("record did not survive reopen")
	}
	if string(rec.Blob) != "payload" {
		t.Errorf("blob mismatch after reopen: %q", rec.Blob)
	}
	// URL cache is per session, not persisted
	if _, ok := s2.IDForURL(saved.URL); ok {
		t.Error("ephemeral URL must not survive reopen")
	}
}

func TestUnavailableBackend(t *testing.T) {
	// parent of the database path is a regular file, so the directory
	// cannot be created and the store must degrade
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s := store.New(filepath.Join(blocker, "sub", "uni-editor.db"), zap.NewNop())

	if _, err := s.Save("x", "image/png", []byte("x")); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Errorf("save must hard-fail with ErrStorageUnavailable, got %v", err)
	}
	if _, ok := s.Get("img_x"); ok {
		t.Error("read must soft-fail")
	}
	if _, ok := s.DataURL("img_x"); ok {
		t.Error("data URL must soft-fail")
	}
	if _, err := s.ListIDs(); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Errorf("list must report unavailable storage, got %v", err)
	}
}
