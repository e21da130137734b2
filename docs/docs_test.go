package docs_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"unipub/docs"
)

func newManager(t *testing.T) *docs.Manager {
	t.Helper()
	m := docs.NewManager(filepath.Join(t.TempDir(), "documents.json"), nil, nil)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLoadCreatesDefaultDocument(t *testing.T) {
	m := newManager(t)

	list := m.List()
	if len(list) != 1 {
		t.Fatalf("got %d documents, want 1", len(list))
	}
	if list[0].Title != "Untitled" {
		t.Errorf("title = %q, want Untitled", list[0].Title)
	}
	if !list[0].AutoTitle {
		t.Error("default document must auto-title")
	}
	if m.ActiveID() != list[0].ID {
		t.Error("default document not active")
	}
}

func TestUntitledNumbering(t *testing.T) {
	m := newManager(t)
	m.Create("", "")
	m.Create("", "")

	titles := make(map[string]bool)
	for _, d := range m.List() {
		titles[d.Title] = true
	}
	for _, want := range []string{"Untitled", "Untitled 2", "Untitled 3"} {
		if !titles[want] {
			t.Errorf("missing title %q, have %v", want, titles)
		}
	}
}

func TestAutoTitleFollowsHeading(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID

	if err := m.UpdateContent(id, "intro\n\n## Release Notes\n\nbody"); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Get(id)
	if d.Title != "Release Notes" {
		t.Errorf("title = %q, want Release Notes", d.Title)
	}
	if !d.Modified {
		t.Error("document not marked modified")
	}
}

func TestAutoTitleTruncation(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID

	long := strings.Repeat("思", 25)
	if err := m.UpdateContent(id, "# "+long); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Get(id)
	want := strings.Repeat("思", 20) + "…"
	if d.Title != want {
		t.Errorf("title = %q, want %q", d.Title, want)
	}
}

func TestRenameDisablesAutoTitle(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID

	if err := m.Rename(id, "Fixed"); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateContent(id, "# Other Heading"); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Get(id)
	if d.Title != "Fixed" {
		t.Errorf("title = %q, auto-title not disabled by rename", d.Title)
	}
}

func TestHTMLContentRejected(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID

	if err := m.UpdateContent(id, "<div>pasted html</div>"); err != nil {
		t.Fatal(err)
	}
	d, _ := m.Get(id)
	if d.Content != "" {
		t.Errorf("HTML content kept: %q", d.Content)
	}
}

func TestDuplicate(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID
	if err := m.Rename(id, "Notes"); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateContent(id, "body"); err != nil {
		t.Fatal(err)
	}

	dup, err := m.Duplicate(id)
	if err != nil {
		t.Fatal(err)
	}
	if dup.Title != "Notes copy" || dup.Content != "body" {
		t.Errorf("duplicate = %q/%q", dup.Title, dup.Content)
	}
	if dup.AutoTitle {
		t.Error("duplicate must not auto-title")
	}
	if m.ActiveID() != dup.ID {
		t.Error("duplicate not selected")
	}
}

func TestCloseNeverRemovesLastDocument(t *testing.T) {
	m := newManager(t)
	only := m.List()[0].ID

	if err := m.Close(only); err == nil {
		t.Fatal("closed the last document")
	}

	second := m.Create("", "")
	if err := m.Close(second.ID); err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 1 {
		t.Errorf("got %d documents after close, want 1", len(m.List()))
	}
	if m.ActiveID() != only {
		t.Error("selection did not move to the remaining document")
	}
}

func TestCloseActiveSelectsNext(t *testing.T) {
	m := newManager(t)
	first := m.List()[0].ID
	second := m.Create("", "")
	third := m.Create("", "")

	if err := m.Select(second.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(second.ID); err != nil {
		t.Fatal(err)
	}
	if m.ActiveID() != third.ID {
		t.Errorf("active = %s, want the following document %s", m.ActiveID(), third.ID)
	}
	_ = first
}

func TestMove(t *testing.T) {
	m := newManager(t)
	m.Create("", "")
	m.Create("", "")
	order := func() []string {
		var ids []string
		for _, d := range m.List() {
			ids = append(ids, d.ID)
		}
		return ids
	}

	before := order()
	if err := m.Move(0, 2); err != nil {
		t.Fatal(err)
	}
	after := order()
	if after[2] != before[0] || after[0] != before[1] {
		t.Errorf("move produced %v from %v", after, before)
	}

	if err := m.Move(0, 5); err == nil {
		t.Error("out of range move accepted")
	}
}

func TestStats(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID

	// 4 CJK chars plus 10 latin chars -> 4 + 2 words
	if err := m.UpdateContent(id, "你好世界 helloworld"); err != nil {
		t.Fatal(err)
	}
	st, err := m.Stats(id)
	if err != nil {
		t.Fatal(err)
	}
	if st.Words != 6 {
		t.Errorf("words = %d, want 6", st.Words)
	}
	if st.Minutes != 1 {
		t.Errorf("minutes = %d, want 1", st.Minutes)
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "documents.json")

	m := docs.NewManager(path, nil, nil)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	id := m.List()[0].ID
	if err := m.UpdateContent(id, "# Saved\n\ntext"); err != nil {
		t.Fatal(err)
	}
	second := m.Create("extra", "")
	if err := m.Select(second.ID); err != nil {
		t.Fatal(err)
	}

	re := docs.NewManager(path, nil, nil)
	if err := re.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(re.List()) != 2 {
		t.Fatalf("got %d documents after reload, want 2", len(re.List()))
	}
	if re.ActiveID() != second.ID {
		t.Errorf("active selection lost: %s", re.ActiveID())
	}
	d, ok := re.Get(id)
	if !ok || d.Title != "Saved" || !strings.Contains(d.Content, "text") {
		t.Errorf("document content lost: %+v", d)
	}
}

func TestLiveImageIDs(t *testing.T) {
	m := newManager(t)
	id := m.List()[0].ID
	if err := m.UpdateContent(id, "![a](uni-image://img_aaa)\n\n![b](uni-image://img_bbb)"); err != nil {
		t.Fatal(err)
	}
	m.Create("other", "![c](uni-image://img_aaa)")

	live := m.LiveImageIDs()
	if len(live) != 2 {
		t.Fatalf("live = %v, want img_aaa and img_bbb", live)
	}
	for _, want := range []string{"img_aaa", "img_bbb"} {
		if _, ok := live[want]; !ok {
			t.Errorf("missing %s in %v", want, live)
		}
	}
}
