package archive

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeBundle(t *testing.T, entries map[string]string) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	w := zip.NewWriter(f)
	for entry, content := range entries {
		fw, err := w.Create(entry)
		if err != nil {
			t.Fatalf("create entry %s: %v", entry, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", entry, err)
		}
	}
	w.Close()
	f.Close()
	return name
}

func TestWalkVisitsFilesOnly(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	w := zip.NewWriter(f)

	hdr := &zip.FileHeader{Name: "nested/"}
	hdr.SetMode(os.ModeDir | 0755)
	if _, err := w.CreateHeader(hdr); err != nil {
		t.Fatalf("create dir entry: %v", err)
	}
	fw, err := w.Create("nested/documents.json")
	if err != nil {
		t.Fatalf("create file entry: %v", err)
	}
	fw.Write([]byte("{}"))
	w.Close()
	f.Close()

	var visited []string
	err = Walk(name, func(zf *zip.File) error {
		visited = append(visited, zf.Name)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(visited) != 1 || visited[0] != "nested/documents.json" {
		t.Errorf("visited = %v, want only the file entry", visited)
	}
}

func TestWalkStopsOnCallbackError(t *testing.T) {
	name := writeBundle(t, map[string]string{
		"a.json": "1",
		"b.json": "2",
		"c.json": "3",
	})

	stop := errors.New("stop walking")
	visited := 0
	err := Walk(name, func(*zip.File) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Errorf("Walk() error = %v, want %v", err, stop)
	}
	if visited != 2 {
		t.Errorf("visited = %d, want 2", visited)
	}
}

func TestWalkRejectsUnsafePaths(t *testing.T) {
	name := writeBundle(t, map[string]string{
		"../escape.json": "bad",
	})

	err := Walk(name, func(*zip.File) error { return nil })
	if err == nil {
		t.Error("expected error for path traversal entry")
	}
}

func TestWalkInvalidBundle(t *testing.T) {
	if err := Walk(filepath.Join(t.TempDir(), "missing.zip"), func(*zip.File) error { return nil }); err == nil {
		t.Error("expected error for missing bundle")
	}

	name := filepath.Join(t.TempDir(), "garbage.zip")
	if err := os.WriteFile(name, []byte("not a zip file"), 0644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := Walk(name, func(*zip.File) error { return nil }); err == nil {
		t.Error("expected error for corrupt bundle")
	}
}

func TestReadEntry(t *testing.T) {
	name := writeBundle(t, map[string]string{
		"documents.json": `{"version":"1.0"}`,
		"extra.txt":      "ignored",
	})

	data, err := ReadEntry(name, "documents.json")
	if err != nil {
		t.Fatalf("ReadEntry() error = %v", err)
	}
	if string(data) != `{"version":"1.0"}` {
		t.Errorf("ReadEntry() = %q", data)
	}

	if _, err := ReadEntry(name, "absent.json"); err == nil {
		t.Error("expected error for missing entry")
	}
}

func TestIsSafePath(t *testing.T) {
	cases := []struct {
		name string
		safe bool
	}{
		{"documents.json", true},
		{"nested/documents.json", true},
		{"/absolute.json", false},
		{`\windows.json`, false},
		{"../escape.json", false},
		{"nested/../../escape.json", false},
	}
	for _, c := range cases {
		if got := isSafePath(c.name); got != c.safe {
			t.Errorf("isSafePath(%q) = %v, want %v", c.name, got, c.safe)
		}
	}
}
