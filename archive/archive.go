// Package archive reads zip bundles produced by the document exporter.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// EntryFunc is called for every regular file in the bundle. Returning an
// error stops the walk and the error is propagated to the caller.
type EntryFunc func(f *zip.File) error

// Walk visits all regular files in the bundle. Entries with absolute paths
// or path traversal components ("..") abort the walk to prevent Zip Slip.
func Walk(bundle string, fn EntryFunc) error {

	r, err := zip.OpenReader(bundle)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// ReadEntry returns the content of a single named file inside the bundle.
func ReadEntry(bundle, name string) ([]byte, error) {
	var data []byte
	found := false
	err := Walk(bundle, func(f *zip.File) error {
		if f.FileHeader.Name != name {
			return nil
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		found = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no %q in bundle %s", name, bundle)
	}
	return data, nil
}

func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
