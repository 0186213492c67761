// Package packager assembles release archives.
package packager

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// Entry is one file placed at the archive root.
type Entry struct {
	// Name is the file name inside the archive.
	Name string
	// Path is the file on the local disk.
	Path string
	// Executable marks the entry 0755 instead of 0644.
	Executable bool
}

// epoch pins entry timestamps so identical inputs produce identical archives.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Zip writes entries into a zip archive in the given order.
func Zip(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries to package")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry for %s has no name", e.Path)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate entry %q", e.Name)
		}
		seen[e.Name] = true

		if err := addFile(zw, e); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, e Entry) error {
	f, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", e.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", e.Path)
	}

	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: epoch,
	}
	mode := os.FileMode(0644)
	if e.Executable {
		mode = 0755
	}
	hdr.SetMode(mode)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", e.Name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("writing %s: %w", e.Name, err)
	}
	return nil
}
