// Package vault exports notes as Markdown files with YAML frontmatter.
package vault

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/starford/mynotes/internal/dirs"
	"github.com/starford/mynotes/internal/store"
)

const delim = "---"

type frontmatter struct {
	ID     int64 `yaml:"id"`
	UserID int64 `yaml:"user_id"`
	Synced bool  `yaml:"synced"`
}

// FileName returns the export file name of the note with id.
func FileName(id int64) string {
	return fmt.Sprintf("note-%d.md", id)
}

// Render encodes a note as frontmatter followed by its text verbatim.
func Render(n store.Note) ([]byte, error) {
	fm, err := yaml.Marshal(frontmatter{ID: n.ID, UserID: n.UserID, Synced: n.IsSyncedWithCloud})
	if err != nil {
		return nil, fmt.Errorf("vault: render note %d: %w", n.ID, err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(fm)
	buf.WriteString(delim + "\n")
	buf.WriteString(n.Text)
	return buf.Bytes(), nil
}

// Export writes one file per note into dir, creating it when missing. Files
// whose content already matches are left untouched. It returns how many files
// were written.
func Export(ctx context.Context, dir string, notes []store.Note) (int, error) {
	root, err := dirs.Ensure(dir)
	if err != nil {
		return 0, fmt.Errorf("vault: %w", err)
	}

	written := 0
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		data, err := Render(n)
		if err != nil {
			return written, err
		}
		path := filepath.Join(root, FileName(n.ID))
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
			continue
		}
		if err := writeAtomic(path, data); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mynotes-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}
