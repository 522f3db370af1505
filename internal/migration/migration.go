// Package migration persists proposed schema migrations for human review.
// Nothing here executes SQL.
package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var unsafeName = regexp.MustCompile(`[^a-z0-9_-]+`)

// FileName returns the file name for a migration: a lowercase slug with a
// .sql extension.
func FileName(name string) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
	if slug == "" {
		slug = "migration"
	}
	return slug + ".sql"
}

// Render formats statements as a reviewable SQL script.
func Render(name string, statements []string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "-- migration: %s\n", strings.Join(strings.Fields(name), " "))
	fmt.Fprintf(&b, "-- generated: %s\n", at.UTC().Format(time.RFC3339))
	b.WriteString("-- review before applying\n\n")
	for _, s := range statements {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		b.WriteString(s)
		if !strings.HasSuffix(s, ";") {
			b.WriteString(";")
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// File writes migrations to a local directory.
type File struct {
	dir string
	now func() time.Time
}

// NewFile creates a File writer under dir.
func NewFile(dir string) *File {
	return &File{dir: dir, now: time.Now}
}

// Write persists statements and returns the file path.
func (f *File) Write(_ context.Context, name string, statements []string) (string, error) {
	if len(statements) == 0 {
		return "", eris.New("migration: no statements")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "migration: create dir %s", f.dir)
	}
	path := filepath.Join(f.dir, FileName(name))
	if err := os.WriteFile(path, Render(name, statements, f.now()), 0o644); err != nil {
		return "", eris.Wrapf(err, "migration: write %s", path)
	}
	return path, nil
}

// Pending lists migration files in dir, sorted by name.
func Pending(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "migration: read dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
