package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Backlog summarises the documents waiting in the source directory.
type Backlog struct {
	SourceDir string
	Total     int
	Done      int
	Pending   []string
}

// ScanBacklog lists PDFs under sourceDir (recursively, as the worker scans
// them) and splits them by whether their name is already checkpointed.
func ScanBacklog(sourceDir string, contains func(id string) bool) (Backlog, error) {
	backlog := Backlog{SourceDir: sourceDir}
	if strings.TrimSpace(sourceDir) == "" {
		return backlog, errors.New("paths.source_dir not set")
	}
	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}
		backlog.Total++
		if contains != nil && contains(d.Name()) {
			backlog.Done++
			return nil
		}
		rel, relErr := filepath.Rel(sourceDir, path)
		if relErr != nil {
			rel = d.Name()
		}
		backlog.Pending = append(backlog.Pending, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return backlog, fmt.Errorf("source directory %s does not exist", sourceDir)
		}
		return backlog, fmt.Errorf("scan source directory: %w", err)
	}
	sort.Strings(backlog.Pending)
	return backlog, nil
}

// Detail renders a display-friendly summary for status output.
func (p Backlog) Detail() string {
	if p.Total == 0 {
		return "No documents found"
	}
	return fmt.Sprintf("%d of %d documents pending", len(p.Pending), p.Total)
}
