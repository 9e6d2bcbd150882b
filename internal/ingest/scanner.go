// Package ingest discovers source documents under a configured root and
// drives them through the processing pipeline into the index, the document
// store, and the catalog. The scanner finds candidates, the runner decides
// what actually needs work, and the watcher keeps the index current while
// serving.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/logger"
)

// Candidate is one discovered source file. DocID is the slash-separated path
// relative to the scan root; it identifies the document everywhere downstream.
type Candidate struct {
	DocID   string
	Path    string
	Size    int64
	ModTime time.Time
}

// Scanner walks a source root collecting files that match the configured
// include globs and none of the exclude globs.
type Scanner struct {
	root    string
	include []string
	exclude []string
	logger  *slog.Logger
}

// NewScanner validates the configured glob patterns and resolves the root.
func NewScanner(cfg config.SourceConfig) (*Scanner, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving source root %q: %w", cfg.Root, err)
	}
	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid source glob %q", p)
		}
	}
	return &Scanner{
		root:    root,
		include: cfg.Include,
		exclude: cfg.Exclude,
		logger:  logger.WithComponent("scanner"),
	}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the root and returns matching files sorted by DocID.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}

	var found []Candidate
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := s.Rel(path)
		if err != nil || !s.Matches(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping unstatable file", "path", path, "error", err)
			return nil
		}
		found = append(found, Candidate{
			DocID:   rel,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source root: %w", err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].DocID < found[j].DocID })
	return found, nil
}

// Rel converts an absolute path into a slash-separated DocID relative to the
// root.
func (s *Scanner) Rel(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Matches reports whether a root-relative slash path passes the include and
// exclude globs.
func (s *Scanner) Matches(rel string) bool {
	included := len(s.include) == 0
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}
