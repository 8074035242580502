package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var DefaultPatterns = []string{"**/*.md", "**/*.markdown", "**/*.txt"}

// Source is one study file picked up from a directory.
type Source struct {
	DocumentID string
	Path       string
	Text       string
}

type Options struct {
	Patterns []string
	Exclude  []string
	// Prefix is prepended to the document id derived from the file path.
	Prefix string
}

// Collect globs fsys and returns the matching files sorted by path. Hidden
// directories are skipped.
func Collect(ctx context.Context, fsys fs.FS, opts Options) ([]Source, error) {
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern: %s", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok || isHidden(m) || excluded(m, opts.Exclude) {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	logger := logutil.GetLogger(ctx)
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			logger.Debug("skip empty file", zap.String("path", p))
			continue
		}
		out = append(out, Source{
			DocumentID: DocumentID(opts.Prefix, p),
			Path:       p,
			Text:       string(data),
		})
	}
	return out, nil
}

// DocumentID turns a slash path into a stable id: the extension is dropped
// and the optional prefix joined with a slash.
func DocumentID(prefix, p string) string {
	id := strings.TrimSuffix(p, path.Ext(p))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return id
	}
	return prefix + "/" + id
}

func excluded(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return false
}

func isHidden(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
