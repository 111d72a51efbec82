package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

var ErrBadPattern = errors.New("invalid capture pattern")

// captureExts are the page extensions picked up when no pattern is given
var captureExts = []string{".html", ".htm", ".xhtml"}

// compressionExts are stripped from output names
var compressionExts = []string{".gz", ".zst"}

// Find lists capture files under root, relative to it and sorted. With a
// pattern, files whose slash-separated relative path matches the doublestar
// pattern are returned; without one, files with an HTML extension,
// optionally compressed.
func Find(ctx context.Context, root, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}

	var mu sync.Mutex
	matches := []string{}
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		var ok bool
		if pattern != "" {
			ok, _ = doublestar.Match(pattern, rel)
		} else {
			ok = IsCapture(rel)
		}
		if ok {
			mu.Lock()
			matches = append(matches, rel)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find captures: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}

// IsCapture reports whether name looks like a captured page
func IsCapture(name string) bool {
	name = strings.ToLower(StripCompression(name))
	for _, ext := range captureExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// StripCompression removes a trailing .gz or .zst
func StripCompression(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range compressionExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
