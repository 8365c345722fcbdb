package capture

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

// classify decides whether text is a list of files or plain text.
// File managers put copied files on the clipboard as file:// URIs, one per
// line; terminals usually give plain absolute paths. Either form counts
// only if every non-empty line resolves to a path that exists.
//
// For file lists the returned content is normalized to one absolute path
// per line.
func classify(text string) (storage.ContentType, string) {
	var paths []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		path, ok := filePath(line)
		if !ok {
			return storage.ContentText, text
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		return storage.ContentText, text
	}
	return storage.ContentFilePath, strings.Join(paths, "\n")
}

// filePath returns the local path named by line, if it exists.
func filePath(line string) (string, bool) {
	path := line
	if strings.HasPrefix(line, "file://") {
		u, err := url.Parse(line)
		if err != nil || (u.Host != "" && u.Host != "localhost") {
			return "", false
		}
		path = u.Path
	}

	if !filepath.IsAbs(path) {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return filepath.Clean(path), true
}

// containsKeyword reports whether text contains any of keywords,
// ignoring case. Empty keywords never match.
func containsKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
