package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-root ignore file read during discovery.
const IgnoreFileName = ".dvsignore"

// defaultIgnorePatterns are always applied regardless of config or .dvsignore.
// Temp files left by an interrupted transfer are never business documents.
var defaultIgnorePatterns = []string{IgnoreFileName, ".tmp-*", ".DS_Store", "Thumbs.db"}

// ignoreRule is one parsed pattern.
//
//	*.log        basename glob, matches files and directories at any depth
//	build/*.o    contains '/', matched against the whole relative path
//	scratch/     trailing '/', matches directories only
type ignoreRule struct {
	glob      string
	wholePath bool
	dirOnly   bool
}

func (r ignoreRule) match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	target := path.Base(rel)
	if r.wholePath {
		target = rel
	}
	ok, err := path.Match(r.glob, target)
	return err == nil && ok
}

// IgnoreMatcher decides which entries below a discovery root are skipped.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and lines starting
// with '#' are skipped; malformed globs never match.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		rule := ignoreRule{}
		if strings.HasSuffix(raw, "/") {
			rule.dirOnly = true
			raw = strings.TrimSuffix(raw, "/")
		}
		rule.glob = strings.TrimPrefix(raw, "/")
		rule.wholePath = strings.Contains(raw, "/")
		m.rules = append(m.rules, rule)
	}
	return m
}

// Match reports whether the file at relativePath is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	return m.match(relativePath, false)
}

// MatchDir reports whether the directory at relativePath is ignored, in which
// case nothing below it is listed.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	return m.match(relativePath, true)
}

func (m *IgnoreMatcher) match(relativePath string, isDir bool) bool {
	if relativePath == "" || relativePath == "." {
		return false
	}
	rel := filepath.ToSlash(relativePath)
	for _, r := range m.rules {
		if r.match(rel, isDir) {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
