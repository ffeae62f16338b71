// Package ignore decides whether a path is excluded from the tree model.
package ignore

import (
	"path/filepath"
	"runtime"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	pathSegmentSeparator  = "/"
	parentDirectoryPrefix = ".."
)

// Matcher evaluates a fixed set of gitignore-style glob patterns against paths
// below a root directory.
type Matcher struct {
	root     string
	compiled *gitignore.GitIgnore
	foldCase bool
}

// NewMatcher compiles patterns for paths below root. Patterns that cannot be
// compiled are dropped individually; the rest keep filtering.
func NewMatcher(root string, patterns []string) *Matcher {
	foldCase := caseInsensitiveFilesystem()
	var lines []string
	for _, pattern := range patterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if trimmedPattern == "" {
			continue
		}
		normalizedPattern := strings.ReplaceAll(trimmedPattern, "\\", pathSegmentSeparator)
		if foldCase {
			normalizedPattern = strings.ToLower(normalizedPattern)
		}
		lines = append(lines, normalizedPattern)
	}
	matcher := &Matcher{
		root:     filepath.Clean(root),
		foldCase: foldCase,
	}
	if len(lines) > 0 {
		matcher.compiled = gitignore.CompileIgnoreLines(lines...)
	}
	return matcher
}

// Matches reports whether path is excluded. isDirectory enables patterns with a
// trailing slash, which only apply to directories.
func (matcher *Matcher) Matches(path string, isDirectory bool) bool {
	if matcher == nil || matcher.compiled == nil {
		return false
	}
	relativePath, inside := matcher.relative(path)
	if !inside {
		return false
	}
	if matcher.compiled.MatchesPath(relativePath) {
		return true
	}
	if isDirectory {
		return matcher.compiled.MatchesPath(relativePath + pathSegmentSeparator)
	}
	return false
}

// relative converts path into a forward-slash path relative to the root. The
// second result is false for the root itself and for paths outside of it.
func (matcher *Matcher) relative(path string) (string, bool) {
	relativePath, relativeError := filepath.Rel(matcher.root, filepath.Clean(path))
	if relativeError != nil {
		return "", false
	}
	relativePath = filepath.ToSlash(relativePath)
	if relativePath == "." || relativePath == parentDirectoryPrefix || strings.HasPrefix(relativePath, parentDirectoryPrefix+pathSegmentSeparator) {
		return "", false
	}
	if matcher.foldCase {
		relativePath = strings.ToLower(relativePath)
	}
	return relativePath, true
}

// IsIgnored reports whether path, relative to root, matches any of patterns.
// A path written with a trailing separator is treated as a directory.
func IsIgnored(root string, path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	isDirectory := strings.HasSuffix(path, pathSegmentSeparator) || strings.HasSuffix(path, string(filepath.Separator))
	return NewMatcher(root, patterns).Matches(path, isDirectory)
}

func caseInsensitiveFilesystem() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	default:
		return false
	}
}
