package config

import (
	"go.uber.org/zap"

	"github.com/temirov/ctxtree/internal/utils"
)

const logMessageIgnoreFilesFailed = "unable to load ignore files"

// patternLister is anything that lists ignore patterns.
type patternLister interface {
	IgnorePatterns() []string
}

// IgnoreSource combines the ignore files below Root, the command line
// exclusions and the persisted pattern list. Files are re-read on every call
// so edits take effect on the next build.
type IgnoreSource struct {
	Root      string
	Options   IgnoreOptions
	Persisted patternLister
	Logger    *zap.Logger
}

// IgnorePatterns returns the combined, deduplicated pattern list. Ignore files
// that cannot be read are logged and skipped.
func (source IgnoreSource) IgnorePatterns() []string {
	patterns, loadError := LoadRecursiveIgnorePatterns(source.Root, source.Options)
	if loadError != nil {
		if source.Logger != nil {
			source.Logger.Warn(logMessageIgnoreFilesFailed, zap.String("root", source.Root), zap.Error(loadError))
		}
		patterns = appendExclusions(nil, source.Options.Exclude)
		if !source.Options.IncludeGit {
			patterns = append(patterns, gitDirectoryPattern)
		}
	}
	if source.Persisted != nil {
		patterns = appendExclusions(patterns, source.Persisted.IgnorePatterns())
	}
	return utils.DeduplicatePatterns(patterns)
}
