package filemap

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ctxtree/internal/ignore"
	"github.com/temirov/ctxtree/internal/services/notifier"
	"github.com/temirov/ctxtree/internal/services/watcher"
	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/tree"
)

// PatternSource supplies the persisted ignore patterns. It is consulted on
// every full build.
type PatternSource interface {
	IgnorePatterns() []string
}

// StaticPatterns is a fixed PatternSource.
type StaticPatterns []string

// IgnorePatterns returns a copy of the patterns.
func (patterns StaticPatterns) IgnorePatterns() []string {
	return append([]string(nil), patterns...)
}

// WatchCapability subscribes to batched filesystem events below a root.
type WatchCapability interface {
	Watch(root string, matcher *ignore.Matcher, handler watcher.Handler) (string, error)
	Unwatch(id string) error
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Logger   *zap.Logger
	Patterns PatternSource
	Detector tree.BinaryDetector
	Counter  tokenizer.Counter
	// Watcher is required by StartWatching only.
	Watcher        WatchCapability
	DebounceWindow time.Duration
	// DetailWorkers bounds concurrent detail population.
	DetailWorkers int
	// ScanWorkers bounds concurrent directory reads during scans.
	ScanWorkers int
}

func (options Options) withDefaults() Options {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.Patterns == nil {
		options.Patterns = StaticPatterns(nil)
	}
	if options.Counter == nil {
		options.Counter = tokenizer.Estimator{}
	}
	if options.DebounceWindow <= 0 {
		options.DebounceWindow = notifier.DefaultWindow
	}
	if options.DetailWorkers <= 0 {
		options.DetailWorkers = runtime.NumCPU()
	}
	return options
}
