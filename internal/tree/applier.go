package tree

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/ctxtree/internal/types"
)

const (
	logMessageEventOutsideRoot = "ignoring event outside the current root"
	logMessageRebuildFailed    = "directory rebuild failed, removing"
	logFieldKind               = "kind"
)

// ApplyResult summarizes one applied batch.
type ApplyResult struct {
	// Pending lists file placements that need detail population.
	Pending []PendingDetail
	// Changed reports whether any node was added, replaced or removed.
	Changed bool
}

// Applier applies watcher events to a Store incrementally.
type Applier struct {
	// Builder rebuilds directory subtrees; its Matcher filters events.
	Builder *Builder
	// Lock, when set, is held around every store access. Filesystem
	// inspection and subtree scans run without it.
	Lock   sync.Locker
	Logger *zap.Logger
}

// Apply applies events in order. Per-event failures degrade to deletes. A
// cancelled context stops the batch after the current event.
func (applier *Applier) Apply(ctx context.Context, store *Store, events []types.WatchEvent) ApplyResult {
	var result ApplyResult
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		applier.applyEvent(ctx, store, event, &result)
	}
	return result
}

func (applier *Applier) applyEvent(ctx context.Context, store *Store, event types.WatchEvent, result *ApplyResult) {
	path := filepath.Clean(event.Path)
	var inside bool
	applier.withStore(func() { inside = store.Contains(path) })
	if !inside {
		applier.logger().Debug(logMessageEventOutsideRoot, zap.String(logFieldPath, path), zap.Stringer(logFieldKind, event.Kind))
		return
	}

	switch event.Kind {
	case types.WatchEventDelete:
		applier.remove(store, path, result)
	case types.WatchEventCreate, types.WatchEventUpdate:
		applier.upsert(ctx, store, path, result)
	}
}

func (applier *Applier) upsert(ctx context.Context, store *Store, path string, result *ApplyResult) {
	var parentPath string
	var isRoot bool
	applier.withStore(func() {
		parentPath = store.ParentFor(path)
		isRoot = path == store.Root()
	})

	// only the root may be reached through a symlink
	statPath := os.Lstat
	if isRoot {
		statPath = os.Stat
	}
	info, statError := statPath(path)
	if statError != nil {
		applier.remove(store, path, result)
		return
	}
	isDirectory := info.IsDir()
	if applier.Builder.Matcher.Matches(path, isDirectory) {
		applier.remove(store, path, result)
		return
	}

	if !isDirectory {
		if isRoot {
			applier.remove(store, path, result)
			return
		}
		applier.withStore(func() {
			revision := store.PlaceFile(path, parentPath)
			result.Pending = append(result.Pending, PendingDetail{Path: path, Revision: revision})
		})
		result.Changed = true
		return
	}

	nodes, buildError := applier.Builder.Build(ctx, path, parentPath)
	if buildError != nil {
		if ctx.Err() != nil {
			return
		}
		applier.logger().Warn(logMessageRebuildFailed, zap.String(logFieldPath, path), zap.Error(buildError))
		applier.remove(store, path, result)
		return
	}
	applier.withStore(func() {
		result.Pending = append(result.Pending, store.ReplaceSubtree(path, parentPath, nodes)...)
	})
	result.Changed = true
}

func (applier *Applier) remove(store *Store, path string, result *ApplyResult) {
	applier.withStore(func() {
		if store.Remove(path) {
			result.Changed = true
		}
	})
}

func (applier *Applier) withStore(operation func()) {
	if applier.Lock != nil {
		applier.Lock.Lock()
		defer applier.Lock.Unlock()
	}
	operation()
}

func (applier *Applier) logger() *zap.Logger {
	if applier.Logger == nil {
		return zap.NewNop()
	}
	return applier.Logger
}
