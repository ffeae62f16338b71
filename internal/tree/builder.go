package tree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/ctxtree/internal/ignore"
	"github.com/temirov/ctxtree/internal/types"
)

const (
	// errorStatRootFormat is used when the scan root cannot be inspected.
	errorStatRootFormat = "inspecting %s: %w"
	// errorRootKindFormat is used when the scan root is not a directory.
	errorRootKindFormat = "scanning %s: %w"
	// errorReadDirectoryFormat is used when a directory cannot be read.
	errorReadDirectoryFormat = "reading directory %s: %w"

	logMessageSkipDirectory = "skipping unreadable directory"
	logFieldPath            = "path"
)

var readDirectory = os.ReadDir

// Builder scans a directory into normalized nodes.
type Builder struct {
	// Matcher excludes entries and their subtrees. A nil Matcher excludes nothing.
	Matcher *ignore.Matcher
	Logger  *zap.Logger
	// Concurrency bounds the number of directories read in parallel.
	// Zero selects the number of CPUs.
	Concurrency int
}

// Build scans the directory at root and returns its nodes keyed by path. The
// node for root carries parentPath. Unreadable descendants are logged and
// skipped; failure to read root itself fails the build. A root that is a
// symlink to a directory is scanned through the link; links below it are not
// followed.
func (builder *Builder) Build(ctx context.Context, root string, parentPath string) (map[string]*types.NormalizedNode, error) {
	root = filepath.Clean(root)
	rootInfo, statError := os.Stat(root)
	if statError != nil {
		return nil, fmt.Errorf(errorStatRootFormat, root, statError)
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf(errorRootKindFormat, root, ErrNotDirectory)
	}
	rootEntries, readError := readDirectory(root)
	if readError != nil {
		return nil, fmt.Errorf(errorReadDirectoryFormat, root, readError)
	}

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(builder.concurrency())
	currentScan := &scan{
		ctx:     groupContext,
		group:   group,
		matcher: builder.Matcher,
		logger:  builder.logger(),
		nodes:   make(map[string]*types.NormalizedNode),
	}
	rootNode := &types.NormalizedNode{
		Path:       root,
		Name:       filepath.Base(root),
		Kind:       types.NodeKindDirectory,
		ParentPath: parentPath,
	}
	currentScan.add(rootNode)
	populateError := currentScan.populate(rootNode, rootEntries)
	waitError := group.Wait()
	if populateError != nil {
		return nil, populateError
	}
	if waitError != nil {
		return nil, waitError
	}
	if contextError := ctx.Err(); contextError != nil {
		return nil, contextError
	}
	return currentScan.nodes, nil
}

func (builder *Builder) concurrency() int {
	if builder.Concurrency > 0 {
		return builder.Concurrency
	}
	return runtime.NumCPU()
}

func (builder *Builder) logger() *zap.Logger {
	if builder.Logger == nil {
		return zap.NewNop()
	}
	return builder.Logger
}

// scan is the state of a single Build call shared by its traversal goroutines.
type scan struct {
	ctx     context.Context
	group   *errgroup.Group
	matcher *ignore.Matcher
	logger  *zap.Logger

	mutex sync.Mutex
	nodes map[string]*types.NormalizedNode
}

func (currentScan *scan) add(nodes ...*types.NormalizedNode) {
	currentScan.mutex.Lock()
	defer currentScan.mutex.Unlock()
	for _, node := range nodes {
		currentScan.nodes[node.Path] = node
	}
}

// visit reads a subdirectory. A read failure keeps the directory node with no
// children.
func (currentScan *scan) visit(directory *types.NormalizedNode) error {
	if contextError := currentScan.ctx.Err(); contextError != nil {
		return contextError
	}
	entries, readError := readDirectory(directory.Path)
	if readError != nil {
		currentScan.logger.Warn(logMessageSkipDirectory, zap.String(logFieldPath, directory.Path), zap.Error(readError))
		return nil
	}
	return currentScan.populate(directory, entries)
}

// populate creates the children of directory from its entries and schedules
// the traversal of child directories. Child directories are traversed on the
// errgroup when a slot is free and inline otherwise.
func (currentScan *scan) populate(directory *types.NormalizedNode, entries []os.DirEntry) error {
	children := make([]*types.NormalizedNode, 0, len(entries))
	keys := make([]childKey, 0, len(entries))
	for _, entry := range entries {
		childPath := filepath.Join(directory.Path, entry.Name())
		isDirectory := entry.IsDir()
		if currentScan.matcher.Matches(childPath, isDirectory) {
			continue
		}
		kind := types.NodeKindFile
		if isDirectory {
			kind = types.NodeKindDirectory
		}
		child := &types.NormalizedNode{
			Path:       childPath,
			Name:       entry.Name(),
			Kind:       kind,
			ParentPath: directory.Path,
		}
		children = append(children, child)
		keys = append(keys, keyOf(child))
	}
	directory.ChildPaths = sortedChildPaths(keys)
	currentScan.add(children...)

	for _, child := range children {
		if !child.IsDirectory() {
			continue
		}
		subdirectory := child
		if currentScan.group.TryGo(func() error { return currentScan.visit(subdirectory) }) {
			continue
		}
		if visitError := currentScan.visit(subdirectory); visitError != nil {
			return visitError
		}
	}
	return nil
}
