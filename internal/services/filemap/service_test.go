package filemap_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/temirov/ctxtree/internal/services/filemap"
	"github.com/temirov/ctxtree/internal/services/watcher"
	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/types"
)

const (
	testDebounceWindow = 100 * time.Millisecond
	deliveryTimeout    = 3 * time.Second
)

func writeFiles(testingInstance *testing.T, root string, files map[string]string) {
	testingInstance.Helper()
	for relativePath, content := range files {
		absolutePath := filepath.Join(root, filepath.FromSlash(relativePath))
		if makeError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); makeError != nil {
			testingInstance.Fatalf("creating directory for %s: %v", absolutePath, makeError)
		}
		if writeError := os.WriteFile(absolutePath, []byte(content), 0o600); writeError != nil {
			testingInstance.Fatalf("writing %s: %v", absolutePath, writeError)
		}
	}
}

// assertSnapshotInvariants checks parent and child references of a snapshot.
func assertSnapshotInvariants(testingInstance *testing.T, snapshot types.TreeSnapshot) {
	testingInstance.Helper()
	for path, node := range snapshot.Nodes {
		if path == snapshot.Root {
			continue
		}
		parent, exists := snapshot.Nodes[node.ParentPath]
		if !exists || !parent.IsDirectory() {
			testingInstance.Fatalf("node %s has no directory parent %s", path, node.ParentPath)
		}
		linked := 0
		for _, childPath := range parent.ChildPaths {
			if childPath == path {
				linked++
			}
		}
		if linked != 1 {
			testingInstance.Fatalf("node %s is linked %d times into %s", path, linked, node.ParentPath)
		}
	}
	for path, node := range snapshot.Nodes {
		for _, childPath := range node.ChildPaths {
			child, exists := snapshot.Nodes[childPath]
			if !exists || child.ParentPath != path {
				testingInstance.Fatalf("directory %s lists foreign or missing child %s", path, childPath)
			}
		}
	}
}

func newTestService(testingInstance *testing.T, options filemap.Options) *filemap.Service {
	testingInstance.Helper()
	if options.DebounceWindow == 0 {
		options.DebounceWindow = testDebounceWindow
	}
	service := filemap.NewService(options)
	testingInstance.Cleanup(func() { _ = service.Close() })
	return service
}

// TestBuildTreeFiltersAndPopulatesDetails verifies a build applies ignore patterns and fills file details.
func TestBuildTreeFiltersAndPopulatesDetails(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{
		"main.go":       "package main",
		"debug.log":     "noise",
		"assets/a.bin":  "\x00\x01",
		"docs/guide.md": "# Guide",
	})
	service := newTestService(testingInstance, filemap.Options{Patterns: filemap.StaticPatterns{"*.log"}})

	snapshot, buildError := service.BuildTree(context.Background(), root)
	if buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	if snapshot.Root != root {
		testingInstance.Fatalf("expected root %s, got %s", root, snapshot.Root)
	}
	if _, exists := snapshot.Nodes[filepath.Join(root, "debug.log")]; exists {
		testingInstance.Fatalf("expected debug.log to be ignored")
	}
	assertSnapshotInvariants(testingInstance, snapshot)

	service.WaitForDetails()
	current := service.Snapshot()
	mainNode := current.Nodes[filepath.Join(root, "main.go")]
	if mainNode.IsBinary == nil || *mainNode.IsBinary || mainNode.TokenCount == nil || *mainNode.TokenCount != tokenizer.EstimateTokens("package main") {
		testingInstance.Fatalf("unexpected details for main.go: %+v", mainNode)
	}
	binaryNode := current.Nodes[filepath.Join(root, "assets", "a.bin")]
	if binaryNode.IsBinary == nil || !*binaryNode.IsBinary || binaryNode.TokenCount != nil {
		testingInstance.Fatalf("unexpected details for a.bin: %+v", binaryNode)
	}
	if !strings.HasPrefix(service.FlattenedTreeText(), root+"\n") {
		testingInstance.Fatalf("expected rendering to start with the root, got %q", service.FlattenedTreeText())
	}
}

// TestBuildTreeFailsForMissingRoot verifies an unreadable root fails the build.
func TestBuildTreeFailsForMissingRoot(testingInstance *testing.T) {
	service := newTestService(testingInstance, filemap.Options{})
	if _, buildError := service.BuildTree(context.Background(), filepath.Join(testingInstance.TempDir(), "missing")); buildError == nil {
		testingInstance.Fatalf("expected BuildTree to fail for a missing root")
	}
}

// TestBuildTreeFollowsSymlinkedRoot verifies a root given as a link to a directory builds its contents.
func TestBuildTreeFollowsSymlinkedRoot(testingInstance *testing.T) {
	base := testingInstance.TempDir()
	writeFiles(testingInstance, base, map[string]string{"real/a.txt": "alpha"})
	linkPath := filepath.Join(base, "link")
	if linkError := os.Symlink(filepath.Join(base, "real"), linkPath); linkError != nil {
		testingInstance.Skipf("symlinks unavailable: %v", linkError)
	}
	service := newTestService(testingInstance, filemap.Options{})

	snapshot, buildError := service.BuildTree(context.Background(), linkPath)
	if buildError != nil {
		testingInstance.Fatalf("BuildTree() failed for a linked root: %v", buildError)
	}
	if len(snapshot.Nodes) != 2 {
		testingInstance.Fatalf("expected root and a.txt, got %d nodes", len(snapshot.Nodes))
	}
	if _, exists := snapshot.Nodes[filepath.Join(linkPath, "a.txt")]; !exists {
		testingInstance.Fatalf("expected a.txt below the linked root, got %v", snapshot.Nodes)
	}
}

// failingDetector reports a read failure for one file name.
type failingDetector struct {
	failName string
}

func (detector failingDetector) IsBinary(path string) (bool, error) {
	if filepath.Base(path) == detector.failName {
		return false, os.ErrPermission
	}
	return false, nil
}

// TestDetailFailureLeavesNodeStructural verifies a failed detail read keeps the node without details while siblings complete.
func TestDetailFailureLeavesNodeStructural(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"broken.txt": "b", "fine.txt": "fine", "nested/also.txt": "also"})
	service := newTestService(testingInstance, filemap.Options{Detector: failingDetector{failName: "broken.txt"}, DetailWorkers: 1})
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	service.WaitForDetails()

	current := service.Snapshot()
	brokenNode, exists := current.Nodes[filepath.Join(root, "broken.txt")]
	if !exists {
		testingInstance.Fatalf("expected broken.txt to stay in the tree")
	}
	if brokenNode.HasDetails() || brokenNode.TokenCount != nil {
		testingInstance.Fatalf("expected broken.txt to stay structural, got %+v", brokenNode)
	}
	for _, relativePath := range []string{"fine.txt", "nested/also.txt"} {
		node := current.Nodes[filepath.Join(root, filepath.FromSlash(relativePath))]
		if !node.HasDetails() || node.TokenCount == nil {
			testingInstance.Fatalf("expected details for %s, got %+v", relativePath, node)
		}
	}
}

// TestApplyWatchEventsCoalescesNotifications verifies three quick batches produce one delivery reflecting all of them.
func TestApplyWatchEventsCoalescesNotifications(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"seed.txt": "seed"})
	service := newTestService(testingInstance, filemap.Options{})
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	service.WaitForDetails()
	time.Sleep(3 * testDebounceWindow)

	var deliveriesMutex sync.Mutex
	var deliveries []types.TreeSnapshot
	delivered := make(chan struct{}, 8)
	service.OnTreeChanged(func(snapshot types.TreeSnapshot) {
		deliveriesMutex.Lock()
		deliveries = append(deliveries, snapshot)
		deliveriesMutex.Unlock()
		delivered <- struct{}{}
	})

	var lastApply time.Time
	createdPaths := make([]string, 0, 3)
	for index, name := range []string{"one.txt", "two.txt", "three.txt"} {
		writeFiles(testingInstance, root, map[string]string{name: strings.Repeat("x", index+1)})
		createdPath := filepath.Join(root, name)
		createdPaths = append(createdPaths, createdPath)
		lastApply = time.Now()
		if applyError := service.ApplyWatchEvents(context.Background(), []types.WatchEvent{{Path: createdPath, Kind: types.WatchEventCreate}}); applyError != nil {
			testingInstance.Fatalf("ApplyWatchEvents() failed: %v", applyError)
		}
		time.Sleep(testDebounceWindow / 5)
	}

	select {
	case <-delivered:
	case <-time.After(deliveryTimeout):
		testingInstance.Fatalf("expected a change notification")
	}
	deliveredAt := time.Now()
	time.Sleep(4 * testDebounceWindow)

	deliveriesMutex.Lock()
	defer deliveriesMutex.Unlock()
	if len(deliveries) != 1 {
		testingInstance.Fatalf("expected exactly one delivery, got %d", len(deliveries))
	}
	if deliveredAt.Sub(lastApply) < testDebounceWindow {
		testingInstance.Fatalf("delivery arrived %v after the last batch, before the debounce window", deliveredAt.Sub(lastApply))
	}
	for _, createdPath := range createdPaths {
		if _, exists := deliveries[0].Nodes[createdPath]; !exists {
			testingInstance.Fatalf("expected delivered snapshot to contain %s", createdPath)
		}
	}
	assertSnapshotInvariants(testingInstance, deliveries[0])
}

// TestApplyWatchEventsDeleteCascade verifies deleting a directory removes its subtree from the model.
func TestApplyWatchEventsDeleteCascade(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"d/a/b": "b", "keep.txt": "k"})
	service := newTestService(testingInstance, filemap.Options{})
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	directoryPath := filepath.Join(root, "d")
	if removeError := os.RemoveAll(directoryPath); removeError != nil {
		testingInstance.Fatalf("removing %s: %v", directoryPath, removeError)
	}
	if applyError := service.ApplyWatchEvents(context.Background(), []types.WatchEvent{{Path: directoryPath, Kind: types.WatchEventDelete}}); applyError != nil {
		testingInstance.Fatalf("ApplyWatchEvents() failed: %v", applyError)
	}
	snapshot := service.Snapshot()
	if len(snapshot.Nodes) != 2 {
		testingInstance.Fatalf("expected root and keep.txt only, got %d nodes", len(snapshot.Nodes))
	}
	if !slices.Equal(snapshot.Nodes[root].ChildPaths, []string{filepath.Join(root, "keep.txt")}) {
		testingInstance.Fatalf("unexpected root children %v", snapshot.Nodes[root].ChildPaths)
	}
	assertSnapshotInvariants(testingInstance, snapshot)
}

// blockingDetector holds detail population until released.
type blockingDetector struct {
	release chan struct{}
}

func (detector blockingDetector) IsBinary(string) (bool, error) {
	<-detector.release
	return false, nil
}

// TestStaleDetailsAreDiscarded verifies details computed for a removed file are never written.
func TestStaleDetailsAreDiscarded(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"file.txt": "content"})
	detector := blockingDetector{release: make(chan struct{})}
	service := newTestService(testingInstance, filemap.Options{Detector: detector})
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	filePath := filepath.Join(root, "file.txt")
	if removeError := os.Remove(filePath); removeError != nil {
		testingInstance.Fatalf("removing %s: %v", filePath, removeError)
	}
	if applyError := service.ApplyWatchEvents(context.Background(), []types.WatchEvent{{Path: filePath, Kind: types.WatchEventDelete}}); applyError != nil {
		testingInstance.Fatalf("ApplyWatchEvents() failed: %v", applyError)
	}
	close(detector.release)
	service.WaitForDetails()
	if _, exists := service.Snapshot().Nodes[filePath]; exists {
		testingInstance.Fatalf("expected a stale detail result not to resurrect %s", filePath)
	}
}

// TestSubscriptionsAndClose verifies unsubscribe semantics and that a closed service rejects work.
func TestSubscriptionsAndClose(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"file.txt": "content"})
	service := filemap.NewService(filemap.Options{DebounceWindow: testDebounceWindow})
	delivered := make(chan struct{}, 4)
	subscriptionID := service.OnTreeChanged(func(types.TreeSnapshot) { delivered <- struct{}{} })
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	if closeError := service.Close(); closeError != nil {
		testingInstance.Fatalf("Close() failed: %v", closeError)
	}
	time.Sleep(3 * testDebounceWindow)
	if len(delivered) != 0 {
		testingInstance.Fatalf("expected no delivery after Close")
	}
	if !service.Unsubscribe(subscriptionID) || service.Unsubscribe(subscriptionID) {
		testingInstance.Fatalf("expected Unsubscribe to succeed once")
	}
	if _, buildError := service.BuildTree(context.Background(), root); !errors.Is(buildError, filemap.ErrServiceClosed) {
		testingInstance.Fatalf("expected ErrServiceClosed, got %v", buildError)
	}
	if applyError := service.ApplyWatchEvents(context.Background(), nil); !errors.Is(applyError, filemap.ErrServiceClosed) {
		testingInstance.Fatalf("expected ErrServiceClosed, got %v", applyError)
	}
	if closeError := service.Close(); closeError != nil {
		testingInstance.Fatalf("second Close() failed: %v", closeError)
	}
}

// TestCloseWaitsForConcurrentBatches verifies Close and in-flight batches settle without scheduling work afterwards.
func TestCloseWaitsForConcurrentBatches(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"seed.txt": "seed"})
	service := filemap.NewService(filemap.Options{DebounceWindow: testDebounceWindow, DetailWorkers: 2})
	if _, buildError := service.BuildTree(context.Background(), root); buildError != nil {
		testingInstance.Fatalf("BuildTree() failed: %v", buildError)
	}
	const batchCount = 8
	for index := 0; index < batchCount; index++ {
		writeFiles(testingInstance, root, map[string]string{fmt.Sprintf("file-%d.txt", index): "content"})
	}

	var workers sync.WaitGroup
	for index := 0; index < batchCount; index++ {
		workers.Add(1)
		go func(index int) {
			defer workers.Done()
			event := types.WatchEvent{Path: filepath.Join(root, fmt.Sprintf("file-%d.txt", index)), Kind: types.WatchEventCreate}
			applyError := service.ApplyWatchEvents(context.Background(), []types.WatchEvent{event})
			if applyError != nil && !errors.Is(applyError, filemap.ErrServiceClosed) {
				testingInstance.Errorf("ApplyWatchEvents() failed: %v", applyError)
			}
		}(index)
	}
	if closeError := service.Close(); closeError != nil {
		testingInstance.Fatalf("Close() failed: %v", closeError)
	}
	workers.Wait()
	service.WaitForDetails()

	event := types.WatchEvent{Path: filepath.Join(root, "seed.txt"), Kind: types.WatchEventUpdate}
	if applyError := service.ApplyWatchEvents(context.Background(), []types.WatchEvent{event}); !errors.Is(applyError, filemap.ErrServiceClosed) {
		testingInstance.Fatalf("expected ErrServiceClosed after Close, got %v", applyError)
	}
}

// TestStartWatchingTracksFilesystem verifies watched changes reach subscribers.
func TestStartWatchingTracksFilesystem(testingInstance *testing.T) {
	root := testingInstance.TempDir()
	writeFiles(testingInstance, root, map[string]string{"initial.txt": "initial"})
	service := newTestService(testingInstance, filemap.Options{Watcher: watcher.NewService(nil, 10*time.Millisecond)})
	snapshots := make(chan types.TreeSnapshot, 16)
	service.OnTreeChanged(func(snapshot types.TreeSnapshot) { snapshots <- snapshot })

	if _, watchError := service.StartWatching(context.Background(), root); watchError != nil {
		testingInstance.Fatalf("StartWatching() failed: %v", watchError)
	}
	addedPath := filepath.Join(root, "added.txt")
	writeFiles(testingInstance, root, map[string]string{"added.txt": "added"})

	deadline := time.After(deliveryTimeout)
	for {
		select {
		case snapshot := <-snapshots:
			if _, exists := snapshot.Nodes[addedPath]; exists {
				assertSnapshotInvariants(testingInstance, snapshot)
				if stopError := service.StopWatching(); stopError != nil {
					testingInstance.Fatalf("StopWatching() failed: %v", stopError)
				}
				return
			}
		case <-deadline:
			testingInstance.Fatalf("timed out waiting for %s to appear", addedPath)
		}
	}
}

// TestStartWatchingRequiresWatcher verifies StartWatching fails without a watch capability.
func TestStartWatchingRequiresWatcher(testingInstance *testing.T) {
	service := newTestService(testingInstance, filemap.Options{})
	if _, watchError := service.StartWatching(context.Background(), testingInstance.TempDir()); !errors.Is(watchError, filemap.ErrNoWatcher) {
		testingInstance.Fatalf("expected ErrNoWatcher, got %v", watchError)
	}
}
