package tree_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/temirov/ctxtree/internal/ignore"
	"github.com/temirov/ctxtree/internal/tree"
	"github.com/temirov/ctxtree/internal/types"
)

// directoryMarker marks an entry of a fixture layout as a directory.
const directoryMarker = "<dir>"

// writeLayout creates files and directories below root. Keys are
// slash-separated relative paths; directoryMarker values create directories.
func writeLayout(testingInstance *testing.T, root string, layout map[string]string) {
	testingInstance.Helper()
	for relativePath, content := range layout {
		absolutePath := filepath.Join(root, filepath.FromSlash(relativePath))
		if content == directoryMarker {
			if makeError := os.MkdirAll(absolutePath, 0o755); makeError != nil {
				testingInstance.Fatalf("creating directory %s: %v", absolutePath, makeError)
			}
			continue
		}
		if makeError := os.MkdirAll(filepath.Dir(absolutePath), 0o755); makeError != nil {
			testingInstance.Fatalf("creating directory for %s: %v", absolutePath, makeError)
		}
		if writeError := os.WriteFile(absolutePath, []byte(content), 0o600); writeError != nil {
			testingInstance.Fatalf("writing %s: %v", absolutePath, writeError)
		}
	}
}

// buildStore scans root with patterns into a fresh store.
func buildStore(testingInstance *testing.T, root string, patterns []string) (*tree.Store, *tree.Builder) {
	testingInstance.Helper()
	builder := &tree.Builder{Matcher: ignore.NewMatcher(root, patterns), Concurrency: 2}
	nodes, buildError := builder.Build(context.Background(), root, "")
	if buildError != nil {
		testingInstance.Fatalf("building %s: %v", root, buildError)
	}
	store := tree.NewStore()
	store.Replace(root, nodes)
	assertValid(testingInstance, store)
	return store, builder
}

func assertValid(testingInstance *testing.T, store *tree.Store) {
	testingInstance.Helper()
	if validationError := store.Validate(); validationError != nil {
		testingInstance.Fatalf("store invariants violated: %v", validationError)
	}
}

func childPathsOf(testingInstance *testing.T, store *tree.Store, path string) []string {
	testingInstance.Helper()
	node, exists := store.Node(path)
	if !exists {
		testingInstance.Fatalf("expected node %s to exist", path)
	}
	return node.ChildPaths
}

func joinAll(root string, relativePaths ...string) []string {
	absolutePaths := make([]string, len(relativePaths))
	for index, relativePath := range relativePaths {
		absolutePaths[index] = filepath.Join(root, filepath.FromSlash(relativePath))
	}
	return absolutePaths
}

func directoryNode(path string, parentPath string) *types.NormalizedNode {
	return &types.NormalizedNode{Path: path, Name: filepath.Base(path), Kind: types.NodeKindDirectory, ParentPath: parentPath}
}
