// Package tree maintains the normalized, path-keyed model of a directory tree.
package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/temirov/ctxtree/internal/types"
)

// ErrNotDirectory is returned when a tree root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

const (
	errorMissingParentFormat    = "node %s: parent %s is missing"
	errorParentNotDirectory     = "node %s: parent %s is not a directory"
	errorMissingChildLinkFormat = "node %s: not listed in children of %s"
	errorDanglingChildFormat    = "directory %s: child %s does not exist"
	errorForeignChildFormat     = "directory %s: child %s belongs to %q"
	errorDuplicateChildFormat   = "directory %s: child %s listed %d times"
	errorUnorderedChildFormat   = "directory %s: children out of order at %s"
	errorUnreachableNodeFormat  = "node %s is not reachable from root %s"
	errorMissingRootFormat      = "root %s is missing"
)

// Details holds the attributes computed for a file after structural placement.
type Details struct {
	IsBinary   bool
	TokenCount *int
}

// PendingDetail names a file placement that still needs detail population.
type PendingDetail struct {
	Path     string
	Revision uint64
}

// Store owns every node of the model. It is not safe for concurrent use; the
// owner serializes access.
type Store struct {
	root     string
	nodes    map[string]*types.NormalizedNode
	revision uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{nodes: make(map[string]*types.NormalizedNode)}
}

// Root returns the path of the current root, or "" when nothing was built.
func (store *Store) Root() string {
	return store.root
}

// Len returns the number of nodes.
func (store *Store) Len() int {
	return len(store.nodes)
}

// Node returns a copy of the node stored at path.
func (store *Store) Node(path string) (types.NormalizedNode, bool) {
	node, exists := store.nodes[path]
	if !exists {
		return types.NormalizedNode{}, false
	}
	return node.Clone(), true
}

// Contains reports whether path is within the current root.
func (store *Store) Contains(path string) bool {
	if store.root == "" {
		return false
	}
	return path == store.root || strings.HasPrefix(path, descendantPrefix(store.root))
}

// ParentFor returns the parent of an existing node, or the directory
// containing path when the node is unknown. The root has no parent.
func (store *Store) ParentFor(path string) string {
	if path == store.root {
		return ""
	}
	if node, exists := store.nodes[path]; exists {
		return node.ParentPath
	}
	return filepath.Dir(path)
}

// Replace discards the whole model and installs nodes under root. It returns
// every file placement awaiting details.
func (store *Store) Replace(root string, nodes map[string]*types.NormalizedNode) []PendingDetail {
	store.root = root
	store.nodes = make(map[string]*types.NormalizedNode, len(nodes))
	return store.insert(nodes)
}

// Remove deletes the node at path, unlinks it from its parent and removes
// every node nested below it. Removing the root empties the store but keeps
// the root path. It reports whether a node was removed.
func (store *Store) Remove(path string) bool {
	node, exists := store.nodes[path]
	if !exists {
		return false
	}
	store.unlinkChild(node.ParentPath, path)
	if node.IsDirectory() {
		store.removeDescendants(path)
	}
	delete(store.nodes, path)
	return true
}

// ReplaceSubtree drops everything at and below path, installs nodes in its
// place and links the subtree root into parentPath. Nodes already nested
// below path but unknown to the old subtree are dropped as well.
func (store *Store) ReplaceSubtree(path string, parentPath string, nodes map[string]*types.NormalizedNode) []PendingDetail {
	if existing, exists := store.nodes[path]; exists {
		store.unlinkChild(existing.ParentPath, path)
		delete(store.nodes, path)
	}
	store.removeDescendants(path)
	if subtreeRoot, exists := nodes[path]; exists {
		subtreeRoot.ParentPath = parentPath
	}
	pending := store.insert(nodes)
	store.linkChild(parentPath, path)
	return pending
}

// PlaceFile installs a fresh structural placeholder for the file at path and
// returns its revision. A directory previously stored at path is removed with
// its subtree.
func (store *Store) PlaceFile(path string, parentPath string) uint64 {
	if existing, exists := store.nodes[path]; exists && existing.IsDirectory() {
		store.Remove(path)
	}
	store.revision++
	store.nodes[path] = &types.NormalizedNode{
		Path:       path,
		Name:       filepath.Base(path),
		Kind:       types.NodeKindFile,
		ParentPath: parentPath,
		Revision:   store.revision,
	}
	store.linkChild(parentPath, path)
	return store.revision
}

// SetDetails writes details onto the file at path if it is still the
// placement identified by revision. It reports whether the write happened.
func (store *Store) SetDetails(path string, revision uint64, details Details) bool {
	node, exists := store.nodes[path]
	if !exists || node.Kind != types.NodeKindFile || node.Revision != revision {
		return false
	}
	isBinary := details.IsBinary
	node.IsBinary = &isBinary
	node.TokenCount = nil
	if !details.IsBinary && details.TokenCount != nil {
		tokenCount := *details.TokenCount
		node.TokenCount = &tokenCount
	}
	return true
}

// Snapshot returns a deep copy of the model.
func (store *Store) Snapshot() types.TreeSnapshot {
	snapshot := types.TreeSnapshot{
		Root:  store.root,
		Nodes: make(map[string]types.NormalizedNode, len(store.nodes)),
	}
	for path, node := range store.nodes {
		snapshot.Nodes[path] = node.Clone()
	}
	return snapshot
}

// Validate checks the structural invariants of the model: parents resolve to
// directories, child lists mirror parent references exactly and in order, and
// every node is reachable from the root.
func (store *Store) Validate() error {
	if len(store.nodes) == 0 {
		return nil
	}
	var violations []error
	if _, exists := store.nodes[store.root]; !exists {
		return fmt.Errorf(errorMissingRootFormat, store.root)
	}
	for path, node := range store.nodes {
		if path == store.root {
			continue
		}
		parent, exists := store.nodes[node.ParentPath]
		switch {
		case !exists:
			violations = append(violations, fmt.Errorf(errorMissingParentFormat, path, node.ParentPath))
		case !parent.IsDirectory():
			violations = append(violations, fmt.Errorf(errorParentNotDirectory, path, node.ParentPath))
		case !slices.Contains(parent.ChildPaths, path):
			violations = append(violations, fmt.Errorf(errorMissingChildLinkFormat, path, node.ParentPath))
		}
	}
	for path, node := range store.nodes {
		violations = append(violations, store.validateChildren(path, node)...)
	}
	reached := store.reachable()
	for path := range store.nodes {
		if _, ok := reached[path]; !ok {
			violations = append(violations, fmt.Errorf(errorUnreachableNodeFormat, path, store.root))
		}
	}
	return errors.Join(violations...)
}

func (store *Store) validateChildren(path string, node *types.NormalizedNode) []error {
	var violations []error
	occurrences := make(map[string]int, len(node.ChildPaths))
	var previous *types.NormalizedNode
	for _, childPath := range node.ChildPaths {
		occurrences[childPath]++
		child, exists := store.nodes[childPath]
		if !exists {
			violations = append(violations, fmt.Errorf(errorDanglingChildFormat, path, childPath))
			continue
		}
		if child.ParentPath != path {
			violations = append(violations, fmt.Errorf(errorForeignChildFormat, path, childPath, child.ParentPath))
		}
		if previous != nil && compareChildren(keyOf(previous), keyOf(child)) > 0 {
			violations = append(violations, fmt.Errorf(errorUnorderedChildFormat, path, childPath))
		}
		previous = child
	}
	for childPath, count := range occurrences {
		if count > 1 {
			violations = append(violations, fmt.Errorf(errorDuplicateChildFormat, path, childPath, count))
		}
	}
	return violations
}

// reachable walks child references from the root. A visited set stops the
// walk on cycles.
func (store *Store) reachable() map[string]struct{} {
	reached := make(map[string]struct{}, len(store.nodes))
	queue := []string{store.root}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if _, seen := reached[path]; seen {
			continue
		}
		node, exists := store.nodes[path]
		if !exists {
			continue
		}
		reached[path] = struct{}{}
		queue = append(queue, node.ChildPaths...)
	}
	return reached
}

// insert stamps fresh revisions on nodes and adds them to the map.
func (store *Store) insert(nodes map[string]*types.NormalizedNode) []PendingDetail {
	var pending []PendingDetail
	for path, node := range nodes {
		store.revision++
		node.Revision = store.revision
		store.nodes[path] = node
		if node.Kind == types.NodeKindFile {
			pending = append(pending, PendingDetail{Path: path, Revision: node.Revision})
		}
	}
	return pending
}

func (store *Store) removeDescendants(path string) {
	prefix := descendantPrefix(path)
	for candidatePath := range store.nodes {
		if strings.HasPrefix(candidatePath, prefix) {
			delete(store.nodes, candidatePath)
		}
	}
}

// linkChild inserts childPath into the children of parentPath at its sorted
// position. A missing parent leaves the child unlinked.
func (store *Store) linkChild(parentPath string, childPath string) {
	parent, exists := store.nodes[parentPath]
	if !exists || !parent.IsDirectory() {
		return
	}
	child, exists := store.nodes[childPath]
	if !exists || slices.Contains(parent.ChildPaths, childPath) {
		return
	}
	position, _ := slices.BinarySearchFunc(parent.ChildPaths, keyOf(child), func(siblingPath string, target childKey) int {
		return compareChildren(store.siblingKey(siblingPath), target)
	})
	parent.ChildPaths = slices.Insert(parent.ChildPaths, position, childPath)
}

func (store *Store) unlinkChild(parentPath string, childPath string) {
	parent, exists := store.nodes[parentPath]
	if !exists {
		return
	}
	parent.ChildPaths = slices.DeleteFunc(parent.ChildPaths, func(candidate string) bool {
		return candidate == childPath
	})
}

func (store *Store) siblingKey(path string) childKey {
	if node, exists := store.nodes[path]; exists {
		return keyOf(node)
	}
	return childKey{path: path, name: filepath.Base(path)}
}

// descendantPrefix returns the prefix shared by every path nested below path.
func descendantPrefix(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return path
	}
	return path + string(filepath.Separator)
}
