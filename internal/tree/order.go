package tree

import (
	"slices"
	"strings"

	"github.com/temirov/ctxtree/internal/types"
)

// childKey is the part of a node that decides its position among siblings.
type childKey struct {
	path        string
	name        string
	isDirectory bool
}

// compareChildren orders directories before files, then by case-insensitive
// name. Names that fold to the same string are ordered byte-wise.
func compareChildren(left childKey, right childKey) int {
	if left.isDirectory != right.isDirectory {
		if left.isDirectory {
			return -1
		}
		return 1
	}
	if order := strings.Compare(strings.ToLower(left.name), strings.ToLower(right.name)); order != 0 {
		return order
	}
	return strings.Compare(left.name, right.name)
}

func keyOf(node *types.NormalizedNode) childKey {
	return childKey{path: node.Path, name: node.Name, isDirectory: node.IsDirectory()}
}

// sortedChildPaths returns the paths of children in sibling order.
func sortedChildPaths(children []childKey) []string {
	slices.SortFunc(children, compareChildren)
	childPaths := make([]string, len(children))
	for index, child := range children {
		childPaths[index] = child.path
	}
	return childPaths
}
