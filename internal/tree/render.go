package tree

import (
	"strings"

	"github.com/temirov/ctxtree/internal/types"
)

const (
	connectorMiddle   = "├── "
	connectorLast     = "└── "
	prefixContinued   = "│   "
	prefixEmpty       = "    "
	collapseSeparator = "/"
)

// RenderText draws the snapshot as an indented text tree headed by the root
// path. Chains of directories that each hold a single directory are drawn on
// one line as "a/b/c". An empty snapshot renders as "".
func RenderText(snapshot types.TreeSnapshot) string {
	rootNode, exists := snapshot.Nodes[snapshot.Root]
	if !exists {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(snapshot.Root)
	renderChildren(&builder, snapshot.Nodes, rootNode, "")
	return builder.String()
}

func renderChildren(builder *strings.Builder, nodes map[string]types.NormalizedNode, directory types.NormalizedNode, prefix string) {
	children := make([]types.NormalizedNode, 0, len(directory.ChildPaths))
	for _, childPath := range directory.ChildPaths {
		if child, exists := nodes[childPath]; exists {
			children = append(children, child)
		}
	}
	for index, child := range children {
		isLast := index == len(children)-1
		name, current := collapse(nodes, child)
		connector, childPrefix := connectorMiddle, prefixContinued
		if isLast {
			connector, childPrefix = connectorLast, prefixEmpty
		}
		builder.WriteString("\n")
		builder.WriteString(prefix)
		builder.WriteString(connector)
		builder.WriteString(name)
		if current.IsDirectory() {
			renderChildren(builder, nodes, current, prefix+childPrefix)
		}
	}
}

// collapse follows single-directory chains starting at node and returns the
// combined name with the last directory of the chain.
func collapse(nodes map[string]types.NormalizedNode, node types.NormalizedNode) (string, types.NormalizedNode) {
	name := node.Name
	current := node
	for current.IsDirectory() && len(current.ChildPaths) == 1 {
		child, exists := nodes[current.ChildPaths[0]]
		if !exists || !child.IsDirectory() {
			break
		}
		name += collapseSeparator + child.Name
		current = child
	}
	return name, current
}
