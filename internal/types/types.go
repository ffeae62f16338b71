// Package types defines every cross‑package data structure used by ctxtree.
package types

import "fmt"

// NodeKind distinguishes file nodes from directory nodes.
type NodeKind string

const (
	NodeKindFile      NodeKind = "file"
	NodeKindDirectory NodeKind = "directory"

	FormatRaw  = "raw"
	FormatJSON = "json"
)

// ValidatedPath is an absolute input path that already passed existence checks.
type ValidatedPath struct {
	AbsolutePath string
	IsDir        bool
}

// NormalizedNode is a single entry of the flattened tree keyed by its absolute path.
// ParentPath and ChildPaths are plain path references into the same map.
type NormalizedNode struct {
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Kind       NodeKind `json:"type"`
	ParentPath string   `json:"parentPath,omitempty"`
	ChildPaths []string `json:"childPaths,omitempty"`
	IsBinary   *bool    `json:"isBinary,omitempty"`
	TokenCount *int     `json:"tokenCount,omitempty"`
	// Revision changes every time the node is placed; detail results computed
	// for an older revision are discarded.
	Revision uint64 `json:"-"`
}

// IsDirectory reports whether the node is a directory.
func (node NormalizedNode) IsDirectory() bool {
	return node.Kind == NodeKindDirectory
}

// HasDetails reports whether the binary classification has been populated.
func (node NormalizedNode) HasDetails() bool {
	return node.IsBinary != nil
}

// Clone returns a deep copy that shares no slices or pointers with the receiver.
func (node NormalizedNode) Clone() NormalizedNode {
	cloned := node
	if node.ChildPaths != nil {
		cloned.ChildPaths = append([]string(nil), node.ChildPaths...)
	}
	if node.IsBinary != nil {
		isBinary := *node.IsBinary
		cloned.IsBinary = &isBinary
	}
	if node.TokenCount != nil {
		tokenCount := *node.TokenCount
		cloned.TokenCount = &tokenCount
	}
	return cloned
}

// TreeSnapshot is a by-value copy of the whole model handed to external readers.
type TreeSnapshot struct {
	Root  string                    `json:"root"`
	Nodes map[string]NormalizedNode `json:"map"`
}

// WatchEventKind is the closed set of watcher event kinds.
type WatchEventKind int

const (
	WatchEventCreate WatchEventKind = iota
	WatchEventUpdate
	WatchEventDelete
)

// String returns the lower-case name of the event kind.
func (kind WatchEventKind) String() string {
	switch kind {
	case WatchEventCreate:
		return "create"
	case WatchEventUpdate:
		return "update"
	case WatchEventDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", int(kind))
	}
}

// WatchEvent is a single filesystem change reported by a watch subscription.
type WatchEvent struct {
	Path string
	Kind WatchEventKind
}
