// Package output renders tree snapshots for the command line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/temirov/ctxtree/internal/tree"
	"github.com/temirov/ctxtree/internal/types"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	errorUnsupportedFormat = "unsupported output format %q"
)

// Summary aggregates a snapshot.
type Summary struct {
	TotalFiles       int    `json:"totalFiles"`
	TotalDirectories int    `json:"totalDirectories"`
	BinaryFiles      int    `json:"binaryFiles"`
	PendingFiles     int    `json:"pendingFiles,omitempty"`
	TotalTokens      int    `json:"totalTokens"`
	Model            string `json:"model,omitempty"`
}

type snapshotDocument struct {
	Root    string                          `json:"root"`
	Nodes   map[string]types.NormalizedNode `json:"map"`
	Summary Summary                         `json:"summary"`
}

// Summarize counts the nodes of snapshot. The root directory is not counted.
// Files whose details are not populated yet are reported as pending.
func Summarize(snapshot types.TreeSnapshot, model string) Summary {
	summary := Summary{Model: model}
	for path, node := range snapshot.Nodes {
		if node.IsDirectory() {
			if path != snapshot.Root {
				summary.TotalDirectories++
			}
			continue
		}
		summary.TotalFiles++
		switch {
		case !node.HasDetails():
			summary.PendingFiles++
		case *node.IsBinary:
			summary.BinaryFiles++
		case node.TokenCount != nil:
			summary.TotalTokens += *node.TokenCount
		}
	}
	return summary
}

// FormatSummaryLine formats a Summary into the raw summary line.
func FormatSummaryLine(summary Summary) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Summary: %d %s, %d %s",
		summary.TotalFiles, plural(summary.TotalFiles, "file", "files"),
		summary.TotalDirectories, plural(summary.TotalDirectories, "directory", "directories"))
	if summary.BinaryFiles > 0 {
		fmt.Fprintf(&builder, ", %d binary", summary.BinaryFiles)
	}
	if summary.TotalTokens > 0 {
		fmt.Fprintf(&builder, ", %d tokens", summary.TotalTokens)
	}
	if summary.PendingFiles > 0 {
		fmt.Fprintf(&builder, ", %d pending", summary.PendingFiles)
	}
	if summary.Model != "" {
		fmt.Fprintf(&builder, " (model: %s)", summary.Model)
	}
	return builder.String()
}

// RenderSnapshot renders snapshot in format. Raw output is the flattened tree
// followed by a summary line; JSON output is the node map with a summary.
func RenderSnapshot(snapshot types.TreeSnapshot, format string, model string) (string, error) {
	summary := Summarize(snapshot, model)
	switch format {
	case "", types.FormatRaw:
		text := tree.RenderText(snapshot)
		if text == "" {
			return "", nil
		}
		return text + "\n" + FormatSummaryLine(summary) + "\n", nil
	case types.FormatJSON:
		nodes := snapshot.Nodes
		if nodes == nil {
			nodes = map[string]types.NormalizedNode{}
		}
		encoded, encodeError := json.MarshalIndent(snapshotDocument{Root: snapshot.Root, Nodes: nodes, Summary: summary}, indentPrefix, indentSpacer)
		if encodeError != nil {
			return "", encodeError
		}
		return string(encoded) + "\n", nil
	default:
		return "", fmt.Errorf(errorUnsupportedFormat, format)
	}
}

// WriteSnapshot renders snapshot to writer.
func WriteSnapshot(writer io.Writer, snapshot types.TreeSnapshot, format string, model string) error {
	rendered, renderError := RenderSnapshot(snapshot, format, model)
	if renderError != nil {
		return renderError
	}
	_, writeError := io.WriteString(writer, rendered)
	return writeError
}

// ValidateFormat reports an error for formats RenderSnapshot does not support.
func ValidateFormat(format string) error {
	switch format {
	case types.FormatRaw, types.FormatJSON:
		return nil
	default:
		return fmt.Errorf(errorUnsupportedFormat, format)
	}
}

func plural(count int, singular string, pluralForm string) string {
	if count == 1 {
		return singular
	}
	return pluralForm
}
