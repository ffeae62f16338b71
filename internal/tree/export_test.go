package tree

import "os"

// ReplaceReadDirectory swaps the directory reader used by scans and returns a
// function restoring the previous one.
func ReplaceReadDirectory(replacement func(string) ([]os.DirEntry, error)) func() {
	previous := readDirectory
	readDirectory = replacement
	return func() { readDirectory = previous }
}
