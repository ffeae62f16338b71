package utils

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"
)

// sniffLength defines the maximum number of bytes read when detecting binary content.
const sniffLength = 8000

// IsBinary reports whether the provided byte slice appears to contain binary data.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}

// isBinaryPrefix is IsBinary for a prefix cut from a longer stream. A multi-byte
// rune split by the cut is not treated as invalid UTF-8.
func isBinaryPrefix(prefix []byte) bool {
	for trimmed := 0; trimmed < utf8.UTFMax-1 && len(prefix) > 0; trimmed++ {
		lastStart := len(prefix) - 1
		for lastStart > 0 && !utf8.RuneStart(prefix[lastStart]) {
			lastStart--
		}
		if utf8.FullRune(prefix[lastStart:]) {
			break
		}
		prefix = prefix[:lastStart]
	}
	return IsBinary(prefix)
}

// SniffBinary reads up to sniffLength bytes from reader and reports whether
// they look binary.
func SniffBinary(reader io.Reader) (bool, error) {
	buffer := make([]byte, sniffLength)
	bytesRead, readError := io.ReadFull(reader, buffer)
	switch readError {
	case nil:
		return isBinaryPrefix(buffer[:bytesRead]), nil
	case io.EOF, io.ErrUnexpectedEOF:
		return IsBinary(buffer[:bytesRead]), nil
	default:
		return false, readError
	}
}

// IsFileBinary reads up to sniffLength bytes from the file at path and determines
// if the content appears to be binary.
//
// #nosec G304
func IsFileBinary(path string) (bool, error) {
	fileHandle, openError := os.Open(path)
	if openError != nil {
		return false, openError
	}
	defer fileHandle.Close()
	return SniffBinary(fileHandle)
}

// FileBinaryDetector classifies files on disk with IsFileBinary.
type FileBinaryDetector struct{}

// IsBinary reports whether the file at path looks binary.
func (FileBinaryDetector) IsBinary(path string) (bool, error) {
	return IsFileBinary(path)
}
