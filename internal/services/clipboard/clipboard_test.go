package clipboard

import (
	"errors"
	"testing"
)

func TestCopyReportsUnavailableClipboard(testingInstance *testing.T) {
	var written []string
	service := &Service{
		unsupported: func() bool { return true },
		write: func(text string) error {
			written = append(written, text)
			return nil
		},
	}
	if copyError := service.Copy("tree"); !errors.Is(copyError, ErrUnavailable) {
		testingInstance.Fatalf("expected ErrUnavailable, got %v", copyError)
	}
	if len(written) != 0 {
		testingInstance.Fatalf("expected nothing written, got %v", written)
	}
}

func TestCopyWritesText(testingInstance *testing.T) {
	var written []string
	service := &Service{
		unsupported: func() bool { return false },
		write: func(text string) error {
			written = append(written, text)
			return nil
		},
	}
	if copyError := service.Copy("tree"); copyError != nil {
		testingInstance.Fatalf("unexpected error: %v", copyError)
	}
	if len(written) != 1 || written[0] != "tree" {
		testingInstance.Fatalf("unexpected writes %v", written)
	}
}
