package tree

import (
	"context"
	"fmt"

	"github.com/temirov/ctxtree/internal/tokenizer"
	"github.com/temirov/ctxtree/internal/utils"
)

const (
	// errorDetectBinaryFormat is used when binary detection fails.
	errorDetectBinaryFormat = "classifying %s: %w"
	// errorCountTokensFormat is used when token counting fails.
	errorCountTokensFormat = "counting tokens for %s: %w"
)

// BinaryDetector classifies files as binary or text.
type BinaryDetector interface {
	IsBinary(path string) (bool, error)
}

// DetailPopulator computes file attributes after structural placement.
type DetailPopulator struct {
	// Detector defaults to utils.FileBinaryDetector.
	Detector BinaryDetector
	// Counter defaults to tokenizer.Estimator.
	Counter tokenizer.Counter
}

// Populate classifies the file at path and, for text files, counts its tokens.
func (populator *DetailPopulator) Populate(ctx context.Context, path string) (Details, error) {
	if contextError := ctx.Err(); contextError != nil {
		return Details{}, contextError
	}
	isBinary, detectError := populator.detector().IsBinary(path)
	if detectError != nil {
		return Details{}, fmt.Errorf(errorDetectBinaryFormat, path, detectError)
	}
	if isBinary {
		return Details{IsBinary: true}, nil
	}
	countResult, countError := tokenizer.CountFile(populator.counter(), path)
	if countError != nil {
		return Details{}, fmt.Errorf(errorCountTokensFormat, path, countError)
	}
	if !countResult.Counted {
		// binary content past the sniffed prefix
		return Details{IsBinary: true}, nil
	}
	tokenCount := countResult.Tokens
	return Details{TokenCount: &tokenCount}, nil
}

func (populator *DetailPopulator) detector() BinaryDetector {
	if populator.Detector == nil {
		return utils.FileBinaryDetector{}
	}
	return populator.Detector
}

func (populator *DetailPopulator) counter() tokenizer.Counter {
	if populator.Counter == nil {
		return tokenizer.Estimator{}
	}
	return populator.Counter
}
