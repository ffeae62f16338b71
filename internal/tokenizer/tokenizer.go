// Package tokenizer estimates token counts for file contents.
package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

// Config captures tokenizer selection parameters.
type Config struct {
	Model string
}

const (
	fallbackEncodingName     = "cl100k_base"
	errorFallbackEncoding    = "loading %s encoding: %w"
	errorMissingEncodingText = "tiktoken encoding not loaded"
)

// tiktokenModelPrefixes name the model families with a dedicated tiktoken encoding.
var tiktokenModelPrefixes = []string{"gpt-", "o1", "o3", "text-embedding", "davinci", "curie", "babbage", "ada", "code-"}

var errMissingEncoding = errors.New(errorMissingEncodingText)

// NewCounter returns a Counter for the requested model together with the
// resolved model name. An empty model or EstimatorName selects the
// character-class Estimator; any other name is served by a tiktoken encoding,
// falling back to cl100k_base for models tiktoken does not know.
func NewCounter(cfg Config) (Counter, string, error) {
	requestedModel := strings.TrimSpace(cfg.Model)
	normalizedModel := strings.ToLower(requestedModel)
	if normalizedModel == "" || normalizedModel == EstimatorName {
		return Estimator{}, EstimatorName, nil
	}
	counter, counterError := newEncodingCounter(normalizedModel)
	if counterError != nil {
		return nil, "", counterError
	}
	if counter.label == fallbackEncodingName {
		return counter, fallbackEncodingName, nil
	}
	return counter, requestedModel, nil
}

// encodingCounter counts tokens with a tiktoken BPE encoding.
type encodingCounter struct {
	encoding *tiktoken.Tiktoken
	label    string
}

func newEncodingCounter(model string) (encodingCounter, error) {
	if hasTiktokenPrefix(model) {
		if encoding, lookupError := tiktoken.EncodingForModel(model); lookupError == nil && encoding != nil {
			return encodingCounter{encoding: encoding, label: model}, nil
		}
	}
	encoding, fallbackError := tiktoken.GetEncoding(fallbackEncodingName)
	if fallbackError != nil {
		return encodingCounter{}, fmt.Errorf(errorFallbackEncoding, fallbackEncodingName, fallbackError)
	}
	return encodingCounter{encoding: encoding, label: fallbackEncodingName}, nil
}

// Name returns the model or encoding the counter was resolved to.
func (counter encodingCounter) Name() string {
	return counter.label
}

// CountString returns the number of BPE tokens in input. Special tokens are
// counted as ordinary text.
func (counter encodingCounter) CountString(input string) (int, error) {
	if counter.encoding == nil {
		return 0, errMissingEncoding
	}
	return len(counter.encoding.Encode(input, nil, nil)), nil
}

func hasTiktokenPrefix(model string) bool {
	for _, prefix := range tiktokenModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

var _ Counter = encodingCounter{}
