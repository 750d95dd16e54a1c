package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sitescan/internal/models"
	"sitescan/internal/service/ai"
)

// Sentinels matched by AnalysisError through errors.Is.
var (
	ErrModelCall     = errors.New("scan: model call failed")
	ErrEmptyResponse = errors.New("scan: model returned no content")
)

// AnalysisError is returned by Analyze. Empty distinguishes a successful call
// with no usable content from a failed call.
type AnalysisError struct {
	Category models.Category
	Empty    bool
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Empty {
		return fmt.Sprintf("%s analyzer: model returned no content", e.Category)
	}
	return fmt.Sprintf("%s analyzer: model call failed: %v", e.Category, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool {
	if e.Empty {
		return target == ErrEmptyResponse
	}
	return target == ErrModelCall
}

// RawResponse is unparsed analyzer output.
type RawResponse struct {
	Category models.Category
	Text     string
}

// Analyzer sends the image with a category prompt. It does not retry.
type Analyzer struct {
	category  models.Category
	model     Model
	prompt    string
	maxTokens int
}

func NewAnalyzer(category models.Category, m Model, prompt string, maxTokens int) *Analyzer {
	return &Analyzer{category: category, model: m, prompt: prompt, maxTokens: maxTokens}
}

// Category is the entity kind this analyzer extracts.
func (a *Analyzer) Category() models.Category { return a.category }

func (a *Analyzer) Analyze(ctx context.Context, imageRef string) (RawResponse, error) {
	text, err := a.model.Describe(ctx, a.prompt, imageRef, a.maxTokens)
	if errors.Is(err, ai.ErrEmptyCompletion) || (err == nil && strings.TrimSpace(text) == "") {
		return RawResponse{}, &AnalysisError{Category: a.category, Empty: true, Err: err}
	}
	if err != nil {
		return RawResponse{}, &AnalysisError{Category: a.category, Err: err}
	}
	return RawResponse{Category: a.category, Text: text}, nil
}
