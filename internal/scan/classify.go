package scan

import (
	"context"
	"strings"
	"unicode"

	"sitescan/internal/metrics"
	"sitescan/internal/models"
)

// Model is the subset of the vision model client the pipeline calls.
type Model interface {
	Describe(ctx context.Context, prompt, imageRef string, maxTokens int) (string, error)
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ClassifyOutcome is either a label or an unavailable classifier.
type ClassifyOutcome struct {
	Label models.Classification
	// Err is set when the model call failed and Label is meaningless.
	Err error
}

// Unavailable reports whether the classifier could not be reached.
func (o ClassifyOutcome) Unavailable() bool { return o.Err != nil }

// Classifier assigns one of the five labels to an image.
type Classifier struct {
	model     Model
	prompt    string
	maxTokens int
}

func NewClassifier(m Model, prompt string, maxTokens int) *Classifier {
	return &Classifier{model: m, prompt: prompt, maxTokens: maxTokens}
}

// Classify never fails; a failed call is reported through the outcome.
func (c *Classifier) Classify(ctx context.Context, imageRef string) ClassifyOutcome {
	text, err := c.model.Describe(ctx, c.prompt, imageRef, c.maxTokens)
	if err != nil {
		metrics.ClassifierFallbackTotal.Inc()
		return ClassifyOutcome{Err: err}
	}
	return ClassifyOutcome{Label: ParseLabel(text)}
}

// ParseLabel maps free-form model output onto the label set. Output that is
// not exactly one known label word maps to none.
func ParseLabel(text string) models.Classification {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.TrimFunc(cleaned, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '`'
	})
	if l := models.Classification(cleaned); l.Valid() {
		return l
	}

	var found models.Classification
	for _, word := range strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		l := models.Classification(word)
		if !l.Valid() {
			continue
		}
		if found != "" && found != l {
			return models.ClassNone
		}
		found = l
	}
	if found == "" {
		return models.ClassNone
	}
	return found
}
