package scan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"sitescan/internal/search"
)

// TitleResolver proposes a clean building name from a reverse-image search.
type TitleResolver struct {
	lens      search.VisualMatcher
	model     Model
	prompts   *Prompts
	maxTokens int
	log       *zap.Logger
}

// NewTitleResolver accepts a nil lens, which disables resolution.
func NewTitleResolver(lens search.VisualMatcher, m Model, prompts *Prompts, maxTokens int, log *zap.Logger) *TitleResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &TitleResolver{lens: lens, model: m, prompts: prompts, maxTokens: maxTokens, log: log}
}

// Resolve returns "" when no title can be produced. It never fails.
func (r *TitleResolver) Resolve(ctx context.Context, imageURL string) string {
	if r == nil || r.lens == nil || imageURL == "" {
		return ""
	}
	noisy, err := r.lens.FirstVisualMatchTitle(ctx, imageURL)
	if err != nil {
		if errors.Is(err, search.ErrNotConfigured) {
			r.log.Debug("visual search disabled")
		} else {
			r.log.Warn("visual search failed", zap.Error(err))
		}
		return ""
	}
	if noisy == "" {
		return ""
	}

	out, err := r.model.Complete(ctx, r.prompts.TitleCleanPrompt(noisy), r.maxTokens)
	if err != nil {
		r.log.Warn("title cleaning failed", zap.String("noisy_title", noisy), zap.Error(err))
		return ""
	}
	title := CleanTitleOutput(out)
	r.log.Debug("building title resolved", zap.String("noisy_title", noisy), zap.String("title", title))
	return title
}

// CleanTitleOutput trims model output, decodes it when it is a JSON string
// and otherwise strips one wrapping quote from each end.
func CleanTitleOutput(raw string) string {
	raw = strings.TrimSpace(raw)
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return strings.TrimSpace(s)
	}
	if len(raw) > 0 && (raw[0] == '"' || raw[0] == '\'') {
		raw = raw[1:]
	}
	if n := len(raw); n > 0 && (raw[n-1] == '"' || raw[n-1] == '\'') {
		raw = raw[:n-1]
	}
	return strings.TrimSpace(raw)
}
