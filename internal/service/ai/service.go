package ai

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"sitescan/internal/config"
	"sitescan/internal/metrics"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = eris.New("ai: empty completion")

// NewChatModel builds the eino chat model for the named provider.
func NewChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig, maxTokens int) (model.BaseChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, eris.Errorf("ai: provider %s has no api key", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, eris.Wrap(cerr, "ai: gemini client")
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, eris.Errorf("ai: invalid provider: %s", provider)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ai: init %s chat model", provider)
	}
	return chatModel, nil
}

// VisionClient sends single-turn prompts, optionally with an image, to a chat model.
type VisionClient struct {
	model   model.BaseChatModel
	timeout time.Duration
	sem     *semaphore.Weighted
}

// NewVisionClient bounds every call by timeout and at most maxConcurrent
// in-flight calls. Zero values disable the respective limit.
func NewVisionClient(m model.BaseChatModel, timeout time.Duration, maxConcurrent int64) *VisionClient {
	c := &VisionClient{model: m, timeout: timeout}
	if maxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return c
}

// Describe sends prompt together with imageRef, which may be a public URL or
// an inline data URI.
func (c *VisionClient) Describe(ctx context.Context, prompt, imageRef string, maxTokens int) (string, error) {
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: prompt},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{
				URL:    imageRef,
				Detail: schema.ImageURLDetailAuto,
			}},
		},
	}
	return c.generate(ctx, "model_vision", msg, maxTokens)
}

// Complete sends a text-only prompt.
func (c *VisionClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.generate(ctx, "model_text", schema.UserMessage(prompt), maxTokens)
}

func (c *VisionClient) generate(ctx context.Context, target string, msg *schema.Message, maxTokens int) (out string, err error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", eris.Wrap(err, "ai: acquire model slot")
		}
		defer c.sem.Release(1)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() { metrics.ObserveCall(target, start, err) }()

	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	resp, err := c.model.Generate(ctx, []*schema.Message{msg}, opts...)
	if err != nil {
		return "", eris.Wrap(err, "ai: generate")
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}
