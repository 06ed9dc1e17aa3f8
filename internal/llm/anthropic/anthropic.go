// Package anthropic adapts the Anthropic Messages API to the llm.Provider interface.
package anthropic

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
)

const defaultMaxTokens = 8192

// Provider is an Anthropic client bound to a single API key
type Provider struct {
	client anthropic.Client
}

// NewFactory returns a factory that builds one Anthropic client per key
func NewFactory(opts ...option.RequestOption) llm.ProviderFactory {
	return func(_ context.Context, apiKey string) (llm.Provider, error) {
		return New(apiKey, opts...), nil
	}
}

// New creates an Anthropic provider. The SDK's own retries are disabled so
// that backoff stays under the worker's retry policy.
func New(apiKey string, opts ...option.RequestOption) *Provider {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Provider{client: anthropic.NewClient(all...)}
}

// Generate sends the prompt pair to Claude
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	maxTokens := int64(req.Config.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Config.Temperature)),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText)),
		},
	})
	if err != nil {
		return nil, classify(req.Model, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &llm.GenerateResponse{
		Text:       text.String(),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}

func classify(model string, err error) error {
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		return errors.NewProviderError(model, apiErr.StatusCode, llm.ClassifyStatus(apiErr.StatusCode), err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewProviderError(model, 0, true, err)
}
