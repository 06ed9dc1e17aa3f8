// Package openai adapts the OpenAI chat completions API to the llm.Provider interface.
package openai

import (
	"context"
	stderrors "errors"

	"github.com/sashabaranov/go-openai"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
)

// Provider is an OpenAI client bound to a single API key
type Provider struct {
	client *openai.Client
}

// NewFactory returns a factory that builds one OpenAI client per key.
// baseURL may point at any OpenAI-compatible endpoint; empty keeps the default.
func NewFactory(baseURL string) llm.ProviderFactory {
	return func(_ context.Context, apiKey string) (llm.Provider, error) {
		return New(apiKey, baseURL), nil
	}
}

// New creates an OpenAI provider
func New(apiKey, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

// Generate sends the prompt pair as a system and a user message
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	chat := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserText},
		},
		Temperature: req.Config.Temperature,
	}
	if req.Config.MaxOutputTokens > 0 {
		chat.MaxCompletionTokens = req.Config.MaxOutputTokens
	}
	if req.Config.JSONResponse {
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return nil, classify(req.Model, err)
	}

	out := &llm.GenerateResponse{TokensUsed: resp.Usage.TotalTokens}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

func classify(model string, err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewProviderError(model, apiErr.HTTPStatusCode, llm.ClassifyStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return errors.NewProviderError(model, reqErr.HTTPStatusCode, llm.ClassifyStatus(reqErr.HTTPStatusCode), err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewProviderError(model, 0, true, err)
}
