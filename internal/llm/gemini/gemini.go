// Package gemini adapts the Google Gen AI SDK to the llm.Provider interface.
package gemini

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
)

// Provider is a Gemini client bound to a single API key
type Provider struct {
	client *genai.Client
}

// NewFactory returns a factory that builds one Gemini client per key
func NewFactory() llm.ProviderFactory {
	return func(ctx context.Context, apiKey string) (llm.Provider, error) {
		return New(ctx, apiKey)
	}
}

// New creates a Gemini provider for apiKey
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Generate sends the prompt pair to Gemini
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(req.Config.Temperature),
	}
	if req.Config.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Config.MaxOutputTokens)
	}
	if req.Config.JSONResponse {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserText), cfg)
	if err != nil {
		return nil, classify(req.Model, err)
	}

	out := &llm.GenerateResponse{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func classify(model string, err error) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewProviderError(model, apiErr.Code, llm.ClassifyStatus(apiErr.Code), err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewProviderError(model, 0, true, err)
}
