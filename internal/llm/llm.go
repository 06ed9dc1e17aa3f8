/**
 * LLM call layer
 *
 * Every model call in the worker goes through a Generator. A Provider is a
 * per-call client handle bound to one API key; the Caller picks that key from
 * the shared KeyRotator, builds the handle through a ProviderFactory and wraps
 * the single network call in a RetryPolicy.
 */

package llm

import (
	"context"
)

// GenerationConfig carries sampling settings for a single call
type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     float32
	// JSONResponse asks the provider for a JSON-only reply when it supports it.
	JSONResponse bool
}

// GenerateRequest is one model invocation
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserText     string
	Config       GenerationConfig
}

// GenerateResponse is the text and token usage of one model invocation
type GenerateResponse struct {
	Text       string
	TokensUsed int
}

// Provider performs a single generate call against a model vendor
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// ProviderFactory builds a Provider bound to the given API key
type ProviderFactory func(ctx context.Context, apiKey string) (Provider, error)

// Generator is what the engine and the quality gate depend on
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}
