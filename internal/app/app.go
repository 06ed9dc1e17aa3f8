// Package app wires configuration into a ready structuring engine. It is
// shared by the queue worker and the command-line tool.
package app

import (
	"fmt"

	"github.com/adverant/nexus/legalstruct-worker/internal/config"
	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm/anthropic"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm/gemini"
	"github.com/adverant/nexus/legalstruct-worker/internal/llm/openai"
	"github.com/adverant/nexus/legalstruct-worker/internal/metrics"
)

// ProviderFactory returns the factory for the configured LLM provider
func ProviderFactory(cfg *config.Config) (llm.ProviderFactory, error) {
	switch cfg.LLMProvider {
	case "gemini":
		return gemini.NewFactory(), nil
	case "anthropic":
		return anthropic.NewFactory(), nil
	case "openai":
		return openai.NewFactory(cfg.LLMBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

// NewEngine builds the engine with one key rotator shared by every document.
// recorder may be nil.
func NewEngine(cfg *config.Config, recorder *metrics.Recorder) (*engine.Engine, error) {
	factory, err := ProviderFactory(cfg)
	if err != nil {
		return nil, err
	}

	rotator, err := llm.NewKeyRotator(cfg.LLMAPIKeys, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create key rotator: %w", err)
	}
	rotator.OnWait(recorder.KeyWait)

	caller := llm.NewCaller(rotator, factory, llm.DefaultRetryPolicy(cfg.MaxRetries))
	return engine.New(cfg.Engine, caller, engine.WithMetrics(recorder))
}
