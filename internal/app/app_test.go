package app

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/legalstruct-worker/internal/config"
	"github.com/adverant/nexus/legalstruct-worker/internal/engine"
	"github.com/adverant/nexus/legalstruct-worker/internal/metrics"
)

func testConfig(provider string) *config.Config {
	eng := engine.DefaultConfig()
	eng.Models = []string{"fast-model", "strong-model"}
	return &config.Config{
		LLMProvider: provider,
		LLMAPIKeys:  []string{"key-a", "key-b"},
		MaxRetries:  2,
		RateLimit:   15,
		Engine:      eng,
	}
}

func TestProviderFactorySelection(t *testing.T) {
	for _, provider := range []string{"gemini", "anthropic", "openai"} {
		factory, err := ProviderFactory(testConfig(provider))
		require.NoError(t, err, provider)
		assert.NotNil(t, factory, provider)
	}

	_, err := ProviderFactory(testConfig("cohere"))
	assert.ErrorContains(t, err, "cohere")
}

func TestNewEngine(t *testing.T) {
	eng, err := NewEngine(testConfig("openai"), metrics.NewRecorder(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, []string{"fast-model", "strong-model"}, eng.Models())

	// Metrics are optional
	_, err = NewEngine(testConfig("gemini"), nil)
	require.NoError(t, err)
}

func TestNewEngineRejectsBadSettings(t *testing.T) {
	cfg := testConfig("gemini")
	cfg.RateLimit = 0
	_, err := NewEngine(cfg, nil)
	assert.ErrorContains(t, err, "rate limit")

	cfg = testConfig("gemini")
	cfg.Engine.Models = nil
	_, err = NewEngine(cfg, nil)
	assert.Error(t, err)
}
