package llm

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
	"github.com/adverant/nexus/legalstruct-worker/internal/logging"
)

// Caller is the Generator used in production: key rotation, a fresh provider
// handle per attempt and retry with backoff around the call.
type Caller struct {
	rotator *KeyRotator
	factory ProviderFactory
	policy  RetryPolicy
	logger  *logging.Logger
}

// NewCaller creates a caller
func NewCaller(rotator *KeyRotator, factory ProviderFactory, policy RetryPolicy) *Caller {
	return &Caller{
		rotator: rotator,
		factory: factory,
		policy:  policy,
		logger:  logging.NewLogger("llm"),
	}
}

// Generate calls the model, retrying transient failures. When retries run
// out the returned error carries the RETRIES_EXHAUSTED code.
func (c *Caller) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp *GenerateResponse
	attempts, err := c.policy.Do(ctx, func(ctx context.Context) error {
		key, err := c.rotator.Acquire(ctx)
		if err != nil {
			return err
		}
		provider, err := c.factory(ctx, key)
		if err != nil {
			return errors.NewProviderError(req.Model, 0, false, err)
		}

		out, err := provider.Generate(ctx, req)
		if err != nil {
			c.logger.Warn("model call failed", "model", req.Model, "error", err)
			return err
		}
		if out == nil || strings.TrimSpace(out.Text) == "" {
			c.logger.Warn("model returned empty response", "model", req.Model)
			return errors.ErrEmptyResponse
		}
		resp = out
		return nil
	})
	if err != nil {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.NewRetriesExhaustedError(req.Model, attempts, err)
	}
	return resp, nil
}

// WithMaxRetries returns a copy of the caller with a different retry count
func (c *Caller) WithMaxRetries(n int) Generator {
	clone := *c
	clone.policy.MaxRetries = n
	return &clone
}
