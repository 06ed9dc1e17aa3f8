package llm

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
)

type scriptedProvider struct {
	key     string
	replies *[]reply
	seen    *[]string
}

type reply struct {
	text string
	err  error
}

func (p *scriptedProvider) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	*p.seen = append(*p.seen, p.key)
	next := (*p.replies)[0]
	*p.replies = (*p.replies)[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &GenerateResponse{Text: next.text, TokensUsed: 10}, nil
}

func newScriptedCaller(t *testing.T, replies []reply, maxRetries int) (*Caller, *[]string) {
	t.Helper()
	r, _ := newTestRotator(t, []string{"k1", "k2"}, 100)
	seen := []string{}
	factory := func(_ context.Context, key string) (Provider, error) {
		return &scriptedProvider{key: key, replies: &replies, seen: &seen}, nil
	}
	policy, _ := recordingPolicy(maxRetries)
	return NewCaller(r, factory, policy), &seen
}

func TestCallerRetriesEmptyResponse(t *testing.T) {
	caller, seen := newScriptedCaller(t, []reply{{text: "   "}, {text: `{"articles":[]}`}}, 2)

	resp, err := caller.Generate(context.Background(), GenerateRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, `{"articles":[]}`, resp.Text)
	assert.Len(t, *seen, 2)
}

func TestCallerSurfacesRetriesExhausted(t *testing.T) {
	boom := errors.NewProviderError("m", 500, true, stderrors.New("boom"))
	caller, seen := newScriptedCaller(t, []reply{{err: boom}, {err: boom}}, 1)

	_, err := caller.Generate(context.Background(), GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorRetriesExhausted))
	assert.True(t, errors.HasCode(err, errors.ErrorTransientProvider))
	assert.Len(t, *seen, 2)
}

func TestCallerFactoryFailureIsPermanent(t *testing.T) {
	r, _ := newTestRotator(t, []string{"k1"}, 100)
	policy, sleeps := recordingPolicy(3)
	caller := NewCaller(r, func(context.Context, string) (Provider, error) {
		return nil, stderrors.New("no client")
	}, policy)

	_, err := caller.Generate(context.Background(), GenerateRequest{Model: "m"})
	assert.True(t, errors.HasCode(err, errors.ErrorRetriesExhausted))
	assert.Empty(t, *sleeps)
}
