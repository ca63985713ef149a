package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/retry"
)

func TestNewAnswerClient_NotConfigured(t *testing.T) {
	client, err := NewAnswerClient(config.AnswerConfig{Provider: config.ProviderWorkflow}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = NewAnswerClient(config.AnswerConfig{Provider: config.ProviderWorkflow, BaseURL: "http://dify"}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, client, "a base url without a key is not enough")
}

func TestNewAnswerClient_Providers(t *testing.T) {
	for _, provider := range []string{config.ProviderWorkflow, config.ProviderOpenAI, config.ProviderAnthropic} {
		client, err := NewAnswerClient(config.AnswerConfig{
			Provider: provider,
			BaseURL:  "http://localhost:9",
			APIKey:   "k",
			Timeout:  5 * time.Second,
		}, zap.NewNop())
		require.NoError(t, err, provider)
		require.NotNil(t, client, provider)

		guarded, ok := client.(*guardedClient)
		require.True(t, ok)
		assert.Equal(t, provider, guarded.provider)
	}
}

func TestNewAnswerClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"두 번째 시도"}`))
	}))
	defer srv.Close()

	client, err := NewAnswerClient(config.AnswerConfig{
		Provider:   config.ProviderWorkflow,
		BaseURL:    srv.URL,
		APIKey:     "k",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, zap.NewNop())
	require.NoError(t, err)

	answer, err := client.RequestAnswer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "두 번째 시도", answer)
	assert.Equal(t, int32(2), calls.Load())
}

type stubAnswerClient struct {
	calls  int
	answer string
	err    error
}

func (s *stubAnswerClient) RequestAnswer(ctx context.Context, question, promptContext string) (string, error) {
	s.calls++
	return s.answer, s.err
}

func TestGuardedClient_DoesNotRetryPermanentErrors(t *testing.T) {
	stub := &stubAnswerClient{err: StatusError(config.ProviderWorkflow, http.StatusUnauthorized, "")}
	g := newGuardedClient(stub, config.ProviderWorkflow,
		&retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		nil, NewCircuitBreaker(DefaultCircuitBreakerConfig()), zap.NewNop())

	_, err := g.RequestAnswer(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestGuardedClient_CircuitOpensAfterFailures(t *testing.T) {
	stub := &stubAnswerClient{err: NewError(ErrorTypeResponse, "response has no answer", false, nil)}
	g := newGuardedClient(stub, config.ProviderWorkflow,
		&retry.Config{MaxRetries: 0}, nil,
		NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour}), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := g.RequestAnswer(context.Background(), "q", "")
		require.Error(t, err)
	}
	assert.Equal(t, 2, stub.calls)

	_, err := g.RequestAnswer(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, 2, stub.calls, "open circuit short-circuits the call")
	assert.Equal(t, ErrorTypeCircuit, GetErrorType(err))
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
}

func TestGuardedClient_RateLimiterHonoursContext(t *testing.T) {
	stub := &stubAnswerClient{answer: "ok"}
	cfg := config.AnswerConfig{RateLimit: 0.001, Burst: 1}
	client := newGuardedClient(stub, config.ProviderWorkflow, &retry.Config{MaxRetries: 0},
		newLimiter(cfg), NewCircuitBreaker(DefaultCircuitBreakerConfig()), zap.NewNop())

	_, err := client.RequestAnswer(context.Background(), "q", "")
	require.NoError(t, err, "burst admits the first call")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.RequestAnswer(ctx, "q", "")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimit, GetErrorType(err))
	assert.Equal(t, 1, stub.calls)
}
