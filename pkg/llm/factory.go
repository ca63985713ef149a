package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/retry"
)

// NewAnswerClient builds the configured provider wrapped with retries, a rate
// limiter and a circuit breaker. It returns nil, nil when no answer service
// is configured; callers then answer vague questions with guidance only.
func NewAnswerClient(cfg config.AnswerConfig, logger *zap.Logger) (AnswerClient, error) {
	if !cfg.IsConfigured() {
		logger.Info("Answer service not configured; vague questions get guidance only")
		return nil, nil
	}

	var (
		inner AnswerClient
		err   error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		inner, err = NewOpenAIClient(&ChatConfig{
			Endpoint: cfg.BaseURL,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		}, logger)
	case config.ProviderAnthropic:
		inner, err = NewAnthropicClient(&ChatConfig{
			Endpoint: cfg.BaseURL,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		}, logger)
	case config.ProviderWorkflow, "":
		inner, err = NewWorkflowClient(&WorkflowConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			UserID:  cfg.UserID,
			Timeout: cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported answer provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s answer client: %w", cfg.Provider, err)
	}

	logger.Info("Answer service configured",
		zap.String("provider", cfg.Provider),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_retries", cfg.MaxRetries))

	return newGuardedClient(inner, cfg.Provider, &retry.Config{
		MaxRetries:       cfg.MaxRetries,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}, newLimiter(cfg), NewCircuitBreaker(DefaultCircuitBreakerConfig()), logger), nil
}

// newLimiter returns nil when outbound rate limiting is disabled.
func newLimiter(cfg config.AnswerConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

// guardedClient applies the circuit breaker once per question and the rate
// limiter once per attempt.
type guardedClient struct {
	inner    AnswerClient
	provider string
	retry    *retry.Config
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

func newGuardedClient(inner AnswerClient, provider string, retryCfg *retry.Config, limiter *rate.Limiter, breaker *CircuitBreaker, logger *zap.Logger) *guardedClient {
	return &guardedClient{
		inner:    inner,
		provider: provider,
		retry:    retryCfg,
		limiter:  limiter,
		breaker:  breaker,
		logger:   logger.Named("answer"),
	}
}

func (g *guardedClient) RequestAnswer(ctx context.Context, question, promptContext string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("Answer request rejected by circuit breaker",
			zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()))
		return "", ClassifyError(g.provider, err)
	}

	var answer string
	err := retry.DoIfRetryable(ctx, g.retry, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return NewError(ErrorTypeRateLimit, "rate limiter wait", false, err)
			}
		}
		var err error
		answer, err = g.inner.RequestAnswer(ctx, question, promptContext)
		return err
	})
	if err != nil {
		g.breaker.RecordFailure()
		if g.breaker.State() == CircuitOpen {
			g.logger.Warn("Answer service circuit opened",
				zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()))
		}
		return "", ClassifyError(g.provider, err)
	}

	g.breaker.RecordSuccess()
	return answer, nil
}
