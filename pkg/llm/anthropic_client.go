package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens    = 2000
)

// AnthropicClient answers through the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ AnswerClient = (*AnthropicClient)(nil)

// NewAnthropicClient creates an Anthropic answer client.
func NewAnthropicClient(cfg *ChatConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropic.WithHTTPClient(newHTTPClient(cfg.Timeout)))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  model,
		logger: logger.Named("anthropic"),
	}, nil
}

// RequestAnswer sends one user message and returns the first text block.
func (c *AnthropicClient) RequestAnswer(ctx context.Context, question, promptContext string) (string, error) {
	prompt := composePrompt(question, promptContext)
	system := systemPrompt

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Error("Messages request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", c.classify(err)
	}

	answer := textFromMessages(resp)
	if strings.TrimSpace(answer) == "" {
		e := NewError(ErrorTypeResponse, "response has no answer", false, nil)
		e.Provider = config.ProviderAnthropic
		return "", e
	}

	c.logger.Info("Messages request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

func (c *AnthropicClient) classify(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode > 0 {
		e := StatusError(config.ProviderAnthropic, reqErr.StatusCode, "")
		e.Cause = err
		return e
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			e := NewError(ErrorTypeRateLimit, "rate limited", true, err)
			e.Provider = config.ProviderAnthropic
			return e
		case apiErr.IsOverloadedErr(), apiErr.IsApiErr():
			e := NewError(ErrorTypeServer, "server error", true, err)
			e.Provider = config.ProviderAnthropic
			return e
		case apiErr.IsAuthenticationErr(), apiErr.IsPermissionErr():
			e := NewError(ErrorTypeAuth, "authentication failed", false, err)
			e.Provider = config.ProviderAnthropic
			return e
		}
	}
	return ClassifyError(config.ProviderAnthropic, err)
}

func textFromMessages(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
