package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
)

const defaultOpenAIModel = "gpt-4o-mini"

// ChatConfig configures the chat-completion providers.
type ChatConfig struct {
	Endpoint string // Optional base URL override
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// OpenAIClient answers through an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ AnswerClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI-compatible answer client.
func NewOpenAIClient(cfg *ChatConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = newHTTPClient(cfg.Timeout)
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("openai"),
	}, nil
}

// RequestAnswer runs one chat completion and returns the first choice.
func (c *OpenAIClient) RequestAnswer(ctx context.Context, question, promptContext string) (string, error) {
	prompt := composePrompt(question, promptContext)

	c.logger.Debug("Chat completion request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		c.logger.Error("Chat completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		e := NewError(ErrorTypeResponse, "response has no answer", false, nil)
		e.Provider = config.ProviderOpenAI
		return "", e
	}

	c.logger.Info("Chat completion completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// classify prefers the SDK's structured status code over string matching.
func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		e := StatusError(config.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		e.Cause = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		e := StatusError(config.ProviderOpenAI, reqErr.HTTPStatusCode, "")
		e.Cause = err
		return e
	}
	return ClassifyError(config.ProviderOpenAI, err)
}
