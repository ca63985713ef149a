package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/jsonutil"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
)

const maxErrorBody = 512

// WorkflowConfig configures a Dify-style chat workflow endpoint.
type WorkflowConfig struct {
	BaseURL string // e.g. "https://dify.example.com/v1"
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// WorkflowClient calls POST {base}/chat-messages in blocking mode.
type WorkflowClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	userID     string
	logger     *zap.Logger
}

var _ AnswerClient = (*WorkflowClient)(nil)

// NewWorkflowClient creates a workflow answer client.
func NewWorkflowClient(cfg *WorkflowConfig, logger *zap.Logger) (*WorkflowClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	apiKey := cfg.APIKey
	httpClient := &http.Client{
		Timeout: timeout,
		// Some deployments answer with HTTP->HTTPS redirects; the bearer
		// token has to survive the hop even when the host changes.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			req.Header.Set("Authorization", "Bearer "+apiKey)
			return nil
		},
	}

	return &WorkflowClient{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat-messages",
		apiKey:     apiKey,
		userID:     cfg.UserID,
		logger:     logger.Named("workflow"),
	}, nil
}

type chatMessageRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID *string        `json:"conversation_id"`
	User           string         `json:"user"`
}

type chatMessageResponse struct {
	Answer     json.RawMessage `json:"answer"`
	OutputText json.RawMessage `json:"output_text"`
	Outputs    []struct {
		Text   json.RawMessage `json:"text"`
		Answer json.RawMessage `json:"answer"`
	} `json:"outputs"`
}

// text returns the first non-empty answer field.
func (r chatMessageResponse) text() string {
	candidates := []json.RawMessage{r.Answer, r.OutputText}
	if len(r.Outputs) > 0 {
		candidates = append(candidates, r.Outputs[0].Text, r.Outputs[0].Answer)
	}
	return jsonutil.FirstString(candidates...)
}

// RequestAnswer sends the question (with optional context) and returns the
// workflow's answer text.
func (c *WorkflowClient) RequestAnswer(ctx context.Context, question, promptContext string) (string, error) {
	prompt := composePrompt(question, promptContext)

	body, err := json.Marshal(chatMessageRequest{
		Inputs:       map[string]any{},
		Query:        prompt,
		ResponseMode: "blocking",
		User:         c.userID,
	})
	if err != nil {
		return "", NewError(ErrorTypeUnknown, "encode request", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", NewError(ErrorTypeEndpoint, "build request", false, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Workflow request",
		zap.String("endpoint", c.endpoint),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Workflow request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return "", ClassifyError(config.ProviderWorkflow, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ClassifyError(config.ProviderWorkflow, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Workflow returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.TruncateString(string(raw), maxErrorBody)))
		return "", StatusError(config.ProviderWorkflow, resp.StatusCode, logging.TruncateString(string(raw), maxErrorBody))
	}

	var parsed chatMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		e := NewError(ErrorTypeResponse, "malformed response", false, err)
		e.Provider = config.ProviderWorkflow
		e.StatusCode = resp.StatusCode
		return "", e
	}

	answer := parsed.text()
	if answer == "" {
		c.logger.Warn("Workflow response has no answer field",
			zap.String("body", logging.TruncateString(string(raw), maxErrorBody)))
		e := NewError(ErrorTypeResponse, "response has no answer", false, nil)
		e.Provider = config.ProviderWorkflow
		e.StatusCode = resp.StatusCode
		return "", e
	}

	c.logger.Info("Workflow request completed",
		zap.Int("answer_len", len(answer)),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}
