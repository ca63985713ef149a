package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
)

func TestOpenAIClient_RequestAnswer(t *testing.T) {
	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"공정을 알려주세요."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&ChatConfig{Endpoint: srv.URL + "/v1/", APIKey: "sk-test", Timeout: 2 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	answer, err := c.RequestAnswer(context.Background(), "다운타임 알려줘", "")
	require.NoError(t, err)
	assert.Equal(t, "공정을 알려주세요.", answer)

	assert.Equal(t, defaultOpenAIModel, body.Model)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "다운타임 알려줘", body.Messages[1].Content)
}

func TestOpenAIClient_StatusIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(&ChatConfig{Endpoint: srv.URL, APIKey: "sk-test"}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.RequestAnswer(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimit, GetErrorType(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
}

func TestAnthropicClient_RequestAnswer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ant-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"장비 ID를 알려주세요."}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(&ChatConfig{Endpoint: srv.URL + "/v1", APIKey: "ant-key", Model: "m"}, zap.NewNop())
	require.NoError(t, err)

	answer, err := c.RequestAnswer(context.Background(), "고장 많아?", "라인 A")
	require.NoError(t, err)
	assert.Equal(t, "장비 ID를 알려주세요.", answer)
	assert.Equal(t, "m", body["model"])
	assert.NotEmpty(t, body["system"])
}

func TestAnthropicClient_EmptyContentIsResponseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","content":[],"usage":{}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(&ChatConfig{Endpoint: srv.URL, APIKey: "ant-key"}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.RequestAnswer(context.Background(), "q", "")
	assert.Equal(t, ErrorTypeResponse, GetErrorType(err))
}

func TestClassifyError(t *testing.T) {
	existing := NewError(ErrorTypeAuth, "x", false, nil)
	assert.Same(t, existing, ClassifyError("workflow", existing))
	assert.Nil(t, ClassifyError("workflow", nil))

	assert.Equal(t, ErrorTypeTimeout, ClassifyError("openai", context.DeadlineExceeded).Type)
	assert.False(t, ClassifyError("openai", context.Canceled).Retryable)
	assert.Equal(t, ErrorTypeEndpoint, ClassifyError("openai", errors.New("dial tcp: connection refused")).Type)
	assert.Equal(t, ErrorTypeServer, ClassifyError("anthropic", errors.New("overloaded")).Type)
	assert.Equal(t, ErrorTypeUnknown, ClassifyError("anthropic", errors.New("boom")).Type)
}

func TestStatusError(t *testing.T) {
	e := StatusError("workflow", 502, "bad gateway")
	assert.Equal(t, "server provider=workflow HTTP 502 server error: bad gateway", e.Error())
	assert.True(t, e.Retryable)

	assert.False(t, StatusError("workflow", 400, "").Retryable)
	assert.Equal(t, ErrorTypeEndpoint, StatusError("workflow", 404, "").Type)
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, "질문 내용", composePrompt(" 질문 내용 ", "  "))
	assert.Equal(t, "배경\n\n질문: 질문 내용", composePrompt("질문 내용", " 배경 "))
}
