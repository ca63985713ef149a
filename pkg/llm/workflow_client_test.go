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

func newTestWorkflowClient(t *testing.T, url string) *WorkflowClient {
	t.Helper()
	c, err := NewWorkflowClient(&WorkflowConfig{
		BaseURL: url + "/v1/",
		APIKey:  "app-secret",
		UserID:  "tester",
		Timeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestWorkflowClient_SendsChatMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"answer":"최근 포토 공정 다운타임은 3건입니다."}`))
	}))
	defer srv.Close()

	answer, err := newTestWorkflowClient(t, srv.URL).RequestAnswer(context.Background(), " 요즘 어때? ", "설비팀 문의")
	require.NoError(t, err)

	assert.Equal(t, "최근 포토 공정 다운타임은 3건입니다.", answer)
	assert.Equal(t, "설비팀 문의\n\n질문: 요즘 어때?", got["query"])
	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, "tester", got["user"])
	assert.Equal(t, map[string]any{}, got["inputs"])
	assert.Contains(t, got, "conversation_id")
	assert.Nil(t, got["conversation_id"])
}

func TestWorkflowClient_AnswerFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"answer", `{"answer":"a","output_text":"b"}`, "a"},
		{"output_text", `{"output_text":"b"}`, "b"},
		{"outputs text", `{"outputs":[{"text":"c","answer":"d"}]}`, "c"},
		{"outputs answer", `{"outputs":[{"answer":"d"}]}`, "d"},
		{"numeric answer", `{"answer":42}`, "42"},
		{"blank answer skipped", `{"answer":" ","output_text":"b"}`, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			answer, err := newTestWorkflowClient(t, srv.URL).RequestAnswer(context.Background(), "q", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
		})
	}
}

func TestWorkflowClient_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  ErrorType
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"bad key"}`, ErrorTypeAuth, false},
		{"server error", http.StatusBadGateway, `upstream down`, ErrorTypeServer, true},
		{"rate limited", http.StatusTooManyRequests, ``, ErrorTypeRateLimit, true},
		{"malformed json", http.StatusOK, `<html>`, ErrorTypeResponse, false},
		{"missing answer", http.StatusOK, `{"event":"message"}`, ErrorTypeResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestWorkflowClient(t, srv.URL).RequestAnswer(context.Background(), "q", "")
			require.Error(t, err)

			var llmErr *Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, tt.wantType, llmErr.Type)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.True(t, errors.Is(err, apperrors.ErrExternalService))
		})
	}
}

func TestWorkflowClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestWorkflowClient(t, url).RequestAnswer(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
	assert.True(t, IsRetryable(err))
}

func TestWorkflowClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := NewWorkflowClient(&WorkflowConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.RequestAnswer(context.Background(), "q", "")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
}

func TestWorkflowClient_RedirectKeepsAuthorization(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+r.URL.Path, http.StatusPermanentRedirect)
	}))
	defer origin.Close()

	answer, err := newTestWorkflowClient(t, origin.URL).RequestAnswer(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestNewWorkflowClient_RequiresSettings(t *testing.T) {
	_, err := NewWorkflowClient(&WorkflowConfig{APIKey: "k"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewWorkflowClient(&WorkflowConfig{BaseURL: "http://x"}, zap.NewNop())
	assert.Error(t, err)
}
