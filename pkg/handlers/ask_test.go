package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/auth"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/testhelpers"
)

type stubAskService struct {
	result   *services.AskResult
	err      error
	panicked bool
	got      services.AskRequest
	calls    int
}

func (s *stubAskService) Ask(_ context.Context, req services.AskRequest) (*services.AskResult, error) {
	s.calls++
	s.got = req
	if s.panicked {
		panic("boom")
	}
	return s.result, s.err
}

func (s *stubAskService) Analyze(question string, hints *models.DowntimeFilter) (*services.Analysis, error) {
	if s.panicked {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &services.Analysis{Filter: models.DowntimeFilter{ProcessID: "PROC_PH"}, IsSpecific: true}, nil
}

var _ services.AskService = (*stubAskService)(nil)

func serveAsk(t *testing.T, svc services.AskService, authMiddleware *auth.Middleware, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewAskHandler(svc, zap.NewNop()).RegisterRoutes(mux, authMiddleware)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeAsk(t *testing.T, rec *httptest.ResponseRecorder) AskResponse {
	t.Helper()
	var resp AskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAskHandler_DatabaseAnswer(t *testing.T) {
	svc := &stubAskService{result: &services.AskResult{
		Answer: "조회 결과", Question: "포토 공정", Success: true, IsSpecific: true,
		ResultCount: 3, Source: services.SourceDatabase,
	}}

	rec := serveAsk(t, svc, nil, "/ask",
		`{"question":" 포토 공정 ","filters":{"process_id":"PROC_PH"},"context":"bg","limit":5}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeAsk(t, rec)
	assert.Equal(t, "조회 결과", resp.Answer)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.IsSpecific)
	assert.True(t, *resp.IsSpecific)
	require.NotNil(t, resp.ResultCount)
	assert.Equal(t, 3, *resp.ResultCount)
	assert.Equal(t, services.SourceDatabase, resp.Source)

	assert.Equal(t, "포토 공정", svc.got.Question)
	require.NotNil(t, svc.got.Hints)
	assert.Equal(t, "PROC_PH", svc.got.Hints.ProcessID)
	assert.Equal(t, "bg", svc.got.Context)
	assert.Equal(t, 5, svc.got.Limit)
}

func TestAskHandler_ExternalAnswerOmitsResultCount(t *testing.T) {
	svc := &stubAskService{result: &services.AskResult{
		Answer: "무엇을 도와드릴까요?", Question: "안녕", Success: true, Source: services.SourceExternal,
	}}

	rec := serveAsk(t, svc, nil, "/ask", `{"question":"안녕"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "result_count")
	assert.Equal(t, false, raw["is_specific"])
	assert.Equal(t, services.SourceExternal, raw["source"])
}

func TestAskHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty body", ``, "invalid_request"},
		{"malformed", `{"question":`, "invalid_request"},
		{"trailing data", `{"question":"a"} {}`, "invalid_request"},
		{"blank question", `{"question":"  "}`, "invalid_question"},
		{"hostile hint", `{"question":"포토","filters":{"eqp_id":"1' OR '1'='1"}}`, "invalid_filters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAskService{}
			rec := serveAsk(t, svc, nil, "/ask", tt.body, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp["error"])
			assert.Zero(t, svc.calls)
		})
	}
}

func TestAskHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: bad down_type", apperrors.ErrValidation), http.StatusBadRequest},
		{"store down", fmt.Errorf("%w: refused", apperrors.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAsk(t, &stubAskService{err: tt.err}, nil, "/ask", `{"question":"포토 공정"}`, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAskHandler_StoreUnavailableKeepsAnswerShape(t *testing.T) {
	svc := &stubAskService{err: fmt.Errorf("%w: refused", apperrors.ErrStoreUnavailable)}

	rec := serveAsk(t, svc, nil, "/ask", `{"question":"포토 공정"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeAsk(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, services.StoreUnavailableMessage, resp.Answer)
	assert.Equal(t, "포토 공정", resp.Question)
}

func TestAskHandler_PanicBecomes500(t *testing.T) {
	rec := serveAsk(t, &stubAskService{panicked: true}, nil, "/ask", `{"question":"포토 공정"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeAsk(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, internalErrorMessage, resp.Answer)
}

func TestAskHandler_AnalyzePanicBecomes500(t *testing.T) {
	rec := serveAsk(t, &stubAskService{panicked: true}, nil, "/ask/analyze", `{"question":"포토 공정"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeAsk(t, rec)
	assert.Equal(t, internalErrorMessage, resp.Answer)
}

func TestAskHandler_RequiresTokenWhenAuthEnabled(t *testing.T) {
	validator, err := auth.NewJWKSClient(context.Background(), &auth.JWKSConfig{EnableVerification: false})
	require.NoError(t, err)
	mw := auth.NewMiddleware(validator, zap.NewNop())
	ok := &services.AskResult{Answer: "a", Success: true, Source: services.SourceExternal}

	rec := serveAsk(t, &stubAskService{result: ok}, mw, "/ask", `{"question":"안녕"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	header := http.Header{"Authorization": {testhelpers.GenerateTestJWTWithBearer("user-1", "")}}
	rec = serveAsk(t, &stubAskService{result: ok}, mw, "/ask", `{"question":"안녕"}`, header)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAskHandler_Analyze(t *testing.T) {
	rec := serveAsk(t, &stubAskService{}, nil, "/ask/analyze", `{"question":"포토 공정"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp services.Analysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.IsSpecific)
	assert.Equal(t, "PROC_PH", resp.Filter.ProcessID)

	rec = serveAsk(t, &stubAskService{}, nil, "/ask/analyze", `{"question":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveAsk(t, &stubAskService{err: fmt.Errorf("%w: x", apperrors.ErrValidation)}, nil, "/ask/analyze", `{"question":"a"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
