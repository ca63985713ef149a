package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
	"github.com/ekaya-inc/downtime-engine/pkg/testhelpers"
)

const statsPath = "/api/v1/informnote/stats/error-code"

type stubStatsService struct {
	got querybuilder.ErrorCodeStatsRequest
	err error
}

func (s *stubStatsService) ErrorCodeStats(_ context.Context, req querybuilder.ErrorCodeStatsRequest) (*services.ErrorCodeStats, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &services.ErrorCodeStats{GroupBy: req.GroupBy, Data: []services.ErrorCodeStat{}}, nil
}

func postStats(t *testing.T, svc services.StatsService, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewStatsHandler(svc, zap.NewNop()).RegisterRoutes(mux, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, statsPath, strings.NewReader(body)))
	return rec
}

func TestStatsHandler_ErrorCodeStats(t *testing.T) {
	store := testhelpers.NewSQLiteStore(t)
	testhelpers.Seed(t, store,
		testhelpers.Note{ID: "IN-1", SiteID: "ICH", ProcessID: "PROC_PH", EqpID: "EQP_PH_001",
			Start: "2024-05-01 10:00:00", Minutes: 150, DownType: "UNSCHEDULED", ErrorCode: "ERR_001", Status: "COMPLETED"},
		testhelpers.Note{ID: "IN-2", SiteID: "ICH", ProcessID: "PROC_PH", EqpID: "EQP_PH_001",
			Start: "2024-05-02 10:00:00", Minutes: 30, DownType: "UNSCHEDULED", ErrorCode: "ERR_001", Status: "COMPLETED"},
	)
	b := querybuilder.NewBuilder(store, querybuilder.DefaultConfig(), zap.NewNop())
	b.DetectLookups(context.Background())
	svc := services.NewStatsService(b, store, zap.NewNop())

	rec := postStats(t, svc, `{"start_date":"2024-05-01","end_date":"2024-05-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ErrorCodeStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, querybuilder.GroupByErrorCode, resp.GroupBy)
	require.Equal(t, 1, resp.Total)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ERR_001", resp.Data[0].ErrorCode)
	assert.EqualValues(t, 2, resp.Data[0].EventCount)
	assert.InDelta(t, 180, resp.Data[0].TotalMinutes, 0.001)
}

func TestStatsHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubStatsService
		body       string
		wantStatus int
		wantCode   string
	}{
		{"malformed", &stubStatsService{}, `[`, http.StatusBadRequest, "invalid_request"},
		{"hostile", &stubStatsService{}, `{"error_code":"1' OR '1'='1"}`, http.StatusBadRequest, "invalid_parameters"},
		{"bad group_by", &stubStatsService{err: fmt.Errorf("%w: group_by", apperrors.ErrValidation)},
			`{"group_by":"year"}`, http.StatusBadRequest, "invalid_parameters"},
		{"store down", &stubStatsService{err: fmt.Errorf("%w: refused", apperrors.ErrStoreUnavailable)},
			`{}`, http.StatusServiceUnavailable, "store_unavailable"},
		{"unexpected", &stubStatsService{err: fmt.Errorf("boom")}, `{}`, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postStats(t, tt.svc, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp["error"])
		})
	}
}

func TestStatsHandler_PassesRequestThrough(t *testing.T) {
	svc := &stubStatsService{}
	rec := postStats(t, svc, `{"group_by":"month","process_id":"PROC_PH","eqp_id":"EQP_PH_001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, querybuilder.GroupByMonth, svc.got.GroupBy)
	assert.Equal(t, "PROC_PH", svc.got.ProcessID)
	assert.Equal(t, "EQP_PH_001", svc.got.EquipmentID)
}
