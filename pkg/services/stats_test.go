package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/testhelpers"
)

func TestErrorCodeStats_DefaultGrouping(t *testing.T) {
	b, store := newTestStack(t)
	testhelpers.Seed(t, store,
		testhelpers.Note{ID: "IN-4", ProcessID: "PROC_PH", EqpID: "EQP_PH_001", ErrorCode: "ERR_001", Start: "2024-05-04 09:00:00", Minutes: 30},
	)
	testhelpers.SeedLookup(t, store, "error_code", "ERR_001", "진공 압력 이상")
	b.DetectLookups(context.Background())
	svc := NewStatsService(b, store, zap.NewNop())

	out, err := svc.ErrorCodeStats(context.Background(), querybuilder.ErrorCodeStatsRequest{})
	require.NoError(t, err)

	assert.Equal(t, querybuilder.GroupByErrorCode, out.GroupBy)
	require.Equal(t, 1, out.Total)
	require.Len(t, out.Data, 1)

	s := out.Data[0]
	assert.Nil(t, s.Period)
	assert.Equal(t, "ERR_001", s.ErrorCode)
	require.NotNil(t, s.ErrorDesc)
	assert.Equal(t, "진공 압력 이상", *s.ErrorDesc)
	require.NotNil(t, s.ProcessName)
	assert.Equal(t, "포토", *s.ProcessName)
	assert.Equal(t, int64(2), s.EventCount)
	assert.Equal(t, 180.0, s.TotalMinutes)
	assert.Equal(t, 90.0, s.AvgMinutes)
}

func TestErrorCodeStats_ByDay(t *testing.T) {
	b, store := newTestStack(t)
	svc := NewStatsService(b, store, zap.NewNop())

	out, err := svc.ErrorCodeStats(context.Background(), querybuilder.ErrorCodeStatsRequest{
		GroupBy:   querybuilder.GroupByDay,
		StartDate: "2024-05-01",
		EndDate:   "2024-05-01",
	})
	require.NoError(t, err)

	require.Len(t, out.Data, 1)
	require.NotNil(t, out.Data[0].Period)
	assert.Equal(t, "2024-05-01", *out.Data[0].Period)
}

func TestErrorCodeStats_InvalidRequest(t *testing.T) {
	b, store := newTestStack(t)
	svc := NewStatsService(b, store, zap.NewNop())

	_, err := svc.ErrorCodeStats(context.Background(), querybuilder.ErrorCodeStatsRequest{GroupBy: "week"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestErrorCodeStats_StoreUnavailable(t *testing.T) {
	b, store := newTestStack(t)
	svc := NewStatsService(b, store, zap.NewNop())
	store.Close()

	_, err := svc.ErrorCodeStats(context.Background(), querybuilder.ErrorCodeStatsRequest{})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
