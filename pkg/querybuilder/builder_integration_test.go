//go:build integration

package querybuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/testhelpers"
)

func setupPostgresBuilder(t *testing.T) *Builder {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	testDB.Reset(t)

	testhelpers.Seed(t, testDB.Store,
		testhelpers.Note{ID: "IN-1", SiteID: "ICH", ProcessID: "PROC_PH", EqpID: "EQP_PH_001",
			Start: "2024-05-01 10:00:00", Minutes: 150, DownType: "UNSCHEDULED", ErrorCode: "ERR_001", Status: "COMPLETED"},
		testhelpers.Note{ID: "IN-2", SiteID: "ICH", ProcessID: "PROC_PH", EqpID: "EQP_PH_002",
			Start: "2024-05-20 08:00:00", Minutes: 45, DownType: "SCHEDULED", ErrorCode: "ERR_001", Status: "IN_PROGRESS"},
		testhelpers.Note{ID: "IN-3", SiteID: "CJU", ProcessID: "PROC_ET",
			Start: "2024-06-02 09:00:00", Minutes: 300, DownType: "UNSCHEDULED", ErrorCode: "ERR_002", Status: "COMPLETED"},
	)
	testhelpers.SeedLookup(t, testDB.Store, "process", "PROC_PH", "포토")
	testhelpers.SeedLookup(t, testDB.Store, "error_code", "ERR_001", "진공 펌프 이상")

	b := NewBuilder(testDB.Store, DefaultConfig(), zap.NewNop())
	b.DetectLookups(context.Background())
	return b
}

func TestPostgres_ExecuteQuery(t *testing.T) {
	b := setupPostgresBuilder(t)
	ctx := context.Background()

	plan, err := b.BuildQuery(models.DowntimeFilter{ProcessID: "PROC_PH", DowntimeMinMinutes: models.Float(120)})
	require.NoError(t, err)

	rows, err := b.ExecuteQuery(ctx, plan, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "IN-1", rows[0].String("informnote_id"))
	assert.Equal(t, "포토", rows[0].String("process_name"))
	assert.Equal(t, "2024-05-01 10:00:00", rows[0].String("down_start_time"))
}

func TestPostgres_GetStatistics(t *testing.T) {
	b := setupPostgresBuilder(t)

	stats, err := b.GetStatistics(context.Background(), models.DowntimeFilter{SiteID: "ICH"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalCount)
	assert.InDelta(t, 195.0, stats.TotalMinutes, 1e-9)
	assert.Equal(t, int64(1), stats.ScheduledCount)
	assert.Equal(t, int64(1), stats.InProgressCount)
}

func TestPostgres_ErrorCodeStatsByMonth(t *testing.T) {
	b := setupPostgresBuilder(t)

	plan, err := b.BuildErrorCodeStatsQuery(ErrorCodeStatsRequest{GroupBy: GroupByMonth})
	require.NoError(t, err)

	rows, err := b.ExecuteQuery(context.Background(), plan, 100)
	require.NoError(t, err)

	periods := map[string]int{}
	for _, r := range rows {
		n, _ := r.Float("event_count")
		periods[r.String("period")] += int(n)
	}
	assert.Equal(t, map[string]int{"2024-05": 2, "2024-06": 1}, periods)
}
