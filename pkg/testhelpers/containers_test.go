//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_Migrated(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"inform_note", "process", "model", "equipment", "error_code"} {
		ok, err := testDB.Store.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !ok {
			t.Errorf("expected table %s to exist after migrations", table)
		}
	}
}

func TestTestDB_SeedAndQuery(t *testing.T) {
	testDB := GetTestDB(t)
	testDB.Reset(t)
	ctx := context.Background()

	Seed(t, testDB.Store, Note{ID: "IN-1", SiteID: "ICH", ProcessID: "PROC_PH", Start: "2024-05-01 10:00:00", Minutes: 42.5})

	rows, err := testDB.Store.Query(ctx, "SELECT informnote_id, down_start_time, down_time_minutes FROM inform_note WHERE site_id = $1", []any{"ICH"}, 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0]["down_start_time"]; got != "2024-05-01 10:00:00" {
		t.Errorf("expected canonical timestamp, got %v", got)
	}
	if got := rows[0]["down_time_minutes"]; got != 42.5 {
		t.Errorf("expected numeric as float64 42.5, got %#v", got)
	}
}
