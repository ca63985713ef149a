package testhelpers

import (
	"context"
	"fmt"
	"testing"

	"github.com/ekaya-inc/downtime-engine/pkg/database"
)

// Note is an inform_note fixture. Empty strings are stored as NULL.
type Note struct {
	ID        string
	SiteID    string
	FactoryID string
	LineID    string
	ProcessID string
	EqpID     string
	ModelID   string
	Start     string
	End       string
	Minutes   float64
	DownType  string
	ErrorCode string
	Status    string
	Reason    string
	Action    string
}

const insertNote = `INSERT INTO inform_note (
	informnote_id, site_id, factory_id, line_id, process_id, eqp_id, model_id,
	down_start_time, down_end_time, down_time_minutes, down_type, error_code,
	status_id, act_prob_reason, act_content
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// lookupInserts whitelists the lookup tables fixtures may write to.
var lookupInserts = map[string]string{
	"process":    "INSERT INTO process (process_id, process_name) VALUES ($1, $2)",
	"model":      "INSERT INTO model (model_id, model_name) VALUES ($1, $2)",
	"equipment":  "INSERT INTO equipment (eqp_id, eqp_name) VALUES ($1, $2)",
	"error_code": "INSERT INTO error_code (error_code, error_desc) VALUES ($1, $2)",
}

// Seed inserts notes into store.
func Seed(t *testing.T, store database.Store, notes ...Note) {
	t.Helper()
	for _, n := range notes {
		exec(t, store, insertNote,
			n.ID, nullable(n.SiteID), nullable(n.FactoryID), nullable(n.LineID),
			nullable(n.ProcessID), nullable(n.EqpID), nullable(n.ModelID),
			nullable(n.Start), nullable(n.End), n.Minutes, nullable(n.DownType),
			nullable(n.ErrorCode), nullable(n.Status), nullable(n.Reason), nullable(n.Action))
	}
}

// SeedLookup inserts one id/name pair into a lookup table.
func SeedLookup(t *testing.T, store database.Store, table, id, name string) {
	t.Helper()
	q, ok := lookupInserts[table]
	if !ok {
		t.Fatalf("unknown lookup table %q", table)
	}
	exec(t, store, q, id, name)
}

// DropTable removes a table, for tests of deployments without a lookup.
func DropTable(t *testing.T, store database.Store, table string) {
	t.Helper()
	if _, ok := lookupInserts[table]; !ok {
		t.Fatalf("unknown lookup table %q", table)
	}
	exec(t, store, fmt.Sprintf("DROP TABLE %s", table))
}

func exec(t *testing.T, store database.Store, query string, args ...any) {
	t.Helper()
	ctx := context.Background()

	var err error
	switch s := store.(type) {
	case *database.PostgresStore:
		_, err = s.Pool().Exec(ctx, query, args...)
	case *database.SQLStore:
		q, bound := s.Dialect().Rebind(query, args)
		_, err = s.DB().ExecContext(ctx, q, bound...)
	default:
		t.Fatalf("cannot seed store of type %T", store)
	}
	if err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
