package querybuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// lookupTable is a whitelisted reference table joined onto the fact table to
// supply a display name.
type lookupTable struct {
	name    string
	alias   string
	key     string // key column in the lookup table
	factKey string // matching column of inform_note
	nameCol string // display name column
	nameAs  string // projected alias of the name
}

var lookupTables = []lookupTable{
	{name: "process", alias: "p", key: "process_id", factKey: colProcessID, nameCol: "process_name", nameAs: "process_name"},
	{name: "model", alias: "m", key: "model_id", factKey: colModelID, nameCol: "model_name", nameAs: "model_name"},
	{name: "equipment", alias: "e", key: "eqp_id", factKey: colEquipmentID, nameCol: "eqp_name", nameAs: "eqp_name"},
	{name: "error_code", alias: "ec", key: "error_code", factKey: colErrorCode, nameCol: "error_desc", nameAs: "error_desc"},
}

func (l lookupTable) join() string {
	return fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s", l.name, l.alias, l.alias, l.key, l.factKey)
}

func lookupByName(name string) lookupTable {
	for _, l := range lookupTables {
		if l.name == name {
			return l
		}
	}
	panic("querybuilder: unknown lookup table " + name)
}

// joins returns the LEFT JOIN clauses of the detected lookup tables.
func (b *Builder) joins() []string {
	var out []string
	for _, l := range lookupTables {
		if b.lookupAvailable(l.name) {
			out = append(out, l.join())
		}
	}
	return out
}

// nameColumn is the qualified name column when the table is joined, or NULL.
func (l lookupTable) nameColumn(available bool) string {
	if !available {
		return "NULL"
	}
	return l.alias + "." + l.nameCol
}

// DetectLookups probes which lookup tables exist. Missing tables are not
// joined and their name columns come back null. A failed probe counts as
// missing.
func (b *Builder) DetectLookups(ctx context.Context) []string {
	found := make(map[string]bool, len(lookupTables))
	var names []string
	for _, l := range lookupTables {
		ok, err := b.store.TableExists(ctx, l.name)
		if err != nil {
			b.logger.Warn("Lookup table probe failed",
				zap.String("table", l.name),
				zap.Error(err))
			continue
		}
		if ok {
			found[l.name] = true
			names = append(names, l.name)
		}
	}

	b.mu.Lock()
	b.lookups = found
	b.mu.Unlock()

	b.logger.Info("Detected lookup tables", zap.Strings("tables", names))
	return names
}

func (b *Builder) lookupAvailable(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookups[name]
}

// IDKind selects the reference table an id lookup resolves against.
type IDKind string

const (
	IDProcess   IDKind = "process"
	IDModel     IDKind = "model"
	IDEquipment IDKind = "equipment"
)

// BuildIDLookupQuery builds a query resolving id or name (either may be
// empty, not both) to the canonical id of kind. Matching ignores case and
// surrounding spaces.
func (b *Builder) BuildIDLookupQuery(kind IDKind, id, name string) (Plan, error) {
	var table *lookupTable
	for i := range lookupTables {
		if lookupTables[i].name == string(kind) {
			table = &lookupTables[i]
			break
		}
	}
	if table == nil || table.name == "error_code" {
		return Plan{}, fmt.Errorf("%w: unknown lookup kind %q", apperrors.ErrValidation, kind)
	}

	id = strings.TrimSpace(models.CleanValue(id))
	name = strings.TrimSpace(models.CleanValue(name))
	if id == "" && name == "" {
		return Plan{}, fmt.Errorf("%w: lookup %s: id or name is required", apperrors.ErrValidation, kind)
	}

	var (
		conds []string
		args  []any
	)
	if id != "" {
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("UPPER(TRIM(%s)) = UPPER($%d)", table.key, len(args)))
	}
	if name != "" {
		args = append(args, name)
		conds = append(conds, fmt.Sprintf("UPPER(TRIM(%s)) = UPPER($%d)", table.nameCol, len(args)))
	}

	sql := fmt.Sprintf("SELECT %s AS id FROM %s WHERE %s", table.key, table.name, strings.Join(conds, " OR "))
	return Plan{SQL: sql, Args: args}, nil
}
