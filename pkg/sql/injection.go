// Package sql screens caller-supplied values for SQL injection patterns.
// Values are always bound as parameters; screening rejects obviously hostile
// input before it reaches the store or the logs.
package sql

import (
	"fmt"
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// InjectionFinding describes one value libinjection flagged.
type InjectionFinding struct {
	Field       string
	Fingerprint string
}

// CheckValue reports whether value looks like a SQL injection attempt.
func CheckValue(field, value string) *InjectionFinding {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionFinding{Field: field, Fingerprint: string(fingerprint)}
}

// CheckAllParameters screens every value and returns the findings ordered by
// field name. An empty result means all values are clean.
func CheckAllParameters(values map[string]string) []InjectionFinding {
	var out []InjectionFinding
	for field, v := range values {
		if f := CheckValue(field, v); f != nil {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// CheckFilter screens the textual constraints of a filter.
func CheckFilter(f models.DowntimeFilter) []InjectionFinding {
	values := make(map[string]string)
	for _, field := range f.Fields() {
		values[field.Key] = field.Value
	}
	return CheckAllParameters(values)
}

// FindingsError turns findings into an apperrors.ErrValidation error, or nil.
// Flagged values are never echoed back.
func FindingsError(findings []InjectionFinding) error {
	if len(findings) == 0 {
		return nil
	}
	fields := make([]string, len(findings))
	for i, f := range findings {
		fields[i] = f.Field
	}
	return fmt.Errorf("%w: suspicious value in %s", apperrors.ErrValidation, strings.Join(fields, ", "))
}
