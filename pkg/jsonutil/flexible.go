// Package jsonutil reads loosely typed JSON produced by external services.
package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleString renders a JSON scalar as text. Workflow engines sometimes
// answer with a bare number or boolean where a string is documented.
// null, empty input, and blank strings give "".
func FlexibleString(raw json.RawMessage) string {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	// Objects and arrays are passed through verbatim.
	return string(raw)
}

// FirstString returns the first value that renders to non-empty text.
func FirstString(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if s := FlexibleString(raw); s != "" {
			return s
		}
	}
	return ""
}
