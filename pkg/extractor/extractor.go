// Package extractor turns free-text downtime questions (Korean, English or
// mixed) into a structured models.DowntimeFilter using ordered pattern tables.
package extractor

import (
	"sort"
	"strings"
	"time"

	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// DefaultEpsilon biases strict comparisons (">", "<") off the inclusive edge
// of a range query.
const DefaultEpsilon = 0.01

// defaultSites maps each known site code to its Korean name.
var defaultSites = map[string][]string{
	"ICH": {"이천"},
	"CJU": {"청주"},
	"WUX": {"우시"},
}

// Analysis is the result of analyzing one question.
type Analysis struct {
	Filter     models.DowntimeFilter `json:"filter"`
	IsSpecific bool                  `json:"is_specific"`
}

// Extractor analyzes questions. It holds only immutable pattern tables and is
// safe for concurrent use.
type Extractor struct {
	now     func() time.Time
	epsilon float64

	sites           []pattern
	processKeywords []keyword
	processes       []pattern
}

// Option configures an Extractor.
type Option func(*options)

type options struct {
	now        func() time.Time
	epsilon    float64
	vocabulary *Vocabulary
}

// WithClock replaces the wall clock used for relative time ranges.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEpsilon sets the nudge applied to strict comparison bounds.
func WithEpsilon(eps float64) Option {
	return func(o *options) { o.epsilon = eps }
}

// WithVocabulary adds site codes and process keywords to the built-in tables.
func WithVocabulary(v *Vocabulary) Option {
	return func(o *options) { o.vocabulary = v }
}

// New builds an Extractor with the built-in pattern tables.
func New(opts ...Option) *Extractor {
	o := options{now: time.Now, epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(&o)
	}

	sites := make(map[string][]string, len(defaultSites))
	for code, names := range defaultSites {
		sites[code] = append([]string(nil), names...)
	}
	processKeywords := append([]keyword(nil), defaultProcessKeywords...)
	if o.vocabulary != nil {
		for code, names := range o.vocabulary.Sites {
			code = strings.ToUpper(code)
			sites[code] = append(sites[code], names...)
		}
		processKeywords = append(o.vocabulary.processKeywords(), processKeywords...)
	}

	codes := make([]string, 0, len(sites))
	aliases := make(map[string]string)
	for code, names := range sites {
		codes = append(codes, code)
		for _, n := range names {
			aliases[strings.ToUpper(n)] = code
		}
	}
	sort.Strings(codes)

	return &Extractor{
		now:             o.now,
		epsilon:         o.epsilon,
		sites:           buildSitePatterns(codes, aliases),
		processKeywords: processKeywords,
		processes:       buildProcessPatterns(),
	}
}

// Analyze extracts every recognizable constraint from question. It never
// fails: fields without a match stay empty.
func (e *Extractor) Analyze(question string) Analysis {
	text := strings.ToUpper(strings.TrimSpace(question))

	var f models.DowntimeFilter
	if text != "" {
		f.SiteID = e.site(text)
		f.FactoryID = factory(text)
		f.ProcessID = e.process(text)
		f.ModelID = model(text)
		f.DowntimeType = models.DowntimeType(downtimeType(text))
		f.LineID = line(text)
		f.EquipmentID = equipment(text)
		f.ErrorCode = errorCode(text)
		f.Status = models.Status(status(text))
		e.applyDowntime(text, &f)
		f.StartTimeFrom, f.StartTimeTo = e.timeRange(text)
	}

	return Analysis{Filter: f, IsSpecific: f.IsSpecific()}
}

func (e *Extractor) site(text string) string { return firstMatch(text, e.sites) }

func factory(text string) string { return firstMatch(text, factoryPatterns) }

// process prefers the keyword dictionary: a Korean process name is never
// ambiguous, while English labels need the pattern cascade.
func (e *Extractor) process(text string) string {
	for _, kw := range e.processKeywords {
		if strings.Contains(text, kw.term) {
			return kw.code
		}
	}
	return firstMatch(text, e.processes)
}

func model(text string) string { return firstMatch(text, modelPatterns) }

func line(text string) string { return firstMatch(text, linePatterns) }

func equipment(text string) string { return firstMatch(text, equipmentPatterns) }

func errorCode(text string) string { return firstMatch(text, errorCodePatterns) }

func downtimeType(text string) string { return firstMatch(text, downtimeTypePatterns) }

func status(text string) string { return firstMatch(text, statusPatterns) }

// downtimeBounds is the numeric part of a filter: either an approximate value
// or one bound of a range.
type downtimeBounds struct {
	exact, min, max *float64
}

// applyDowntime runs the numeric attempts in order and keeps the first
// success. A comparison phrase therefore always wins over a bare value.
func (e *Extractor) applyDowntime(text string, f *models.DowntimeFilter) {
	attempts := []func(string) (downtimeBounds, bool){
		e.comparisonRange,
		exactValue,
	}
	for _, try := range attempts {
		if b, ok := try(text); ok {
			f.DowntimeMinutes, f.DowntimeMinMinutes, f.DowntimeMaxMinutes = b.exact, b.min, b.max
			return
		}
	}
}

func (e *Extractor) comparisonRange(text string) (downtimeBounds, bool) {
	for _, p := range comparisonPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, ok := comparisonMinutes(p, m)
		if !ok {
			continue
		}

		switch p.op {
		case opGTE:
			return downtimeBounds{min: models.Float(v)}, true
		case opLTE:
			return downtimeBounds{max: models.Float(v)}, true
		case opGT:
			return downtimeBounds{min: models.Float(v + e.epsilon)}, true
		case opLT:
			return downtimeBounds{max: models.Float(max(v-e.epsilon, 0))}, true
		}
	}
	return downtimeBounds{}, false
}

// comparisonMinutes converts a comparison match to minutes.
func comparisonMinutes(p comparisonPattern, m []string) (float64, bool) {
	v, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	if p.compound {
		mins, ok := parseNumber(m[2])
		return v*60 + mins, ok
	}
	if isHourUnit(m[2]) {
		v *= 60
	}
	return v, true
}

func exactValue(text string) (downtimeBounds, bool) {
	if m := compoundDuration.FindStringSubmatch(text); m != nil {
		h, okH := parseNumber(m[1])
		mins, okM := parseNumber(m[2])
		if okH && okM {
			return downtimeBounds{exact: models.Float(h*60 + mins)}, true
		}
	}
	for _, p := range exactValuePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			return downtimeBounds{exact: models.Float(v * p.factor)}, true
		}
	}
	return downtimeBounds{}, false
}

// timeRange returns [start, now] for the first relative period in text.
func (e *Extractor) timeRange(text string) (string, string) {
	for _, p := range timeRangePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		now := e.now()
		var start time.Time
		switch p.kind {
		case rangeLastWeek:
			start = now.AddDate(0, 0, -7)
		case rangeThisWeek:
			// weeks start on Monday
			offset := (int(now.Weekday()) + 6) % 7
			start = midnight(now.AddDate(0, 0, -offset))
		case rangeLastMonth:
			start = now.AddDate(0, 0, -30)
		case rangeThisMonth:
			start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		case rangeLastNDays, rangeLastNWeeks, rangeLastNMonths:
			n, ok := countFrom(m)
			if !ok {
				continue
			}
			days := map[rangeKind]int{rangeLastNDays: 1, rangeLastNWeeks: 7, rangeLastNMonths: 30}[p.kind]
			start = now.AddDate(0, 0, -n*days)
		}
		return start.Format(models.TimestampLayout), now.Format(models.TimestampLayout)
	}
	return "", ""
}

// countFrom returns the first non-empty numeric capture of m.
func countFrom(m []string) (int, bool) {
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		v, ok := parseNumber(g)
		if !ok || v <= 0 {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
