package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// pattern pairs a regular expression with the canonicalizer for its match.
// A canonicalizer returns "" to reject a match, in which case the next
// pattern of the table is tried.
type pattern struct {
	re        *regexp.Regexp
	canonical func(m []string) string
}

// firstMatch returns the canonical value of the first accepted match in table.
func firstMatch(text string, table []pattern) string {
	for _, p := range table {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := p.canonical(m); v != "" {
			return v
		}
	}
	return ""
}

// keyword maps a dictionary term to a canonical code.
type keyword struct {
	term string
	code string
}

// Building blocks. Text is upper-cased before matching, so Latin literals are
// written in upper case. Hangul has no case and Go's \b only knows ASCII word
// characters, so Hangul terms get an explicit Unicode left boundary instead.
const (
	hangulLeft = `(?:^|[^\p{L}\p{N}])`
	numberLeft = `(?:^|[^\p{L}\p{N}_.])`
	number     = `(\d+(?:\.\d+)?)`
	ident      = `([A-Z0-9][A-Z0-9_\-]*)`
	labelSep   = `\s*[:=]?\s*`
	strictSep  = `\s*[:=]\s*`
	// identEnd stops a Hangul-labeled ident at a word boundary, so "장비 2시간"
	// is a duration and not equipment 2.
	identEnd = `(?:$|[^\p{L}\p{N}])`
)

// ko builds a left-bounded alternation of Hangul terms. Terms may contain
// regex syntax such as \s*.
func ko(terms ...string) string {
	return hangulLeft + `(?:` + strings.Join(terms, "|") + `)`
}

func mustCompile(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

func group(i int, normalize func(string) string) func([]string) string {
	return func(m []string) string {
		if i >= len(m) {
			return ""
		}
		return normalize(strings.TrimSpace(m[i]))
	}
}

func constant(v string) func([]string) string {
	return func([]string) string { return v }
}

var nonLetters = regexp.MustCompile(`[^A-Z]`)

// ---- site ----

func buildSitePatterns(codes []string, aliases map[string]string) []pattern {
	quoted := make([]string, 0, len(codes))
	for _, c := range codes {
		quoted = append(quoted, regexp.QuoteMeta(c))
	}

	aliasTerms := make([]string, 0, len(aliases))
	for a := range aliases {
		aliasTerms = append(aliasTerms, regexp.QuoteMeta(a))
	}
	// longest first so overlapping aliases prefer the most specific term
	sort.Slice(aliasTerms, func(i, j int) bool {
		if len(aliasTerms[i]) != len(aliasTerms[j]) {
			return len(aliasTerms[i]) > len(aliasTerms[j])
		}
		return aliasTerms[i] < aliasTerms[j]
	})

	siteCode := func(s string) string {
		s = nonLetters.ReplaceAllString(s, "")
		if len(s) < 2 || len(s) > 4 {
			return ""
		}
		return s
	}

	table := []pattern{
		{mustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`), group(1, siteCode)},
	}
	if len(aliasTerms) > 0 {
		table = append(table, pattern{
			mustCompile(hangulLeft + `(` + strings.Join(aliasTerms, "|") + `)`),
			group(1, func(s string) string { return aliases[s] }),
		})
	}
	return append(table,
		pattern{mustCompile(`사이트` + labelSep + `([A-Z]{2,4})\b`), group(1, siteCode)},
		pattern{mustCompile(`\bSITE(?:_ID)?` + strictSep + `([A-Z]{2,4})\b`), group(1, siteCode)},
	)
}

// ---- factory ----

var fabNumber = regexp.MustCompile(`^FAB\s*(\d+)$`)

func normalizeFactory(v string) string {
	v = strings.Trim(strings.ReplaceAll(v, "-", "_"), "_")
	switch {
	case v == "":
		return ""
	case fabNumber.MatchString(v):
		return "FAB" + fabNumber.FindStringSubmatch(v)[1]
	case strings.HasPrefix(v, "FAC_"):
		return v
	case strings.HasPrefix(v, "FAC") && len(v) > 3:
		return "FAC_" + v[3:]
	default:
		return "FAC_" + v
	}
}

var factoryPatterns = []pattern{
	{mustCompile(`\bFACTORY(?:_ID)?` + strictSep + ident), group(1, normalizeFactory)},
	{mustCompile(`(FAC[_\-][A-Z0-9]+)`), group(1, normalizeFactory)},
	{mustCompile(`\b(FAC[A-Z0-9]+)\b`), group(1, func(v string) string {
		// FACILITY and other plain words carry no digit.
		if strings.HasPrefix(v, "FACTORY") || !strings.ContainsAny(v[3:], "0123456789") {
			return ""
		}
		return normalizeFactory(v)
	})},
	{mustCompile(`\b(FAB\s*\d+)\b`), group(1, normalizeFactory)},
	{mustCompile(`공장` + labelSep + ident + identEnd), group(1, normalizeFactory)},
}

// ---- process ----

// processLabels maps English process labels to their code suffix.
var processLabels = map[string]string{
	"PHOTO":            "PH",
	"PHOTOLITHOGRAPHY": "PH",
	"LITHOGRAPHY":      "PH",
	"ETCH":             "ET",
	"ETCHING":          "ET",
	"CVD":              "TF",
	"THINFILM":         "TF",
	"DEPOSITION":       "TF",
	"DIFFUSION":        "DF",
	"CMP":              "CM",
	"IMPLANT":          "IMP",
	"IMPLANTATION":     "IMP",
	"CLEANING":         "CLN",
	"CLEAN":            "CLN",
	"METROLOGY":        "MI",
	"INSPECTION":       "MI",
}

// defaultProcessKeywords are matched as plain substrings, in order, before
// any English pattern.
var defaultProcessKeywords = []keyword{
	{"포토리소그래피", "PROC_PH"},
	{"포토", "PROC_PH"},
	{"노광", "PROC_PH"},
	{"에칭", "PROC_ET"},
	{"식각", "PROC_ET"},
	{"화학증착", "PROC_TF"},
	{"증착", "PROC_TF"},
	{"확산", "PROC_DF"},
	{"화학기계연마", "PROC_CM"},
	{"연마", "PROC_CM"},
	{"이온주입", "PROC_IMP"},
	{"세정", "PROC_CLN"},
	{"계측", "PROC_MI"},
}

var procPrefix = regexp.MustCompile(`^PROC[_\-]?`)

func processFromLabel(v string) string {
	if procPrefix.MatchString(v) {
		suffix := nonLetters.ReplaceAllString(procPrefix.ReplaceAllString(v, ""), "")
		if suffix == "" {
			return ""
		}
		return "PROC_" + suffix
	}
	label := nonLetters.ReplaceAllString(v, "")
	if label == "" {
		return ""
	}
	if code, ok := processLabels[label]; ok {
		return "PROC_" + code
	}
	return "PROC_" + label
}

func buildProcessPatterns() []pattern {
	labels := make([]string, 0, len(processLabels))
	for l := range processLabels {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return len(labels[i]) > len(labels[j]) })

	return []pattern{
		{mustCompile(`\b(PROC[_\-][A-Z]{2,3})\b`), group(1, processFromLabel)},
		{mustCompile(`\b(PROC(?:PH|ET|TF|DF|CM|IMP|CLN|MI))\b`), group(1, processFromLabel)},
		{mustCompile(`\b(` + strings.Join(labels, "|") + `)\b`), group(1, processFromLabel)},
		{mustCompile(`공정` + labelSep + `([A-Z][A-Z_\-]*)`), group(1, processFromLabel)},
		{mustCompile(`\bPROCESS(?:_ID)?` + strictSep + `([A-Z][A-Z_\-]*)`), group(1, processFromLabel)},
	}
}

// ---- model ----

var modelPrefix = regexp.MustCompile(`^(?:MDL|MODEL|모델)[\s_\-]*`)

func normalizeModel(v string) string {
	suffix := strings.Trim(strings.ReplaceAll(modelPrefix.ReplaceAllString(v, ""), "-", "_"), "_")
	if suffix == "" {
		return ""
	}
	return "MDL_" + suffix
}

var modelPatterns = []pattern{
	{mustCompile(`\bMODEL(?:_ID)?` + strictSep + ident), group(1, normalizeModel)},
	{mustCompile(`\b(MDL[_\-][A-Z0-9][A-Z0-9_\-]*)`), group(1, normalizeModel)},
	{mustCompile(`\b(MODEL[_\-][A-Z0-9][A-Z0-9_\-]*)`), group(1, normalizeModel)},
	{mustCompile(`모델` + strictSep + ident), group(1, normalizeModel)},
	{mustCompile(`\b(MODEL[\s]?[A-Z])\b`), group(1, normalizeModel)},
	{mustCompile(`모델[\s\-]?([A-Z])\b`), group(1, normalizeModel)},
}

// ---- line / equipment ----

func prefixed(prefix string) func(string) string {
	strip := regexp.MustCompile(`^` + prefix + `[\s_\-]*`)
	return func(v string) string {
		rest := strings.Trim(strings.ReplaceAll(strip.ReplaceAllString(v, ""), "-", "_"), "_")
		if rest == "" {
			return ""
		}
		return prefix + "_" + rest
	}
}

var (
	normalizeLine      = prefixed("LINE")
	normalizeEquipment = prefixed("EQP")
)

// Explicit "key: value" labels come first so LINE_ID / EQP_ID keys are not
// mistaken for identifiers.
var linePatterns = []pattern{
	{mustCompile(`\bLINE(?:_ID)?` + strictSep + ident), group(1, normalizeLine)},
	{mustCompile(`\b(LINE[_\-][A-Z0-9][A-Z0-9_\-]*)`), group(1, normalizeLine)},
	{mustCompile(`라인` + labelSep + ident + identEnd), group(1, normalizeLine)},
}

var equipmentPatterns = []pattern{
	{mustCompile(`\b(?:EQUIPMENT|EQP)(?:_ID)?` + strictSep + ident), group(1, normalizeEquipment)},
	{mustCompile(`\b(EQP[_\-][A-Z0-9][A-Z0-9_\-]*)`), group(1, normalizeEquipment)},
	{mustCompile(`장비` + labelSep + ident + identEnd), group(1, normalizeEquipment)},
}

// ---- error code ----

// entityPrefixes start identifiers of other fields; a generic AA_BB_123
// token with one of them is not an error code.
var entityPrefixes = []string{"EQP", "LINE", "PROC", "MDL", "FAC", "FAB", "SITE"}

func structuredErrorCode(v string) string {
	if strings.HasPrefix(v, "ERR_") || strings.ContainsAny(v, "_-") || len(v) >= 6 {
		return v
	}
	return ""
}

func genericErrorCode(v string) string {
	for _, p := range entityPrefixes {
		if strings.HasPrefix(v, p+"_") || strings.HasPrefix(v, p+"-") {
			return ""
		}
	}
	return structuredErrorCode(v)
}

var errorCodePatterns = []pattern{
	{mustCompile(`에러\s*코드` + labelSep + ident + identEnd), group(1, structuredErrorCode)},
	{mustCompile(`\b(ERR[_\-][A-Z0-9][A-Z0-9_\-]*)`), group(1, structuredErrorCode)},
	{mustCompile(`\b([A-Z]{2,4}[_\-][A-Z]{2,4}[_\-]\d+)\b`), group(1, genericErrorCode)},
	{mustCompile(`에러` + labelSep + ident + identEnd), group(1, structuredErrorCode)},
	{mustCompile(`\bERROR[_\s]*CODE` + labelSep + ident), group(1, structuredErrorCode)},
	{mustCompile(`\bERROR` + strictSep + ident), group(1, structuredErrorCode)},
}

// ---- downtime type / status ----

var downtimeTypePatterns = []pattern{
	{mustCompile(ko(`비계획`, `비스케줄`, `예기치\s*않은`, `돌발`)), constant("UNSCHEDULED")},
	{mustCompile(`\b(?:UNSCHEDULED|UNPLANNED)\b`), constant("UNSCHEDULED")},
	{mustCompile(ko(`계획`, `스케줄`)), constant("SCHEDULED")},
	{mustCompile(`\b(?:SCHEDULED|PLANNED)\b`), constant("SCHEDULED")},
}

var statusPatterns = []pattern{
	{mustCompile(ko(`미완료`)), constant("IN_PROGRESS")},
	{mustCompile(ko(`완료`)), constant("COMPLETED")},
	{mustCompile(`\bCOMPLETED?\b`), constant("COMPLETED")},
	{mustCompile(ko(`진행\s*중`, `처리\s*중`)), constant("IN_PROGRESS")},
	{mustCompile(`\bIN[_\s]PROGRESS\b`), constant("IN_PROGRESS")},
}

// ---- downtime minutes ----

const (
	hourUnits   = `시간|HOURS|HOUR|HRS|HR|H`
	minuteUnits = `분|MINUTES|MINUTE|MINS|MIN|M`
)

// compoundDuration matches "N시간 M분".
var compoundDuration = mustCompile(numberLeft + number + `\s*시간\s*` + number + `\s*분`)

// minutePattern pairs a single-unit value pattern with its factor to minutes.
type minutePattern struct {
	re     *regexp.Regexp
	factor float64
}

// exactValuePatterns are tried in order after the compound form.
// "분기" (quarter) and "분석" (analysis) are not minutes.
var exactValuePatterns = []minutePattern{
	{mustCompile(numberLeft + number + `\s*분(?:$|[^기석])`), 1},
	{mustCompile(numberLeft + number + `\s*시간`), 60},
	{mustCompile(numberLeft + number + `\s*(?:HOURS|HOUR|HRS|HR|H)\b`), 60},
	{mustCompile(numberLeft + number + `\s*(?:MINUTES|MINUTE|MINS|MIN|M)\b`), 1},
}

// comparisonOp is the inequality expressed by a comparison phrase.
type comparisonOp int

const (
	opGTE comparisonOp = iota
	opLTE
	opGT
	opLT
)

type comparisonPattern struct {
	re       *regexp.Regexp
	op       comparisonOp
	// compound patterns capture hours and minutes; the others capture a
	// value and its unit.
	compound bool
}

// comparisonKeywords are tried in order; inclusive forms come first so that
// ">=" is never read as ">".
var comparisonKeywords = []struct {
	keywords string
	op       comparisonOp
}{
	{`이상|>=|≥|OVER|(?:OR\s+)?MORE`, opGTE},
	{`이하|<=|≤|UNDER|(?:OR\s+)?LESS`, opLTE},
	{`초과|>|GREATER`, opGT},
	{`미만|<`, opLT},
}

// comparisonPatterns holds the compound "N시간 M분 이상" forms ahead of the
// single-unit ones, so the minutes of a compound value are not read alone.
var comparisonPatterns = func() []comparisonPattern {
	var out []comparisonPattern
	for _, k := range comparisonKeywords {
		out = append(out, comparisonPattern{
			re:       mustCompile(numberLeft + number + `\s*시간\s*` + number + `\s*분\s*(?:` + k.keywords + `)`),
			op:       k.op,
			compound: true,
		})
	}
	for _, k := range comparisonKeywords {
		out = append(out, comparisonPattern{
			re: mustCompile(numberLeft + number + `\s*(` + hourUnits + `|` + minuteUnits + `)\s*(?:` + k.keywords + `)`),
			op: k.op,
		})
	}
	return out
}()

func isHourUnit(u string) bool {
	switch u {
	case "시간", "H", "HR", "HRS", "HOUR", "HOURS":
		return true
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// ---- time range ----

type rangeKind int

const (
	rangeLastWeek rangeKind = iota
	rangeThisWeek
	rangeLastMonth
	rangeThisMonth
	rangeLastNDays
	rangeLastNWeeks
	rangeLastNMonths
)

type timeRangePattern struct {
	re   *regexp.Regexp
	kind rangeKind
}

var timeRangePatterns = []timeRangePattern{
	{mustCompile(`지난\s*주|\bLAST\s+WEEK\b`), rangeLastWeek},
	{mustCompile(`이번\s*주|금주|\bTHIS\s+WEEK\b`), rangeThisWeek},
	{mustCompile(`지난\s*(?:달|월)|\bLAST\s+MONTH\b`), rangeLastMonth},
	{mustCompile(`이번\s*(?:달|월)|\bTHIS\s+MONTH\b`), rangeThisMonth},
	{mustCompile(`(?:최근|지난)\s*(\d+)\s*일|\bLAST\s+(\d+)\s+DAYS?\b`), rangeLastNDays},
	{mustCompile(`(?:최근|지난)\s*(\d+)\s*주|\bLAST\s+(\d+)\s+WEEKS?\b`), rangeLastNWeeks},
	{mustCompile(`(?:최근|지난)\s*(\d+)\s*(?:달|개월)|\bLAST\s+(\d+)\s+MONTHS?\b`), rangeLastNMonths},
}
