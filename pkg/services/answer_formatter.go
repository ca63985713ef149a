package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/downtime-engine/pkg/models"
)

// MaxDetailRows is the number of rows rendered in the detail section.
const MaxDetailRows = 10

// NoResultsMessage is rendered when a specific filter matched nothing.
const NoResultsMessage = "조건에 해당하는 다운타임 이력이 없습니다."

var conditionLabels = map[string]string{
	"site_id":           "사이트",
	"factory_id":        "공장",
	"line_id":           "라인",
	"process_id":        "공정",
	"model_id":          "모델",
	"eqp_id":            "장비",
	"down_type":         "다운타임 유형",
	"status_id":         "처리 상태",
	"error_code":        "에러 코드",
	"down_time_minutes": "다운타임",
	"down_time_min":     "다운타임 하한",
	"down_time_max":     "다운타임 상한",
	"start_time_from":   "시작 시각(부터)",
	"start_time_to":     "시작 시각(까지)",
}

var codeLabels = map[string]string{
	string(models.DowntimeScheduled):   "계획",
	string(models.DowntimeUnscheduled): "비계획",
	string(models.StatusCompleted):     "완료",
	string(models.StatusInProgress):    "진행중",
}

// FormatAnswer renders the report for a specific filter. It is a pure
// function of its inputs.
func FormatAnswer(filter models.DowntimeFilter, rows []models.Row, stats models.DowntimeStatistics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "다운타임 이력 조회 결과 (%d건)\n", len(rows))

	b.WriteString("\n[검색 조건]\n")
	for _, f := range filter.Fields() {
		fmt.Fprintf(&b, "- %s: %s\n", conditionLabels[f.Key], conditionValue(f))
	}

	if len(rows) == 0 {
		b.WriteString("\n")
		b.WriteString(NoResultsMessage)
		return b.String()
	}

	if stats.TotalCount > 0 {
		b.WriteString("\n[통계]\n")
		fmt.Fprintf(&b, "- 총 건수: %d건\n", stats.TotalCount)
		fmt.Fprintf(&b, "- 총 다운타임: %s\n", formatMinutes(stats.TotalMinutes))
		fmt.Fprintf(&b, "- 평균 다운타임: %s\n", formatMinutes(stats.AvgMinutes))
		fmt.Fprintf(&b, "- 최소/최대 다운타임: %s / %s\n", formatMinutes(stats.MinMinutes), formatMinutes(stats.MaxMinutes))
		fmt.Fprintf(&b, "- 계획/비계획: %d건 / %d건\n", stats.ScheduledCount, stats.UnscheduledCount)
		fmt.Fprintf(&b, "- 완료/진행중: %d건 / %d건\n", stats.CompletedCount, stats.InProgressCount)
	}

	b.WriteString("\n[상세 내역]\n")
	for i, row := range rows {
		if i == MaxDetailRows {
			break
		}
		writeRow(&b, i+1, row)
	}
	if len(rows) > MaxDetailRows {
		fmt.Fprintf(&b, "\n… 외 %d건\n", len(rows)-MaxDetailRows)
	}

	return strings.TrimRight(b.String(), "\n")
}

func conditionValue(f models.FilterField) string {
	switch f.Key {
	case "down_type", "status_id":
		if label, ok := codeLabels[f.Value]; ok {
			return fmt.Sprintf("%s (%s)", label, f.Value)
		}
	case "down_time_minutes":
		return "약 " + f.Value + "분"
	case "down_time_min":
		return f.Value + "분 이상"
	case "down_time_max":
		return f.Value + "분 이하"
	}
	return f.Value
}

func writeRow(b *strings.Builder, n int, row models.Row) {
	id := row.String("informnote_id")
	if id == "" {
		id = "-"
	}
	fmt.Fprintf(b, "%d. %s\n", n, id)

	var chain []string
	for _, part := range []string{
		row.String("site_id"),
		row.String("factory_id"),
		row.String("line_id"),
		withName(row.String("process_id"), row.String("process_name")),
		withName(row.String("eqp_id"), row.String("eqp_name")),
	} {
		if part != "" {
			chain = append(chain, part)
		}
	}
	if len(chain) > 0 {
		fmt.Fprintf(b, "   위치: %s\n", strings.Join(chain, " > "))
	}

	start, end := row.String("down_start_time"), row.String("down_end_time")
	duration := rowDuration(row)
	switch {
	case start != "" || end != "":
		window := start
		if end != "" {
			window += " ~ " + end
		}
		if duration != "" {
			window += " (" + duration + ")"
		}
		fmt.Fprintf(b, "   시간: %s\n", strings.TrimSpace(window))
	case duration != "":
		fmt.Fprintf(b, "   소요: %s\n", duration)
	}

	var kind []string
	if v := row.String("down_type"); v != "" {
		kind = append(kind, "유형: "+labelOf(v))
	}
	if v := row.String("error_code"); v != "" {
		kind = append(kind, "에러: "+withName(v, row.String("error_desc")))
	}
	if v := row.String("status_id"); v != "" {
		kind = append(kind, "상태: "+labelOf(v))
	}
	if len(kind) > 0 {
		fmt.Fprintf(b, "   %s\n", strings.Join(kind, " / "))
	}

	if v := row.String("act_prob_reason"); v != "" {
		fmt.Fprintf(b, "   원인: %s\n", v)
	}
	if v := row.String("act_content"); v != "" {
		fmt.Fprintf(b, "   조치: %s\n", v)
	}
}

func withName(code, name string) string {
	if code == "" || name == "" {
		return code
	}
	return code + "(" + name + ")"
}

func labelOf(code string) string {
	if label, ok := codeLabels[code]; ok {
		return label
	}
	return code
}

// rowDuration prefers the start/end difference and falls back to the
// recorded minutes. It returns "" when neither is usable.
func rowDuration(row models.Row) string {
	start, errS := time.Parse(models.TimestampLayout, row.String("down_start_time"))
	end, errE := time.Parse(models.TimestampLayout, row.String("down_end_time"))
	if errS == nil && errE == nil && !end.Before(start) {
		return formatDuration(end.Sub(start).Minutes())
	}
	if m, ok := row.Float("down_time_minutes"); ok {
		return formatDuration(m)
	}
	return ""
}

// formatDuration renders minutes as "N시간 M분", dropping zero parts.
func formatDuration(minutes float64) string {
	total := int64(math.Round(minutes))
	h, m := total/60, total%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d시간 %d분", h, m)
	case h > 0:
		return fmt.Sprintf("%d시간", h)
	default:
		return fmt.Sprintf("%d분", m)
	}
}

func formatMinutes(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64) + "분"
}
