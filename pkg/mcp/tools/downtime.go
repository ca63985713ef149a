package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
)

// DowntimeToolDeps are the services behind the downtime tools.
type DowntimeToolDeps struct {
	Ask   services.AskService
	Stats services.StatsService
}

// RegisterDowntimeTools adds ask_downtime, analyze_question and error_code_stats.
func RegisterDowntimeTools(s *server.MCPServer, deps *DowntimeToolDeps) {
	registerAskTool(s, deps)
	registerAnalyzeTool(s, deps)
	registerErrorCodeStatsTool(s, deps)
}

type askResult struct {
	Answer      string `json:"answer"`
	Success     bool   `json:"success"`
	IsSpecific  bool   `json:"is_specific"`
	ResultCount int    `json:"result_count"`
	Source      string `json:"source"`
}

func registerAskTool(s *server.MCPServer, deps *DowntimeToolDeps) {
	tool := mcp.NewTool(
		"ask_downtime",
		mcp.WithDescription(
			"Answer a natural-language question about equipment downtime. "+
				"Questions naming a site, factory, process, model, equipment, error code, downtime type, status, duration or period "+
				"are answered from the downtime database; other questions go to the general assistant. "+
				"Example: ask_downtime(question='포토 공정 비계획 다운타임 2시간 이상 보여줘').",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question, in Korean or English")),
		mcp.WithString("context", mcp.Description("Optional background passed to the general assistant")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to list (default from server configuration)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		res, err := deps.Ask.Ask(ctx, services.AskRequest{
			Question: question,
			Context:  optionalString(req, "context"),
			Limit:    optionalInt(req, "limit"),
		})
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(askResult{
			Answer:      res.Answer,
			Success:     res.Success,
			IsSpecific:  res.IsSpecific,
			ResultCount: res.ResultCount,
			Source:      res.Source,
		})
	})
}

func registerAnalyzeTool(s *server.MCPServer, deps *DowntimeToolDeps) {
	tool := mcp.NewTool(
		"analyze_question",
		mcp.WithDescription(
			"Show how a question would be interpreted without running it: the extracted filter, "+
				"whether it is specific enough to query, and the SQL with its bound values.",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to analyze")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return nil, err
		}

		analysis, err := deps.Ask.Analyze(question, nil)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(analysis)
	})
}

func registerErrorCodeStatsTool(s *server.MCPServer, deps *DowntimeToolDeps) {
	tool := mcp.NewTool(
		"error_code_stats",
		mcp.WithDescription(
			"Count downtime events and minutes per process, model, equipment and error code, "+
				"optionally bucketed by month or day.",
		),
		mcp.WithString("group_by", mcp.Enum("error_code", "month", "day"), mcp.Description("Grouping (default error_code)")),
		mcp.WithString("start_date", mcp.Description("Earliest start, YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Description("Latest start, YYYY-MM-DD")),
		mcp.WithString("process_id", mcp.Description("Restrict to one process")),
		mcp.WithString("model_id", mcp.Description("Restrict to one model")),
		mcp.WithString("eqp_id", mcp.Description("Restrict to one equipment")),
		mcp.WithString("error_code", mcp.Description("Restrict to one error code")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Stats.ErrorCodeStats(ctx, querybuilder.ErrorCodeStatsRequest{
			GroupBy:     querybuilder.GroupBy(optionalString(req, "group_by")),
			StartDate:   optionalString(req, "start_date"),
			EndDate:     optionalString(req, "end_date"),
			ProcessID:   optionalString(req, "process_id"),
			ModelID:     optionalString(req, "model_id"),
			EquipmentID: optionalString(req, "eqp_id"),
			ErrorCode:   optionalString(req, "error_code"),
		})
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(stats)
	})
}
