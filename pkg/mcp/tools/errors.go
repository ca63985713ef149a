// Package tools registers the downtime tools on an MCP server.
package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/services"
)

// ErrorResponse is the body of a tool result flagged IsError. The caller can
// act on it (rephrase, fix a parameter, retry later).
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult builds an IsError tool result with a JSON ErrorResponse.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	body, _ := json.Marshal(ErrorResponse{Error: true, Code: code, Message: message})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}

// resultForError maps domain errors to tool results. Anything unexpected is
// returned as a protocol error.
func resultForError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return NewErrorResult("invalid_parameters", err.Error()), nil
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return NewErrorResult("store_unavailable", services.StoreUnavailableMessage), nil
	default:
		return nil, err
	}
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(body)), nil
}

// optionalString returns a string argument, or "" when absent.
func optionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	v, _ := args[key].(string)
	return v
}

// optionalInt returns a numeric argument truncated to int, or 0 when absent.
func optionalInt(req mcp.CallToolRequest, key string) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0
	}
	v, _ := args[key].(float64)
	return int(v)
}
