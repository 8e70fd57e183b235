package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"dynetl/internal/apperrors"
)

// errorResponse is returned to the agent as a tool result for errors it can
// act on.
type errorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorResult converts caller-side failures into an IsError tool result.
// It reports false for server faults.
func errorResult(err error) (*mcp.CallToolResult, bool) {
	var code string
	switch {
	case apperrors.IsClientError(err):
		code = "invalid_request"
	case errors.Is(err, apperrors.ErrNotFound):
		code = "not_found"
	case errors.Is(err, apperrors.ErrAlreadyRunning):
		code = "already_running"
	default:
		return nil, false
	}
	data, _ := json.Marshal(errorResponse{Error: true, Code: code, Message: err.Error()})
	res := textResult(string(data))
	res.IsError = true
	return res, true
}

// jsonArg decodes an argument that may arrive either as a JSON string or as
// an already-decoded value.
func jsonArg(args map[string]any, key string, target any) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		if v == "" {
			return false, nil
		}
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false, err
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, invalidArg("%s is not valid JSON: %v", key, err)
	}
	return true, nil
}

// intArg reads a whole-number argument; JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidArg("%s must be an integer", key)
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidArg("%s must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, invalidArg("%s must be an integer, got %T", key, v)
	}
}

func invalidArg(format string, args ...any) error {
	return apperrors.Invalid(apperrors.KindQueryExecution, "read tool arguments", format, args...)
}

func requireString(args map[string]any, key string) (string, error) {
	s, _ := args[key].(string)
	if s == "" {
		return "", invalidArg("%s is required", key)
	}
	return s, nil
}

func describe(format string, args ...any) mcp.PropertyOption {
	return mcp.Description(fmt.Sprintf(format, args...))
}
