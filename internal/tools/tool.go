// Package tools defines the contract for functions the model may invoke
// during a conversation, and the registry that indexes them by name.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/voicebridge/voice-gateway/internal/events"
)

// ErrUnknownTool is returned when a tool name has no registration
var ErrUnknownTool = errors.New("unknown tool")

// Context carries per-session settings into a tool execution so a tool may
// forward them to a downstream LLM call
type Context struct {
	Inference events.InferenceConfig
}

// Tool is a callable function exposed to the model
type Tool interface {
	// Name is the stable identifier, matched case-insensitively
	Name() string

	// Description explains what the tool does, helping the model decide
	// when to use it
	Description() string

	// InputSchema returns the JSON-Schema descriptor of the parameters
	InputSchema() map[string]any

	// Execute runs the tool. The returned value must be JSON-serializable.
	Execute(ctx context.Context, params map[string]any, tctx Context) (any, error)
}

// BusinessError wraps a message as the business-level failure shape. The
// dispatcher treats this as distinct from Execute returning an error: the
// tool ran, but reports a failure the model should hear about.
func BusinessError(message string) map[string]any {
	return map[string]any{
		"error":   true,
		"message": message,
	}
}

// IsBusinessError reports whether a tool result carries the explicit
// error marker
func IsBusinessError(result any) bool {
	m, ok := result.(map[string]any)
	if !ok {
		return false
	}
	flag, ok := m["error"].(bool)
	return ok && flag
}

// StringParam extracts a string parameter
func StringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// FloatParam extracts a numeric parameter, accepting JSON numbers and
// numeric strings
func FloatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// IntParam extracts an integer parameter
func IntParam(params map[string]any, key string) (int, bool) {
	f, ok := FloatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
