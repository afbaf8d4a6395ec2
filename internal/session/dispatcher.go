package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge/voice-gateway/internal/events"
	"github.com/voicebridge/voice-gateway/internal/tools"
)

// maxToolResultChars bounds the stringified tool result injected into the
// model's context. Oversized results are cut and suffixed.
const maxToolResultChars = 20480

const truncationSuffix = "... (truncated)"

// dispatchTool consumes the cached tool context and runs the execution off
// the demux path. Multiple tools may be in flight; the model correlates
// results by toolUseId.
func (s *Session) dispatchTool() {
	s.mu.Lock()
	tu := s.activeTool
	s.activeTool = nil
	s.mu.Unlock()

	if tu == nil {
		s.logger.Warn().Msg("TOOL contentEnd with no pending toolUse")
		return
	}
	go s.runTool(*tu)
}

// runTool executes one tool invocation and delivers the result both upstream
// (so the model can respond to it) and to the sink (so the client can render
// it). Failures become business errors rather than ending the session.
func (s *Session) runTool(tu events.ToolUse) {
	logger := s.logger.With().Str("tool", tu.ToolName).Str("tool_use_id", tu.ToolUseID).Logger()
	start := time.Now()

	params := parseToolParams(tu.Content)
	result, err := s.registry.Execute(s.ctx, tu.ToolName, params, tools.Context{Inference: s.cfg.Inference})
	if err != nil {
		if errors.Is(err, tools.ErrUnknownTool) {
			result = tools.BusinessError("Tool not supported")
		} else {
			result = tools.BusinessError(err.Error())
		}
	}

	elapsed := time.Since(start)
	failed := err != nil || tools.IsBusinessError(result)
	s.metrics.RecordToolExecution(tu.ToolName, !failed, elapsed)
	logger.Info().Dur("elapsed", elapsed).Bool("error", failed).Msg("Tool execution finished")

	if s.State() == StateActive {
		s.emitToolResult(tu.ToolUseID, result)
	}

	s.sink.OnToolResult(ToolResult{
		ToolUseID:       tu.ToolUseID,
		ToolName:        tu.ToolName,
		Result:          result,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Error:           failed,
	})
}

// parseToolParams decodes the model's tool arguments. A string payload is
// JSON when possible, otherwise wrapped so the tool still sees something.
func parseToolParams(content string) map[string]any {
	if content == "" {
		return map[string]any{}
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(content), &params); err != nil {
		return map[string]any{"content": content}
	}
	return params
}

// emitToolResult enqueues the contentStart/toolResult/contentEnd triple for
// one result. The pauses keep the model's reader from observing the payload
// before its contentStart.
func (s *Session) emitToolResult(toolUseID string, result any) {
	contentName := uuid.NewString()
	interactive := false

	s.enqueue(events.Upstream{ContentStart: &events.ContentStart{
		PromptName:  s.promptName,
		ContentName: contentName,
		Type:        events.ContentTypeTool,
		Role:        events.RoleTool,
		Interactive: &interactive,
		ToolResultInputConfiguration: &events.ToolResultInputConfig{
			ToolUseID:              toolUseID,
			Type:                   events.ContentTypeText,
			TextInputConfiguration: &events.MediaConfig{MediaType: "text/plain"},
		},
	}}, false)
	s.pause(s.cfg.Timing.ToolPrePause)

	s.enqueue(events.Upstream{ToolResult: &events.ToolResultInput{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     SanitizeToolResult(stringifyToolResult(result)),
	}}, false)
	s.pause(s.cfg.Timing.ToolMidPause)

	s.enqueue(events.Upstream{ContentEnd: &events.ContentEnd{
		PromptName:  s.promptName,
		ContentName: contentName,
	}}, false)
	s.pause(s.cfg.Timing.ToolPostPause)
}

// stringifyToolResult renders a tool result for the wire. Strings pass
// through; everything else is JSON-encoded.
func stringifyToolResult(result any) string {
	if str, ok := result.(string); ok {
		return str
	}
	data, err := json.Marshal(result)
	if err != nil {
		return `{"error":true,"message":"unserializable tool result"}`
	}
	return string(data)
}

// SanitizeToolResult strips ASCII control characters other than tab, newline
// and carriage return, then truncates to the result cap
func SanitizeToolResult(content string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, content)

	if len(cleaned) > maxToolResultChars {
		if runes := []rune(cleaned); len(runes) > maxToolResultChars {
			cleaned = string(runes[:maxToolResultChars]) + truncationSuffix
		}
	}
	return cleaned
}
