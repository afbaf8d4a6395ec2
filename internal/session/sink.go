package session

import "github.com/voicebridge/voice-gateway/internal/events"

// ToolResult is the local notification emitted after a tool execution so the
// client can render the outcome. Error marks a business-level failure.
type ToolResult struct {
	ToolUseID       string `json:"toolUseId"`
	ToolName        string `json:"toolName"`
	Result          any    `json:"result"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	Error           bool   `json:"error,omitempty"`
}

// Sink receives every session-visible event for relay to the client. The
// demultiplexer calls these one at a time in arrival order; implementations
// must not block for long or they stall the response stream.
type Sink interface {
	OnContentStart(*events.ContentStartOutput)
	OnTextOutput(*events.TextOutput)
	OnAudioOutput(*events.AudioOutput)
	OnToolUse(*events.ToolUse)
	OnToolResult(ToolResult)
	OnContentEnd(*events.ContentEndOutput)
	OnCompletionStart(*events.CompletionStart)
	OnUsage(*events.UsageEvent)
	OnBargeIn(*events.BargeIn)
	OnStreamComplete(*events.StreamComplete)
	OnError(*events.StreamError)
}

// AnySink is an optional wildcard a Sink may additionally implement to
// observe every downstream event before its kind-specific method fires
type AnySink interface {
	OnAny(events.Downstream)
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) OnContentStart(*events.ContentStartOutput)   {}
func (NopSink) OnTextOutput(*events.TextOutput)             {}
func (NopSink) OnAudioOutput(*events.AudioOutput)           {}
func (NopSink) OnToolUse(*events.ToolUse)                   {}
func (NopSink) OnToolResult(ToolResult)                     {}
func (NopSink) OnContentEnd(*events.ContentEndOutput)       {}
func (NopSink) OnCompletionStart(*events.CompletionStart)   {}
func (NopSink) OnUsage(*events.UsageEvent)                  {}
func (NopSink) OnBargeIn(*events.BargeIn)                   {}
func (NopSink) OnStreamComplete(*events.StreamComplete)     {}
func (NopSink) OnError(*events.StreamError)                 {}
