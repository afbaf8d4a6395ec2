package gateway

import (
	"encoding/json"
	"time"

	"github.com/voicebridge/voice-gateway/internal/events"
	"github.com/voicebridge/voice-gateway/internal/session"
)

// relaySink forwards session events to the client socket with the payload
// shape the model produced. The demux loop calls these sequentially, so no
// additional ordering is needed here.
type relaySink struct {
	c *connection
}

// raw relays the model's own payload bytes unchanged; a nil payload falls
// back to an empty object so clients always get valid JSON
func (r *relaySink) raw(msgType string, payload json.RawMessage) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	r.c.send(msgType, payload)
}

func (r *relaySink) OnContentStart(ev *events.ContentStartOutput) { r.raw("contentStart", ev.Raw) }
func (r *relaySink) OnTextOutput(ev *events.TextOutput)           { r.raw("textOutput", ev.Raw) }
func (r *relaySink) OnAudioOutput(ev *events.AudioOutput)         { r.raw("audioOutput", ev.Raw) }
func (r *relaySink) OnToolUse(ev *events.ToolUse)                 { r.raw("toolUse", ev.Raw) }
func (r *relaySink) OnContentEnd(ev *events.ContentEndOutput)     { r.raw("contentEnd", ev.Raw) }
func (r *relaySink) OnCompletionStart(ev *events.CompletionStart) { r.raw("completionStart", ev.Raw) }
func (r *relaySink) OnUsage(ev *events.UsageEvent)                { r.raw("usageEvent", ev.Raw) }

func (r *relaySink) OnToolResult(tr session.ToolResult) {
	r.c.send("toolResult", tr)
}

func (r *relaySink) OnBargeIn(ev *events.BargeIn) {
	r.c.send("bargeIn", map[string]bool{"interrupted": ev.Interrupted})
	// streamInterrupted is the playback-cutoff companion to bargeIn; clients
	// that only manage audio listen for it.
	r.c.send("streamInterrupted", map[string]bool{"interrupted": ev.Interrupted})
}

func (r *relaySink) OnStreamComplete(ev *events.StreamComplete) {
	r.c.send("streamComplete", map[string]string{
		"timestamp": ev.Timestamp.Format(time.RFC3339Nano),
	})
}

func (r *relaySink) OnError(ev *events.StreamError) {
	payload := map[string]any{
		"message": "model stream error",
		"type":    ev.Type,
		"source":  ev.Source,
	}
	if len(ev.Details) > 0 {
		payload["details"] = ev.Details
	}
	r.c.send("error", payload)
}
