package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Downstream is one decoded event from the model's response stream. Each
// variant keeps the raw payload so it can be relayed to the client unchanged.
type Downstream interface {
	// EventKind returns the wire name of the event
	EventKind() string
}

// ContentStartOutput signals the start of an assistant content block
type ContentStartOutput struct {
	Type        string          `json:"type"`
	Role        string          `json:"role"`
	ContentID   string          `json:"contentId"`
	Raw         json.RawMessage `json:"-"`
}

func (*ContentStartOutput) EventKind() string { return "contentStart" }

// TextOutput carries an incremental transcript chunk
type TextOutput struct {
	Role                  string          `json:"role"`
	Content               string          `json:"content"`
	AdditionalModelFields string          `json:"additionalModelFields,omitempty"`
	Raw                   json.RawMessage `json:"-"`
}

func (*TextOutput) EventKind() string { return "textOutput" }

// AudioOutput carries a base64-encoded chunk of synthesized voice
type AudioOutput struct {
	Content string          `json:"content"`
	Raw     json.RawMessage `json:"-"`
}

func (*AudioOutput) EventKind() string { return "audioOutput" }

// ToolUse is the model's request to invoke a tool
type ToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	Content   string          `json:"content"`
	Raw       json.RawMessage `json:"-"`
}

func (*ToolUse) EventKind() string { return "toolUse" }

// ContentEndOutput closes an assistant content block
type ContentEndOutput struct {
	Type       string          `json:"type,omitempty"`
	StopReason string          `json:"stopReason,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

func (*ContentEndOutput) EventKind() string { return "contentEnd" }

// CompletionStart signals the start of a model completion
type CompletionStart struct {
	Raw json.RawMessage `json:"-"`
}

func (*CompletionStart) EventKind() string { return "completionStart" }

// UsageEvent carries token accounting from the model
type UsageEvent struct {
	Raw json.RawMessage `json:"-"`
}

func (*UsageEvent) EventKind() string { return "usageEvent" }

// StreamError is a transport-level error frame. It does not close the
// session; the state machine decides what to do with it.
type StreamError struct {
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (*StreamError) EventKind() string { return "error" }

// StreamComplete is synthesized when the response stream ends
type StreamComplete struct {
	Timestamp time.Time `json:"timestamp"`
}

func (*StreamComplete) EventKind() string { return "streamComplete" }

// BargeIn is synthesized when the model signals a user interruption inside a
// textOutput frame
type BargeIn struct {
	Interrupted bool `json:"interrupted"`
}

func (*BargeIn) EventKind() string { return "bargeIn" }

// Unknown is any event kind the demultiplexer does not recognize
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (u *Unknown) EventKind() string {
	if u.Kind == "" {
		return "unknown"
	}
	return u.Kind
}

// Exception frame kinds the model service may emit in-band.
const (
	KindModelStreamError = "modelStreamErrorException"
	KindInternalServer   = "internalServerException"
)

// DecodeDownstream parses one framed payload from the model response stream.
// A frame with no recognizable event yields *Unknown rather than an error so
// the demultiplexer can keep draining the stream.
func DecodeDownstream(frame []byte) (Downstream, error) {
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed response frame: %w", err)
	}
	if len(env.Event) == 0 {
		return &Unknown{Raw: json.RawMessage(frame)}, nil
	}

	// The envelope carries a single top-level kind.
	var kind string
	var payload json.RawMessage
	for k, v := range env.Event {
		kind, payload = k, v
		break
	}

	switch kind {
	case "contentStart":
		ev := &ContentStartOutput{Raw: payload}
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode contentStart: %w", err)
		}
		return ev, nil
	case "textOutput":
		ev := &TextOutput{Raw: payload}
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode textOutput: %w", err)
		}
		return ev, nil
	case "audioOutput":
		ev := &AudioOutput{Raw: payload}
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode audioOutput: %w", err)
		}
		return ev, nil
	case "toolUse":
		ev := &ToolUse{Raw: payload}
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode toolUse: %w", err)
		}
		return ev, nil
	case "contentEnd":
		ev := &ContentEndOutput{Raw: payload}
		if err := json.Unmarshal(payload, ev); err != nil {
			return nil, fmt.Errorf("decode contentEnd: %w", err)
		}
		return ev, nil
	case "completionStart":
		return &CompletionStart{Raw: payload}, nil
	case "usageEvent":
		return &UsageEvent{Raw: payload}, nil
	case KindModelStreamError, KindInternalServer:
		return &StreamError{Type: kind, Source: "responseStream", Details: payload}, nil
	default:
		return &Unknown{Kind: kind, Raw: payload}, nil
	}
}

// bargeInMarker is the in-band interruption signal, compared with all
// whitespace removed.
const bargeInMarker = `{"interrupted":true}`

// ContainsBargeInMarker reports whether a textOutput content string carries
// the interruption marker, ignoring whitespace
func ContainsBargeInMarker(content string) bool {
	if content == "" {
		return false
	}
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, content)
	return strings.Contains(stripped, bargeInMarker)
}
