// Package events defines the JSON wire format spoken on the model-service
// duplex stream. Upstream and downstream frames are both envelopes of shape
// {"event":{"<kind>":<payload>}} serialized as UTF-8 bytes.
package events

import (
	"encoding/json"
	"fmt"
)

// Content block types and roles used in contentStart events.
const (
	ContentTypeText  = "TEXT"
	ContentTypeAudio = "AUDIO"
	ContentTypeTool  = "TOOL"

	RoleSystem    = "SYSTEM"
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleTool      = "TOOL"
)

// Stop reasons carried by downstream contentEnd events.
const (
	StopReasonEndTurn     = "END_TURN"
	StopReasonInterrupted = "INTERRUPTED"
	StopReasonMaxTokens   = "MAX_TOKENS"
	StopReasonToolUse     = "TOOL_USE"
)

// InferenceConfig carries the sampling knobs for a session
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// TurnDetectionConfig controls the model's endpointing behavior
type TurnDetectionConfig struct {
	EndpointingSensitivity string `json:"endpointingSensitivity"` // HIGH, MEDIUM, LOW
}

// ToolChoice selects how the model may pick tools: auto, any, or a specific
// tool by name. The zero value marshals as auto.
type ToolChoice struct {
	Mode string // "auto", "any" or "tool"
	Name string // tool name when Mode == "tool"
}

func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	switch tc.Mode {
	case "", "auto":
		return []byte(`{"auto":{}}`), nil
	case "any":
		return []byte(`{"any":{}}`), nil
	case "tool":
		return json.Marshal(map[string]any{"tool": map[string]string{"name": tc.Name}})
	}
	return nil, fmt.Errorf("unknown tool choice mode %q", tc.Mode)
}

// MediaConfig names the media type of a text or tool output channel
type MediaConfig struct {
	MediaType string `json:"mediaType"`
}

// AudioOutputConfig describes the synthesized voice stream
type AudioOutputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
}

// AudioInputConfig describes the user microphone stream
type AudioInputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
}

// ToolSpecEntry is one tool advertised to the model in promptStart
type ToolSpecEntry struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

// ToolSpec carries a tool's name, description and schema. The schema is
// serialized as a JSON string per the wire format.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema wraps the JSON-string-encoded schema
type ToolInputSchema struct {
	JSON string `json:"json"`
}

// ToolConfiguration is the tool section of promptStart
type ToolConfiguration struct {
	Tools      []ToolSpecEntry `json:"tools"`
	ToolChoice ToolChoice      `json:"toolChoice"`
}

// ToolResultInputConfig references the originating tool use in a TOOL
// contentStart block
type ToolResultInputConfig struct {
	ToolUseID               string       `json:"toolUseId"`
	Type                    string       `json:"type"`
	TextInputConfiguration  *MediaConfig `json:"textInputConfiguration,omitempty"`
}

// SessionStart opens the model session
type SessionStart struct {
	InferenceConfiguration     InferenceConfig      `json:"inferenceConfiguration"`
	TurnDetectionConfiguration *TurnDetectionConfig `json:"turnDetectionConfiguration,omitempty"`
}

// PromptStart opens the single logical prompt of a session
type PromptStart struct {
	PromptName                 string            `json:"promptName"`
	TextOutputConfiguration    MediaConfig       `json:"textOutputConfiguration"`
	AudioOutputConfiguration   AudioOutputConfig `json:"audioOutputConfiguration"`
	ToolUseOutputConfiguration MediaConfig       `json:"toolUseOutputConfiguration"`
	ToolConfiguration          ToolConfiguration `json:"toolConfiguration"`
}

// ContentStart opens a content block within the prompt
type ContentStart struct {
	PromptName                   string                 `json:"promptName"`
	ContentName                  string                 `json:"contentName"`
	Type                         string                 `json:"type"`
	Role                         string                 `json:"role"`
	Interactive                  *bool                  `json:"interactive,omitempty"`
	TextInputConfiguration       *MediaConfig           `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *AudioInputConfig      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *ToolResultInputConfig `json:"toolResultInputConfiguration,omitempty"`
}

// TextInput carries one text payload inside a TEXT content block
type TextInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// AudioInput carries one base64-encoded PCM16 frame inside the AUDIO block
type AudioInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ToolResultInput carries a stringified tool result inside a TOOL block
type ToolResultInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ContentEnd closes a content block
type ContentEnd struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

// PromptEnd closes the prompt
type PromptEnd struct {
	PromptName string `json:"promptName"`
}

// SessionEnd closes the model session. The payload is empty on the wire.
type SessionEnd struct{}

// Upstream is a tagged union of the events the gateway may send to the model
// service. Exactly one field is set.
type Upstream struct {
	SessionStart *SessionStart    `json:"sessionStart,omitempty"`
	PromptStart  *PromptStart     `json:"promptStart,omitempty"`
	ContentStart *ContentStart    `json:"contentStart,omitempty"`
	TextInput    *TextInput       `json:"textInput,omitempty"`
	AudioInput   *AudioInput      `json:"audioInput,omitempty"`
	ToolResult   *ToolResultInput `json:"toolResult,omitempty"`
	ContentEnd   *ContentEnd      `json:"contentEnd,omitempty"`
	PromptEnd    *PromptEnd       `json:"promptEnd,omitempty"`
	SessionEnd   *SessionEnd      `json:"sessionEnd,omitempty"`
}

// Kind returns the wire name of the event, or "" for an empty union
func (u Upstream) Kind() string {
	switch {
	case u.SessionStart != nil:
		return "sessionStart"
	case u.PromptStart != nil:
		return "promptStart"
	case u.ContentStart != nil:
		return "contentStart"
	case u.TextInput != nil:
		return "textInput"
	case u.AudioInput != nil:
		return "audioInput"
	case u.ToolResult != nil:
		return "toolResult"
	case u.ContentEnd != nil:
		return "contentEnd"
	case u.PromptEnd != nil:
		return "promptEnd"
	case u.SessionEnd != nil:
		return "sessionEnd"
	}
	return ""
}

type upstreamEnvelope struct {
	Event Upstream `json:"event"`
}

// Marshal serializes the event as a {"event":{...}} envelope
func (u Upstream) Marshal() ([]byte, error) {
	if u.Kind() == "" {
		return nil, fmt.Errorf("upstream event has no kind set")
	}
	return json.Marshal(upstreamEnvelope{Event: u})
}

// DefaultAudioInputConfig returns the audio input block configuration for
// PCM16 little-endian mono microphone input at the given rate
func DefaultAudioInputConfig(sampleRate int) *AudioInputConfig {
	return &AudioInputConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: sampleRate,
		SampleSizeBits:  16,
		ChannelCount:    1,
		AudioType:       "SPEECH",
		Encoding:        "base64",
	}
}

// DefaultAudioOutputConfig returns the synthesized-voice configuration for
// PCM16 mono output at the given rate
func DefaultAudioOutputConfig(sampleRate int, voiceID string) AudioOutputConfig {
	return AudioOutputConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: sampleRate,
		SampleSizeBits:  16,
		ChannelCount:    1,
		VoiceID:         voiceID,
	}
}
