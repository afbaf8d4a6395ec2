package events

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUpstream_MarshalEnvelope(t *testing.T) {
	ev := Upstream{TextInput: &TextInput{
		PromptName:  "p-1",
		ContentName: "c-1",
		Content:     "hello",
	}}

	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var env map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Failed to parse envelope: %v", err)
	}
	inner, ok := env["event"]
	if !ok {
		t.Fatal("Envelope missing 'event' key")
	}
	if len(inner) != 1 {
		t.Fatalf("Expected single event kind, got %d", len(inner))
	}
	if _, ok := inner["textInput"]; !ok {
		t.Errorf("Expected 'textInput' kind, got %v", inner)
	}
}

func TestUpstream_Kind(t *testing.T) {
	tests := []struct {
		ev   Upstream
		kind string
	}{
		{Upstream{SessionStart: &SessionStart{}}, "sessionStart"},
		{Upstream{PromptStart: &PromptStart{}}, "promptStart"},
		{Upstream{ContentStart: &ContentStart{}}, "contentStart"},
		{Upstream{TextInput: &TextInput{}}, "textInput"},
		{Upstream{AudioInput: &AudioInput{}}, "audioInput"},
		{Upstream{ToolResult: &ToolResultInput{}}, "toolResult"},
		{Upstream{ContentEnd: &ContentEnd{}}, "contentEnd"},
		{Upstream{PromptEnd: &PromptEnd{}}, "promptEnd"},
		{Upstream{SessionEnd: &SessionEnd{}}, "sessionEnd"},
		{Upstream{}, ""},
	}

	for _, tt := range tests {
		if got := tt.ev.Kind(); got != tt.kind {
			t.Errorf("Kind() = %q, want %q", got, tt.kind)
		}
	}
}

func TestUpstream_MarshalEmptyFails(t *testing.T) {
	if _, err := (Upstream{}).Marshal(); err == nil {
		t.Error("Expected error marshaling empty upstream event")
	}
}

func TestToolChoice_Marshal(t *testing.T) {
	tests := []struct {
		tc   ToolChoice
		want string
	}{
		{ToolChoice{}, `{"auto":{}}`},
		{ToolChoice{Mode: "auto"}, `{"auto":{}}`},
		{ToolChoice{Mode: "any"}, `{"any":{}}`},
		{ToolChoice{Mode: "tool", Name: "get_weather"}, `{"tool":{"name":"get_weather"}}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.tc)
		if err != nil {
			t.Fatalf("Marshal(%+v) failed: %v", tt.tc, err)
		}
		if string(data) != tt.want {
			t.Errorf("Marshal(%+v) = %s, want %s", tt.tc, data, tt.want)
		}
	}

	if _, err := json.Marshal(ToolChoice{Mode: "bogus"}); err == nil {
		t.Error("Expected error for unknown tool choice mode")
	}
}

func TestDecodeDownstream_KnownKinds(t *testing.T) {
	tests := []struct {
		frame string
		kind  string
	}{
		{`{"event":{"textOutput":{"role":"ASSISTANT","content":"hi"}}}`, "textOutput"},
		{`{"event":{"audioOutput":{"content":"AAAA"}}}`, "audioOutput"},
		{`{"event":{"toolUse":{"toolUseId":"t-1","toolName":"get_weather","content":"{}"}}}`, "toolUse"},
		{`{"event":{"contentStart":{"type":"TEXT","role":"ASSISTANT"}}}`, "contentStart"},
		{`{"event":{"contentEnd":{"stopReason":"END_TURN"}}}`, "contentEnd"},
		{`{"event":{"completionStart":{}}}`, "completionStart"},
		{`{"event":{"usageEvent":{"totalTokens":12}}}`, "usageEvent"},
	}

	for _, tt := range tests {
		ev, err := DecodeDownstream([]byte(tt.frame))
		if err != nil {
			t.Fatalf("DecodeDownstream(%s) failed: %v", tt.frame, err)
		}
		if ev.EventKind() != tt.kind {
			t.Errorf("EventKind() = %q, want %q", ev.EventKind(), tt.kind)
		}
	}
}

func TestDecodeDownstream_ToolUseFields(t *testing.T) {
	frame := `{"event":{"toolUse":{"toolUseId":"t-1","toolName":"search_knowledge_base","content":"{\"query\":\"borewell pump\"}"}}}`
	ev, err := DecodeDownstream([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeDownstream failed: %v", err)
	}
	tu, ok := ev.(*ToolUse)
	if !ok {
		t.Fatalf("Expected *ToolUse, got %T", ev)
	}
	if tu.ToolUseID != "t-1" {
		t.Errorf("ToolUseID = %q, want 't-1'", tu.ToolUseID)
	}
	if tu.ToolName != "search_knowledge_base" {
		t.Errorf("ToolName = %q", tu.ToolName)
	}
	if !strings.Contains(tu.Content, "borewell pump") {
		t.Errorf("Content = %q", tu.Content)
	}
}

func TestDecodeDownstream_ErrorFrames(t *testing.T) {
	for _, kind := range []string{KindModelStreamError, KindInternalServer} {
		frame := `{"event":{"` + kind + `":{"message":"backend 503"}}}`
		ev, err := DecodeDownstream([]byte(frame))
		if err != nil {
			t.Fatalf("DecodeDownstream failed: %v", err)
		}
		se, ok := ev.(*StreamError)
		if !ok {
			t.Fatalf("Expected *StreamError, got %T", ev)
		}
		if se.Type != kind {
			t.Errorf("Type = %q, want %q", se.Type, kind)
		}
		if se.Source != "responseStream" {
			t.Errorf("Source = %q, want 'responseStream'", se.Source)
		}
	}
}

func TestDecodeDownstream_UnknownAndEmpty(t *testing.T) {
	ev, err := DecodeDownstream([]byte(`{"event":{"somethingNew":{"a":1}}}`))
	if err != nil {
		t.Fatalf("DecodeDownstream failed: %v", err)
	}
	u, ok := ev.(*Unknown)
	if !ok {
		t.Fatalf("Expected *Unknown, got %T", ev)
	}
	if u.Kind != "somethingNew" {
		t.Errorf("Kind = %q", u.Kind)
	}

	ev, err = DecodeDownstream([]byte(`{"foo":"bar"}`))
	if err != nil {
		t.Fatalf("DecodeDownstream failed: %v", err)
	}
	if _, ok := ev.(*Unknown); !ok {
		t.Errorf("Expected *Unknown for frame without event, got %T", ev)
	}

	if _, err := DecodeDownstream([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed frame")
	}
}

func TestContainsBargeInMarker(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{`{"interrupted":true}`, true},
		{`{ "interrupted" : true }`, true},
		{"prefix {\n\"interrupted\":\ntrue} suffix", true},
		{`{"interrupted":false}`, false},
		{`plain assistant text`, false},
		{``, false},
	}

	for _, tt := range tests {
		if got := ContainsBargeInMarker(tt.content); got != tt.want {
			t.Errorf("ContainsBargeInMarker(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
