package session

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSanitizeToolResult(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", `{"answer":"ok"}`, `{"answer":"ok"}`},
		{"control chars stripped", "a\x00b\x01c\x1fd", "abcd"},
		{"whitespace kept", "line1\nline2\tcol\r\n", "line1\nline2\tcol\r\n"},
		{"mixed", "ok\x07bell", "okbell"},
	}
	for _, tt := range tests {
		if got := SanitizeToolResult(tt.in); got != tt.want {
			t.Errorf("%s: SanitizeToolResult(%q) = %q, want %q", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestSanitizeToolResult_Truncation(t *testing.T) {
	long := strings.Repeat("x", maxToolResultChars+100)
	got := SanitizeToolResult(long)

	if !strings.HasSuffix(got, truncationSuffix) {
		t.Error("Truncated result missing suffix")
	}
	if len(got) != maxToolResultChars+len(truncationSuffix) {
		t.Errorf("Truncated length = %d, want %d", len(got), maxToolResultChars+len(truncationSuffix))
	}

	// At the cap exactly, content passes through unchanged.
	exact := strings.Repeat("y", maxToolResultChars)
	if got := SanitizeToolResult(exact); got != exact {
		t.Error("Result at cap was modified")
	}
}

func TestParseToolParams(t *testing.T) {
	params := parseToolParams(`{"query":"pumps","limit":3}`)
	if params["query"] != "pumps" {
		t.Errorf("query = %v", params["query"])
	}

	params = parseToolParams("not json at all")
	if params["content"] != "not json at all" {
		t.Errorf("Non-JSON content wrapped as %v", params)
	}

	params = parseToolParams("")
	if len(params) != 0 {
		t.Errorf("Empty content = %v, want empty map", params)
	}
}

func TestStringifyToolResult(t *testing.T) {
	if got := stringifyToolResult("plain"); got != "plain" {
		t.Errorf("String passthrough = %q", got)
	}

	got := stringifyToolResult(map[string]any{"error": true, "message": "nope"})
	var decoded map[string]any
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("Stringified map is not JSON: %v", err)
	}
	if decoded["error"] != true || decoded["message"] != "nope" {
		t.Errorf("Decoded = %v", decoded)
	}
}

func TestToolFailureBecomesBusinessError(t *testing.T) {
	s, stream, sink := newToolSession(t, &stubTool{name: "flaky", err: errors.New("upstream 503")})

	stream.push(`{"event":{"toolUse":{"toolUseId":"t-9","toolName":"flaky","content":"{}"}}}`)
	stream.push(`{"event":{"contentEnd":{"type":"TOOL"}}}`)

	waitFor(t, "tool result", func() bool {
		return countKind(sink.events(), "toolResult") == 1
	})

	sink.mu.Lock()
	tr := sink.toolResults[0]
	sink.mu.Unlock()
	if !tr.Error {
		t.Errorf("Expected error flag on failed tool: %+v", tr)
	}
	result, ok := tr.Result.(map[string]any)
	if !ok || result["message"] != "upstream 503" {
		t.Errorf("Result = %v, want business error with upstream 503", tr.Result)
	}

	waitFor(t, "upstream toolResult", func() bool {
		return countKind(stream.sentKinds(), "toolResult") == 1
	})
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(stream.sentPayload("toolResult", 0), &payload); err != nil {
		t.Fatalf("Unmarshal toolResult: %v", err)
	}
	if !strings.Contains(payload.Content, `"error":true`) || !strings.Contains(payload.Content, `"message":"upstream 503"`) {
		t.Errorf("Upstream content = %q", payload.Content)
	}
	_ = s
}

func TestUnknownToolNotSupported(t *testing.T) {
	s, stream, sink := newToolSession(t)

	stream.push(`{"event":{"toolUse":{"toolUseId":"t-2","toolName":"does_not_exist","content":"{}"}}}`)
	stream.push(`{"event":{"contentEnd":{"type":"TOOL"}}}`)

	waitFor(t, "tool result", func() bool {
		return countKind(sink.events(), "toolResult") == 1
	})

	sink.mu.Lock()
	tr := sink.toolResults[0]
	sink.mu.Unlock()
	if !tr.Error {
		t.Error("Expected error flag for unknown tool")
	}
	result, ok := tr.Result.(map[string]any)
	if !ok || result["message"] != "Tool not supported" {
		t.Errorf("Result = %v, want Tool not supported", tr.Result)
	}
	_ = s
}

func TestToolResultSkippedWhenSessionClosed(t *testing.T) {
	s, stream, sink := newToolSession(t, &stubTool{name: "slow", result: "done", delay: 100 * time.Millisecond})

	stream.push(`{"event":{"toolUse":{"toolUseId":"t-3","toolName":"slow","content":"{}"}}}`)
	stream.push(`{"event":{"contentEnd":{"type":"TOOL"}}}`)

	waitFor(t, "tool use relayed", func() bool {
		return countKind(sink.events(), "toolUse") == 1
	})
	s.ForceClose("test")

	// The local notification still fires so the client can render the card.
	waitFor(t, "local tool result", func() bool {
		return countKind(sink.events(), "toolResult") == 1
	})
	if countKind(stream.sentKinds(), "toolResult") != 0 {
		t.Error("Tool result emitted upstream after close")
	}
}
