package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/voice-gateway/internal/config"
	"github.com/voicebridge/voice-gateway/internal/modelservice"
	"github.com/voicebridge/voice-gateway/internal/session"
	"github.com/voicebridge/voice-gateway/internal/tools"
)

type fakeStream struct {
	mu       sync.Mutex
	kinds    []string
	payloads []json.RawMessage
	frames   chan []byte
	once     sync.Once
}

func (f *fakeStream) Send(ctx context.Context, payload []byte) error {
	var env struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range env.Event {
		f.kinds = append(f.kinds, k)
		f.payloads = append(f.payloads, v)
	}
	return nil
}

func (f *fakeStream) Frames() <-chan []byte { return f.frames }
func (f *fakeStream) Err() error            { return nil }
func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeStream) sentKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.kinds))
	copy(out, f.kinds)
	return out
}

// sentPayload returns the first sent payload of the given kind, or nil
func (f *fakeStream) sentPayload(kind string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, k := range f.kinds {
		if k == kind {
			return f.payloads[i]
		}
	}
	return nil
}

type fakeClient struct {
	mu     sync.Mutex
	stream *fakeStream
}

func (c *fakeClient) Region() string { return "us-east-1" }

func (c *fakeClient) OpenStream(ctx context.Context, modelID string) (modelservice.Stream, error) {
	s := &fakeStream{frames: make(chan []byte, 8)}
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
	return s, nil
}

func (c *fakeClient) lastStream() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func testGatewayConfig() *config.Config {
	return &config.Config{
		DefaultRegion:            "us-east-1",
		ModelID:                  "test-model",
		MaxTokens:                1024,
		TopP:                     0.9,
		Temperature:              0.7,
		DefaultVoiceID:           "tiffany",
		InputSampleRate:          16000,
		OutputSampleRate:         24000,
		AudioQueueCapacity:       200,
		AudioDrainBatchSize:      5,
		StopCleanupSeconds:       5,
		DisconnectCleanupSeconds: 3,
	}
}

// newTestGateway spins an httptest server with a fake model backend and
// returns a dialed client socket
func newTestGateway(t *testing.T) (*websocket.Conn, *fakeClient, *session.Manager) {
	t.Helper()

	client := &fakeClient{}
	models := modelservice.NewRegistry(func(ctx context.Context, region string) (modelservice.Client, error) {
		return client, nil
	}, 0)
	manager := session.NewManager(models, tools.NewRegistry(), session.ManagerOptions{})
	handler := NewHandler(testGatewayConfig(), manager)

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	return ws, client, manager
}

func sendMsg(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON(%s) failed: %v", msgType, err)
	}
}

// readUntil reads server messages until one of the given type arrives
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg.Payload
		}
		if msg.Type == "error" {
			t.Fatalf("Unexpected error while waiting for %s: %s", msgType, msg.Payload)
		}
	}
}

func TestGateway_FullVoiceFlow(t *testing.T) {
	ws, client, manager := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", map[string]any{
		"region":          "us-east-1",
		"inferenceConfig": map[string]any{"maxTokens": 2048, "topP": 0.9, "temperature": 1},
	})
	var ack struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(readUntil(t, ws, "ack"), &ack); err != nil {
		t.Fatalf("Unmarshal ack: %v", err)
	}
	if !ack.Success {
		t.Fatalf("Ack failed: %s", ack.Error)
	}
	if manager.ActiveSessions() != 1 {
		t.Fatalf("ActiveSessions = %d, want 1", manager.ActiveSessions())
	}

	sendMsg(t, ws, "promptStart", map[string]any{"voiceId": "kiara", "outputSampleRate": 24000})
	sendMsg(t, ws, "systemPrompt", map[string]any{"content": "You are a helpful assistant."})
	sendMsg(t, ws, "audioStart", nil)
	readUntil(t, ws, "audioReady")

	// Stream a few binary PCM frames.
	for i := 0; i < 3; i++ {
		if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 640)); err != nil {
			t.Fatalf("Binary write failed: %v", err)
		}
	}

	sendMsg(t, ws, "stopAudio", nil)
	readUntil(t, ws, "sessionClosed")

	if manager.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions after stop = %d, want 0", manager.ActiveSessions())
	}

	kinds := client.lastStream().sentKinds()
	if len(kinds) == 0 || kinds[0] != "sessionStart" {
		t.Fatalf("Upstream did not begin with sessionStart: %v", kinds)
	}
	if kinds[len(kinds)-1] != "sessionEnd" {
		t.Errorf("Upstream did not finish with sessionEnd: %v", kinds)
	}
}

func TestGateway_RelaysModelEvents(t *testing.T) {
	ws, client, _ := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", nil)
	readUntil(t, ws, "ack")
	sendMsg(t, ws, "promptStart", nil)
	sendMsg(t, ws, "systemPrompt", map[string]any{"content": "hi"})
	sendMsg(t, ws, "audioStart", nil)
	readUntil(t, ws, "audioReady")

	stream := client.lastStream()
	stream.frames <- []byte(`{"event":{"textOutput":{"role":"ASSISTANT","content":"{\"interrupted\":true}"}}}`)

	// Barge-in and its playback-cutoff companion arrive before the text
	// that carried the marker.
	readUntil(t, ws, "bargeIn")
	readUntil(t, ws, "streamInterrupted")
	payload := readUntil(t, ws, "textOutput")
	var text struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(payload, &text); err != nil {
		t.Fatalf("Unmarshal textOutput: %v", err)
	}
	if text.Role != "ASSISTANT" {
		t.Errorf("Relayed role = %s", text.Role)
	}
}

func TestGateway_ProtocolErrors(t *testing.T) {
	ws, _, _ := newTestGateway(t)

	// Operations before initializeConnection fail with an error message.
	sendMsg(t, ws, "audioStart", nil)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("Expected error for audioStart before init, got %s", msg.Type)
	}

	// Blank system prompt is rejected after init.
	sendMsg(t, ws, "initializeConnection", nil)
	readUntil(t, ws, "ack")
	sendMsg(t, ws, "promptStart", nil)
	sendMsg(t, ws, "systemPrompt", map[string]any{"content": "   "})
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "error" {
		t.Errorf("Expected error for blank prompt, got %s", msg.Type)
	}
}

func TestGateway_DisconnectClosesSession(t *testing.T) {
	ws, _, manager := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", nil)
	readUntil(t, ws, "ack")

	ws.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if manager.ActiveSessions() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Session still active %d after disconnect", manager.ActiveSessions())
}

func TestGateway_SocketClosedAfterReadLoop(t *testing.T) {
	ws, _, _ := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", nil)
	readUntil(t, ws, "ack")

	goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteMessage(websocket.CloseMessage, goodbye); err != nil {
		t.Fatalf("Close frame write failed: %v", err)
	}

	// The server echoes the close frame and then tears down the TCP
	// connection; without the close the read below times out instead.
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("Expected close error after goodbye")
	}
	conn := ws.UnderlyingConn()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("Underlying read after close = %v, want EOF", err)
	}
}

func TestGateway_PartialInferenceConfigMergesDefaults(t *testing.T) {
	ws, client, _ := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", map[string]any{
		"inferenceConfig": map[string]any{"maxTokens": 2048},
	})
	readUntil(t, ws, "ack")
	sendMsg(t, ws, "promptStart", nil)
	sendMsg(t, ws, "systemPrompt", map[string]any{"content": "hi"})
	sendMsg(t, ws, "audioStart", nil)
	readUntil(t, ws, "audioReady")

	var payload json.RawMessage
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if payload = client.lastStream().sentPayload("sessionStart"); payload != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if payload == nil {
		t.Fatal("No sessionStart sent upstream")
	}

	var ss struct {
		InferenceConfiguration struct {
			MaxTokens   int     `json:"maxTokens"`
			TopP        float64 `json:"topP"`
			Temperature float64 `json:"temperature"`
		} `json:"inferenceConfiguration"`
	}
	if err := json.Unmarshal(payload, &ss); err != nil {
		t.Fatalf("Unmarshal sessionStart: %v", err)
	}
	if ss.InferenceConfiguration.MaxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", ss.InferenceConfiguration.MaxTokens)
	}
	if ss.InferenceConfiguration.TopP != 0.9 {
		t.Errorf("topP = %v, want default 0.9", ss.InferenceConfiguration.TopP)
	}
	if ss.InferenceConfiguration.Temperature != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", ss.InferenceConfiguration.Temperature)
	}
}

func TestGateway_AudioBeforeAudioStartRejected(t *testing.T) {
	ws, _, _ := newTestGateway(t)

	sendMsg(t, ws, "initializeConnection", nil)
	readUntil(t, ws, "ack")
	sendMsg(t, ws, "promptStart", nil)

	if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
		t.Fatalf("Binary write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("Expected error for audio before audioStart, got %s", msg.Type)
	}
}

func TestToolsHandler(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewDateTimeTool())
	registry.Register(tools.NewWeatherTool())

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()
	ToolsHandler(registry, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	var body struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(body.Tools) != 2 {
		t.Fatalf("Tools = %+v", body.Tools)
	}
	if body.Tools[0].Name != "get_date_time" {
		t.Errorf("First tool = %s, want get_date_time (sorted)", body.Tools[0].Name)
	}
}
