package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voice-gateway/internal/events"
	"github.com/voicebridge/voice-gateway/internal/session"
)

// clientMessage is one typed message from the browser or telephony client
type clientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// serverMessage mirrors clientMessage for the gateway→client direction
type serverMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type initPayload struct {
	Region string `json:"region,omitempty"`
	// Pointer fields distinguish "omitted" from zero so partial configs
	// merge over the server defaults instead of replacing them.
	InferenceConfig *struct {
		MaxTokens   *int     `json:"maxTokens"`
		TopP        *float64 `json:"topP"`
		Temperature *float64 `json:"temperature"`
	} `json:"inferenceConfig,omitempty"`
	TurnDetection *struct {
		EndpointingSensitivity string `json:"endpointingSensitivity"`
	} `json:"turnDetectionConfig,omitempty"`
	EnabledTools []string `json:"enabledTools,omitempty"`
}

type promptStartPayload struct {
	VoiceID          string `json:"voiceId,omitempty"`
	OutputSampleRate int    `json:"outputSampleRate,omitempty"`
}

type systemPromptPayload struct {
	Content string `json:"content"`
	VoiceID string `json:"voiceId,omitempty"`
}

type textInputPayload struct {
	Content string `json:"content"`
}

// connection binds one client socket to at most one session
type connection struct {
	h      *Handler
	ws     *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	sess   *session.Session
	region string
}

func newConnection(h *Handler, ws *websocket.Conn) *connection {
	return &connection{
		h:      h,
		ws:     ws,
		logger: h.logger.With().Str("remote", ws.RemoteAddr().String()).Logger(),
		region: h.cfg.DefaultRegion,
	}
}

// run reads client messages until disconnect, then closes any live session
func (c *connection) run() {
	c.logger.Info().Msg("Client connected")
	defer c.onDisconnect()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Socket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			// Raw PCM16 frames skip the JSON envelope entirely.
			c.handleAudioChunk(data)
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError("malformed message", err.Error())
				continue
			}
			c.route(msg)
		}
	}
}

// route maps one client message onto the session state machine
func (c *connection) route(msg clientMessage) {
	switch msg.Type {
	case "initializeConnection":
		c.handleInitialize(msg.Payload)
	case "promptStart":
		c.handlePromptStart(msg.Payload)
	case "systemPrompt":
		c.handleSystemPrompt(msg.Payload)
	case "audioStart":
		c.handleAudioStart()
	case "audioInput":
		c.handleAudioInput(msg.Payload)
	case "textInput":
		c.handleTextInput(msg.Payload)
	case "stopAudio":
		c.handleStopAudio()
	case "startNewChat":
		c.handleStartNewChat(msg.Payload)
	default:
		c.sendError("unknown message type", msg.Type)
	}
}

func (c *connection) currentSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// handleInitialize creates the session record. Streaming stays deferred until
// audioStart so the model service never reads a partial preamble.
func (c *connection) handleInitialize(payload json.RawMessage) {
	var p initPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			c.sendAck(false, "invalid initializeConnection payload: "+err.Error())
			return
		}
	}

	c.mu.Lock()
	existing := c.sess
	c.mu.Unlock()
	if existing != nil {
		c.sendAck(false, "session already initialized")
		return
	}

	sess, err := c.createSession(p)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Session creation failed")
		c.sendAck(false, err.Error())
		return
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.logger.Info().Str("session_id", sess.ID()).Str("region", c.region).Msg("Session initialized")
	c.sendAck(true, "")
}

func (c *connection) createSession(p initPayload) (*session.Session, error) {
	cfg := c.h.cfg

	region := cfg.DefaultRegion
	if p.Region != "" {
		region = p.Region
	}
	c.mu.Lock()
	c.region = region
	c.mu.Unlock()

	inference := events.InferenceConfig{
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Temperature: cfg.Temperature,
	}
	if p.InferenceConfig != nil {
		if v := p.InferenceConfig.MaxTokens; v != nil {
			inference.MaxTokens = *v
		}
		if v := p.InferenceConfig.TopP; v != nil {
			inference.TopP = *v
		}
		if v := p.InferenceConfig.Temperature; v != nil {
			inference.Temperature = *v
		}
	}

	var turnDetection *events.TurnDetectionConfig
	if p.TurnDetection != nil && p.TurnDetection.EndpointingSensitivity != "" {
		turnDetection = &events.TurnDetectionConfig{
			EndpointingSensitivity: p.TurnDetection.EndpointingSensitivity,
		}
	}

	enabled := cfg.EnabledToolList()
	if len(p.EnabledTools) > 0 {
		enabled = p.EnabledTools
	}

	return c.h.manager.Create(context.Background(), region, session.Config{
		ModelID:            cfg.ModelID,
		Inference:          inference,
		TurnDetection:      turnDetection,
		EnabledTools:       enabled,
		VoiceID:            cfg.DefaultVoiceID,
		OutputSampleRate:   cfg.OutputSampleRate,
		InputSampleRate:    cfg.InputSampleRate,
		AudioQueueCapacity: cfg.AudioQueueCapacity,
		AudioDrainBatch:    cfg.AudioDrainBatchSize,
		Timing:             session.DefaultTiming(),
	}, &relaySink{c: c})
}

func (c *connection) handlePromptStart(payload json.RawMessage) {
	sess := c.currentSession()
	if sess == nil {
		c.sendError("no session", "initializeConnection must come first")
		return
	}

	var p promptStartPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			c.sendError("invalid promptStart payload", err.Error())
			return
		}
	}

	if err := sess.SetupSessionAndPromptStart(p.VoiceID, p.OutputSampleRate); err != nil {
		c.sendError("promptStart failed", err.Error())
	}
}

func (c *connection) handleSystemPrompt(payload json.RawMessage) {
	sess := c.currentSession()
	if sess == nil {
		c.sendError("no session", "initializeConnection must come first")
		return
	}

	var p systemPromptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid systemPrompt payload", err.Error())
		return
	}

	if err := sess.SetupSystemPrompt(p.Content); err != nil {
		if errors.Is(err, session.ErrEmptyPrompt) {
			c.sendError("empty system prompt", "content must not be blank")
		} else {
			c.sendError("systemPrompt failed", err.Error())
		}
	}
}

// handleAudioStart completes the preamble, opens the duplex stream and tells
// the client it may begin sending microphone frames
func (c *connection) handleAudioStart() {
	sess := c.currentSession()
	if sess == nil {
		c.sendError("no session", "initializeConnection must come first")
		return
	}

	if err := sess.SetupStartAudio(); err != nil {
		c.sendError("audioStart failed", err.Error())
		return
	}
	if err := sess.InitiateStreaming(context.Background()); err != nil {
		c.sendError("streaming failed", err.Error())
		return
	}
	c.send("audioReady", nil)
}

func (c *connection) handleAudioInput(payload json.RawMessage) {
	var encoded string
	if err := json.Unmarshal(payload, &encoded); err != nil {
		c.sendError("invalid audioInput payload", err.Error())
		return
	}
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.sendError("invalid audio encoding", err.Error())
		return
	}
	c.handleAudioChunk(buf)
}

func (c *connection) handleAudioChunk(buf []byte) {
	sess := c.currentSession()
	if sess == nil {
		return
	}
	if err := sess.StreamAudio(buf); err != nil {
		switch sess.State() {
		case session.StateClosing, session.StateClosed:
			// Audio races teardown routinely; not worth surfacing.
			c.logger.Debug().Err(err).Msg("Dropping audio chunk during teardown")
		default:
			c.sendError("audio not accepted", err.Error())
		}
	}
}

func (c *connection) handleTextInput(payload json.RawMessage) {
	sess := c.currentSession()
	if sess == nil {
		c.sendError("no session", "initializeConnection must come first")
		return
	}

	var p textInputPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid textInput payload", err.Error())
		return
	}
	if strings.TrimSpace(p.Content) == "" {
		c.sendError("empty text input", "content must not be blank")
		return
	}

	if err := sess.SendTextInput(context.Background(), p.Content); err != nil {
		c.sendError("textInput failed", err.Error())
	}
}

// handleStopAudio runs the graceful shutdown sequence with the stop timeout.
// The client always gets sessionClosed, even when the close had to be forced.
func (c *connection) handleStopAudio() {
	c.closeSession(time.Duration(c.h.cfg.StopCleanupSeconds) * time.Second)
	c.send("sessionClosed", nil)
}

// handleStartNewChat tears down any existing session and initializes a fresh
// one from the provided config
func (c *connection) handleStartNewChat(payload json.RawMessage) {
	c.closeSession(time.Duration(c.h.cfg.StopCleanupSeconds) * time.Second)
	c.send("sessionClosed", nil)

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
	c.handleInitialize(payload)
}

// onDisconnect closes the session with the shorter disconnect timeout
func (c *connection) onDisconnect() {
	c.closeSession(time.Duration(c.h.cfg.DisconnectCleanupSeconds) * time.Second)
	c.logger.Info().Msg("Client disconnected")
}

// closeSession detaches and gracefully closes the current session, if any
func (c *connection) closeSession(timeout time.Duration) {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return
	}

	if err := sess.GracefulClose(timeout); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sess.ID()).Msg("Graceful close escalated to force")
	}
}

// send writes one typed message to the client. Writes are serialized; gorilla
// connections allow only one concurrent writer.
func (c *connection) send(msgType string, payload any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(serverMessage{Type: msgType, Payload: payload}); err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("Client write failed")
	}
}

func (c *connection) sendAck(success bool, errMsg string) {
	payload := map[string]any{"success": success}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	c.send("ack", payload)
}

func (c *connection) sendError(message, details string) {
	c.send("error", map[string]any{
		"message": message,
		"details": details,
	})
}
