package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voice-gateway/internal/audio"
	"github.com/voicebridge/voice-gateway/internal/events"
	"github.com/voicebridge/voice-gateway/internal/modelservice"
	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/tools"
)

// State is the lifecycle phase of a session
type State int32

const (
	StateClosed State = iota
	StateInitializing
	StateReady
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

var (
	// ErrEmptyPrompt is returned when the system prompt is blank
	ErrEmptyPrompt = errors.New("system prompt must not be empty")
	// ErrInvalidState is returned for an operation outside its valid states
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrAudioBeforePrompt is returned when audio setup precedes promptStart
	ErrAudioBeforePrompt = errors.New("audio content cannot start before promptStart")
)

// StreamOpener opens duplex streams to the model service. Satisfied by
// modelservice.Client.
type StreamOpener interface {
	OpenStream(ctx context.Context, modelID string) (modelservice.Stream, error)
}

// Timing holds the deterministic pauses in the upstream protocol. The drain
// waits let the serializer flush queued events before the stream is torn
// down; the tool pauses keep the model's reader from seeing a tool-result
// payload before its contentStart.
type Timing struct {
	AudioDrain    time.Duration
	PromptDrain   time.Duration
	SessionDrain  time.Duration
	ToolPrePause  time.Duration
	ToolMidPause  time.Duration
	ToolPostPause time.Duration
}

// DefaultTiming returns the production pause schedule
func DefaultTiming() Timing {
	return Timing{
		AudioDrain:    500 * time.Millisecond,
		PromptDrain:   300 * time.Millisecond,
		SessionDrain:  300 * time.Millisecond,
		ToolPrePause:  50 * time.Millisecond,
		ToolMidPause:  50 * time.Millisecond,
		ToolPostPause: 100 * time.Millisecond,
	}
}

// Config carries the per-session settings fixed at creation
type Config struct {
	ID                 string
	ModelID            string
	Inference          events.InferenceConfig
	TurnDetection      *events.TurnDetectionConfig
	ToolChoice         events.ToolChoice
	EnabledTools       []string
	VoiceID            string
	OutputSampleRate   int
	InputSampleRate    int
	AudioQueueCapacity int
	AudioDrainBatch    int
	Timing             Timing
}

// Session is one client call bound to at most one model-service duplex
// stream. All state mutations go through the session's mutex; the upstream
// serializer, the demux loop, the audio drainer and tool executions run as
// separate goroutines coordinated by the done channel.
type Session struct {
	id       string
	cfg      Config
	opener   StreamOpener
	registry *tools.Registry
	sink     Sink
	logger   zerolog.Logger
	metrics  *observability.Metrics

	mu                    sync.Mutex
	state                 State
	promptName            string
	audioContentID        string
	promptStartSent       bool
	audioContentStartSent bool
	cleanupInProgress     bool
	activeTool            *events.ToolUse
	stream                modelservice.Stream

	queue      *EventQueue
	audioQueue *audio.ChunkQueue
	drainBusy  atomic.Bool

	lastActivity atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Session)
}

// New creates a session in the Initializing state. onClose fires exactly once
// when the session is removed, whether gracefully or by force.
func New(cfg Config, opener StreamOpener, registry *tools.Registry, sink Sink, onClose func(*Session)) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.AudioQueueCapacity <= 0 {
		cfg.AudioQueueCapacity = 200
	}
	if cfg.AudioDrainBatch <= 0 {
		cfg.AudioDrainBatch = 5
	}
	if sink == nil {
		sink = NopSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:             cfg.ID,
		cfg:            cfg,
		opener:         opener,
		registry:       registry,
		sink:           sink,
		logger:         observability.WithSession(cfg.ID),
		metrics:        observability.NewSessionMetrics(cfg.ID),
		state:          StateInitializing,
		promptName:     uuid.NewString(),
		audioContentID: uuid.NewString(),
		queue:          NewEventQueue(),
		audioQueue:     audio.NewChunkQueue(cfg.AudioQueueCapacity),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		onClose:        onClose,
	}
	s.touch()
	s.logger.Info().Str("model_id", cfg.ModelID).Msg("Session created")
	return s
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the last upstream enqueue or downstream
// receive
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// enqueue appends an upstream event if the session may still emit. Terminal
// events are the contentEnd/promptEnd/sessionEnd trio allowed during Closing.
func (s *Session) enqueue(ev events.Upstream, terminal bool) bool {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateClosed {
		return false
	}
	if state == StateClosing && !terminal {
		return false
	}
	if !s.queue.Enqueue(ev) {
		return false
	}
	s.touch()
	s.metrics.RecordUpstreamEvent(ev.Kind())
	return true
}

// SetupSessionAndPromptStart enqueues the sessionStart and promptStart pair.
// The promptStart advertises the enabled tools and the session's audio output
// configuration. An empty voiceID or zero sample rate falls back to the
// session defaults.
func (s *Session) SetupSessionAndPromptStart(voiceID string, outputSampleRate int) error {
	s.mu.Lock()
	if s.state != StateInitializing {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: setup in state %s", ErrInvalidState, state)
	}
	if voiceID != "" {
		s.cfg.VoiceID = voiceID
	}
	if outputSampleRate > 0 {
		s.cfg.OutputSampleRate = outputSampleRate
	}
	s.promptStartSent = true
	s.mu.Unlock()

	s.enqueue(events.Upstream{SessionStart: &events.SessionStart{
		InferenceConfiguration:     s.cfg.Inference,
		TurnDetectionConfiguration: s.cfg.TurnDetection,
	}}, false)

	specs := s.registry.Specs(s.cfg.EnabledTools)
	entries := make([]events.ToolSpecEntry, 0, len(specs))
	for _, spec := range specs {
		entries = append(entries, events.ToolSpecEntry{ToolSpec: events.ToolSpec{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: events.ToolInputSchema{JSON: spec.SchemaJSON},
		}})
	}

	s.enqueue(events.Upstream{PromptStart: &events.PromptStart{
		PromptName:                 s.promptName,
		TextOutputConfiguration:    events.MediaConfig{MediaType: "text/plain"},
		AudioOutputConfiguration:   events.DefaultAudioOutputConfig(s.cfg.OutputSampleRate, s.cfg.VoiceID),
		ToolUseOutputConfiguration: events.MediaConfig{MediaType: "application/json"},
		ToolConfiguration: events.ToolConfiguration{
			Tools:      entries,
			ToolChoice: s.cfg.ToolChoice,
		},
	}}, false)

	s.logger.Debug().Int("tools", len(entries)).Msg("Enqueued session and prompt start")
	return nil
}

// SetupSystemPrompt enqueues the SYSTEM text content block
func (s *Session) SetupSystemPrompt(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyPrompt
	}
	s.mu.Lock()
	if s.state != StateInitializing || !s.promptStartSent {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: system prompt in state %s", ErrInvalidState, state)
	}
	s.mu.Unlock()

	s.enqueueTextBlock(events.RoleSystem, text)
	return nil
}

// SetupStartAudio opens the user audio content block and moves the session to
// Ready. The audio content id is fixed for the session's lifetime.
func (s *Session) SetupStartAudio() error {
	s.mu.Lock()
	if !s.promptStartSent {
		s.mu.Unlock()
		return ErrAudioBeforePrompt
	}
	if s.state != StateInitializing {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: audio start in state %s", ErrInvalidState, state)
	}
	s.audioContentStartSent = true
	s.state = StateReady
	s.mu.Unlock()

	interactive := true
	s.enqueue(events.Upstream{ContentStart: &events.ContentStart{
		PromptName:              s.promptName,
		ContentName:             s.audioContentID,
		Type:                    events.ContentTypeAudio,
		Role:                    events.RoleUser,
		Interactive:             &interactive,
		AudioInputConfiguration: events.DefaultAudioInputConfig(s.cfg.InputSampleRate),
	}}, false)
	return nil
}

// InitiateStreaming opens the duplex stream and starts the serializer and
// demux loops. The entire preamble must already be enqueued so the model
// service never reads a partial setup.
func (s *Session) InitiateStreaming(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: initiate streaming in state %s", ErrInvalidState, state)
	}
	s.mu.Unlock()

	stream, err := s.opener.OpenStream(ctx, s.cfg.ModelID)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()
		s.metrics.RecordError("stream_open", "session")
		return fmt.Errorf("failed to open model stream: %w", err)
	}

	s.mu.Lock()
	if s.state != StateReady {
		// Closed while dialing.
		s.mu.Unlock()
		stream.Close()
		return fmt.Errorf("%w: session closed during stream open", ErrInvalidState)
	}
	s.stream = stream
	s.state = StateActive
	s.mu.Unlock()

	go s.writeLoop(stream)
	go s.demuxLoop(stream)

	s.logger.Info().Msg("Streaming initiated")
	return nil
}

// StreamAudio queues one PCM16 buffer for upstream serialization. Under load
// the oldest pending chunk is dropped in favor of the newest speech.
func (s *Session) StreamAudio(buf []byte) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: audio input in state %s", ErrInvalidState, state)
	}
	s.mu.Unlock()

	if s.audioQueue.Push(buf) {
		s.metrics.RecordDroppedAudioChunks(1)
	}
	s.metrics.RecordAudioBytes("in", int64(len(buf)))

	if s.drainBusy.CompareAndSwap(false, true) {
		go s.drainAudio()
	}
	return nil
}

// drainAudio serializes pending audio in small batches so a burst of
// microphone input cannot starve the other session goroutines
func (s *Session) drainAudio() {
	for {
		batch := s.audioQueue.PopBatch(s.cfg.AudioDrainBatch)
		if len(batch) == 0 {
			s.drainBusy.Store(false)
			// A producer may have raced the flag; reclaim if items remain.
			if s.audioQueue.Len() == 0 || !s.drainBusy.CompareAndSwap(false, true) {
				return
			}
			continue
		}
		for _, chunk := range batch {
			s.enqueue(events.Upstream{AudioInput: &events.AudioInput{
				PromptName:  s.promptName,
				ContentName: s.audioContentID,
				Content:     base64.StdEncoding.EncodeToString(chunk),
			}}, false)
		}
		select {
		case <-s.done:
			s.drainBusy.Store(false)
			return
		default:
		}
	}
}

// SendTextInput enqueues a USER text content block. When the session is still
// Ready the duplex stream is opened lazily so pure-text sessions work without
// any audio input.
func (s *Session) SendTextInput(ctx context.Context, text string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateReady {
		if err := s.InitiateStreaming(ctx); err != nil {
			return err
		}
	} else if state != StateActive {
		return fmt.Errorf("%w: text input in state %s", ErrInvalidState, state)
	}

	s.enqueueTextBlock(events.RoleUser, text)
	return nil
}

// enqueueTextBlock emits a contentStart/textInput/contentEnd triple with a
// fresh content name
func (s *Session) enqueueTextBlock(role, text string) {
	contentName := uuid.NewString()
	interactive := true
	s.enqueue(events.Upstream{ContentStart: &events.ContentStart{
		PromptName:             s.promptName,
		ContentName:            contentName,
		Type:                   events.ContentTypeText,
		Role:                   role,
		Interactive:            &interactive,
		TextInputConfiguration: &events.MediaConfig{MediaType: "text/plain"},
	}}, false)
	s.enqueue(events.Upstream{TextInput: &events.TextInput{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     text,
	}}, false)
	s.enqueue(events.Upstream{ContentEnd: &events.ContentEnd{
		PromptName:  s.promptName,
		ContentName: contentName,
	}}, false)
}

// EndAudioContent closes the user audio content block and waits for the
// serializer to drain it
func (s *Session) EndAudioContent() {
	s.mu.Lock()
	sent := s.audioContentStartSent
	s.audioContentStartSent = false
	s.mu.Unlock()
	if !sent {
		return
	}

	s.enqueue(events.Upstream{ContentEnd: &events.ContentEnd{
		PromptName:  s.promptName,
		ContentName: s.audioContentID,
	}}, true)
	s.pause(s.cfg.Timing.AudioDrain)
}

// EndPrompt closes the prompt if one was opened
func (s *Session) EndPrompt() {
	s.mu.Lock()
	sent := s.promptStartSent
	s.promptStartSent = false
	s.mu.Unlock()
	if !sent {
		return
	}

	s.enqueue(events.Upstream{PromptEnd: &events.PromptEnd{PromptName: s.promptName}}, true)
	s.pause(s.cfg.Timing.PromptDrain)
}

// SendSessionEnd emits the terminal sessionEnd, waits for the drain, then
// tears the session down
func (s *Session) SendSessionEnd() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.mu.Unlock()

	s.enqueue(events.Upstream{SessionEnd: &events.SessionEnd{}}, true)
	s.pause(s.cfg.Timing.SessionDrain)
	s.close(false, "")
}

// GracefulClose runs the endAudioContent/endPrompt/sessionEnd sequence,
// bounded by the given timeout. On timeout the session is force-closed and an
// error is returned; either way the session is gone when this returns.
func (s *Session) GracefulClose(timeout time.Duration) error {
	s.mu.Lock()
	if s.cleanupInProgress || s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.cleanupInProgress = true
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.EndAudioContent()
		s.EndPrompt()
		s.SendSessionEnd()
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		s.logger.Warn().Dur("timeout", timeout).Msg("Graceful close timed out, forcing")
		s.ForceClose("cleanup_timeout")
		return fmt.Errorf("graceful close of session %s timed out after %s", s.id, timeout)
	}
}

// ForceClose immediately tears the session down with no upstream emission.
// Idempotent: a second call is a no-op.
func (s *Session) ForceClose(reason string) {
	s.close(true, reason)
}

// close performs the single teardown: mark Closed, release the serializer and
// demux loops, close the stream and fire the removal callback
func (s *Session) close(forced bool, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		stream := s.stream
		s.stream = nil
		s.mu.Unlock()

		s.queue.Close()
		s.cancel()
		close(s.done)
		s.audioQueue.Clear()

		if stream != nil {
			if err := stream.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("Stream close error")
			}
		}

		s.metrics.RecordSessionEnd()
		if forced {
			observability.RecordForceClose(reason)
			s.logger.Info().Str("reason", reason).Msg("Session force-closed")
		} else {
			s.logger.Info().Msg("Session closed")
		}

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// Done is closed when the session has been torn down
func (s *Session) Done() <-chan struct{} { return s.done }

// pause sleeps unless the session is torn down first
func (s *Session) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-s.done:
	}
}

// writeLoop pulls upstream events in enqueue order and writes them to the
// duplex stream. It is the only writer, so ordering is structural.
func (s *Session) writeLoop(stream modelservice.Stream) {
	for {
		ev, ok := s.queue.Next(s.ctx)
		if !ok {
			return
		}
		payload, err := ev.Marshal()
		if err != nil {
			s.logger.Error().Err(err).Str("kind", ev.Kind()).Msg("Failed to serialize upstream event")
			s.metrics.RecordError("serialize", "session")
			continue
		}
		if err := stream.Send(s.ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("kind", ev.Kind()).Msg("Upstream send failed")
			s.metrics.RecordError("send", "session")
			return
		}
	}
}
