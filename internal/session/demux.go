package session

import (
	"time"

	"github.com/voicebridge/voice-gateway/internal/events"
	"github.com/voicebridge/voice-gateway/internal/modelservice"
)

// demuxLoop reads response frames until the stream ends, decoding each and
// dispatching it in arrival order. Handlers never block: tool executions are
// offloaded to their own goroutines.
func (s *Session) demuxLoop(stream modelservice.Stream) {
	for frame := range stream.Frames() {
		s.touch()

		ev, err := events.DecodeDownstream(frame)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed response frame")
			s.metrics.RecordError("decode", "demux")
			continue
		}
		s.dispatch(ev)
	}

	if err := stream.Err(); err != nil {
		select {
		case <-s.done:
			// Teardown raced the read loop; the error is expected.
		default:
			s.logger.Warn().Err(err).Msg("Response stream failed")
			s.metrics.RecordError("transport", "demux")
			s.sink.OnError(&events.StreamError{
				Type:   "streamError",
				Source: "responseStream",
			})
		}
	}

	s.sink.OnStreamComplete(&events.StreamComplete{Timestamp: time.Now()})
}

// dispatch routes one decoded event to the sink and the session's own
// handlers. The exhaustive switch makes an unhandled kind a compile-time
// concern when a variant is added.
func (s *Session) dispatch(ev events.Downstream) {
	s.metrics.RecordDownstreamEvent(ev.EventKind())

	if wildcard, ok := s.sink.(AnySink); ok {
		wildcard.OnAny(ev)
	}

	switch ev := ev.(type) {
	case *events.ContentStartOutput:
		s.sink.OnContentStart(ev)

	case *events.TextOutput:
		// The interruption marker rides in-band inside textOutput; surface
		// the synthetic bargeIn first so the client can cut playback before
		// rendering the text.
		if events.ContainsBargeInMarker(ev.Content) {
			s.logger.Debug().Msg("Barge-in detected")
			s.sink.OnBargeIn(&events.BargeIn{Interrupted: true})
		}
		s.sink.OnTextOutput(ev)

	case *events.AudioOutput:
		s.metrics.RecordAudioBytes("out", int64(len(ev.Content)))
		s.sink.OnAudioOutput(ev)

	case *events.ToolUse:
		s.mu.Lock()
		s.activeTool = ev
		s.mu.Unlock()
		s.sink.OnToolUse(ev)

	case *events.ContentEndOutput:
		if ev.Type == events.ContentTypeTool {
			s.dispatchTool()
		}
		s.sink.OnContentEnd(ev)

	case *events.CompletionStart:
		s.sink.OnCompletionStart(ev)

	case *events.UsageEvent:
		s.sink.OnUsage(ev)

	case *events.StreamError:
		// Transport errors are surfaced but do not close the session; the
		// client decides whether to stop.
		s.metrics.RecordError(ev.Type, "demux")
		s.sink.OnError(ev)

	case *events.Unknown:
		s.logger.Debug().Str("kind", ev.EventKind()).Msg("Ignoring unrecognized response event")
	}
}
