package modelservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/resilience"
)

// BedrockOptions tunes the Bedrock-backed model service client
type BedrockOptions struct {
	// StreamTimeout bounds the life of one duplex stream. Zero means 5 minutes.
	StreamTimeout time.Duration
	// MaxStreams caps concurrent streams on this client. Zero means unlimited.
	MaxStreams int
	// Retry governs transient failures while opening a stream; nil uses the
	// default schedule
	Retry *resilience.RetryConfig
}

// BedrockClient opens bidirectional streams against Bedrock runtime in one region
type BedrockClient struct {
	region  string
	client  *bedrockruntime.Client
	opts    BedrockOptions
	streams *limiter
	logger  zerolog.Logger
}

// BedrockDialer returns a DialFunc creating region-scoped Bedrock clients
func BedrockDialer(opts BedrockOptions) DialFunc {
	return func(ctx context.Context, region string) (Client, error) {
		return NewBedrockClient(ctx, region, opts)
	}
}

// NewBedrockClient builds a client for one region
func NewBedrockClient(ctx context.Context, region string, opts BedrockOptions) (*BedrockClient, error) {
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 5 * time.Minute
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for region %s: %w", region, err)
	}

	return &BedrockClient{
		region:  region,
		client:  bedrockruntime.NewFromConfig(awsCfg),
		opts:    opts,
		streams: newLimiter(opts.MaxStreams),
		logger:  observability.GetLogger().With().Str("component", "modelservice").Str("region", region).Logger(),
	}, nil
}

// Region returns the client's region
func (c *BedrockClient) Region() string { return c.region }

// OpenStream starts a duplex stream for the given model. Transient open
// failures are retried; a read loop pumps response frames until the model
// service ends the stream.
func (c *BedrockClient) OpenStream(ctx context.Context, modelID string) (Stream, error) {
	if !c.streams.acquire() {
		return nil, ErrTooManyStreams
	}

	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StreamTimeout)

	var out *bedrockruntime.InvokeModelWithBidirectionalStreamOutput
	err := resilience.Retry(ctx, func() error {
		var openErr error
		out, openErr = c.client.InvokeModelWithBidirectionalStream(streamCtx, &bedrockruntime.InvokeModelWithBidirectionalStreamInput{
			ModelId: aws.String(modelID),
		})
		return openErr
	}, c.opts.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		cancel()
		c.streams.release()
		return nil, fmt.Errorf("failed to open model stream: %w", err)
	}

	s := &bedrockStream{
		es:     out.GetStream(),
		frames: make(chan []byte, 64),
		cancel: cancel,
		logger: c.logger.With().Str("model_id", modelID).Logger(),
	}
	s.release = func() { c.streams.release() }
	go s.readLoop()

	c.logger.Debug().Str("model_id", modelID).Msg("Opened model stream")
	return s, nil
}

// bedrockStream adapts the SDK event stream to the Stream interface
type bedrockStream struct {
	es     *bedrockruntime.InvokeModelWithBidirectionalStreamEventStream
	frames chan []byte
	cancel context.CancelFunc
	logger zerolog.Logger

	closeOnce sync.Once
	release   func()

	errMu sync.Mutex
	err   error
}

// Send writes one serialized event frame to the model service
func (s *bedrockStream) Send(ctx context.Context, payload []byte) error {
	return s.es.Send(ctx, &brtypes.InvokeModelWithBidirectionalStreamInputMemberChunk{
		Value: brtypes.BidirectionalInputPayloadPart{Bytes: payload},
	})
}

// Frames yields response frames. The channel closes when the stream ends.
func (s *bedrockStream) Frames() <-chan []byte {
	return s.frames
}

// Err reports the transport error that ended the stream, if any
func (s *bedrockStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.es.Err()
}

// Close tears the stream down and releases its concurrency slot
func (s *bedrockStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.es.Close()
		s.cancel()
		s.release()
	})
	return err
}

func (s *bedrockStream) readLoop() {
	defer close(s.frames)

	for event := range s.es.Events() {
		chunk, ok := event.(*brtypes.InvokeModelWithBidirectionalStreamOutputMemberChunk)
		if !ok {
			s.logger.Warn().Type("event", event).Msg("Ignoring unexpected stream event type")
			continue
		}
		if chunk.Value.Bytes == nil {
			continue
		}
		s.frames <- chunk.Value.Bytes
	}

	if err := s.es.Err(); err != nil {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.logger.Warn().Err(err).Msg("Model stream ended with error")
	}
}
