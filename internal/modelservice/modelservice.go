// Package modelservice manages connections to the bidirectional
// speech-to-speech model service. Clients are scoped per region, created
// lazily and retained for the life of the process.
package modelservice

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrTooManyStreams is returned when a stream cap is exhausted
var ErrTooManyStreams = errors.New("concurrent stream limit reached")

// Stream is one duplex connection to the model service. Send writes a
// serialized event frame; Frames yields response frames until the stream
// ends, after which Err reports any transport failure.
type Stream interface {
	Send(ctx context.Context, payload []byte) error
	Frames() <-chan []byte
	Err() error
	Close() error
}

// Client opens duplex streams against one region's model service endpoint
type Client interface {
	Region() string
	OpenStream(ctx context.Context, modelID string) (Stream, error)
}

// DialFunc creates a client for a region
type DialFunc func(ctx context.Context, region string) (Client, error)

// limiter is a simple counting semaphore that fails fast instead of blocking
type limiter struct {
	mu  sync.Mutex
	cap int
	n   int
}

func newLimiter(cap int) *limiter {
	return &limiter{cap: cap}
}

func (l *limiter) acquire() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cap > 0 && l.n >= l.cap {
		return false
	}
	l.n++
	return true
}

func (l *limiter) release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n > 0 {
		l.n--
	}
}

// Registry holds the process-wide set of region-scoped clients
type Registry struct {
	mu      sync.Mutex
	clients map[string]Client
	dial    DialFunc
	global  *limiter
}

// NewRegistry creates a registry. maxStreams caps concurrent streams across
// all regions; zero means unlimited.
func NewRegistry(dial DialFunc, maxStreams int) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		dial:    dial,
		global:  newLimiter(maxStreams),
	}
}

// Get returns the client for a region, dialing it on first use
func (r *Registry) Get(ctx context.Context, region string) (Client, error) {
	r.mu.Lock()
	if c, ok := r.clients[region]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	// Dial outside the lock; racing creators are deduplicated below.
	c, err := r.dial(ctx, region)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[region]; ok {
		return existing, nil
	}
	r.clients[region] = &limitedClient{Client: c, global: r.global}
	return r.clients[region], nil
}

// Regions returns the regions with a dialed client, sorted
func (r *Registry) Regions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	regions := make([]string, 0, len(r.clients))
	for region := range r.clients {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// limitedClient enforces the server-wide stream cap around a region client
type limitedClient struct {
	Client
	global *limiter
}

func (c *limitedClient) OpenStream(ctx context.Context, modelID string) (Stream, error) {
	if !c.global.acquire() {
		return nil, ErrTooManyStreams
	}
	s, err := c.Client.OpenStream(ctx, modelID)
	if err != nil {
		c.global.release()
		return nil, err
	}
	return &limitedStream{Stream: s, release: c.global.release}, nil
}

// limitedStream releases the global slot exactly once on close
type limitedStream struct {
	Stream
	once    sync.Once
	release func()
}

func (s *limitedStream) Close() error {
	err := s.Stream.Close()
	s.once.Do(s.release)
	return err
}
