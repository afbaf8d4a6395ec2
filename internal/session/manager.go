package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicebridge/voice-gateway/internal/modelservice"
	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/tools"
)

// ManagerOptions tunes the session manager
type ManagerOptions struct {
	// SweepInterval is the period of the inactivity sweeper. Zero means 60s.
	SweepInterval time.Duration
	// IdleTimeout is how long a session may go without activity. Zero means 5m.
	IdleTimeout time.Duration
	// ShutdownTimeout bounds graceful close of all sessions on process
	// shutdown. Zero means 5s.
	ShutdownTimeout time.Duration
}

// Manager owns every live session, hands out region-scoped stream openers and
// runs the inactivity sweeper
type Manager struct {
	models   *modelservice.Registry
	registry *tools.Registry
	opts     ManagerOptions
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	sweepStop chan struct{}
	sweepOnce sync.Once
	stopOnce  sync.Once
}

// NewManager creates a manager. Call StartSweeper to begin idle reaping.
func NewManager(models *modelservice.Registry, registry *tools.Registry, opts ManagerOptions) *Manager {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 60 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Manager{
		models:    models,
		registry:  registry,
		opts:      opts,
		logger:    observability.GetLogger().With().Str("component", "session_manager").Logger(),
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
	}
}

// Create builds a session bound to the given region's model client and
// registers it. Duplicate ids are rejected.
func (m *Manager) Create(ctx context.Context, region string, cfg Config, sink Sink) (*Session, error) {
	client, err := m.models.Get(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("no model client for region %s: %w", region, err)
	}

	s := New(cfg, client, m.registry, sink, m.remove)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID()]; exists {
		return nil, fmt.Errorf("session %s already exists", s.ID())
	}
	m.sessions[s.ID()] = s
	return s, nil
}

// Get looks a session up by id
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// remove drops a session from the index. Fired from the session's close path;
// removal is a single step so late callbacks observe absence and short-circuit.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()
}

// ActiveSessions returns the number of live sessions
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Regions reports the regions with a dialed model client
func (m *Manager) Regions() []string {
	return m.models.Regions()
}

// StartSweeper launches the background inactivity sweeper
func (m *Manager) StartSweeper() {
	m.sweepOnce.Do(func() {
		go m.sweepLoop()
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.sweepStop:
			return
		}
	}
}

// sweep force-closes every session idle past the threshold
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Info().Str("session_id", s.ID()).Time("last_activity", s.LastActivity()).Msg("Sweeping idle session")
		s.ForceClose("idle_timeout")
	}
}

// Shutdown gracefully closes every session in parallel within the shutdown
// deadline; stragglers are force-closed. Returns an error when the deadline
// was hit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.sweepStop) })

	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	if len(active) == 0 {
		return nil
	}
	m.logger.Info().Int("sessions", len(active)).Msg("Closing all sessions")

	var wg sync.WaitGroup
	for _, s := range active {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.GracefulClose(m.opts.ShutdownTimeout)
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	deadline := time.After(m.opts.ShutdownTimeout)
	select {
	case <-finished:
		return nil
	case <-deadline:
	case <-ctx.Done():
	}

	m.mu.Lock()
	leftover := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		leftover = append(leftover, s)
	}
	m.mu.Unlock()

	for _, s := range leftover {
		s.ForceClose("shutdown_timeout")
	}
	return fmt.Errorf("shutdown deadline exceeded with %d sessions force-closed", len(leftover))
}
