package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_gateway_active_sessions",
		Help: "Number of active model sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_sessions_total",
		Help: "Total number of sessions created",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_session_duration_seconds",
		Help:    "Duration of model sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	forceCloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_force_closes_total",
		Help: "Total number of force-closed sessions",
	}, []string{"reason"}) // reason: "timeout", "disconnect", "idle", "error"

	// Socket metrics
	socketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_gateway_socket_connections",
		Help: "Number of open client socket connections",
	})

	// Protocol event metrics
	upstreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_upstream_events_total",
		Help: "Total upstream protocol events enqueued, by kind",
	}, []string{"kind"})

	downstreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_downstream_events_total",
		Help: "Total downstream protocol events received, by kind",
	}, []string{"kind"})

	// Tool metrics
	toolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_tool_executions_total",
		Help: "Total number of tool executions",
	}, []string{"tool", "status"}) // status: "success" or "error"

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_gateway_tool_latency_seconds",
		Help:    "Tool execution latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"tool"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	droppedAudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_dropped_audio_chunks_total",
		Help: "Audio chunks dropped by the drop-oldest backpressure queue",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// Metrics tracks metrics for a single session
type Metrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	activeSessions.Inc()
	totalSessions.Inc()
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionEnd records the end of a session. Safe to call more than once;
// only the first call is counted.
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordUpstreamEvent records an upstream protocol event
func (m *Metrics) RecordUpstreamEvent(kind string) {
	upstreamEvents.WithLabelValues(kind).Inc()
}

// RecordDownstreamEvent records a downstream protocol event
func (m *Metrics) RecordDownstreamEvent(kind string) {
	downstreamEvents.WithLabelValues(kind).Inc()
}

// RecordToolExecution records a completed tool execution
func (m *Metrics) RecordToolExecution(tool string, success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	toolExecutions.WithLabelValues(tool, status).Inc()
	toolLatency.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordDroppedAudioChunks records chunks dropped under backpressure
func (m *Metrics) RecordDroppedAudioChunks(n int) {
	droppedAudioChunks.Add(float64(n))
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordForceClose records a force-closed session
func RecordForceClose(reason string) {
	forceCloses.WithLabelValues(reason).Inc()
}

// RecordSocketOpen records a new client socket connection
func RecordSocketOpen() {
	socketConnections.Inc()
}

// RecordSocketClose records a closed client socket connection
func RecordSocketClose() {
	socketConnections.Dec()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
