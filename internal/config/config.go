package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Model service configuration
	DefaultRegion string `envconfig:"AWS_DEFAULT_REGION" default:"us-east-1"`
	ModelID       string `envconfig:"MODEL_ID" default:"amazon.nova-sonic-v1:0"`

	// Knowledge base tool configuration (the tool is disabled when the ID is empty)
	KnowledgeBaseID       string `envconfig:"KNOWLEDGE_BASE_ID" default:""`
	KnowledgeBaseModelARN string `envconfig:"KNOWLEDGE_BASE_MODEL_ARN" default:""`

	// Reasoning tool configuration
	ReasoningModelID string `envconfig:"REASONING_MODEL_ID" default:"amazon.nova-lite-v1:0"`

	// Default inference settings, overridable per session
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"1024"`
	TopP        float64 `envconfig:"TOP_P" default:"0.9"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.7"`

	// Audio configuration
	DefaultVoiceID      string `envconfig:"DEFAULT_VOICE_ID" default:"tiffany"`
	InputSampleRate     int    `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`
	OutputSampleRate    int    `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"`
	TelephonySampleRate int    `envconfig:"TELEPHONY_SAMPLE_RATE" default:"16000"`
	AudioQueueCapacity  int    `envconfig:"AUDIO_QUEUE_CAPACITY" default:"200"`
	AudioDrainBatchSize int    `envconfig:"AUDIO_DRAIN_BATCH_SIZE" default:"5"`

	// Tool configuration: comma-separated tool names; empty enables all tools
	EnabledTools string `envconfig:"ENABLED_TOOLS" default:""`

	// Session lifecycle configuration
	SweepIntervalSeconds     int `envconfig:"SWEEP_INTERVAL_SECONDS" default:"60"`
	IdleTimeoutSeconds       int `envconfig:"IDLE_TIMEOUT_SECONDS" default:"300"`
	StopCleanupSeconds       int `envconfig:"STOP_CLEANUP_SECONDS" default:"5"`
	DisconnectCleanupSeconds int `envconfig:"DISCONNECT_CLEANUP_SECONDS" default:"3"`
	ShutdownDeadlineSeconds  int `envconfig:"SHUTDOWN_DEADLINE_SECONDS" default:"5"`

	// Model service connection limits
	ModelTimeoutSeconds  int `envconfig:"MODEL_TIMEOUT_SECONDS" default:"300"`
	MaxConcurrentStreams int `envconfig:"MAX_CONCURRENT_STREAMS" default:"20"`
	MaxStreamsPerClient  int `envconfig:"MAX_STREAMS_PER_CLIENT" default:"10"`

	// Resilience configuration
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DefaultRegion == "" {
		return nil, fmt.Errorf("AWS_DEFAULT_REGION must not be empty")
	}
	if cfg.AudioQueueCapacity <= 0 {
		return nil, fmt.Errorf("AUDIO_QUEUE_CAPACITY must be positive, got %d", cfg.AudioQueueCapacity)
	}

	return &cfg, nil
}

// EnabledToolList returns the configured tool filter as a slice.
// A nil result means all registered tools are enabled.
func (c *Config) EnabledToolList() []string {
	if strings.TrimSpace(c.EnabledTools) == "" {
		return nil
	}
	parts := strings.Split(c.EnabledTools, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
