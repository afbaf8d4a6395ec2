package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("HOST")
	os.Unsetenv("AWS_DEFAULT_REGION")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected default Port '8000', got '%s'", cfg.Port)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected default Host '0.0.0.0', got '%s'", cfg.Host)
	}

	if cfg.DefaultRegion != "us-east-1" {
		t.Errorf("Expected default DefaultRegion 'us-east-1', got '%s'", cfg.DefaultRegion)
	}

	if cfg.ModelID != "amazon.nova-sonic-v1:0" {
		t.Errorf("Expected default ModelID 'amazon.nova-sonic-v1:0', got '%s'", cfg.ModelID)
	}

	if cfg.DefaultVoiceID != "tiffany" {
		t.Errorf("Expected default DefaultVoiceID 'tiffany', got '%s'", cfg.DefaultVoiceID)
	}

	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected default OutputSampleRate 24000, got %d", cfg.OutputSampleRate)
	}

	if cfg.InputSampleRate != 16000 {
		t.Errorf("Expected default InputSampleRate 16000, got %d", cfg.InputSampleRate)
	}

	if cfg.AudioQueueCapacity != 200 {
		t.Errorf("Expected default AudioQueueCapacity 200, got %d", cfg.AudioQueueCapacity)
	}

	if cfg.AudioDrainBatchSize != 5 {
		t.Errorf("Expected default AudioDrainBatchSize 5, got %d", cfg.AudioDrainBatchSize)
	}
}

func TestLoad_InferenceDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MaxTokens != 1024 {
		t.Errorf("Expected default MaxTokens 1024, got %d", cfg.MaxTokens)
	}

	if cfg.TopP != 0.9 {
		t.Errorf("Expected default TopP 0.9, got %f", cfg.TopP)
	}

	if cfg.Temperature != 0.7 {
		t.Errorf("Expected default Temperature 0.7, got %f", cfg.Temperature)
	}
}

func TestLoad_LifecycleDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SweepIntervalSeconds != 60 {
		t.Errorf("Expected default SweepIntervalSeconds 60, got %d", cfg.SweepIntervalSeconds)
	}

	if cfg.IdleTimeoutSeconds != 300 {
		t.Errorf("Expected default IdleTimeoutSeconds 300, got %d", cfg.IdleTimeoutSeconds)
	}

	if cfg.StopCleanupSeconds != 5 {
		t.Errorf("Expected default StopCleanupSeconds 5, got %d", cfg.StopCleanupSeconds)
	}

	if cfg.DisconnectCleanupSeconds != 3 {
		t.Errorf("Expected default DisconnectCleanupSeconds 3, got %d", cfg.DisconnectCleanupSeconds)
	}

	if cfg.ModelTimeoutSeconds != 300 {
		t.Errorf("Expected default ModelTimeoutSeconds 300, got %d", cfg.ModelTimeoutSeconds)
	}

	if cfg.MaxConcurrentStreams != 20 {
		t.Errorf("Expected default MaxConcurrentStreams 20, got %d", cfg.MaxConcurrentStreams)
	}

	if cfg.MaxStreamsPerClient != 10 {
		t.Errorf("Expected default MaxStreamsPerClient 10, got %d", cfg.MaxStreamsPerClient)
	}
}

func TestEnabledToolList(t *testing.T) {
	cfg := &Config{EnabledTools: ""}
	if list := cfg.EnabledToolList(); list != nil {
		t.Errorf("Expected nil list for empty filter, got %v", list)
	}

	cfg = &Config{EnabledTools: "get_weather, search_knowledge_base ,"}
	list := cfg.EnabledToolList()
	if len(list) != 2 {
		t.Fatalf("Expected 2 tools, got %d: %v", len(list), list)
	}
	if list[0] != "get_weather" || list[1] != "search_knowledge_base" {
		t.Errorf("Unexpected tool list: %v", list)
	}
}

func TestLoad_Overrides(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("AWS_DEFAULT_REGION")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port '9090', got '%s'", cfg.Port)
	}

	if cfg.DefaultRegion != "eu-west-1" {
		t.Errorf("Expected DefaultRegion 'eu-west-1', got '%s'", cfg.DefaultRegion)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
