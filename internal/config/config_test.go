package config

import (
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	for _, v := range []string{
		"SERVICE_PRINCIPAL", "GRPC_PORT", "HTTP_PORT", "LOG_LEVEL",
		"RECOGNITION_PROVIDER", "RECOGNITION_LOCALE", "RECOGNITION_PARTIAL_RESULTS",
		"SYNTHESIS_PROVIDER", "SYNTHESIS_RATE", "SYNTHESIS_QUEUE_MODE",
		"SESSION_INACTIVITY_TIMEOUT", "SESSION_TRANSITION_MIN_DELAY",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "MQTT_ENABLED",
	} {
		t.Setenv(v, "")
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-speech-coordinator" {
		t.Errorf("expected default principal 'svc-speech-coordinator', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default http port '8080', got %s", cfg.Service.HTTPPort)
	}

	// Recognition defaults
	if cfg.Recognition.Provider != "mock" {
		t.Errorf("expected default provider 'mock', got %s", cfg.Recognition.Provider)
	}
	if cfg.Recognition.Tag() != language.AmericanEnglish {
		t.Errorf("expected en-US, got %v", cfg.Recognition.Tag())
	}
	if !cfg.Recognition.PartialResults || cfg.Recognition.PreferOffline {
		t.Error("expected partial results on and prefer offline off")
	}

	// Synthesis defaults
	if cfg.Synthesis.Rate != 1.0 || cfg.Synthesis.Pitch != 1.0 {
		t.Errorf("expected rate and pitch 1.0, got %v %v", cfg.Synthesis.Rate, cfg.Synthesis.Pitch)
	}
	if cfg.Synthesis.QueueMode != "flush" {
		t.Errorf("expected flush queue mode, got %s", cfg.Synthesis.QueueMode)
	}

	// Session defaults
	if cfg.Session.InactivityTimeout != 4*time.Second {
		t.Errorf("expected 4s inactivity timeout, got %v", cfg.Session.InactivityTimeout)
	}
	if cfg.Session.TransitionMinDelay != 1200*time.Millisecond {
		t.Errorf("expected 1200ms transition delay, got %v", cfg.Session.TransitionMinDelay)
	}

	if cfg.Kafka.Enabled || cfg.MQTT.Enabled {
		t.Error("expected Kafka and MQTT disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("GRPC_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RECOGNITION_PROVIDER", "google")
	t.Setenv("RECOGNITION_LOCALE", "es-ES")
	t.Setenv("RECOGNITION_PARTIAL_RESULTS", "false")
	t.Setenv("SYNTHESIS_RATE", "1.25")
	t.Setenv("SYNTHESIS_QUEUE_MODE", "add")
	t.Setenv("SESSION_INACTIVITY_TIMEOUT", "6s")
	t.Setenv("SESSION_TRANSITION_MIN_DELAY", "500ms")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("AUDIO_MAX_BYTES", "1048576")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Recognition.Provider != "google" {
		t.Errorf("expected provider 'google', got %s", cfg.Recognition.Provider)
	}
	if cfg.Recognition.Tag() != language.MustParse("es-ES") {
		t.Errorf("expected es-ES, got %v", cfg.Recognition.Tag())
	}
	if cfg.Recognition.PartialResults {
		t.Error("expected partial results disabled")
	}
	if cfg.Synthesis.Rate != 1.25 || cfg.Synthesis.QueueMode != "add" {
		t.Errorf("unexpected synthesis config %+v", cfg.Synthesis)
	}
	if cfg.Session.InactivityTimeout != 6*time.Second || cfg.Session.TransitionMinDelay != 500*time.Millisecond {
		t.Errorf("unexpected session config %+v", cfg.Session)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected kafka config %+v", cfg.Kafka)
	}
	if cfg.AudioLimits.MaxBytes != 1048576 {
		t.Errorf("expected max bytes 1048576, got %d", cfg.AudioLimits.MaxBytes)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	t.Setenv("RECOGNITION_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("RECOGNITION_PARTIAL_RESULTS", "invalid")
	t.Setenv("SYNTHESIS_PITCH", "high")
	t.Setenv("SESSION_INACTIVITY_TIMEOUT", "soon")
	t.Setenv("AUDIO_MAX_BYTES", "lots")
	t.Setenv("KAFKA_BROKERS", " , ")

	cfg := Load()

	if cfg.Recognition.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Recognition.SampleRateHz)
	}
	if !cfg.Recognition.PartialResults {
		t.Error("expected default partial results on invalid input")
	}
	if cfg.Synthesis.Pitch != 1.0 {
		t.Errorf("expected default pitch on invalid input, got %v", cfg.Synthesis.Pitch)
	}
	if cfg.Session.InactivityTimeout != 4*time.Second {
		t.Errorf("expected default timeout on invalid input, got %v", cfg.Session.InactivityTimeout)
	}
	if cfg.AudioLimits.MaxBytes != 5*1024*1024 {
		t.Errorf("expected default max bytes on invalid input, got %d", cfg.AudioLimits.MaxBytes)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("expected default brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "my-service")
	t.Setenv("KAFKA_PRINCIPAL", "")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestRecognitionConfig_TagInvalid(t *testing.T) {
	r := RecognitionConfig{Locale: "not a locale!"}
	if r.Tag() != language.AmericanEnglish {
		t.Errorf("expected fallback to en-US, got %v", r.Tag())
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			t.Setenv(key, tt.envValue)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	t.Setenv("TEST_LIST_VAR", "a, b,,c ")
	got := envOrDefaultList("TEST_LIST_VAR", nil)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("unexpected list %v", got)
	}
}
