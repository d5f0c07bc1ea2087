// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Recognition   RecognitionConfig
	Synthesis     SynthesisConfig
	Session       SessionConfig
	AudioLimits   AudioLimitsConfig
	Kafka         KafkaConfig
	MQTT          MQTTConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal      string
	GRPCPort       string
	HTTPPort       string
	CallingPackage string
}

type RecognitionConfig struct {
	Provider       string // mock, google
	Locale         string
	PreferOffline  bool
	PartialResults bool
	SampleRateHz   int
	AudioEncoding  string
	MockInterval   time.Duration
	MockBehavior   string // final, error, hang
}

// Tag parses Locale, falling back to en-US.
func (r RecognitionConfig) Tag() language.Tag {
	tag, err := language.Parse(r.Locale)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

type SynthesisConfig struct {
	Provider       string // mock, piper, none
	Rate           float64
	Pitch          float64
	QueueMode      string // flush, add
	PiperEndpoint  string
	PiperOutputDir string // empty discards rendered audio
}

type SessionConfig struct {
	InactivityTimeout  time.Duration
	TransitionMinDelay time.Duration
}

type AudioLimitsConfig struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicEvents  string
	TopicResults string
	Principal    string
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	// EchoResults speaks every final result back through synthesis.
	EchoResults bool
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Load reads the configuration from the environment. Invalid values fall
// back to defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-coordinator")

	return &Configuration{
		Service: ServiceConfig{
			Principal:      principal,
			GRPCPort:       envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:       envOrDefault("HTTP_PORT", "8080"),
			CallingPackage: envOrDefault("CALLING_PACKAGE", ""),
		},
		Recognition: RecognitionConfig{
			Provider:       envOrDefault("RECOGNITION_PROVIDER", "mock"),
			Locale:         envOrDefault("RECOGNITION_LOCALE", "en-US"),
			PreferOffline:  envOrDefaultBool("RECOGNITION_PREFER_OFFLINE", false),
			PartialResults: envOrDefaultBool("RECOGNITION_PARTIAL_RESULTS", true),
			SampleRateHz:   envOrDefaultInt("RECOGNITION_SAMPLE_RATE_HZ", 16000),
			AudioEncoding:  envOrDefault("RECOGNITION_AUDIO_ENCODING", "LINEAR16"),
			MockInterval:   envOrDefaultDuration("RECOGNITION_MOCK_INTERVAL", 150*time.Millisecond),
			MockBehavior:   envOrDefault("RECOGNITION_MOCK_BEHAVIOR", "final"),
		},
		Synthesis: SynthesisConfig{
			Provider:       envOrDefault("SYNTHESIS_PROVIDER", "mock"),
			Rate:           envOrDefaultFloat("SYNTHESIS_RATE", 1.0),
			Pitch:          envOrDefaultFloat("SYNTHESIS_PITCH", 1.0),
			QueueMode:      envOrDefault("SYNTHESIS_QUEUE_MODE", "flush"),
			PiperEndpoint:  envOrDefault("PIPER_ENDPOINT", "http://localhost:7071/tts"),
			PiperOutputDir: envOrDefault("PIPER_OUTPUT_DIR", ""),
		},
		Session: SessionConfig{
			InactivityTimeout:  envOrDefaultDuration("SESSION_INACTIVITY_TIMEOUT", 4*time.Second),
			TransitionMinDelay: envOrDefaultDuration("SESSION_TRANSITION_MIN_DELAY", 1200*time.Millisecond),
		},
		AudioLimits: AudioLimitsConfig{
			MaxBytes:    envOrDefaultInt64("AUDIO_MAX_BYTES", 5*1024*1024),
			MaxDuration: envOrDefaultDuration("AUDIO_MAX_DURATION", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicEvents:  envOrDefault("KAFKA_TOPIC_EVENTS", "speech.session.events"),
			TopicResults: envOrDefault("KAFKA_TOPIC_RESULTS", "speech.session.results"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		MQTT: MQTTConfig{
			Enabled:     envOrDefaultBool("MQTT_ENABLED", false),
			Broker:      envOrDefault("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    envOrDefault("MQTT_CLIENT_ID", "speech-coordinator"),
			Username:    envOrDefault("MQTT_USERNAME", ""),
			Password:    envOrDefault("MQTT_PASSWORD", ""),
			TopicPrefix: envOrDefault("MQTT_TOPIC_PREFIX", "speech"),
			EchoResults: envOrDefaultBool("MQTT_ECHO_RESULTS", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
