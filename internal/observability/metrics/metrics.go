// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_coordinator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Listening session metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionResults   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	ThrottledActions *prometheus.CounterVec

	// Recognition engine metrics
	EngineErrors      *prometheus.CounterVec
	EngineRecreations prometheus.Counter

	// Partial result metrics
	PartialsDelivered  prometheus.Counter
	PartialsSuppressed prometheus.Counter

	// Delegate metrics
	DelegatePanics prometheus.Counter

	// Synthesis metrics
	UtterancesRequested prometheus.Counter
	UtterancesResolved  *prometheus.CounterVec

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Transport metrics
	RPCRequests      *prometheus.CounterVec
	RPCLatency       *prometheus.HistogramVec
	MQTTMessages     *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewUnregistered creates metrics registered with reg instead of the default
// registry. Useful for tests that build several instances.
func NewUnregistered(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		// Listening session metrics
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of listening sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of listening sessions in progress",
		}),
		SessionResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_results_total",
			Help:      "Total number of final results delivered, by how the session ended",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of listening sessions in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		ThrottledActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_actions_total",
			Help:      "Total number of start/stop requests dropped by the transition throttle",
		}, []string{"action"}),

		// Recognition engine metrics
		EngineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of errors reported by the recognition engine",
		}, []string{"code"}),
		EngineRecreations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_recreations_total",
			Help:      "Total number of recognition engine handle recreations",
		}),

		// Partial result metrics
		PartialsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_delivered_total",
			Help:      "Total number of partial results delivered to the delegate",
		}),
		PartialsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_suppressed_total",
			Help:      "Total number of duplicate partial results suppressed",
		}),

		DelegatePanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegate_panics_total",
			Help:      "Total number of panics recovered from delegate and utterance callbacks",
		}),

		// Synthesis metrics
		UtterancesRequested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_requested_total",
			Help:      "Total number of utterances submitted to the synthesis engine",
		}),
		UtterancesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_resolved_total",
			Help:      "Total number of utterances resolved, by outcome",
		}, []string{"outcome"}),

		// Audio metrics
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Transport metrics
		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_latency_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"method"}),
		MQTTMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_total",
			Help:      "Total number of MQTT messages by direction",
		}, []string{"direction"}),
		WebsocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected event websocket clients",
		}),
	}
}

// RecordSessionStart records a listening session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a listening session ending with a delivered result.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionResults.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordThrottled records a dropped start or stop request.
func (m *Metrics) RecordThrottled(action string) {
	m.ThrottledActions.WithLabelValues(action).Inc()
}

// RecordEngineError records an error reported by the recognition engine.
func (m *Metrics) RecordEngineError(code string) {
	m.EngineErrors.WithLabelValues(code).Inc()
}

// RecordEngineRecreated records a recognition handle being rebuilt.
func (m *Metrics) RecordEngineRecreated() {
	m.EngineRecreations.Inc()
}

// RecordPartial records a partial result, delivered or suppressed as duplicate.
func (m *Metrics) RecordPartial(delivered bool) {
	if delivered {
		m.PartialsDelivered.Inc()
	} else {
		m.PartialsSuppressed.Inc()
	}
}

// RecordDelegatePanic records a recovered callback panic.
func (m *Metrics) RecordDelegatePanic() {
	m.DelegatePanics.Inc()
}

// RecordUtteranceRequested records an utterance submitted for synthesis.
func (m *Metrics) RecordUtteranceRequested() {
	m.UtterancesRequested.Inc()
}

// RecordUtteranceResolved records an utterance finishing (done or error).
func (m *Metrics) RecordUtteranceResolved(outcome string) {
	m.UtterancesResolved.WithLabelValues(outcome).Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRPC records a completed gRPC call.
func (m *Metrics) RecordRPC(method, code string, latencySeconds float64) {
	m.RPCRequests.WithLabelValues(method, code).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordMQTT records an MQTT message ("in" or "out").
func (m *Metrics) RecordMQTT(direction string) {
	m.MQTTMessages.WithLabelValues(direction).Inc()
}
