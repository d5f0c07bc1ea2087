package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSession(t *testing.T) {
	m := NewUnregistered(prometheus.NewRegistry())

	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %f", got)
	}
	m.RecordSessionEnd("timeout", 4)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("expected 0 active sessions, got %f", got)
	}
	if got := testutil.ToFloat64(m.SessionResults.WithLabelValues("timeout")); got != 1 {
		t.Errorf("expected 1 timeout result, got %f", got)
	}
}

func TestRecordPartial(t *testing.T) {
	m := NewUnregistered(prometheus.NewRegistry())

	m.RecordPartial(true)
	m.RecordPartial(false)
	m.RecordPartial(false)

	if got := testutil.ToFloat64(m.PartialsDelivered); got != 1 {
		t.Errorf("expected 1 delivered, got %f", got)
	}
	if got := testutil.ToFloat64(m.PartialsSuppressed); got != 2 {
		t.Errorf("expected 2 suppressed, got %f", got)
	}
}

func TestRecordKafkaPublish(t *testing.T) {
	m := NewUnregistered(prometheus.NewRegistry())

	m.RecordKafkaPublish("speech.events", "speech.result", nil, 0.01)
	m.RecordKafkaPublish("speech.events", "speech.result", errors.New("broker down"), 0.02)

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("speech.events", "speech.result")); got != 2 {
		t.Errorf("expected 2 publishes, got %f", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("speech.events", "speech.result")); got != 1 {
		t.Errorf("expected 1 error, got %f", got)
	}
}

func TestNewUnregistered_Independent(t *testing.T) {
	// Two instances on separate registries must not collide.
	a := NewUnregistered(prometheus.NewRegistry())
	b := NewUnregistered(prometheus.NewRegistry())

	a.RecordThrottled("start")
	if got := testutil.ToFloat64(b.ThrottledActions.WithLabelValues("start")); got != 0 {
		t.Errorf("expected independent counters, got %f", got)
	}
}
