package speech

import (
	"fmt"
)

// Delegate receives listening session notifications. Calls for one Speech
// instance are never concurrent and arrive in engine order. Panics are
// recovered and logged.
type Delegate interface {
	// OnStartOfSpeech is called once the engine accepted the start request.
	OnStartOfSpeech()

	// OnSpeechRmsChanged reports the input level in dB.
	OnSpeechRmsChanged(value float32)

	// OnSpeechPartialResults reports a new set of interim candidates.
	// Identical consecutive sets are delivered once.
	OnSpeechPartialResults(results []string)

	// OnSpeechResult delivers the session's final result, exactly once.
	// It may be empty when nothing was recognized.
	OnSpeechResult(result string)
}

// DelegateFuncs adapts plain functions to Delegate. Nil fields are skipped.
type DelegateFuncs struct {
	StartOfSpeech  func()
	RmsChanged     func(value float32)
	PartialResults func(results []string)
	Result         func(result string)
}

func (f DelegateFuncs) OnStartOfSpeech() {
	if f.StartOfSpeech != nil {
		f.StartOfSpeech()
	}
}

func (f DelegateFuncs) OnSpeechRmsChanged(value float32) {
	if f.RmsChanged != nil {
		f.RmsChanged(value)
	}
}

func (f DelegateFuncs) OnSpeechPartialResults(results []string) {
	if f.PartialResults != nil {
		f.PartialResults(results)
	}
}

func (f DelegateFuncs) OnSpeechResult(result string) {
	if f.Result != nil {
		f.Result(result)
	}
}

// Tee fans notifications out to several delegates in order. Nil entries
// are dropped.
func Tee(delegates ...Delegate) Delegate {
	t := make(tee, 0, len(delegates))
	for _, d := range delegates {
		if d != nil {
			t = append(t, d)
		}
	}
	return t
}

type tee []Delegate

func (t tee) OnStartOfSpeech() {
	for _, d := range t {
		d.OnStartOfSpeech()
	}
}

func (t tee) OnSpeechRmsChanged(value float32) {
	for _, d := range t {
		d.OnSpeechRmsChanged(value)
	}
}

func (t tee) OnSpeechPartialResults(results []string) {
	for _, d := range t {
		d.OnSpeechPartialResults(results)
	}
}

func (t tee) OnSpeechResult(result string) {
	for _, d := range t {
		d.OnSpeechResult(result)
	}
}

// notification is a delegate call captured under the session lock and
// delivered after it is released.
type notification struct {
	delegate Delegate
	method   string
	call     func(d Delegate)
}

// enqueueLocked queues a notification for d. Caller holds s.mu.
func (s *Speech) enqueueLocked(d Delegate, method string, call func(d Delegate)) {
	if d == nil {
		return
	}
	s.outbox = append(s.outbox, notification{delegate: d, method: method, call: call})
}

// flush delivers queued notifications in order. Must be called without
// s.mu held. If another goroutine is already delivering, it picks up the
// new entries, so delegate code may call back into Speech.
func (s *Speech) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 && !s.closed {
		n := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()

		s.deliver(n)

		s.mu.Lock()
	}
	s.outbox = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Speech) deliver(n notification) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.RecordDelegatePanic()
			s.logger.Error().
				Str("method", n.method).
				Err(fmt.Errorf("panic: %v", rec)).
				Msg("Unhandled panic in delegate")
		}
	}()
	n.call(n.delegate)
}
