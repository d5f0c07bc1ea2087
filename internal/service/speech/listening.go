package speech

import (
	"errors"
	"fmt"
	"strings"

	"speech-coordinator/internal/service/delayed"
	"speech-coordinator/internal/service/recognition"
)

// Reasons a session ended, used as metric labels.
const (
	reasonResult  = "result"
	reasonStopped = "stopped"
	reasonTimeout = "timeout"
	reasonError   = "error"
)

// StartListening opens a listening session reporting to d. It is a no-op
// while a session is in progress, and silently dropped when called sooner
// than the transition minimum delay after the previous start or stop.
func (s *Speech) StartListening(d Delegate) error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotInitialized
	}
	if s.lifecycle.IsListening() {
		return nil
	}
	if s.handle == nil {
		return ErrEngineUnavailable
	}
	if d == nil {
		return fmt.Errorf("%w: delegate must be defined", ErrInvalidArgument)
	}
	if s.throttledLocked() {
		s.logger.Debug().Msg("Throttling start listening, too close to the previous action")
		s.metrics.RecordThrottled("start")
		return nil
	}

	s.delegate = d

	req := recognition.Request{
		Language:       s.cfg.Locale,
		PartialResults: s.cfg.PartialResults,
		PreferOffline:  s.cfg.PreferOffline,
		MaxResults:     1,
		LanguageModel:  recognition.LanguageModelFreeForm,
		CallingPackage: s.callingPackage,
	}
	if err := s.handle.StartListening(req); err != nil {
		if errors.Is(err, recognition.ErrSecurity) {
			return ErrVoiceInputDisabled
		}
		return fmt.Errorf("start listening: %w", err)
	}

	sessionId := s.sessionIds.Next("listen")
	if err := s.lifecycle.Begin(sessionId); err != nil {
		return err
	}
	now := s.clock.Now()
	s.lastAction = now
	s.startedAt = now
	s.metrics.RecordSessionStart()

	s.logger.Info().
		Str("sessionId", sessionId).
		Str("locale", req.Language.String()).
		Bool("partialResults", req.PartialResults).
		Msg("Listening session started")

	s.enqueueLocked(d, "OnStartOfSpeech", func(d Delegate) { d.OnStartOfSpeech() })
	return nil
}

// StopListening ends the session in progress and delivers the best-effort
// result built from partial results. No-op when not listening; throttled
// like StartListening.
func (s *Speech) StopListening() error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotInitialized
	}
	if !s.lifecycle.IsListening() {
		return nil
	}
	if s.throttledLocked() {
		s.logger.Debug().Msg("Throttling stop listening, too close to the previous action")
		s.metrics.RecordThrottled("stop")
		return nil
	}

	s.lastAction = s.clock.Now()
	s.finalizeAndRecreateLocked(reasonStopped)
	return nil
}

func (s *Speech) throttledLocked() bool {
	if s.lastAction.IsZero() {
		return false
	}
	return !s.clock.Now().After(s.lastAction.Add(s.cfg.TransitionMinDelay))
}

// currentLocked reports whether a callback of generation gen may act.
func (s *Speech) currentLocked(gen uint64) bool {
	return !s.closed && gen == s.gen
}

func (s *Speech) onReadyForSpeech(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return
	}
	s.partials.Reset()
}

func (s *Speech) onBeginningOfSpeech(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) || !s.lifecycle.IsListening() {
		return
	}
	s.armTimerLocked()
}

func (s *Speech) onRmsChanged(gen uint64, value float32) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) || !s.lifecycle.IsListening() {
		return
	}
	s.enqueueLocked(s.delegate, "OnSpeechRmsChanged", func(d Delegate) { d.OnSpeechRmsChanged(value) })
}

func (s *Speech) onPartialResults(gen uint64, candidates []string, unstable string) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) || !s.lifecycle.IsListening() {
		return
	}

	s.timer.Reset()

	if len(candidates) == 0 {
		return
	}
	if !s.partials.Update(candidates, unstable) {
		s.metrics.RecordPartial(false)
		return
	}
	s.partials.MarkDelivered(candidates)
	s.metrics.RecordPartial(true)

	results := s.partials.Candidates()
	s.enqueueLocked(s.delegate, "OnSpeechPartialResults", func(d Delegate) { d.OnSpeechPartialResults(results) })
}

func (s *Speech) onResults(gen uint64, candidates []string) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return
	}
	if !s.lifecycle.IsListening() {
		s.logger.Debug().Msg("Ignoring results outside a listening session")
		return
	}

	s.timer.Cancel()

	result := firstNonEmpty(candidates)
	if result == "" {
		s.logger.Info().Msg("No speech results, getting partial")
		result = s.partials.Finalize()
	}

	s.deliverResultLocked(reasonResult, result)
	s.recreateLocked()
}

func (s *Speech) onError(gen uint64, code recognition.ErrorCode) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) {
		return
	}

	s.metrics.RecordEngineError(code.String())
	s.logger.Error().
		Err(&EngineError{Code: code}).
		Str("sessionId", s.lifecycle.SessionId()).
		Msg("Speech recognition error")

	if s.lifecycle.IsListening() {
		s.finalizeAndRecreateLocked(reasonError)
		return
	}
	s.recreateLocked()
}

func (s *Speech) onInactivity(gen uint64) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen) || !s.lifecycle.IsListening() {
		return
	}
	s.logger.Info().
		Str("sessionId", s.lifecycle.SessionId()).
		Dur("timeout", s.cfg.InactivityTimeout).
		Msg("No speech activity, stopping listening")
	s.finalizeAndRecreateLocked(reasonTimeout)
}

// finalizeAndRecreateLocked ends the session with the partial results
// assembled so far and replaces the recognizer handle.
func (s *Speech) finalizeAndRecreateLocked(reason string) {
	s.timer.Cancel()
	s.deliverResultLocked(reason, s.partials.Finalize())
	s.recreateLocked()
}

func (s *Speech) deliverResultLocked(reason, result string) {
	sessionId := s.lifecycle.SessionId()
	if s.lifecycle.End() {
		s.metrics.RecordSessionEnd(reason, s.clock.Since(s.startedAt).Seconds())
	}
	s.logger.Info().
		Str("sessionId", sessionId).
		Str("reason", reason).
		Int("resultLength", len(result)).
		Msg("Listening session ended")

	s.enqueueLocked(s.delegate, "OnSpeechResult", func(d Delegate) { d.OnSpeechResult(result) })
	// The session can no longer report; the next start supplies a delegate.
	s.delegate = nil
}

// recreateLocked destroys the current handle and binds a fresh one with a
// new generation, a new timer and an empty accumulator.
func (s *Speech) recreateLocked() {
	if s.handle != nil {
		if err := s.handle.Destroy(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to destroy speech recognizer")
		}
		s.handle = nil
	}
	s.metrics.RecordEngineRecreated()
	s.initRecognizerLocked()
}

func (s *Speech) initRecognizerLocked() {
	s.gen++
	s.partials.Reset()
	s.rebuildTimerLocked()

	if s.recognizer == nil || !s.recognizer.Available() {
		s.logger.Warn().Msg("Speech recognition is not available on this device")
		return
	}
	h, err := s.recognizer.NewHandle()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create speech recognizer")
		return
	}
	h.SetListener(&boundListener{s: s, gen: s.gen})
	s.handle = h
}

func (s *Speech) rebuildTimerLocked() {
	if s.timer != nil {
		s.timer.Cancel()
	}
	op, err := delayed.New(s.clock, s.cfg.InactivityTimeout, "stopListening", s.rootLogger)
	if err != nil {
		// InactivityTimeout is validated before it is stored.
		panic(err)
	}
	s.timer = op
}

// armTimerLocked arms the inactivity watchdog for the current generation.
func (s *Speech) armTimerLocked() {
	gen := s.gen
	_ = s.timer.Arm(
		func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.currentLocked(gen) && s.lifecycle.IsListening()
		},
		func() { s.onInactivity(gen) },
	)
}

func firstNonEmpty(candidates []string) string {
	for _, c := range candidates {
		if t := strings.TrimSpace(c); t != "" {
			return t
		}
	}
	return ""
}

// boundListener routes engine events of one handle to s. Events from a
// handle that has since been replaced carry a stale gen and are dropped.
type boundListener struct {
	recognition.NopListener
	s   *Speech
	gen uint64
}

func (l *boundListener) OnReadyForSpeech()    { l.s.onReadyForSpeech(l.gen) }
func (l *boundListener) OnBeginningOfSpeech() { l.s.onBeginningOfSpeech(l.gen) }
func (l *boundListener) OnRmsChanged(rmsdB float32) {
	l.s.onRmsChanged(l.gen, rmsdB)
}
func (l *boundListener) OnPartialResults(candidates []string, unstable string) {
	l.s.onPartialResults(l.gen, candidates, unstable)
}
func (l *boundListener) OnResults(candidates []string) { l.s.onResults(l.gen, candidates) }
func (l *boundListener) OnError(code recognition.ErrorCode) {
	l.s.onError(l.gen, code)
}
