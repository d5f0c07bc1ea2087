// Package speech coordinates a speech recognition engine and a speech
// synthesis engine behind a single façade.
//
// A Speech owns one recognizer handle. StartListening opens a session whose
// notifications go to a Delegate; the session ends with exactly one result,
// either the engine's final result or, on stop, inactivity timeout or engine
// error, the best-effort text assembled from partial results. After every
// session the recognizer handle is destroyed and recreated.
//
// Say forwards text to the synthesis engine and resolves the optional
// per-utterance callback as the engine reports progress.
package speech

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"speech-coordinator/internal/observability/metrics"
	"speech-coordinator/internal/service/delayed"
	"speech-coordinator/internal/service/partial"
	"speech-coordinator/internal/service/recognition"
	"speech-coordinator/internal/service/session"
	"speech-coordinator/internal/service/synthesis"
	"speech-coordinator/internal/service/utterance"
)

// Config holds the session-wide options.
type Config struct {
	Locale         language.Tag
	PreferOffline  bool
	PartialResults bool

	// InactivityTimeout closes a session when the engine reports no
	// activity after speech began.
	InactivityTimeout time.Duration

	// TransitionMinDelay is the minimum time between two start/stop
	// actions. Calls arriving sooner are dropped.
	TransitionMinDelay time.Duration

	TTSRate      float32
	TTSPitch     float32
	TTSQueueMode synthesis.QueueMode
}

// DefaultConfig returns the default options.
func DefaultConfig() Config {
	return Config{
		Locale:             language.AmericanEnglish,
		PreferOffline:      false,
		PartialResults:     true,
		InactivityTimeout:  4000 * time.Millisecond,
		TransitionMinDelay: 1200 * time.Millisecond,
		TTSRate:            1.0,
		TTSPitch:           1.0,
		TTSQueueMode:       synthesis.QueueFlush,
	}
}

// Options configures a Speech.
type Options struct {
	// Recognizer is required for listening. When nil or unavailable,
	// StartListening returns ErrEngineUnavailable.
	Recognizer recognition.Engine

	// Synthesizer is required for Say. When nil, Say returns
	// ErrEngineUnavailable.
	Synthesizer synthesis.Engine

	// CallingPackage identifies the caller to the recognition service.
	CallingPackage string

	Config  Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Clock drives the inactivity timer and the transition throttle.
	Clock clock.Clock
}

// Speech is the coordination façade. Safe for concurrent use.
type Speech struct {
	mu sync.Mutex

	cfg            Config
	callingPackage string
	clock          clock.Clock
	rootLogger     zerolog.Logger
	logger         zerolog.Logger
	metrics        *metrics.Metrics

	recognizer recognition.Engine
	handle     recognition.Handle
	// gen identifies the current handle. Listeners and timers bound to an
	// older generation are ignored.
	gen uint64

	timer      *delayed.Operation
	partials   *partial.Accumulator
	lifecycle  *session.Lifecycle
	sessionIds *session.Generator
	delegate   Delegate
	lastAction time.Time
	startedAt  time.Time

	dispatcher *synthesis.Dispatcher

	outbox   []notification
	draining bool
	closed   bool
}

// New creates a Speech and its first recognizer handle.
func New(opts Options) (*Speech, error) {
	cfg := opts.Config
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultConfig().InactivityTimeout
	}
	if cfg.TransitionMinDelay < 0 {
		return nil, fmt.Errorf("%w: transition min delay must be >= 0", ErrInvalidArgument)
	}
	if cfg.Locale == language.Und {
		cfg.Locale = DefaultConfig().Locale
	}
	if cfg.TTSRate <= 0 {
		cfg.TTSRate = 1.0
	}
	if cfg.TTSPitch <= 0 {
		cfg.TTSPitch = 1.0
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}

	s := &Speech{
		cfg:            cfg,
		callingPackage: opts.CallingPackage,
		clock:          opts.Clock,
		rootLogger:     opts.Logger,
		logger:         opts.Logger.With().Str("component", "speech").Logger(),
		metrics:        opts.Metrics,
		recognizer:     opts.Recognizer,
		partials:       partial.New(),
		lifecycle:      session.NewLifecycle(),
		sessionIds:     session.New(),
	}

	s.mu.Lock()
	s.initRecognizerLocked()
	s.mu.Unlock()

	if opts.Synthesizer != nil {
		s.dispatcher = synthesis.NewDispatcher(opts.Synthesizer, synthesis.Options{
			Voice: synthesis.Voice{
				Language: cfg.Locale,
				Rate:     cfg.TTSRate,
				Pitch:    cfg.TTSPitch,
			},
			QueueMode: cfg.TTSQueueMode,
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
		})
	} else {
		s.logger.Warn().Msg("No text to speech engine configured")
	}

	s.logger.Info().
		Str("locale", cfg.Locale.String()).
		Bool("recognitionAvailable", s.handle != nil).
		Bool("synthesisAvailable", s.dispatcher != nil).
		Msg("Speech initialized")
	return s, nil
}

var (
	instanceMu sync.Mutex
	instance   *Speech
)

// Init creates the process-wide instance. Calling it again returns the
// existing instance until that one is shut down.
func Init(opts Options) (*Speech, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return instance, nil
	}
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	instance = s
	return s, nil
}

// Instance returns the process-wide instance, or ErrNotInitialized.
func Instance() (*Speech, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// Say speaks message and returns the utterance id. cb may be nil.
func (s *Speech) Say(message string, cb utterance.Callback) (string, error) {
	d, err := s.synthesis()
	if err != nil {
		return "", err
	}
	return d.Say(message, cb)
}

// StopTextToSpeech interrupts speech. Pending callbacks are not resolved.
func (s *Speech) StopTextToSpeech() error {
	d, err := s.synthesis()
	if err != nil {
		return err
	}
	return d.Stop()
}

func (s *Speech) synthesis() (*synthesis.Dispatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotInitialized
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("%w: no text to speech engine", ErrEngineUnavailable)
	}
	return s.dispatcher, nil
}

// IsListening reports whether a session is in progress.
func (s *Speech) IsListening() bool {
	return s.lifecycle.IsListening()
}

// State returns the session state.
func (s *Speech) State() session.State {
	return s.lifecycle.State()
}

// SessionId returns the id of the current or last session.
func (s *Speech) SessionId() string {
	return s.lifecycle.SessionId()
}

// IsRecognitionAvailable reports whether a recognizer handle exists.
func (s *Speech) IsRecognitionAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Config returns a copy of the current options.
func (s *Speech) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// SetPreferOffline sets whether the recognizer should prefer offline
// recognition. Applies to the next session.
func (s *Speech) SetPreferOffline(preferOffline bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotInitialized
	}
	s.cfg.PreferOffline = preferOffline
	return nil
}

// SetPartialResults enables or disables partial results. Applies to the
// next session.
func (s *Speech) SetPartialResults(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotInitialized
	}
	s.cfg.PartialResults = enabled
	return nil
}

// SetLocale sets the recognition locale for the next session and the
// synthesis language immediately.
func (s *Speech) SetLocale(tag language.Tag) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.cfg.Locale = tag
	d := s.dispatcher
	s.mu.Unlock()

	if d != nil {
		return d.SetLanguage(tag)
	}
	return nil
}

// SetTextToSpeechRate sets the speech rate. 1.0 is normal.
func (s *Speech) SetTextToSpeechRate(rate float32) error {
	if rate <= 0 {
		return fmt.Errorf("%w: rate must be > 0", ErrInvalidArgument)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.cfg.TTSRate = rate
	d := s.dispatcher
	s.mu.Unlock()

	if d != nil {
		return d.SetRate(rate)
	}
	return nil
}

// SetTextToSpeechPitch sets the pitch. 1.0 is normal.
func (s *Speech) SetTextToSpeechPitch(pitch float32) error {
	if pitch <= 0 {
		return fmt.Errorf("%w: pitch must be > 0", ErrInvalidArgument)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.cfg.TTSPitch = pitch
	d := s.dispatcher
	s.mu.Unlock()

	if d != nil {
		return d.SetPitch(pitch)
	}
	return nil
}

// SetTextToSpeechQueueMode sets how new utterances interact with pending ones.
func (s *Speech) SetTextToSpeechQueueMode(mode synthesis.QueueMode) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.cfg.TTSQueueMode = mode
	d := s.dispatcher
	s.mu.Unlock()

	if d != nil {
		d.SetQueueMode(mode)
	}
	return nil
}

// SetStopListeningAfterInactivity sets the inactivity timeout. The timer is
// rebuilt immediately; a running countdown restarts with the new delay.
func (s *Speech) SetStopListeningAfterInactivity(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: inactivity timeout must be > 0", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotInitialized
	}

	s.cfg.InactivityTimeout = d
	wasArmed := s.timer != nil && s.timer.State() == delayed.StateArmed
	s.rebuildTimerLocked()
	if wasArmed {
		s.armTimerLocked()
	}
	return nil
}

// SetTransitionMinimumDelay sets the minimum time between start/stop actions.
func (s *Speech) SetTransitionMinimumDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: transition delay must be >= 0", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotInitialized
	}
	s.cfg.TransitionMinDelay = d
	return nil
}

// Shutdown releases the recognizer handle and the synthesis engine, drops
// pending utterance callbacks and forgets the delegate. No notification is
// delivered afterwards. Further calls return ErrNotInitialized.
func (s *Speech) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.closed = true
	s.gen++
	s.outbox = nil

	if s.timer != nil {
		s.timer.Cancel()
	}
	if s.handle != nil {
		if err := s.handle.StopListening(); err != nil {
			s.logger.Warn().Err(err).Msg("Warning while stopping speech recognizer")
		}
		if err := s.handle.Destroy(); err != nil {
			s.logger.Warn().Err(err).Msg("Warning while de-initing speech recognizer")
		}
		s.handle = nil
	}
	if s.lifecycle.End() {
		s.metrics.SessionsActive.Dec()
	}
	s.delegate = nil
	d := s.dispatcher
	s.mu.Unlock()

	// The synthesis engine may be delivering a callback that calls back
	// into s, so it is released without holding s.mu.
	var err error
	if d != nil {
		if err = d.Shutdown(); err != nil {
			s.logger.Warn().Err(err).Msg("Warning while de-initing text to speech")
		}
	}

	instanceMu.Lock()
	if instance == s {
		instance = nil
	}
	instanceMu.Unlock()

	s.logger.Info().Msg("Speech shut down")
	return err
}
