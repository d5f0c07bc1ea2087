package synthesis

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"speech-coordinator/internal/observability/logging"
	"speech-coordinator/internal/observability/metrics"
	"speech-coordinator/internal/service/utterance"
)

// Options configures a Dispatcher.
type Options struct {
	Voice     Voice
	QueueMode QueueMode
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Dispatcher submits utterances to an Engine and routes its progress events
// to the callbacks registered for each utterance.
type Dispatcher struct {
	mu        sync.Mutex
	engine    Engine
	registry  *utterance.Registry
	voice     Voice
	queueMode QueueMode
	closed    bool

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher binds to engine, initializes it and applies the initial voice.
// Init failures are logged; the dispatcher is still returned so that later
// calls surface the engine's own errors.
func NewDispatcher(engine Engine, opts Options) *Dispatcher {
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Voice.Rate == 0 {
		opts.Voice.Rate = 1.0
	}
	if opts.Voice.Pitch == 0 {
		opts.Voice.Pitch = 1.0
	}
	logger := opts.Logger.With().Str("component", "synthesis").Logger()

	d := &Dispatcher{
		engine:    engine,
		registry:  utterance.NewRegistry(opts.Logger),
		voice:     opts.Voice,
		queueMode: opts.QueueMode,
		logger:    logger,
		metrics:   opts.Metrics,
	}

	engine.SetProgressListener(progress{d})
	if err := engine.Init(); err != nil {
		logger.Error().Err(err).Msg("Error while initializing text to speech engine")
	} else {
		logger.Info().Msg("Text to speech engine successfully started")
	}

	if err := engine.SetLanguage(d.voice.Language); err != nil {
		logger.Warn().Err(err).Str("language", d.voice.Language.String()).Msg("Language not supported by engine")
	}
	if err := engine.SetSpeechRate(d.voice.Rate); err != nil {
		logger.Warn().Err(err).Msg("Failed to set speech rate")
	}
	if err := engine.SetPitch(d.voice.Pitch); err != nil {
		logger.Warn().Err(err).Msg("Failed to set pitch")
	}
	return d
}

// Say queues message under a fresh utterance id and returns the id.
// cb may be nil. If the engine rejects the request, cb.OnError is invoked
// and the error is returned.
func (d *Dispatcher) Say(message string, cb utterance.Callback) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrShutdown
	}
	mode := d.queueMode
	// Registered under d.mu so a concurrent Shutdown clears the entry.
	id := d.registry.Register(cb)
	d.mu.Unlock()

	d.metrics.RecordUtteranceRequested()

	logger := logging.WithUtterance(d.logger, id)
	if err := d.engine.Speak(message, mode, id); err != nil {
		logger.Error().Err(err).Msg("Engine rejected utterance")
		err = fmt.Errorf("speak: %w", err)
		d.registry.ResolveError(id, err)
		d.metrics.RecordUtteranceResolved("error")
		return id, err
	}

	logger.Debug().
		Str("queueMode", mode.String()).
		Msg("Utterance submitted")
	return id, nil
}

// Stop interrupts speech. Pending callbacks are left registered and are
// simply never reached.
func (d *Dispatcher) Stop() error {
	if d.isClosed() {
		return nil
	}
	return d.engine.Stop()
}

// SetLanguage applies tag to the engine immediately.
func (d *Dispatcher) SetLanguage(tag language.Tag) error {
	d.mu.Lock()
	d.voice.Language = tag
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil
	}
	return d.engine.SetLanguage(tag)
}

// SetRate applies the speech rate to the engine immediately. 1.0 is normal.
func (d *Dispatcher) SetRate(rate float32) error {
	d.mu.Lock()
	d.voice.Rate = rate
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil
	}
	return d.engine.SetSpeechRate(rate)
}

// SetPitch applies the pitch to the engine immediately. 1.0 is normal.
func (d *Dispatcher) SetPitch(pitch float32) error {
	d.mu.Lock()
	d.voice.Pitch = pitch
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil
	}
	return d.engine.SetPitch(pitch)
}

// SetQueueMode sets the mode used by subsequent Say calls.
func (d *Dispatcher) SetQueueMode(mode QueueMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queueMode = mode
}

// Voice returns the current voice settings.
func (d *Dispatcher) Voice() Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voice
}

// Pending returns the number of callbacks not yet resolved.
func (d *Dispatcher) Pending() int {
	return d.registry.Len()
}

// Shutdown drops all pending callbacks without invoking them, then stops and
// releases the engine. Subsequent progress events are ignored.
func (d *Dispatcher) Shutdown() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.registry.Clear()
	d.engine.SetProgressListener(nil)

	if err := d.engine.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop engine")
	}
	return d.engine.Shutdown()
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// progress forwards engine events to the registry.
type progress struct {
	d *Dispatcher
}

func (p progress) OnStart(id string) {
	if p.d.isClosed() {
		return
	}
	p.d.registry.ResolveStart(id)
}

func (p progress) OnDone(id string) {
	if p.d.isClosed() {
		return
	}
	if p.d.registry.ResolveDone(id) {
		p.d.metrics.RecordUtteranceResolved("done")
	}
}

func (p progress) OnError(id string, err error) {
	if p.d.isClosed() {
		return
	}
	p.d.logger.Error().Err(err).Str("utteranceId", id).Msg("Utterance failed")
	if p.d.registry.ResolveError(id, err) {
		p.d.metrics.RecordUtteranceResolved("error")
	}
}
