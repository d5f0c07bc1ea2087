// Package mock provides a simulated recognition engine for running without
// a real speech service. Each handle plays back one scripted utterance:
// ready, beginning of speech, progressive partial results, then either a
// final result, an engine error, or nothing at all (a hung engine).
package mock

import (
	"errors"
	"strings"
	"sync"
	"time"

	"speech-coordinator/internal/service/recognition"
)

// Partial is one scripted partial-results event.
type Partial struct {
	Candidates []string
	Unstable   string
}

// SimulatedUtterance represents a scripted utterance.
type SimulatedUtterance struct {
	Partials []Partial // Progressive partial results
	Final    []string  // Final candidates; empty simulates an engine with no results
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []Partial{
			{Candidates: []string{"Turn"}, Unstable: "on"},
			{Candidates: []string{"Turn on"}, Unstable: "the"},
			{Candidates: []string{"Turn on the"}, Unstable: "lights"},
		},
		Final: []string{"Turn on the lights"},
	},
	{
		Partials: []Partial{
			{Candidates: []string{"What"}},
			{Candidates: []string{"What time"}, Unstable: "is"},
			{Candidates: []string{"What time is it"}},
		},
		Final: []string{"What time is it"},
	},
	{
		Partials: []Partial{
			{Candidates: []string{"Set a"}, Unstable: "timer"},
			{Candidates: []string{"Set a timer"}, Unstable: "for"},
			{Candidates: []string{"Set a timer for five"}, Unstable: "minutes"},
		},
		Final: []string{"Set a timer for five minutes"},
	},
	{
		Partials: []Partial{
			{Candidates: []string{"Play"}},
			{Candidates: []string{"Play some"}, Unstable: "jazz"},
		},
		Final: []string{"Play some jazz"},
	},
	{
		Partials: []Partial{
			{Candidates: []string{"Thank"}, Unstable: "you"},
		},
		Final: []string{"Thank you very much"},
	},
}

// Behavior selects how a simulated utterance terminates.
type Behavior int

const (
	// BehaviorFinal reports the final result.
	BehaviorFinal Behavior = iota
	// BehaviorError reports Config.ErrorCode instead of a final result.
	BehaviorError
	// BehaviorHang never reports a terminal event.
	BehaviorHang
)

// ParseBehavior maps "final", "error" and "hang" to a Behavior. Unknown
// names report ok=false.
func ParseBehavior(name string) (b Behavior, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "final":
		return BehaviorFinal, true
	case "error":
		return BehaviorError, true
	case "hang":
		return BehaviorHang, true
	default:
		return BehaviorFinal, false
	}
}

// Config controls the simulated engine.
type Config struct {
	Interval    time.Duration // Delay between consecutive events
	Utterances  []SimulatedUtterance
	Behavior    Behavior
	ErrorCode   recognition.ErrorCode
	Unavailable bool // Simulates a device without recognition service
	DenyStart   bool // Simulates voice input disabled by policy
}

// DefaultConfig returns a configuration that cycles through DefaultUtterances.
func DefaultConfig() Config {
	return Config{
		Interval:   150 * time.Millisecond,
		Utterances: DefaultUtterances,
		Behavior:   BehaviorFinal,
		ErrorCode:  recognition.ErrorNoMatch,
	}
}

var (
	ErrDestroyed = errors.New("handle destroyed")
	ErrBusy      = errors.New("handle already listening")
)

// Engine implements recognition.Engine with scripted utterances.
type Engine struct {
	cfg     Config
	mu      sync.Mutex
	counter int // Cycles through utterances
	handles int
}

// New creates a simulated engine.
func New(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	return &Engine{cfg: cfg}
}

// Available reports whether the simulated service exists.
func (e *Engine) Available() bool {
	return !e.cfg.Unavailable
}

// NewHandle creates a handle scripted with the next utterance.
func (e *Engine) NewHandle() (recognition.Handle, error) {
	e.mu.Lock()
	idx := e.counter % len(e.cfg.Utterances)
	e.counter++
	e.handles++
	e.mu.Unlock()

	return &handle{
		cfg:       e.cfg,
		utterance: e.cfg.Utterances[idx],
	}, nil
}

// HandlesCreated returns how many handles the engine has created.
func (e *Engine) HandlesCreated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles
}

type handle struct {
	cfg       Config
	utterance SimulatedUtterance

	mu        sync.Mutex
	listener  recognition.Listener
	stop      chan struct{}
	running   bool
	destroyed bool
}

func (h *handle) SetListener(l recognition.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

func (h *handle) StartListening(req recognition.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return ErrDestroyed
	}
	if h.cfg.DenyStart {
		return recognition.ErrSecurity
	}
	if h.running {
		return ErrBusy
	}
	h.running = true
	h.stop = make(chan struct{})

	go h.run(h.stop, req)
	return nil
}

func (h *handle) StopListening() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halt()
	return nil
}

func (h *handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halt()
	h.destroyed = true
	h.listener = nil
	return nil
}

func (h *handle) halt() {
	if h.running {
		close(h.stop)
		h.running = false
	}
}

// run plays back the scripted utterance on the engine goroutine.
func (h *handle) run(stop <-chan struct{}, req recognition.Request) {
	if !h.wait(stop) {
		return
	}
	h.emit(stop, func(l recognition.Listener) { l.OnReadyForSpeech() })

	if !h.wait(stop) {
		return
	}
	h.emit(stop, func(l recognition.Listener) { l.OnBeginningOfSpeech() })

	for i, p := range h.utterance.Partials {
		if !h.wait(stop) {
			return
		}
		rms := float32(2 + 2*i)
		h.emit(stop, func(l recognition.Listener) { l.OnRmsChanged(rms) })
		if req.PartialResults {
			h.emit(stop, func(l recognition.Listener) { l.OnPartialResults(p.Candidates, p.Unstable) })
		}
	}

	switch h.cfg.Behavior {
	case BehaviorHang:
		<-stop
		return
	case BehaviorError:
		if !h.wait(stop) {
			return
		}
		h.emit(stop, func(l recognition.Listener) { l.OnError(h.cfg.ErrorCode) })
	default:
		if !h.wait(stop) {
			return
		}
		h.emit(stop, func(l recognition.Listener) { l.OnEndOfSpeech() })
		final := h.utterance.Final
		if req.MaxResults > 0 && len(final) > req.MaxResults {
			final = final[:req.MaxResults]
		}
		h.emit(stop, func(l recognition.Listener) { l.OnResults(final) })
	}

	h.mu.Lock()
	if h.stop == stop {
		h.running = false
	}
	h.mu.Unlock()
}

// wait sleeps one interval. Returns false if the handle was stopped.
func (h *handle) wait(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return false
	case <-time.After(h.cfg.Interval):
		return true
	}
}

func (h *handle) emit(stop <-chan struct{}, fn func(l recognition.Listener)) {
	h.mu.Lock()
	l := h.listener
	select {
	case <-stop:
		l = nil
	default:
	}
	h.mu.Unlock()

	if l != nil {
		fn(l)
	}
}
