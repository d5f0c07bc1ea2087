package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"speech-coordinator/internal/observability/metrics"
	"speech-coordinator/internal/service/recognition"
	"speech-coordinator/internal/service/synthesis"
)

// fakeHandle records requests; tests play the engine by calling its listener.
type fakeHandle struct {
	mu        sync.Mutex
	listener  recognition.Listener
	requests  []recognition.Request
	stops     int
	destroyed bool
	startErr  error
}

func (h *fakeHandle) SetListener(l recognition.Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

func (h *fakeHandle) StartListening(req recognition.Request) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.requests = append(h.requests, req)
	return nil
}

func (h *fakeHandle) StopListening() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return nil
}

func (h *fakeHandle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	return nil
}

// Listener returns the bound listener even after Destroy, so tests can
// simulate late engine callbacks.
func (h *fakeHandle) Listener() recognition.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener
}

func (h *fakeHandle) Requests() []recognition.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recognition.Request(nil), h.requests...)
}

func (h *fakeHandle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

type fakeRecognizer struct {
	mu          sync.Mutex
	unavailable bool
	startErr    error
	handles     []*fakeHandle
}

func (r *fakeRecognizer) Available() bool { return !r.unavailable }

func (r *fakeRecognizer) NewHandle() (recognition.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &fakeHandle{startErr: r.startErr}
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRecognizer) Current() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[len(r.handles)-1]
}

func (r *fakeRecognizer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// fakeSynthesizer lets tests emit progress events by hand.
type fakeSynthesizer struct {
	mu       sync.Mutex
	listener synthesis.ProgressListener
	ids      []string
	voice    synthesis.Voice
	mode     synthesis.QueueMode
	stopped  int
	shutdown bool
}

func (f *fakeSynthesizer) Init() error { return nil }
func (f *fakeSynthesizer) SetProgressListener(l synthesis.ProgressListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}
func (f *fakeSynthesizer) SetLanguage(tag language.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice.Language = tag
	return nil
}
func (f *fakeSynthesizer) SetSpeechRate(rate float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice.Rate = rate
	return nil
}
func (f *fakeSynthesizer) SetPitch(pitch float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice.Pitch = pitch
	return nil
}
func (f *fakeSynthesizer) Speak(_ string, mode synthesis.QueueMode, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.mode = mode
	return nil
}
func (f *fakeSynthesizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}
func (f *fakeSynthesizer) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}
func (f *fakeSynthesizer) Progress() synthesis.ProgressListener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

type recorded struct {
	kind     string
	text     string
	partials []string
	rms      float32
}

// recorder is a Delegate that records every notification.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) add(e recorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnStartOfSpeech() { r.add(recorded{kind: "start"}) }
func (r *recorder) OnSpeechRmsChanged(v float32) {
	r.add(recorded{kind: "rms", rms: v})
}
func (r *recorder) OnSpeechPartialResults(results []string) {
	r.add(recorded{kind: "partial", partials: results})
}
func (r *recorder) OnSpeechResult(result string) {
	r.add(recorded{kind: "result", text: result})
}

func (r *recorder) Events() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recorder) Count(kind string) int {
	n := 0
	for _, e := range r.Events() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) Results() []string {
	var out []string
	for _, e := range r.Events() {
		if e.kind == "result" {
			out = append(out, e.text)
		}
	}
	return out
}

type harness struct {
	speech *Speech
	rec    *fakeRecognizer
	tts    *fakeSynthesizer
	clock  *clock.Mock
}

func newHarness(t *testing.T, mutate func(o *Options)) *harness {
	t.Helper()
	h := &harness{
		rec:   &fakeRecognizer{},
		tts:   &fakeSynthesizer{},
		clock: clock.NewMock(),
	}
	// Mock time starts at the Unix epoch; move off it so throttling is
	// measured against a realistic clock.
	h.clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	opts := Options{
		Recognizer:     h.rec,
		Synthesizer:    h.tts,
		CallingPackage: "com.example.app",
		Config:         DefaultConfig(),
		Logger:         zerolog.Nop(),
		Metrics:        metrics.NewUnregistered(prometheus.NewRegistry()),
		Clock:          h.clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.speech = s
	t.Cleanup(func() { _ = s.Shutdown() })
	return h
}

// engine returns the listener bound to the current handle.
func (h *harness) engine() recognition.Listener {
	return h.rec.Current().Listener()
}

// pass moves the clock past the transition throttle window.
func (h *harness) pass() {
	h.clock.Add(h.speech.Config().TransitionMinDelay + time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errBoom = errors.New("boom")
