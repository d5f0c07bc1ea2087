package speech

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"speech-coordinator/internal/service/recognition"
	"speech-coordinator/internal/service/synthesis"
	"speech-coordinator/internal/service/utterance"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.InactivityTimeout != 4*time.Second {
		t.Errorf("expected 4s inactivity timeout, got %v", cfg.InactivityTimeout)
	}
	if cfg.TransitionMinDelay != 1200*time.Millisecond {
		t.Errorf("expected 1200ms transition delay, got %v", cfg.TransitionMinDelay)
	}
	if !cfg.PartialResults || cfg.PreferOffline {
		t.Error("expected partial results on, prefer offline off")
	}
	if cfg.TTSRate != 1.0 || cfg.TTSPitch != 1.0 || cfg.TTSQueueMode != synthesis.QueueFlush {
		t.Errorf("unexpected synthesis defaults %+v", cfg)
	}
}

func TestNew_InvalidTransitionDelay(t *testing.T) {
	_, err := New(Options{Config: Config{TransitionMinDelay: -time.Second}, Logger: zerolog.Nop()})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSay_ResolvesCallbackOnce(t *testing.T) {
	h := newHarness(t, nil)
	var starts, dones int
	cb := utterance.Funcs{
		Start:     func() { starts++ },
		Completed: func() { dones++ },
	}

	id, err := h.speech.Say("hi", cb)
	if err != nil {
		t.Fatalf("Say failed: %v", err)
	}

	p := h.tts.Progress()
	p.OnStart(id)
	p.OnDone(id)
	p.OnDone(id)

	if starts != 1 || dones != 1 {
		t.Errorf("expected start=1 done=1, got start=%d done=%d", starts, dones)
	}
}

func TestSay_NoSynthesizer(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Synthesizer = nil })

	if _, err := h.speech.Say("hi", nil); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}
	if err := h.speech.StopTextToSpeech(); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestSynthesisSetters(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.speech.SetTextToSpeechRate(1.5); err != nil {
		t.Fatal(err)
	}
	if err := h.speech.SetTextToSpeechPitch(0.7); err != nil {
		t.Fatal(err)
	}
	if err := h.speech.SetLocale(language.French); err != nil {
		t.Fatal(err)
	}
	if err := h.speech.SetTextToSpeechQueueMode(synthesis.QueueAdd); err != nil {
		t.Fatal(err)
	}
	_, _ = h.speech.Say("bonjour", nil)

	h.tts.mu.Lock()
	defer h.tts.mu.Unlock()
	if h.tts.voice.Rate != 1.5 || h.tts.voice.Pitch != 0.7 || h.tts.voice.Language != language.French {
		t.Errorf("expected voice applied immediately, got %+v", h.tts.voice)
	}
	if h.tts.mode != synthesis.QueueAdd {
		t.Errorf("expected add mode, got %v", h.tts.mode)
	}

	if err := h.speech.SetTextToSpeechRate(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := h.speech.SetTextToSpeechPitch(-1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestStopTextToSpeech(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.speech.StopTextToSpeech(); err != nil {
		t.Fatal(err)
	}
	h.tts.mu.Lock()
	defer h.tts.mu.Unlock()
	if h.tts.stopped != 1 {
		t.Errorf("expected engine stop, got %d", h.tts.stopped)
	}
}

func TestLocaleAppliesToNextSession(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.speech.SetLocale(language.German)
	_ = h.speech.SetPartialResults(false)
	_ = h.speech.SetPreferOffline(true)

	_ = h.speech.StartListening(&recorder{})

	req := h.rec.Current().Requests()[0]
	if req.Language != language.German || req.PartialResults || !req.PreferOffline {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestSetStopListeningAfterInactivity(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.speech.SetStopListeningAfterInactivity(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	d := &recorder{}
	_ = h.speech.StartListening(d)
	h.engine().OnBeginningOfSpeech()

	// Shortening the timeout mid-session restarts the countdown with it.
	if err := h.speech.SetStopListeningAfterInactivity(time.Second); err != nil {
		t.Fatal(err)
	}
	h.clock.Add(time.Second)
	waitFor(t, func() bool { return d.Count("result") == 1 })

	if h.speech.Config().InactivityTimeout != time.Second {
		t.Errorf("expected timeout stored, got %v", h.speech.Config().InactivityTimeout)
	}
}

func TestSetTransitionMinimumDelay(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.speech.SetTransitionMinimumDelay(-time.Millisecond); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := h.speech.SetTransitionMinimumDelay(0); err != nil {
		t.Fatal(err)
	}

	d := &recorder{}
	_ = h.speech.StartListening(d)
	h.clock.Add(time.Millisecond)
	_ = h.speech.StopListening()

	if h.speech.IsListening() {
		t.Error("expected stop to pass with zero delay")
	}
}

func TestShutdown_SilencesLateCallbacks(t *testing.T) {
	h := newHarness(t, nil)
	d := &recorder{}
	_ = h.speech.StartListening(d)
	handle := h.rec.Current()
	l := handle.Listener()
	l.OnBeginningOfSpeech()

	var dones int
	id, _ := h.speech.Say("bye", utterance.Funcs{Completed: func() { dones++ }})
	progress := h.tts.Progress()

	before := len(d.Events())
	if err := h.speech.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	l.OnPartialResults([]string{"late"}, "")
	l.OnRmsChanged(3)
	l.OnResults([]string{"late"})
	l.OnError(recognition.ErrorServer)
	progress.OnDone(id)
	h.clock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)

	if after := len(d.Events()); after != before {
		t.Errorf("expected no notifications after shutdown, got %d new", after-before)
	}
	if dones != 0 {
		t.Error("utterance callback invoked after shutdown")
	}
	if !handle.Destroyed() {
		t.Error("expected handle destroyed")
	}
	h.tts.mu.Lock()
	shut := h.tts.shutdown
	h.tts.mu.Unlock()
	if !shut {
		t.Error("expected synthesis engine shut down")
	}
	if h.speech.IsListening() {
		t.Error("expected Idle after shutdown")
	}
}

func TestShutdown_MethodsFail(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.speech.Shutdown()

	if err := h.speech.StartListening(&recorder{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartListening: expected ErrNotInitialized, got %v", err)
	}
	if err := h.speech.StopListening(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StopListening: expected ErrNotInitialized, got %v", err)
	}
	if _, err := h.speech.Say("x", nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Say: expected ErrNotInitialized, got %v", err)
	}
	if err := h.speech.SetLocale(language.English); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SetLocale: expected ErrNotInitialized, got %v", err)
	}
	if err := h.speech.Shutdown(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Shutdown: expected ErrNotInitialized, got %v", err)
	}
}

func TestInitAndInstance(t *testing.T) {
	if _, err := Instance(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before Init, got %v", err)
	}

	opts := Options{Recognizer: &fakeRecognizer{}, Config: DefaultConfig(), Logger: zerolog.Nop()}
	s1, err := Init(opts)
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := Init(opts)
	if s1 != s2 {
		t.Error("expected Init to return the existing instance")
	}
	got, err := Instance()
	if err != nil || got != s1 {
		t.Errorf("expected Instance to return s1, got %v %v", got, err)
	}

	_ = s1.Shutdown()
	if _, err := Instance(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after Shutdown, got %v", err)
	}
}

func TestEngineError_Message(t *testing.T) {
	err := &EngineError{Code: recognition.ErrorNoMatch}
	if err.Error() == "" {
		t.Error("expected message")
	}
	var target *EngineError
	if !errors.As(error(err), &target) || target.Code != recognition.ErrorNoMatch {
		t.Error("expected errors.As to match")
	}
}

func TestTee_SkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	d := Tee(a, nil, b)

	d.OnStartOfSpeech()
	d.OnSpeechResult("x")

	if a.Count("result") != 1 || b.Count("result") != 1 || a.Count("start") != 1 {
		t.Error("expected both delegates notified")
	}
}
