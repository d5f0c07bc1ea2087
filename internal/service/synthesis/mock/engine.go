// Package mock provides a simulated synthesis engine for local runs and tests.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"speech-coordinator/internal/service/synthesis"
)

// ErrRejected is reported for utterances matching Config.FailOn.
var ErrRejected = errors.New("utterance rejected by engine")

// Config controls the simulated engine.
type Config struct {
	// PerCharacter is the simulated speaking time per character at rate 1.0.
	PerCharacter time.Duration
	// FailOn makes utterances containing this substring fail. Empty disables.
	FailOn string
	// InitError is returned from Init.
	InitError error
	// Languages restricts supported languages. Empty means all.
	Languages []language.Tag
}

// DefaultConfig returns a config speaking ~20 characters per second.
func DefaultConfig() Config {
	return Config{PerCharacter: 50 * time.Millisecond}
}

// Engine is a synthesis.Engine that sleeps instead of producing audio.
type Engine struct {
	cfg    Config
	worker *synthesis.Worker

	mu     sync.Mutex
	voice  synthesis.Voice
	spoken []synthesis.Utterance
}

// New creates a simulated engine.
func New(cfg Config) *Engine {
	e := &Engine{cfg: cfg, voice: synthesis.DefaultVoice(language.AmericanEnglish)}
	e.worker = synthesis.NewWorker(e.render)
	return e
}

func (e *Engine) Init() error {
	return e.cfg.InitError
}

func (e *Engine) SetProgressListener(l synthesis.ProgressListener) {
	e.worker.SetListener(l)
}

func (e *Engine) SetLanguage(tag language.Tag) error {
	if len(e.cfg.Languages) > 0 {
		m := language.NewMatcher(e.cfg.Languages)
		if _, _, conf := m.Match(tag); conf == language.No {
			return errors.New("language not supported: " + tag.String())
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice.Language = tag
	return nil
}

func (e *Engine) SetSpeechRate(rate float32) error {
	if rate <= 0 {
		return errors.New("rate must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice.Rate = rate
	return nil
}

func (e *Engine) SetPitch(pitch float32) error {
	if pitch <= 0 {
		return errors.New("pitch must be positive")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice.Pitch = pitch
	return nil
}

func (e *Engine) Speak(text string, mode synthesis.QueueMode, utteranceId string) error {
	e.mu.Lock()
	v := e.voice
	e.mu.Unlock()
	return e.worker.Enqueue(synthesis.Utterance{Id: utteranceId, Text: text, Voice: v}, mode)
}

func (e *Engine) Stop() error {
	e.worker.Stop()
	return nil
}

func (e *Engine) Shutdown() error {
	e.worker.Close()
	return nil
}

// Spoken returns the utterances that started playing, in order.
func (e *Engine) Spoken() []synthesis.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]synthesis.Utterance(nil), e.spoken...)
}

func (e *Engine) render(ctx context.Context, u synthesis.Utterance) error {
	e.mu.Lock()
	e.spoken = append(e.spoken, u)
	e.mu.Unlock()

	if e.cfg.FailOn != "" && strings.Contains(u.Text, e.cfg.FailOn) {
		return ErrRejected
	}

	rate := u.Voice.Rate
	if rate <= 0 {
		rate = 1
	}
	d := time.Duration(float64(e.cfg.PerCharacter) * float64(len(u.Text)) / float64(rate))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
