// Package piper implements a synthesis engine backed by a Piper TTS HTTP
// server. Rendered WAV audio is handed to a Sink.
package piper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"speech-coordinator/internal/service/synthesis"
)

const defaultEndpoint = "http://localhost:7071/tts"

// Sink receives the rendered audio of one utterance.
type Sink interface {
	Play(ctx context.Context, u synthesis.Utterance, wav []byte) error
}

// FileSink writes each utterance to <Dir>/<id>.wav.
type FileSink struct {
	Fs  afero.Fs
	Dir string
}

func (s FileSink) Play(_ context.Context, u synthesis.Utterance, wav []byte) error {
	if err := s.Fs.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.Fs, path.Join(s.Dir, u.Id+".wav"), wav, 0o644)
}

// DiscardSink drops audio.
type DiscardSink struct{}

func (DiscardSink) Play(context.Context, synthesis.Utterance, []byte) error { return nil }

// Config holds Piper configuration.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// DefaultConfig returns the local Piper endpoint with a generous timeout,
// since the Piper binary may take time to start.
func DefaultConfig() Config {
	return Config{Endpoint: defaultEndpoint, Timeout: 120 * time.Second}
}

// Engine is a synthesis.Engine calling a Piper HTTP server.
type Engine struct {
	endpoint string
	client   *http.Client
	sink     Sink
	worker   *synthesis.Worker
	logger   zerolog.Logger

	mu    sync.Mutex
	voice synthesis.Voice
}

// New creates a Piper engine. A nil sink discards audio.
func New(cfg Config, sink Sink, logger zerolog.Logger) *Engine {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	e := &Engine{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		sink:     sink,
		logger:   logger.With().Str("component", "piper").Logger(),
		voice:    synthesis.DefaultVoice(language.AmericanEnglish),
	}
	e.worker = synthesis.NewWorker(e.render)
	return e
}

// Init checks that the server answers. Any HTTP response counts.
func (e *Engine) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return fmt.Errorf("build piper probe: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe piper tts: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (e *Engine) SetProgressListener(l synthesis.ProgressListener) {
	e.worker.SetListener(l)
}

// SetLanguage records the tag. The voice model is fixed by the server, so
// the tag is only sent as a hint.
func (e *Engine) SetLanguage(tag language.Tag) error {
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

// SetPitch is accepted but Piper has no pitch control.
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
	e.client.CloseIdleConnections()
	return nil
}

func (e *Engine) render(ctx context.Context, u synthesis.Utterance) error {
	wav, err := e.synthesize(ctx, u)
	if err != nil {
		return err
	}
	e.logger.Debug().Str("utteranceId", u.Id).Int("bytes", len(wav)).Msg("Utterance rendered")
	return e.sink.Play(ctx, u, wav)
}

// synthesize posts a url-encoded form with field "text", which is what the
// Piper HTTP server reads.
func (e *Engine) synthesize(ctx context.Context, u synthesis.Utterance) ([]byte, error) {
	form := url.Values{}
	form.Set("text", u.Text)
	form.Set("language", u.Voice.Language.String())
	if u.Voice.Rate > 0 {
		// Piper's length_scale is the inverse of speaking rate.
		form.Set("length_scale", strconv.FormatFloat(1/float64(u.Voice.Rate), 'f', 3, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post form to piper tts: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("piper tts bad status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
