// Package coordinator exposes the speech façade to the transports. Every
// session started through it also notifies a fixed set of observers, such
// as the event publisher and the websocket hub.
package coordinator

import (
	"github.com/rs/zerolog"

	"speech-coordinator/internal/service/speech"
	"speech-coordinator/internal/service/utterance"
)

// Status is a snapshot of the façade.
type Status struct {
	State                string `json:"state"`
	Listening            bool   `json:"listening"`
	SessionID            string `json:"sessionId"`
	RecognitionAvailable bool   `json:"recognitionAvailable"`
	Locale               string `json:"locale"`
}

// UtteranceObserver wraps a Say callback, e.g. to publish progress events.
type UtteranceObserver func(text string, next utterance.Callback) utterance.Callback

// Coordinator is safe for concurrent use.
type Coordinator struct {
	speech    *speech.Speech
	observers []speech.Delegate
	utterance UtteranceObserver
	logger    zerolog.Logger
}

// New wraps s. Nil observers are ignored.
func New(s *speech.Speech, logger zerolog.Logger, observers ...speech.Delegate) *Coordinator {
	return &Coordinator{
		speech:    s,
		observers: observers,
		logger:    logger.With().Str("component", "coordinator").Logger(),
	}
}

// ObserveUtterances installs a wrapper applied to every Say callback.
func (c *Coordinator) ObserveUtterances(o UtteranceObserver) {
	c.utterance = o
}

// StartListening opens a session whose notifications go to d and to every
// observer. d may be nil when only the observers are interested.
func (c *Coordinator) StartListening(d speech.Delegate) error {
	all := make([]speech.Delegate, 0, len(c.observers)+1)
	all = append(all, d)
	all = append(all, c.observers...)
	if err := c.speech.StartListening(speech.Tee(all...)); err != nil {
		c.logger.Debug().Err(err).Msg("Start listening refused")
		return err
	}
	return nil
}

func (c *Coordinator) StopListening() error {
	return c.speech.StopListening()
}

// Say speaks text. cb may be nil.
func (c *Coordinator) Say(text string, cb utterance.Callback) (string, error) {
	if c.utterance != nil {
		cb = c.utterance(text, cb)
	}
	return c.speech.Say(text, cb)
}

func (c *Coordinator) StopSpeaking() error {
	return c.speech.StopTextToSpeech()
}

func (c *Coordinator) Status() Status {
	cfg := c.speech.Config()
	return Status{
		State:                c.speech.State().String(),
		Listening:            c.speech.IsListening(),
		SessionID:            c.speech.SessionId(),
		RecognitionAvailable: c.speech.IsRecognitionAvailable(),
		Locale:               cfg.Locale.String(),
	}
}
