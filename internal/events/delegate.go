package events

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"speech-coordinator/internal/models"
	"speech-coordinator/internal/service/utterance"
)

const publishTimeout = 5 * time.Second

// Validator checks an event before it is published.
type Validator interface {
	Validate(event any) error
}

// Delegate turns recognition notifications and synthesis progress into
// published events. It satisfies speech.Delegate.
type Delegate struct {
	pub       *Publisher
	validator Validator
	sessionID func() string
	clock     clock.Clock
	logger    zerolog.Logger

	// PublishRms enables speech.rms events. Off by default since the
	// recognizer reports levels for every audio chunk.
	PublishRms bool
}

// NewDelegate binds a publisher to the session id source of the
// recognition façade.
func NewDelegate(pub *Publisher, validator Validator, sessionID func() string, clk clock.Clock, logger zerolog.Logger) *Delegate {
	if clk == nil {
		clk = clock.New()
	}
	return &Delegate{
		pub:       pub,
		validator: validator,
		sessionID: sessionID,
		clock:     clk,
		logger:    logger.With().Str("component", "eventDelegate").Logger(),
	}
}

func (d *Delegate) OnStartOfSpeech() {
	sid := d.sessionID()
	d.send(false, sid, models.EventSpeechStarted, models.SpeechStarted{
		EventType: models.EventSpeechStarted,
		Principal: d.pub.Principal(),
		SessionID: sid,
		Timestamp: d.now(),
	})
}

func (d *Delegate) OnSpeechRmsChanged(value float32) {
	if !d.PublishRms {
		return
	}
	sid := d.sessionID()
	d.send(false, sid, models.EventSpeechRms, models.SpeechRms{
		EventType: models.EventSpeechRms,
		SessionID: sid,
		Timestamp: d.now(),
		RmsDB:     models.FiniteRms(value),
	})
}

func (d *Delegate) OnSpeechPartialResults(results []string) {
	sid := d.sessionID()
	d.send(false, sid, models.EventSpeechPartial, models.SpeechPartial{
		EventType: models.EventSpeechPartial,
		Principal: d.pub.Principal(),
		SessionID: sid,
		Timestamp: d.now(),
		Partials:  append([]string(nil), results...),
	})
}

func (d *Delegate) OnSpeechResult(result string) {
	sid := d.sessionID()
	d.send(true, sid, models.EventSpeechResult, models.SpeechResult{
		EventType: models.EventSpeechResult,
		Principal: d.pub.Principal(),
		SessionID: sid,
		Timestamp: d.now(),
		Text:      result,
	})
}

// Utterance returns a callback that publishes the progress of speaking
// text. When next is non-nil it is invoked after each event.
func (d *Delegate) Utterance(text string, next utterance.Callback) utterance.Callback {
	event := func(eventType string, err error) models.UtteranceEvent {
		e := models.UtteranceEvent{
			EventType: eventType,
			Principal: d.pub.Principal(),
			Timestamp: d.now(),
			Text:      text,
		}
		if err != nil {
			e.Error = err.Error()
		}
		return e
	}
	return utterance.Funcs{
		Start: func() {
			d.send(false, text, models.EventUtteranceStarted, event(models.EventUtteranceStarted, nil))
			if next != nil {
				next.OnStart()
			}
		},
		Completed: func() {
			d.send(false, text, models.EventUtteranceDone, event(models.EventUtteranceDone, nil))
			if next != nil {
				next.OnCompleted()
			}
		},
		Error: func(err error) {
			d.send(false, text, models.EventUtteranceError, event(models.EventUtteranceError, err))
			if next != nil {
				next.OnError(err)
			}
		},
	}
}

func (d *Delegate) now() int64 {
	return d.clock.Now().UnixMilli()
}

func (d *Delegate) send(result bool, key, eventType string, event any) {
	if d.validator != nil {
		if err := d.validator.Validate(event); err != nil {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var err error
	if result {
		err = d.pub.PublishResult(ctx, key, eventType, event)
	} else {
		err = d.pub.PublishEvent(ctx, key, eventType, event)
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("eventType", eventType).Msg("Failed to publish event")
	}
}
