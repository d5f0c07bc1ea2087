// Package schema checks outgoing events before they leave the service.
package schema

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"speech-coordinator/internal/models"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Validator {
	return &Validator{logger: logger.With().Str("component", "schema").Logger()}
}

// Validate checks required fields and the event type of a models event.
func (v *Validator) Validate(event any) error {
	err := validate(event)
	if err != nil {
		v.logger.Warn().Err(err).Msg("Event rejected")
		return err
	}
	v.logger.Trace().Interface("event", event).Msg("Event validated")
	return nil
}

func validate(event any) error {
	switch e := event.(type) {
	case models.SpeechStarted:
		return check(e.EventType, models.EventSpeechStarted, e.SessionID, e.Timestamp)
	case *models.SpeechStarted:
		return validate(*e)
	case models.SpeechPartial:
		if err := check(e.EventType, models.EventSpeechPartial, e.SessionID, e.Timestamp); err != nil {
			return err
		}
		if len(e.Partials) == 0 {
			return fmt.Errorf("%w: partials must not be empty", ErrInvalidEvent)
		}
		return nil
	case *models.SpeechPartial:
		return validate(*e)
	case models.SpeechResult:
		return check(e.EventType, models.EventSpeechResult, e.SessionID, e.Timestamp)
	case *models.SpeechResult:
		return validate(*e)
	case models.SpeechRms:
		if err := check(e.EventType, models.EventSpeechRms, e.SessionID, e.Timestamp); err != nil {
			return err
		}
		if math.IsNaN(float64(e.RmsDB)) {
			return fmt.Errorf("%w: rmsDb is NaN", ErrInvalidEvent)
		}
		return nil
	case *models.SpeechRms:
		return validate(*e)
	case models.UtteranceEvent:
		switch e.EventType {
		case models.EventUtteranceStarted, models.EventUtteranceDone:
		case models.EventUtteranceError:
			if e.Error == "" {
				return fmt.Errorf("%w: utterance error without message", ErrInvalidEvent)
			}
		default:
			return fmt.Errorf("%w: unexpected eventType %q", ErrInvalidEvent, e.EventType)
		}
		if e.Timestamp <= 0 {
			return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
		}
		return nil
	case *models.UtteranceEvent:
		return validate(*e)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func check(got, want, sessionID string, ts int64) error {
	if got != want {
		return fmt.Errorf("%w: eventType %q, want %q", ErrInvalidEvent, got, want)
	}
	if sessionID == "" {
		return fmt.Errorf("%w: missing sessionId", ErrInvalidEvent)
	}
	if ts <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}
