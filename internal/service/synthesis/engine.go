// Package synthesis issues utterances to an external text-to-speech engine
// and resolves per-utterance callbacks as the engine reports progress.
package synthesis

import (
	"errors"

	"golang.org/x/text/language"
)

// ErrShutdown is returned by engines and dispatchers used after shutdown.
var ErrShutdown = errors.New("synthesis engine shut down")

// QueueMode controls how a new utterance interacts with pending ones.
type QueueMode int

const (
	// QueueFlush drops pending utterances and interrupts the current one.
	QueueFlush QueueMode = iota
	// QueueAdd appends the utterance after the pending ones.
	QueueAdd
)

func (m QueueMode) String() string {
	switch m {
	case QueueFlush:
		return "flush"
	case QueueAdd:
		return "add"
	default:
		return "unknown"
	}
}

// ParseQueueMode parses "flush" or "add".
func ParseQueueMode(s string) (QueueMode, error) {
	switch s {
	case "flush", "":
		return QueueFlush, nil
	case "add":
		return QueueAdd, nil
	default:
		return QueueFlush, errors.New("unknown queue mode: " + s)
	}
}

// ProgressListener receives utterance lifecycle events from an Engine.
// Interrupted utterances (Stop, or a flush) report neither done nor error.
type ProgressListener interface {
	OnStart(utteranceId string)
	OnDone(utteranceId string)
	OnError(utteranceId string, err error)
}

// Engine is a text-to-speech engine.
type Engine interface {
	// Init prepares the engine. The returned error is the init status.
	Init() error

	SetProgressListener(l ProgressListener)
	SetLanguage(tag language.Tag) error
	SetSpeechRate(rate float32) error
	SetPitch(pitch float32) error

	// Speak submits text tagged with utteranceId. It does not wait for playback.
	Speak(text string, mode QueueMode, utteranceId string) error

	// Stop interrupts the current utterance and drops pending ones.
	Stop() error

	// Shutdown releases the engine.
	Shutdown() error
}

// Voice holds the settings applied to an utterance when it is queued.
type Voice struct {
	Language language.Tag
	Rate     float32
	Pitch    float32
}

// DefaultVoice returns normal rate and pitch in the given language.
func DefaultVoice(tag language.Tag) Voice {
	return Voice{Language: tag, Rate: 1.0, Pitch: 1.0}
}
