// Package models defines the data structures for speech events.
package models

import "math"

// Event types.
const (
	EventSpeechStarted    = "speech.started"
	EventSpeechPartial    = "speech.partial"
	EventSpeechResult     = "speech.result"
	EventSpeechRms        = "speech.rms"
	EventUtteranceStarted = "utterance.started"
	EventUtteranceDone    = "utterance.done"
	EventUtteranceError   = "utterance.error"
)

// SpeechStarted is emitted when a listening session begins.
type SpeechStarted struct {
	EventType string `json:"eventType"`
	Principal string `json:"principal"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// SpeechPartial carries the stable candidates of an interim recognition.
type SpeechPartial struct {
	EventType string   `json:"eventType"`
	Principal string   `json:"principal"`
	SessionID string   `json:"sessionId"`
	Timestamp int64    `json:"timestamp"`
	Partials  []string `json:"partials"`
}

// SpeechResult is the single final result of a session. Text may be
// empty when the session ended without a recognition.
type SpeechResult struct {
	EventType string `json:"eventType"`
	Principal string `json:"principal"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// SpeechRms reports the input level in dB.
type SpeechRms struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Timestamp int64   `json:"timestamp"`
	RmsDB     float32 `json:"rmsDb"`
}

// UtteranceEvent reports synthesis progress for one Say request.
type UtteranceEvent struct {
	EventType   string `json:"eventType"`
	Principal   string `json:"principal"`
	UtteranceID string `json:"utteranceId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Text        string `json:"text"`
	Error       string `json:"error,omitempty"`
}

// SilenceFloorDB replaces non-finite levels, which JSON cannot carry.
const SilenceFloorDB = -120

// FiniteRms clamps v to SilenceFloorDB when it is not a finite number.
func FiniteRms(v float32) float32 {
	f := float64(v)
	if math.IsInf(f, 0) || math.IsNaN(f) || f < SilenceFloorDB {
		return SilenceFloorDB
	}
	return v
}
