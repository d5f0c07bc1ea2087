package speech

import (
	"errors"

	"speech-coordinator/internal/service/recognition"
)

var (
	// ErrEngineUnavailable means no recognition (or synthesis) service exists.
	ErrEngineUnavailable = errors.New("speech recognition not available")

	// ErrVoiceInputDisabled means voice input is blocked by device policy.
	ErrVoiceInputDisabled = errors.New("voice input disabled")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotInitialized is returned by Instance before Init, and by every
	// method of a Speech after Shutdown.
	ErrNotInitialized = errors.New("speech not initialized")
)

// EngineError is an error reported by the recognition engine during a
// session. The session recovers on its own; it is only logged.
type EngineError struct {
	Code recognition.ErrorCode
}

func (e *EngineError) Error() string {
	return "speech recognition error: " + e.Code.Message()
}
