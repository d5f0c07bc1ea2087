package recognition

import "fmt"

// ErrorCode is an error reported by the recognition engine.
type ErrorCode int

const (
	ErrorNetworkTimeout          ErrorCode = 1
	ErrorNetwork                 ErrorCode = 2
	ErrorAudio                   ErrorCode = 3
	ErrorServer                  ErrorCode = 4
	ErrorClient                  ErrorCode = 5
	ErrorSpeechTimeout           ErrorCode = 6
	ErrorNoMatch                 ErrorCode = 7
	ErrorRecognizerBusy          ErrorCode = 8
	ErrorInsufficientPermissions ErrorCode = 9
)

// String returns a short label suitable for metric labels.
func (c ErrorCode) String() string {
	switch c {
	case ErrorNetworkTimeout:
		return "network_timeout"
	case ErrorNetwork:
		return "network"
	case ErrorAudio:
		return "audio"
	case ErrorServer:
		return "server"
	case ErrorClient:
		return "client"
	case ErrorSpeechTimeout:
		return "speech_timeout"
	case ErrorNoMatch:
		return "no_match"
	case ErrorRecognizerBusy:
		return "recognizer_busy"
	case ErrorInsufficientPermissions:
		return "insufficient_permissions"
	default:
		return "unknown"
	}
}

// Message returns the human-readable description of the code.
func (c ErrorCode) Message() string {
	var msg string
	switch c {
	case ErrorAudio:
		msg = "Audio recording error"
	case ErrorInsufficientPermissions:
		msg = "Insufficient permissions. Request audio recording permission"
	case ErrorClient:
		msg = "Client side error. Maybe your internet connection is poor!"
	case ErrorNetwork:
		msg = "Network error"
	case ErrorNetworkTimeout:
		msg = "Network operation timed out"
	case ErrorNoMatch:
		msg = "No recognition result matched. Try turning on partial results as a workaround."
	case ErrorRecognizerBusy:
		msg = "RecognitionService busy"
	case ErrorServer:
		msg = "Server sends error status"
	case ErrorSpeechTimeout:
		msg = "No speech input"
	default:
		msg = "Unknown exception"
	}
	return fmt.Sprintf("%d - %s", int(c), msg)
}
