// Package recognition defines the boundary to an external speech
// recognition engine.
//
// An Engine creates Handles. A Handle accepts one start request at a time
// and reports progress through the Listener bound to it. Listener methods
// are invoked from the engine's own goroutine, never concurrently with each
// other for the same handle, and never synchronously from inside a Handle
// method.
package recognition

import (
	"errors"

	"golang.org/x/text/language"
)

// ErrSecurity is returned by Handle.StartListening when voice input is
// blocked by device policy.
var ErrSecurity = errors.New("voice input disabled by policy")

// LanguageModel selects the recognizer's language model.
type LanguageModel string

const (
	LanguageModelFreeForm  LanguageModel = "free_form"
	LanguageModelWebSearch LanguageModel = "web_search"
)

// Request carries the options of a single start-listening call.
type Request struct {
	Language       language.Tag
	PartialResults bool
	PreferOffline  bool
	MaxResults     int
	LanguageModel  LanguageModel
	// CallingPackage identifies the caller to the recognition service.
	// Empty means "not overridden".
	CallingPackage string
}

// Listener receives events from a Handle.
type Listener interface {
	// OnReadyForSpeech is called when the engine is ready to receive audio.
	OnReadyForSpeech()

	// OnBeginningOfSpeech is called when the user has started to speak.
	OnBeginningOfSpeech()

	// OnRmsChanged reports the input level in dB.
	OnRmsChanged(rmsdB float32)

	// OnPartialResults reports interim candidates and the unstable trailing fragment.
	OnPartialResults(candidates []string, unstable string)

	// OnResults reports the final candidates.
	OnResults(candidates []string)

	// OnError reports a terminal engine error.
	OnError(code ErrorCode)

	// OnBufferReceived delivers raw audio captured by the engine.
	OnBufferReceived(buf []byte)

	// OnEndOfSpeech is called when the user stops speaking.
	OnEndOfSpeech()

	// OnEvent delivers engine-specific events.
	OnEvent(eventType int, params map[string]any)
}

// Handle is one recognizer instance.
type Handle interface {
	// SetListener binds the listener that receives this handle's events.
	SetListener(l Listener)

	// StartListening submits a start request. Returns ErrSecurity when voice
	// input is blocked.
	StartListening(req Request) error

	// StopListening asks the engine to stop capturing and report results.
	StopListening() error

	// Destroy releases the handle. No events are delivered afterwards.
	Destroy() error
}

// Engine creates recognizer handles.
type Engine interface {
	// Available reports whether a recognition service exists on this device.
	Available() bool

	// NewHandle creates a fresh handle.
	NewHandle() (Handle, error)
}

// NopListener implements Listener with no-ops. Embed it to override a subset.
type NopListener struct{}

func (NopListener) OnReadyForSpeech()                 {}
func (NopListener) OnBeginningOfSpeech()              {}
func (NopListener) OnRmsChanged(float32)              {}
func (NopListener) OnPartialResults([]string, string) {}
func (NopListener) OnResults([]string)                {}
func (NopListener) OnError(ErrorCode)                 {}
func (NopListener) OnBufferReceived([]byte)           {}
func (NopListener) OnEndOfSpeech()                    {}
func (NopListener) OnEvent(int, map[string]any)       {}
