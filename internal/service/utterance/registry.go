// Package utterance maps synthesis request IDs to completion callbacks.
package utterance

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Callback receives progress notifications for a single utterance.
type Callback interface {
	// OnStart is called when the engine starts speaking the utterance.
	OnStart()

	// OnCompleted is called once the utterance has been fully spoken.
	OnCompleted()

	// OnError is called when the engine fails to speak the utterance.
	OnError(err error)
}

// Funcs adapts plain functions to Callback. Nil fields are skipped.
type Funcs struct {
	Start     func()
	Completed func()
	Error     func(err error)
}

func (f Funcs) OnStart() {
	if f.Start != nil {
		f.Start()
	}
}

func (f Funcs) OnCompleted() {
	if f.Completed != nil {
		f.Completed()
	}
}

func (f Funcs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Registry stores callbacks keyed by utterance ID.
// Each entry is resolved at most once: ResolveDone and ResolveError remove
// it before invoking the callback. Thread-safe for concurrent access.
type Registry struct {
	mu        sync.Mutex
	callbacks map[string]Callback
	logger    zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		callbacks: make(map[string]Callback),
		logger:    logger.With().Str("component", "utterance-registry").Logger(),
	}
}

// Register generates a fresh utterance ID and stores cb under it.
// A nil cb still yields an ID; nothing is stored.
func (r *Registry) Register(cb Callback) string {
	id := uuid.NewString()
	if cb == nil {
		return id
	}
	r.mu.Lock()
	r.callbacks[id] = cb
	r.mu.Unlock()
	return id
}

// ResolveStart invokes OnStart for id. Unknown IDs are ignored.
func (r *Registry) ResolveStart(id string) {
	r.mu.Lock()
	cb, ok := r.callbacks[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.invoke(id, "OnStart", cb.OnStart)
}

// ResolveDone removes id and invokes OnCompleted. Unknown IDs are ignored.
// Reports whether an entry was resolved.
func (r *Registry) ResolveDone(id string) bool {
	cb, ok := r.take(id)
	if !ok {
		return false
	}
	r.invoke(id, "OnCompleted", cb.OnCompleted)
	return true
}

// ResolveError removes id and invokes OnError. Unknown IDs are ignored.
// Reports whether an entry was resolved.
func (r *Registry) ResolveError(id string, cause error) bool {
	cb, ok := r.take(id)
	if !ok {
		return false
	}
	r.invoke(id, "OnError", func() { cb.OnError(cause) })
	return true
}

// Clear drops all entries without invoking them.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.callbacks)
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

func (r *Registry) take(id string) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.callbacks[id]
	if ok {
		delete(r.callbacks, id)
	}
	return cb, ok
}

// invoke runs fn, recovering and logging any panic raised by caller code.
func (r *Registry) invoke(id, method string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("utteranceId", id).
				Str("method", method).
				Err(fmt.Errorf("panic: %v", rec)).
				Msg("Unhandled panic in utterance callback")
		}
	}()
	fn()
}
