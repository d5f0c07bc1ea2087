// Package partial accumulates partial recognition results for one
// listening session and produces a best-effort final transcript.
package partial

import (
	"slices"
	"strings"
	"sync"
)

// Accumulator holds the latest candidate transcripts reported by the
// engine, the unstable trailing fragment, and the candidates last delivered
// to the delegate. Thread-safe for concurrent access.
type Accumulator struct {
	mu         sync.Mutex
	candidates []string
	unstable   string
	delivered  []string
}

func New() *Accumulator {
	return &Accumulator{}
}

// Reset clears all state, including the last delivered candidates.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates = nil
	a.unstable = ""
	a.delivered = nil
}

// Update replaces the stored candidates and unstable fragment wholesale.
// Returns true if candidates differ from the last delivered set.
func (a *Accumulator) Update(candidates []string, unstable string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates = slices.Clone(candidates)
	a.unstable = unstable
	return a.delivered == nil || !slices.Equal(a.delivered, candidates)
}

// MarkDelivered records candidates as the last set notified to the delegate.
func (a *Accumulator) MarkDelivered(candidates []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivered = slices.Clone(candidates)
}

// Candidates returns a copy of the stored candidates.
func (a *Accumulator) Candidates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.candidates)
}

// Finalize joins the candidates with single spaces, appends the unstable
// fragment and trims the result. Empty when no candidates were recorded.
func (a *Accumulator) Finalize() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range a.candidates {
		b.WriteString(c)
		b.WriteByte(' ')
	}
	b.WriteString(a.unstable)
	return strings.TrimSpace(b.String())
}
