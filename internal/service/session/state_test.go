package session

import "testing"

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if lc.IsListening() {
		t.Error("expected IsListening to be false")
	}
	if lc.SessionId() != "" {
		t.Errorf("expected empty session ID, got %q", lc.SessionId())
	}
}

func TestLifecycle_Begin_TransitionsToListening(t *testing.T) {
	lc := NewLifecycle()

	if err := lc.Begin("sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateListening {
		t.Errorf("expected StateListening, got %v", lc.State())
	}
	if lc.SessionId() != "sess-1" {
		t.Errorf("expected sess-1, got %s", lc.SessionId())
	}
}

func TestLifecycle_Begin_OnlyOneSession(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin("sess-1")

	if err := lc.Begin("sess-2"); err != ErrAlreadyListening {
		t.Errorf("expected ErrAlreadyListening, got %v", err)
	}
	if lc.SessionId() != "sess-1" {
		t.Errorf("session ID must not change on rejected Begin, got %s", lc.SessionId())
	}
}

func TestLifecycle_End(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin("sess-1")

	if !lc.End() {
		t.Error("expected End() to return true from LISTENING")
	}
	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	// Session ID is kept for logging after the session ends
	if lc.SessionId() != "sess-1" {
		t.Errorf("expected sess-1 to be retained, got %s", lc.SessionId())
	}
}

func TestLifecycle_End_Idempotent(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin("sess-1")

	lc.End()
	if lc.End() {
		t.Error("expected second End() to return false")
	}
	if lc.End() {
		t.Error("expected third End() to return false")
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	lc := NewLifecycle()

	for i, id := range []string{"sess-1", "sess-2", "sess-3"} {
		if err := lc.Begin(id); err != nil {
			t.Fatalf("cycle %d: begin failed: %v", i, err)
		}
		if !lc.End() {
			t.Fatalf("cycle %d: end failed", i)
		}
	}

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateListening, "LISTENING"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.expected)
		}
	}
}
