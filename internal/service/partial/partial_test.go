package partial

import (
	"slices"
	"testing"
)

func TestAccumulator_Finalize(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		unstable   string
		expected   string
	}{
		{"empty", nil, "", ""},
		{"single", []string{"hello"}, "", "hello"},
		{"joined with unstable", []string{"hello", "world"}, "wor", "hello world wor"},
		{"trims surrounding whitespace", []string{"  Turn on "}, "the ", "Turn on  the"},
		{"unstable without candidates", nil, "wor", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New()
			if tt.candidates != nil || tt.unstable != "" {
				a.Update(tt.candidates, tt.unstable)
			}
			if got := a.Finalize(); got != tt.expected {
				t.Errorf("Finalize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAccumulator_Update_ReplacesWholesale(t *testing.T) {
	a := New()
	a.Update([]string{"turn", "on"}, "the")
	a.Update([]string{"turn on the lights"}, "")

	if got := a.Finalize(); got != "turn on the lights" {
		t.Errorf("expected replacement, got %q", got)
	}
	if got := a.Candidates(); !slices.Equal(got, []string{"turn on the lights"}) {
		t.Errorf("unexpected candidates %v", got)
	}
}

func TestAccumulator_Update_DetectsChangeAgainstDelivered(t *testing.T) {
	a := New()

	if !a.Update([]string{"hello"}, "") {
		t.Fatal("first update must report a change")
	}
	// Not yet delivered: still a change
	if !a.Update([]string{"hello"}, "") {
		t.Fatal("undelivered candidates must keep reporting a change")
	}

	a.MarkDelivered([]string{"hello"})
	if a.Update([]string{"hello"}, "wo") {
		t.Error("identical candidates must not report a change")
	}
	if !a.Update([]string{"hello", "world"}, "") {
		t.Error("different candidates must report a change")
	}
}

func TestAccumulator_Reset(t *testing.T) {
	a := New()
	a.Update([]string{"hello"}, "wor")
	a.MarkDelivered([]string{"hello"})

	a.Reset()

	if got := a.Finalize(); got != "" {
		t.Errorf("expected empty finalize after reset, got %q", got)
	}
	if !a.Update([]string{"hello"}, "") {
		t.Error("reset must clear the delivered set")
	}
}

func TestAccumulator_CopiesInput(t *testing.T) {
	a := New()
	in := []string{"hello"}
	a.Update(in, "")
	in[0] = "mutated"

	if got := a.Finalize(); got != "hello" {
		t.Errorf("accumulator must not alias caller slices, got %q", got)
	}
}
