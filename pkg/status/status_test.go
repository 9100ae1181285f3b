package status

import "testing"

func TestInitiallyRunning(t *testing.T) {
	s := New()
	if !s.IsRunning() {
		t.Fatalf("expected a fresh Status to be running")
	}
	if s.IsDone() {
		t.Fatalf("expected a fresh Status to not be done")
	}
}

func TestAbortWins(t *testing.T) {
	s := New()
	s.SetAborted()
	if !s.IsAborted() {
		t.Fatalf("expected aborted")
	}
	// A later SetFinished must not override an abort.
	s.SetFinished()
	if s.IsFinished() {
		t.Fatalf("SetFinished should not override an existing ABORTED state")
	}
	if !s.IsAborted() {
		t.Fatalf("expected still aborted")
	}
}

func TestFinishTransition(t *testing.T) {
	s := New()
	s.SetFinished()
	if !s.IsFinished() {
		t.Fatalf("expected finished")
	}
	if !s.IsDone() {
		t.Fatalf("expected done")
	}
}

func TestSecondaryCounter(t *testing.T) {
	s := New()
	s.IncSecondary()
	s.IncSecondary()
	s.DecSecondary()
	if got := s.SecondaryCount(); got != 1 {
		t.Fatalf("SecondaryCount = %d, want 1", got)
	}
}
