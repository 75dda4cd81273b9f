package models

import "testing"

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []PaymentStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout}
	all := []PaymentStatus{StatusQueued, StatusProcessing, StatusPending, StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout}
	for _, from := range terminals {
		if !IsTerminal(from) {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestQueuedTransitions(t *testing.T) {
	if CanTransition(StatusQueued, StatusCompleted) {
		t.Fatal("queued must not jump straight to completed")
	}
	if CanTransition(StatusQueued, StatusPending) {
		t.Fatal("queued must not jump straight to pending")
	}
	for _, to := range []PaymentStatus{StatusProcessing, StatusCancelled, StatusError, StatusTimeout} {
		if !CanTransition(StatusQueued, to) {
			t.Fatalf("queued -> %s should be allowed", to)
		}
	}
}

func TestInFlightTransitions(t *testing.T) {
	if !CanTransition(StatusProcessing, StatusPending) {
		t.Fatal("processing -> pending should be allowed")
	}
	if CanTransition(StatusPending, StatusProcessing) {
		t.Fatal("pending must not fall back to processing")
	}
	for _, from := range []PaymentStatus{StatusProcessing, StatusPending} {
		for _, to := range []PaymentStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusError, StatusTimeout} {
			if !CanTransition(from, to) {
				t.Fatalf("%s -> %s should be allowed", from, to)
			}
		}
		if CanTransition(from, StatusQueued) {
			t.Fatalf("%s must not fall back to queued", from)
		}
	}
}

func TestNonTerminalStatuses(t *testing.T) {
	for _, s := range NonTerminalStatuses() {
		if IsTerminal(s) {
			t.Fatalf("%s listed as non-terminal", s)
		}
	}
	if len(NonTerminalStatuses()) != 3 {
		t.Fatalf("expected 3 non-terminal states, got %d", len(NonTerminalStatuses()))
	}
}
