package session

import (
	"testing"
	"time"
)

func TestCanTransitionAndApply(t *testing.T) {
	if !CanTransition(StateActive, StateInvoiced) {
		t.Fatalf("expected active -> invoiced allowed")
	}
	if !CanTransition(StateInvoiced, StateConfirmed) {
		t.Fatalf("expected invoiced -> confirmed allowed")
	}
	if CanTransition(StateActive, StateConfirmed) {
		t.Fatalf("expected active -> confirmed not allowed")
	}
	if CanTransition(StateConfirmed, StateActive) {
		t.Fatalf("expected confirmed to be terminal")
	}

	plate := "AA1111AA"
	s := &ParkingSession{Plate: plate, OpenPlate: &plate, State: StateActive}
	now := time.Now()

	if err := ApplyTransition(s, StateInvoiced, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if s.State != StateInvoiced {
		t.Fatalf("expected state invoiced, got %s", s.State)
	}
	if s.DepartureTime == nil {
		t.Fatalf("expected departure time set")
	}

	if err := ApplyTransition(s, StateConfirmed, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if s.ConfirmedAt == nil {
		t.Fatalf("expected confirmed_at set")
	}
	if s.OpenPlate != nil {
		t.Fatalf("expected open plate cleared on confirm")
	}

	fresh := &ParkingSession{State: StateActive}
	if err := ApplyTransition(fresh, StateConfirmed, now); err == nil {
		t.Fatalf("expected invalid shortcut transition to fail")
	}
}
