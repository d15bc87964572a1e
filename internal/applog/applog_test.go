package applog

import "testing"

func TestSpinner_TickAdvancesCurrentCount(t *testing.T) {
	s := NewSpinner("seeding", 3)
	s.Tick()
	s.Tick()
	if s.current != 2 {
		t.Fatalf("expected current=2, got %d", s.current)
	}
}

func TestSpinner_FinishDoesNotPanicWithZeroTicks(t *testing.T) {
	s := NewSpinner("seeding", 0)
	s.Finish()
}
