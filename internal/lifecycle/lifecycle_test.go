package lifecycle

import "testing"

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	s := New()
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_Toggles(t *testing.T) {
	s := New()
	s.SetShuttingDown(true)
	if !s.IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
	s.SetShuttingDown(false)
	if s.IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
}

func TestUptime_NonNegative(t *testing.T) {
	if New().Uptime() < 0 {
		t.Error("Uptime() < 0")
	}
}
