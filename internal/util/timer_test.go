package util

import (
	"testing"
	"time"
)

func TestTimerZeroValue(t *testing.T) {
	var timer Timer
	if timer.ElapsedMs() != 0 || timer.Elapsed() != 0 {
		t.Fatalf("expected zero timer to report no elapsed time")
	}
}

func TestTimerElapsed(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)
	if timer.Elapsed() < 5*time.Millisecond {
		t.Fatalf("expected at least 5ms, got %s", timer.Elapsed())
	}
	if timer.Started().IsZero() {
		t.Fatalf("expected start time to be set")
	}
}
