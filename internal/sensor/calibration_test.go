package sensor

import (
	"math"
	"testing"
)

func TestTracker_FirstNonZeroSeedsBaseline(t *testing.T) {
	tr := NewTracker(0, 0)

	for i := 0; i < 5; i++ {
		if b, v := tr.Step(0); b != 0 || v != 0 {
			t.Fatalf("Step(0) before contact = (%v, %d), want (0, 0)", b, v)
		}
	}

	b, v := tr.Step(52)
	if b != 52 || v != 0 {
		t.Errorf("first non-zero Step = (%v, %d), want (52, 0)", b, v)
	}
}

func TestTracker_ConvergesOnSmallDrift(t *testing.T) {
	tr := NewTracker(0, 0)
	tr.Step(45)

	// a step of 5 is inside the adapt gate, so the baseline follows it
	for i := 0; i < 600; i++ {
		tr.Step(50)
	}
	if got := tr.Baseline(); math.Abs(got-50) > 1 {
		t.Errorf("baseline after 600 samples of 50 = %v, want within 1 of 50", got)
	}
}

func TestTracker_ConstantInputHoldsBaseline(t *testing.T) {
	tr := NewTracker(0, 0)
	for i := 0; i < 501; i++ {
		tr.Step(88)
	}
	if got := tr.Baseline(); math.Abs(got-88) > 1 {
		t.Errorf("baseline = %v, want within 1 of 88", got)
	}
}

func TestTracker_TouchDoesNotDragBaseline(t *testing.T) {
	tr := NewTracker(0, 0)
	tr.Step(45)

	for i := 0; i < 1000; i++ {
		b, v := tr.Step(70)
		if b != 45 {
			t.Fatalf("tick %d: baseline moved to %v during touch", i, b)
		}
		if v != 25 {
			t.Fatalf("tick %d: value = %d, want 25", i, v)
		}
	}
}

func TestTracker_ValueIsFloored(t *testing.T) {
	tr := NewTracker(0, 0)
	tr.Step(40)
	// baseline moves to 40.05; |41-40.05| = 0.95 floors to 0
	_, v := tr.Step(45)
	if v != 4 {
		t.Errorf("value = %d, want 4", v)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(0, 0)
	tr.Step(60)
	tr.Reset()
	if b, _ := tr.Step(30); b != 30 {
		t.Errorf("baseline after Reset = %v, want 30", b)
	}
}

func TestTracker_CustomGate(t *testing.T) {
	tr := NewTracker(3, 0.5)
	tr.Step(10)
	if b, _ := tr.Step(12); b != 11 {
		t.Errorf("baseline = %v, want 11", b)
	}
	if b, _ := tr.Step(20); b != 11 {
		t.Errorf("baseline moved past gate: %v", b)
	}
}
