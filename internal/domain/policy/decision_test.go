package policy

import "testing"

func TestThresholds_Decide(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()

	tests := []struct {
		score float64
		want  Verdict
	}{
		{0, VerdictAllow},
		{0.5, VerdictAllow},
		{0.79, VerdictAllow},
		{0.8, VerdictPending}, // boundary lands on the stricter side
		{0.85, VerdictPending},
		{0.99, VerdictPending},
		{1.0, VerdictDeny},
	}

	for _, tt := range tests {
		if got := th.Decide(tt.score); got != tt.want {
			t.Errorf("Decide(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestThresholds_Decide_CustomCutoffs(t *testing.T) {
	t.Parallel()

	th := Thresholds{Approval: 0.5, Block: 0.9}

	if got := th.Decide(0.5); got != VerdictPending {
		t.Errorf("Decide(0.5) = %q, want pending", got)
	}
	if got := th.Decide(0.9); got != VerdictDeny {
		t.Errorf("Decide(0.9) = %q, want deny", got)
	}
	if got := th.Decide(0.49); got != VerdictAllow {
		t.Errorf("Decide(0.49) = %q, want allow", got)
	}
}

func TestThresholds_Decide_EqualCutoffs(t *testing.T) {
	t.Parallel()

	// With approval == block the pending band is empty.
	th := Thresholds{Approval: 0.8, Block: 0.8}

	if got := th.Decide(0.8); got != VerdictDeny {
		t.Errorf("Decide(0.8) = %q, want deny", got)
	}
	if got := th.Decide(0.79); got != VerdictAllow {
		t.Errorf("Decide(0.79) = %q, want allow", got)
	}
}
