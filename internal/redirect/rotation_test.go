package redirect

import (
	"math"
	"testing"
)

func TestRotationGainAmplifiesFastTurn(t *testing.T) {
	r := NewRotationGain(DefaultRotationConfig())
	if err := r.SetParameter(1.5); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}

	got := r.ComputeCorrection(MotionSample{HeadingDelta: 90, ElapsedTime: 1})
	if got != 45.0 {
		t.Fatalf("expected 45, got %f", got)
	}
	if r.LastAppliedGain() != 1.5 {
		t.Fatalf("expected last applied gain 1.5, got %f", r.LastAppliedGain())
	}
}

func TestRotationGainKeepsSign(t *testing.T) {
	r := NewRotationGain(RotationConfig{Gain: 0.8, SpeedThreshold: 1.5, FastRotationOnly: true})
	got := r.ComputeCorrection(MotionSample{HeadingDelta: -30, ElapsedTime: 0.5})
	if math.Abs(got-6.0) > 1e-9 {
		t.Fatalf("expected (0.8-1)*-30 = 6, got %f", got)
	}
}

func TestRotationGainIgnoresSlowTurn(t *testing.T) {
	cfg := DefaultRotationConfig()
	r := NewRotationGain(cfg)

	// 0.1 deg over 0.1 s = 1 deg/s, below the 1.5 deg/s threshold.
	slow := MotionSample{HeadingDelta: 0.1, ElapsedTime: 0.1}
	if got := r.ComputeCorrection(slow); got != 0 {
		t.Fatalf("expected no injection for slow turn, got %f", got)
	}

	cfg.FastRotationOnly = false
	r = NewRotationGain(cfg)
	if got := r.ComputeCorrection(slow); math.Abs(got-0.05) > 1e-12 {
		t.Fatalf("expected injection on every turn, got %f", got)
	}
}

func TestRotationGainGuardsZeroElapsed(t *testing.T) {
	r := NewRotationGain(RotationConfig{Gain: 2, FastRotationOnly: false})
	for _, dt := range []float64{0, 1e-9, -0.1, math.NaN()} {
		if got := r.ComputeCorrection(MotionSample{HeadingDelta: 10, ElapsedTime: dt}); got != 0 {
			t.Fatalf("elapsed %v: expected 0, got %f", dt, got)
		}
	}
}
