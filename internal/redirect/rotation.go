package redirect

import "math"

// #region rotation-config
// RotationConfig tunes the rotation-gain strategy.
type RotationConfig struct {
	Gain             float64 // 1.0 = no gain, 1.5 = +50 %
	SpeedThreshold   float64 // deg/s; slower turns are left alone when FastRotationOnly
	FastRotationOnly bool
}

// DefaultRotationConfig returns the rotation defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		Gain:             1.5,
		SpeedThreshold:   1.5,
		FastRotationOnly: true,
	}
}

// #endregion rotation-config

// #region rotation-gain
// RotationGain amplifies or attenuates the user's own turning.
type RotationGain struct {
	cfg         RotationConfig
	lastApplied float64
}

// NewRotationGain returns a rotation strategy.
func NewRotationGain(cfg RotationConfig) *RotationGain {
	return &RotationGain{cfg: cfg, lastApplied: 1.0}
}

func (r *RotationGain) Kind() Kind { return KindRotation }

// SetParameter sets the rotation gain for the coming trial.
func (r *RotationGain) SetParameter(gain float64) error {
	r.cfg.Gain = gain
	return nil
}

// Parameter returns the configured gain.
func (r *RotationGain) Parameter() float64 { return r.cfg.Gain }

// LastAppliedGain returns the gain of the most recent non-zero injection.
func (r *RotationGain) LastAppliedGain() float64 { return r.lastApplied }

// ComputeCorrection returns (gain - 1) * headingDelta when the user turns fast
// enough, or always when FastRotationOnly is off.
func (r *RotationGain) ComputeCorrection(s MotionSample) float64 {
	if s.stalled() {
		return 0
	}
	speed := math.Abs(s.HeadingDelta / s.ElapsedTime)
	if speed < r.cfg.SpeedThreshold && r.cfg.FastRotationOnly {
		return 0
	}
	r.lastApplied = r.cfg.Gain
	return (r.cfg.Gain - 1.0) * s.HeadingDelta
}

// #endregion rotation-gain
