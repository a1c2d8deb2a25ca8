package redirect

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// #region errors
// ErrParameterClamped is a warning returned when a radius below the floor was
// replaced by the floor value. The strategy remains usable.
var ErrParameterClamped = errors.New("parameter clamped")

// #endregion errors

// #region kind
// Kind names a gain-injection strategy. It doubles as the experiment condition.
type Kind string

const (
	KindRotation  Kind = "rotation"
	KindCurvature Kind = "curvature"
)

// ParseKind accepts the condition names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindRotation:
		return KindRotation, nil
	case KindCurvature:
		return KindCurvature, nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// Title returns the capitalized condition name used in exported artifacts.
func (k Kind) Title() string {
	switch k {
	case KindRotation:
		return "Rotation"
	case KindCurvature:
		return "Curvature"
	}
	return string(k)
}

// #endregion kind

// #region motion-sample
// MotionSample is one tracking frame. Planar vectors live in the floor plane
// with X to the right and Y forward; yaw angles are in degrees and positive
// clockwise when seen from above.
type MotionSample struct {
	PositionDelta      r2.Vec  // displacement during this frame (m)
	HeadingDelta       float64 // signed yaw change during this frame (deg)
	ElapsedTime        float64 // frame duration (s)
	Position           r2.Vec  // current tracked position
	Heading            r2.Vec  // current forward direction
	TrackingAreaCenter r2.Vec
}

// minElapsedTime guards every division by the frame duration.
const minElapsedTime = 1e-6

// stalled reports a frame with no usable duration.
func (s MotionSample) stalled() bool {
	return !(s.ElapsedTime >= minElapsedTime) || math.IsInf(s.ElapsedTime, 0)
}

// #endregion motion-sample

// #region strategy
// Strategy is a per-frame redirection controller. SetParameter is called once
// per trial with the staircase value (a gain for rotation, a radius in metres
// for curvature); ComputeCorrection is called once per tracking frame and
// returns the signed yaw (deg) to inject.
type Strategy interface {
	Kind() Kind
	SetParameter(v float64) error
	Parameter() float64
	ComputeCorrection(s MotionSample) float64
}

// New returns the strategy for kind.
func New(kind Kind, rot RotationConfig, curv CurvatureConfig) (Strategy, error) {
	switch kind {
	case KindRotation:
		return NewRotationGain(rot), nil
	case KindCurvature:
		c, err := NewCurvatureGain(curv)
		if err != nil && !errors.Is(err, ErrParameterClamped) {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown strategy kind %q", kind)
}

// #endregion strategy
