package redirect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// #region curvature-config
// CurvatureConfig tunes the curvature-gain strategy.
type CurvatureConfig struct {
	Radius             float64 // m; smaller radius, stronger curvature
	RadiusFloor        float64 // m; lower clamp for Radius
	RotationCap        float64 // deg/s
	MovementThreshold  float64 // m/s; no injection at or below this walking speed
	BearingThreshold   float64 // deg; above this the user is steered via a temporary target
	TempTargetDistance float64 // m
}

// DefaultCurvatureConfig returns the steer-to-center defaults.
func DefaultCurvatureConfig() CurvatureConfig {
	return CurvatureConfig{
		Radius:             6.0,
		RadiusFloor:        0.1,
		RotationCap:        15,
		MovementThreshold:  0.2,
		BearingThreshold:   160,
		TempTargetDistance: 4,
	}
}

// RadiusToCurvatureGain converts a radius to a curvature gain in deg/m.
func RadiusToCurvatureGain(radius float64) float64 {
	if radius <= 0 {
		return math.Inf(1)
	}
	return degPerRad / radius
}

// #endregion curvature-config

// #region curvature-gain
// tempTarget is the optional steering target used while the user faces away
// from the tracking-area center.
type tempTarget struct {
	pos   r2.Vec
	valid bool
}

// CurvatureGain steers a walking user toward the tracking-area center by
// injecting yaw proportional to the distance walked.
type CurvatureGain struct {
	cfg        CurvatureConfig
	tmp        tempTarget
	target     r2.Vec
	lastRadius float64
}

// NewCurvatureGain returns a curvature strategy. A radius below the floor is
// clamped and reported with ErrParameterClamped.
func NewCurvatureGain(cfg CurvatureConfig) (*CurvatureGain, error) {
	if !(cfg.RadiusFloor > 0) {
		return nil, fmt.Errorf("radius floor must be positive, got %f", cfg.RadiusFloor)
	}
	c := &CurvatureGain{cfg: cfg}
	return c, c.SetRadius(cfg.Radius)
}

func (c *CurvatureGain) Kind() Kind { return KindCurvature }

// SetRadius sets the curvature radius, substituting the floor for anything
// smaller (including zero, negative and NaN values).
func (c *CurvatureGain) SetRadius(radius float64) error {
	var err error
	if !(radius >= c.cfg.RadiusFloor) {
		err = fmt.Errorf("%w: radius %g raised to %g", ErrParameterClamped, radius, c.cfg.RadiusFloor)
		radius = c.cfg.RadiusFloor
	}
	c.cfg.Radius = radius
	c.lastRadius = radius
	return err
}

// SetParameter is SetRadius.
func (c *CurvatureGain) SetParameter(v float64) error { return c.SetRadius(v) }

// Parameter returns the radius in force.
func (c *CurvatureGain) Parameter() float64 { return c.cfg.Radius }

// Radius returns the radius in force.
func (c *CurvatureGain) Radius() float64 { return c.cfg.Radius }

// LastAppliedRadius returns the radius most recently set.
func (c *CurvatureGain) LastAppliedRadius() float64 { return c.lastRadius }

// Target returns the steering target chosen on the last frame and whether it
// is the temporary target.
func (c *CurvatureGain) Target() (r2.Vec, bool) { return c.target, c.tmp.valid }

// PickTarget selects the tracking-area center, or a temporary target placed
// to the side of the user when the center lies almost behind them. The
// temporary target is created once and reused until the bearing recovers.
func (c *CurvatureGain) PickTarget(s MotionSample) r2.Vec {
	toCenter := r2.Sub(s.TrackingAreaCenter, s.Position)
	bearing := angleBetween(s.Heading, toCenter)

	if bearing >= c.cfg.BearingThreshold {
		if !c.tmp.valid {
			dir := sign(signedAngle(s.Heading, toCenter))
			side := YawRotate(unit(s.Heading), dir*90)
			c.tmp = tempTarget{
				pos:   r2.Add(s.Position, r2.Scale(c.cfg.TempTargetDistance, side)),
				valid: true,
			}
		}
		c.target = c.tmp.pos
		return c.target
	}

	c.tmp = tempTarget{}
	c.target = s.TrackingAreaCenter
	return c.target
}

// ComputeCorrection returns the signed yaw for this frame:
// distance * (180/pi) / radius, capped at RotationCap * elapsed, turned away
// from the side the target lies on so the user compensates toward it.
func (c *CurvatureGain) ComputeCorrection(s MotionSample) float64 {
	target := c.PickTarget(s)
	if s.stalled() {
		return 0
	}

	distance := r2.Norm(s.PositionDelta)
	if distance/s.ElapsedTime <= c.cfg.MovementThreshold {
		return 0
	}

	magnitude := distance * degPerRad / c.cfg.Radius
	magnitude = math.Min(magnitude, c.cfg.RotationCap*s.ElapsedTime)

	desired := r2.Sub(target, s.Position)
	steer := -sign(signedAngle(s.Heading, desired))
	return steer * magnitude
}

// #endregion curvature-gain
