package redirect

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const degPerRad = 180 / math.Pi

// angleBetween returns the unsigned angle between a and b in [0, 180] degrees.
// Degenerate vectors yield 0.
func angleBetween(a, b r2.Vec) float64 {
	na, nb := r2.Norm(a), r2.Norm(b)
	if na < 1e-9 || nb < 1e-9 {
		return 0
	}
	c := r2.Dot(a, b) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * degPerRad
}

// signedAngle returns the yaw from `from` to `to`, positive clockwise.
// Collinear vectors count as clockwise.
func signedAngle(from, to r2.Vec) float64 {
	a := angleBetween(from, to)
	if r2.Cross(from, to) > 0 {
		return -a
	}
	return a
}

// sign returns -1 for negative values and 1 otherwise.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// YawRotate turns v clockwise by deg when seen from above.
func YawRotate(v r2.Vec, deg float64) r2.Vec {
	return r2.Rotate(v, -deg/degPerRad, r2.Vec{})
}

// unit normalizes v, leaving degenerate vectors untouched.
func unit(v r2.Vec) r2.Vec {
	if r2.Norm(v) < 1e-9 {
		return v
	}
	return r2.Unit(v)
}
