package experiment

import (
	"math"
	"math/rand/v2"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region observer
// SimulatedObserver answers trials from a logistic psychometric function.
// Rotation trials are judged on the gain, curvature trials on the curvature
// (deg/m) implied by the radius. Catch trials are detected unless the
// observer lapses.
type SimulatedObserver struct {
	cfg  config.ObserverConfig
	kind redirect.Kind
	rng  *rand.Rand
}

// NewSimulatedObserver returns a seeded observer for the given condition.
func NewSimulatedObserver(cfg config.ObserverConfig, kind redirect.Kind, seed uint64) *SimulatedObserver {
	return &SimulatedObserver{
		cfg:  cfg,
		kind: kind,
		rng:  rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// DetectionProbability returns the chance of reporting the proposal.
func (o *SimulatedObserver) DetectionProbability(p staircase.Proposal) float64 {
	lapse := o.cfg.Lapse
	if p.IsCatch {
		return 1 - lapse
	}
	var z float64
	switch o.kind {
	case redirect.KindCurvature:
		z = (redirect.RadiusToCurvatureGain(p.Gain) - o.cfg.CurvatureThreshold) / o.cfg.CurvatureSpread
	default:
		z = (p.Gain - o.cfg.RotationThreshold) / o.cfg.RotationSpread
	}
	return lapse + (1-2*lapse)/(1+math.Exp(-z))
}

// Respond draws a detection for the proposal.
func (o *SimulatedObserver) Respond(p staircase.Proposal) bool {
	return o.rng.Float64() < o.DetectionProbability(p)
}

// #endregion observer
