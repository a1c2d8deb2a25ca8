package experiment

import (
	"context"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/tracking"
)

// #region simulate
// Simulation drives a runner without an operator: each trial walks a fixed
// number of simulator frames, then the observer answers. The inter-trial
// pause is skipped.
type Simulation struct {
	Runner         *Runner
	Walker         *tracking.Simulator
	Observer       *SimulatedObserver
	FramesPerTrial int
	OnTrial        func(TrialReport) // optional progress callback
}

// Run executes trials until the staircase terminates or ctx is cancelled,
// in which case the experiment is force-ended.
func (s Simulation) Run(ctx context.Context) (Outcome, error) {
	r := s.Runner
	frames := s.FramesPerTrial
	if frames <= 0 {
		frames = 1
	}

	for r.State() != StateExperimentComplete {
		if err := ctx.Err(); err != nil {
			if ferr := r.ForceEnd(); ferr != nil {
				return Outcome{}, ferr
			}
			out, _ := r.Outcome()
			return out, err
		}

		if err := r.StartNextTrial(); err != nil {
			return Outcome{}, err
		}
		if r.State() == StateExperimentComplete {
			break
		}
		for i := 0; i < frames; i++ {
			if _, err := r.HandleSample(s.Walker.Next()); err != nil {
				return Outcome{}, err
			}
		}
		if err := r.CompleteTrial(); err != nil {
			return Outcome{}, err
		}
		report, err := r.SubmitResponse(s.Observer.Respond(r.Session().Proposal()))
		if err != nil {
			return Outcome{}, err
		}
		if s.OnTrial != nil {
			s.OnTrial(report)
		}
	}

	out, _ := r.Outcome()
	return out, nil
}

// #endregion simulate
