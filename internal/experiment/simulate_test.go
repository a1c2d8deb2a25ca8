package experiment

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/logging"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/tracking"
)

// #region observer-tests
func TestObserverProbability(t *testing.T) {
	cfg := config.Default().Observer

	rot := NewSimulatedObserver(cfg, redirect.KindRotation, 1)
	if p := rot.DetectionProbability(staircase.Proposal{Gain: cfg.RotationThreshold}); math.Abs(p-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 at threshold, got %f", p)
	}
	low := rot.DetectionProbability(staircase.Proposal{Gain: 1.0})
	high := rot.DetectionProbability(staircase.Proposal{Gain: 1.6})
	if !(low < 0.5 && high > 0.5) {
		t.Fatalf("probability should rise with gain: low %f, high %f", low, high)
	}
	if low < cfg.Lapse || high > 1-cfg.Lapse {
		t.Fatalf("probabilities should respect lapse bounds: %f, %f", low, high)
	}
	if p := rot.DetectionProbability(staircase.Proposal{Gain: 2, IsCatch: true}); p != 1-cfg.Lapse {
		t.Fatalf("catch detection should be 1-lapse, got %f", p)
	}

	curv := NewSimulatedObserver(cfg, redirect.KindCurvature, 1)
	radius := 180 / (math.Pi * cfg.CurvatureThreshold)
	if p := curv.DetectionProbability(staircase.Proposal{Gain: radius}); math.Abs(p-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 at threshold radius, got %f", p)
	}
	if curv.DetectionProbability(staircase.Proposal{Gain: 3}) <= curv.DetectionProbability(staircase.Proposal{Gain: 10}) {
		t.Fatal("tighter radius should be easier to detect")
	}
}

func TestObserverSeeded(t *testing.T) {
	cfg := config.Default().Observer
	a := NewSimulatedObserver(cfg, redirect.KindRotation, 9)
	b := NewSimulatedObserver(cfg, redirect.KindRotation, 9)
	p := staircase.Proposal{Gain: cfg.RotationThreshold}
	for i := 0; i < 50; i++ {
		if a.Respond(p) != b.Respond(p) {
			t.Fatalf("observers diverged at draw %d", i)
		}
	}
}

// #endregion observer-tests

// #region simulation-tests
func simulate(t *testing.T, cfg config.Config) (Outcome, *tracking.Simulator, int) {
	t.Helper()
	walker := tracking.NewSimulator(tracking.DefaultSimulatorConfig())
	r, err := NewRunner(cfg, Deps{Sink: walker, Clock: &fakeClock{}, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	var reports int
	sim := Simulation{
		Runner:         r,
		Walker:         walker,
		Observer:       NewSimulatedObserver(cfg.Observer, cfg.Kind(), cfg.Seed),
		FramesPerTrial: 30,
		OnTrial:        func(TrialReport) { reports++ },
	}
	out, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Simulation.Run: %v", err)
	}
	return out, walker, reports
}

func TestSimulationRunsToTermination(t *testing.T) {
	for _, cond := range []string{"rotation", "curvature"} {
		t.Run(cond, func(t *testing.T) {
			cfg := config.Default()
			cfg.Condition = cond
			cfg.Seed = 5

			out, walker, reports := simulate(t, cfg)
			sc := cfg.StaircaseFor(cfg.Kind())
			if out.TotalTrials > sc.MaxTrials || out.TotalTrials == 0 {
				t.Fatalf("unexpected trial count %d", out.TotalTrials)
			}
			if out.TotalTrials < sc.MaxTrials && out.TotalReversals < sc.MinReversals {
				t.Fatalf("stopped early: %d trials, %d reversals", out.TotalTrials, out.TotalReversals)
			}
			if reports != out.TotalTrials {
				t.Fatalf("expected %d reports, got %d", out.TotalTrials, reports)
			}
			if walker.Frames() != 30*out.TotalTrials {
				t.Fatalf("expected %d frames, got %d", 30*out.TotalTrials, walker.Frames())
			}
			if out.Forced {
				t.Fatal("simulation should finish on its own")
			}
		})
	}
}

func TestSimulationInjectsRotation(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 11
	_, walker, _ := simulate(t, cfg)
	// Default walk turns at 20 deg/s, above the 1.5 deg/s threshold, and
	// every gain stays above 1, so the injected yaw is positive.
	if walker.Injected() <= 0 {
		t.Fatalf("expected positive injected yaw, got %f", walker.Injected())
	}
}

func TestSimulationDeterministic(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 21
	a, _, _ := simulate(t, cfg)
	b, _, _ := simulate(t, cfg)
	if diff := cmp.Diff(a.History, b.History); diff != "" {
		t.Fatalf("same seed produced different histories (-a +b):\n%s", diff)
	}
}

func TestSimulationCancelled(t *testing.T) {
	cfg := config.Default()
	walker := tracking.NewSimulator(tracking.DefaultSimulatorConfig())
	r, err := NewRunner(cfg, Deps{Sink: walker, Clock: &fakeClock{}, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Simulation{Runner: r, Walker: walker, Observer: NewSimulatedObserver(cfg.Observer, cfg.Kind(), 1)}.Run(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if !out.Forced || out.TotalTrials != 0 {
		t.Fatalf("expected forced empty outcome, got %+v", out)
	}
}

// #endregion simulation-tests
