package staircase

import (
	"errors"
	"fmt"
)

// #region errors
var (
	// ErrSessionFinished is returned by ProposeNext and RecordResponse once the
	// staircase has terminated. The call does not mutate state.
	ErrSessionFinished = errors.New("staircase finished")

	// ErrProtocolViolation is returned when proposals and responses are not
	// paired one-to-one within a trial.
	ErrProtocolViolation = errors.New("staircase protocol violation")

	// ErrInsufficientData is a warning from Threshold when no reversal has been
	// observed; the returned value is the current gain.
	ErrInsufficientData = errors.New("no reversal points to estimate threshold")
)

// #endregion errors

// #region config
// Config holds the parameters of a 1-up/2-down staircase.
type Config struct {
	InitialGain          float64 // starting stimulus intensity
	CoarseStep           float64 // step size until ReversalsForFineStep reversals
	FineStep             float64 // step size afterwards (one-way switch)
	ReversalsForFineStep int
	MaxTrials            int     // terminate after this many trials (catch trials included)
	MinReversals         int     // terminate once this many reversals are observed
	CatchProbability     float64 // Bernoulli probability of a catch trial, in [0, 1]
	CatchGain            float64 // fixed, easily detectable intensity for catch trials
}

// DefaultConfig returns the rotation-gain defaults.
func DefaultConfig() Config {
	return Config{
		InitialGain:          1.5,
		CoarseStep:           0.05,
		FineStep:             0.02,
		ReversalsForFineStep: 2,
		MaxTrials:            25,
		MinReversals:         6,
		CatchProbability:     0.1,
		CatchGain:            2.0,
	}
}

// DefaultCurvatureConfig returns the curvature defaults. The staircase runs
// in radius units (metres).
func DefaultCurvatureConfig() Config {
	c := DefaultConfig()
	c.InitialGain = 6.0
	c.CoarseStep = 0.04
	c.FineStep = 0.01
	return c
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.CoarseStep <= 0:
		return fmt.Errorf("coarse step must be positive, got %f", c.CoarseStep)
	case c.FineStep <= 0:
		return fmt.Errorf("fine step must be positive, got %f", c.FineStep)
	case c.ReversalsForFineStep < 1:
		return fmt.Errorf("reversals for fine step must be >= 1, got %d", c.ReversalsForFineStep)
	case c.MaxTrials < 1:
		return fmt.Errorf("max trials must be >= 1, got %d", c.MaxTrials)
	case c.MinReversals < 1:
		return fmt.Errorf("min reversals must be >= 1, got %d", c.MinReversals)
	case c.CatchProbability < 0 || c.CatchProbability > 1:
		return fmt.Errorf("catch probability must be in [0, 1], got %f", c.CatchProbability)
	}
	return nil
}

// #endregion config

// #region trial-record
// TrialRecord is one immutable row of the trial history.
type TrialRecord struct {
	TrialNumber     int     `json:"trial_number"`
	GainValue       float64 `json:"gain_value"` // gain in effect before the update
	IsCatchTrial    bool    `json:"is_catch_trial"`
	ResponseCorrect bool    `json:"response_correct"`
	WasReversal     bool    `json:"was_reversal"`
	StepSizeUsed    float64 `json:"step_size_used"` // step in force after the update; 0 for catch trials
}

// #endregion trial-record

// #region proposal
// Proposal is the stimulus chosen for the next trial.
type Proposal struct {
	Gain    float64
	IsCatch bool
}

// #endregion proposal

// #region state
// State is a snapshot of the adaptive state.
type State struct {
	CurrentGain     float64
	CurrentStepSize float64
	TrialCount      int
	ReversalCount   int
	CorrectStreak   int
	Finished        bool
}

// Status is the summary exposed to the orchestrator.
type Status struct {
	TrialCount      int
	MaxTrials       int
	ReversalCount   int
	CurrentGain     float64
	CurrentStepSize float64
}

func (s Status) String() string {
	return fmt.Sprintf("trial %d/%d, reversals %d, gain %.3f, step %.3f",
		s.TrialCount, s.MaxTrials, s.ReversalCount, s.CurrentGain, s.CurrentStepSize)
}

// #endregion state

// #region rand
// Rand is the catch-trial draw source. *rand.Rand from math/rand/v2 satisfies it.
// It must be owned by a single engine and advanced sequentially.
type Rand interface {
	Float64() float64
}

// #endregion rand
