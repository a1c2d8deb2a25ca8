package staircase

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// #region engine
// Engine runs a 1-up/2-down adaptive staircase with randomized catch trials.
// Calls must alternate ProposeNext, RecordResponse; it is not safe for
// concurrent use.
type Engine struct {
	cfg Config
	rng Rand

	currentGain   float64
	currentStep   float64
	trialCount    int
	reversalCount int
	correctStreak int
	finished      bool

	pending   *Proposal
	history   []TrialRecord
	reversals []float64
}

// NewEngine validates cfg and returns an engine in its initial state.
func NewEngine(cfg Config, rng Rand) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("staircase config: %w", err)
	}
	if rng == nil {
		return nil, fmt.Errorf("staircase: nil random source")
	}
	e := &Engine{cfg: cfg, rng: rng}
	e.Reset()
	return e, nil
}

// NewSeededEngine builds an engine whose catch draws come from a PCG generator
// seeded with seed, so equal seeds reproduce equal trial sequences.
func NewSeededEngine(cfg Config, seed uint64) (*Engine, error) {
	return NewEngine(cfg, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Reset restores the initial state. The random source is not rewound.
func (e *Engine) Reset() {
	e.currentGain = e.cfg.InitialGain
	e.currentStep = e.cfg.CoarseStep
	e.trialCount = 0
	e.reversalCount = 0
	e.correctStreak = 0
	e.finished = false
	e.pending = nil
	e.history = nil
	e.reversals = nil
}

// #endregion engine

// #region propose
// ProposeNext draws whether the next trial is a catch trial and returns the
// gain to present. A catch trial does not consume or alter the current gain.
func (e *Engine) ProposeNext() (Proposal, error) {
	if e.finished {
		return Proposal{Gain: e.currentGain}, ErrSessionFinished
	}
	if e.pending != nil {
		return *e.pending, fmt.Errorf("%w: trial %d already proposed", ErrProtocolViolation, e.trialCount+1)
	}

	p := Proposal{Gain: e.currentGain}
	if e.rng.Float64() < e.cfg.CatchProbability {
		p = Proposal{Gain: e.cfg.CatchGain, IsCatch: true}
	}
	e.pending = &p
	return p, nil
}

// #endregion propose

// #region record
// RecordResponse applies the response to the pending proposal and reports
// whether the experiment should continue.
func (e *Engine) RecordResponse(responseCorrect bool) (bool, error) {
	if e.finished {
		return false, ErrSessionFinished
	}
	if e.pending == nil {
		return true, fmt.Errorf("%w: response for trial %d without a proposal", ErrProtocolViolation, e.trialCount+1)
	}
	proposal := *e.pending
	e.pending = nil
	e.trialCount++

	// Catch trials are logged but never touch gain, step or streak.
	if proposal.IsCatch {
		e.history = append(e.history, TrialRecord{
			TrialNumber:     e.trialCount,
			GainValue:       e.cfg.CatchGain,
			IsCatchTrial:    true,
			ResponseCorrect: responseCorrect,
		})
		return e.evaluateTermination(), nil
	}

	previousGain := e.currentGain
	lastNormal, hasLast := e.lastNormalTrial()
	wasReversal := false

	if responseCorrect {
		// 2-down: two consecutive detections lower the gain.
		e.correctStreak++
		if e.correctStreak >= 2 {
			oldGain := e.currentGain
			e.currentGain -= e.currentStep
			if hasLast && !lastNormal.ResponseCorrect {
				wasReversal = true
				e.markReversal(oldGain)
			}
			e.correctStreak = 0
		}
	} else {
		// 1-up: a single miss raises the gain.
		oldGain := e.currentGain
		e.currentGain += e.currentStep
		if hasLast && lastNormal.ResponseCorrect {
			wasReversal = true
			e.markReversal(oldGain)
		}
		e.correctStreak = 0
	}

	e.history = append(e.history, TrialRecord{
		TrialNumber:     e.trialCount,
		GainValue:       previousGain,
		ResponseCorrect: responseCorrect,
		WasReversal:     wasReversal,
		StepSizeUsed:    e.currentStep,
	})
	return e.evaluateTermination(), nil
}

func (e *Engine) markReversal(oldGain float64) {
	e.reversalCount++
	e.reversals = append(e.reversals, (oldGain+e.currentGain)/2)
	if e.reversalCount >= e.cfg.ReversalsForFineStep {
		e.currentStep = e.cfg.FineStep
	}
}

// lastNormalTrial returns the most recent non-catch trial.
func (e *Engine) lastNormalTrial() (TrialRecord, bool) {
	for i := len(e.history) - 1; i >= 0; i-- {
		if !e.history[i].IsCatchTrial {
			return e.history[i], true
		}
	}
	return TrialRecord{}, false
}

func (e *Engine) evaluateTermination() bool {
	if e.trialCount >= e.cfg.MaxTrials || e.reversalCount >= e.cfg.MinReversals {
		e.finished = true
		return false
	}
	return true
}

// #endregion record

// #region threshold
// Threshold averages the reversal points, discarding the first two once at
// least three exist. With no reversals it returns the current gain together
// with ErrInsufficientData.
func (e *Engine) Threshold() (float64, error) {
	return EstimateThreshold(e.reversals, e.currentGain)
}

// EstimateThreshold applies the threshold rule to an arbitrary reversal list.
func EstimateThreshold(reversals []float64, fallback float64) (float64, error) {
	switch {
	case len(reversals) == 0:
		return fallback, ErrInsufficientData
	case len(reversals) <= 2:
		return stat.Mean(reversals, nil), nil
	default:
		return stat.Mean(reversals[2:], nil), nil
	}
}

// #endregion threshold

// #region accessors
// Config returns the parameters the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Finished reports whether the staircase has terminated.
func (e *Engine) Finished() bool { return e.finished }

// Pending returns the proposal awaiting a response, if any.
func (e *Engine) Pending() (Proposal, bool) {
	if e.pending == nil {
		return Proposal{}, false
	}
	return *e.pending, true
}

// State returns a snapshot of the adaptive state.
func (e *Engine) State() State {
	return State{
		CurrentGain:     e.currentGain,
		CurrentStepSize: e.currentStep,
		TrialCount:      e.trialCount,
		ReversalCount:   e.reversalCount,
		CorrectStreak:   e.correctStreak,
		Finished:        e.finished,
	}
}

// Status returns the orchestrator-facing summary.
func (e *Engine) Status() Status {
	return Status{
		TrialCount:      e.trialCount,
		MaxTrials:       e.cfg.MaxTrials,
		ReversalCount:   e.reversalCount,
		CurrentGain:     e.currentGain,
		CurrentStepSize: e.currentStep,
	}
}

// History returns a copy of the trial history.
func (e *Engine) History() []TrialRecord {
	out := make([]TrialRecord, len(e.history))
	copy(out, e.history)
	return out
}

// ReversalPoints returns a copy of the reversal midpoints.
func (e *Engine) ReversalPoints() []float64 {
	out := make([]float64, len(e.reversals))
	copy(out, e.reversals)
	return out
}

// #endregion accessors
