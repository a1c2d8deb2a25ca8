package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string                  `json:"description"`
	SessionID   string                  `json:"session_id,omitempty"`
	Condition   string                  `json:"condition"`
	Config      FixtureConfig           `json:"config"`
	Trials      []staircase.TrialRecord `json:"trials"`
	Expected    FixtureExpected         `json:"expected"`
}

// FixtureConfig mirrors staircase.Config with JSON tags.
type FixtureConfig struct {
	InitialGain          float64 `json:"initial_gain"`
	CoarseStep           float64 `json:"coarse_step"`
	FineStep             float64 `json:"fine_step"`
	ReversalsForFineStep int     `json:"reversals_for_fine_step"`
	MaxTrials            int     `json:"max_trials"`
	MinReversals         int     `json:"min_reversals"`
	CatchProbability     float64 `json:"catch_probability"`
	CatchGain            float64 `json:"catch_gain"`
}

// FixtureExpected captures the expected outcome of the recorded session.
type FixtureExpected struct {
	Threshold        float64   `json:"threshold"`
	ReversalPoints   []float64 `json:"reversal_points"`
	TotalTrials      int       `json:"total_trials"`
	TotalReversals   int       `json:"total_reversals"`
	InsufficientData bool      `json:"insufficient_data"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// ToStaircaseConfig converts to the engine config.
func (fc *FixtureConfig) ToStaircaseConfig() staircase.Config {
	return staircase.Config{
		InitialGain:          fc.InitialGain,
		CoarseStep:           fc.CoarseStep,
		FineStep:             fc.FineStep,
		ReversalsForFineStep: fc.ReversalsForFineStep,
		MaxTrials:            fc.MaxTrials,
		MinReversals:         fc.MinReversals,
		CatchProbability:     fc.CatchProbability,
		CatchGain:            fc.CatchGain,
	}
}

// FixtureConfigFrom converts an engine config for serialization.
func FixtureConfigFrom(c staircase.Config) FixtureConfig {
	return FixtureConfig{
		InitialGain:          c.InitialGain,
		CoarseStep:           c.CoarseStep,
		FineStep:             c.FineStep,
		ReversalsForFineStep: c.ReversalsForFineStep,
		MaxTrials:            c.MaxTrials,
		MinReversals:         c.MinReversals,
		CatchProbability:     c.CatchProbability,
		CatchGain:            c.CatchGain,
	}
}

// Run replays the fixture and reports trial mismatches plus any difference
// from the expected outcome.
func (f *Fixture) Run() (Result, []Mismatch, error) {
	res, err := Replay(f.Config.ToStaircaseConfig(), f.Trials)
	if err != nil {
		return Result{}, nil, err
	}
	mismatches := append([]Mismatch(nil), res.Mismatches...)
	mismatches = append(mismatches, ComparePoints(f.Expected.ReversalPoints, res.ReversalPoints)...)
	if diff := res.Threshold - f.Expected.Threshold; diff > gainTolerance || diff < -gainTolerance {
		mismatches = append(mismatches, Mismatch{0, "threshold", formatFloat(f.Expected.Threshold), formatFloat(res.Threshold)})
	}
	if res.InsufficientData != f.Expected.InsufficientData {
		mismatches = append(mismatches, Mismatch{0, "insufficient_data",
			fmt.Sprint(f.Expected.InsufficientData), fmt.Sprint(res.InsufficientData)})
	}
	return res, mismatches, nil
}

// #endregion fixture-loader
