package replay

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region types
// Result is the outcome of replaying a recorded history through a fresh engine.
type Result struct {
	Trials           []staircase.TrialRecord // replayed history
	ReversalPoints   []float64
	Threshold        float64
	InsufficientData bool // threshold is the fallback gain
	Finished         bool
	Mismatches       []Mismatch
}

// Mismatch is one field where the replayed trial differs from the recording.
type Mismatch struct {
	TrialNumber int
	Field       string
	Recorded    string
	Replayed    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("trial %d %s: recorded %s, replayed %s", m.TrialNumber, m.Field, m.Recorded, m.Replayed)
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTrials    int
	CatchTrials    int
	TotalReversals int
	Threshold      float64
	Mismatches     int
}

// #endregion types

// #region scripted-draws
// scriptedDraws feeds the engine catch draws that reproduce the recorded
// catch pattern: 0 selects a catch trial, the largest float below 1 does not.
type scriptedDraws struct {
	trials []staircase.TrialRecord
	next   int
}

var noCatchDraw = math.Nextafter(1, 0)

func (s *scriptedDraws) Float64() float64 {
	if s.next >= len(s.trials) {
		return noCatchDraw
	}
	t := s.trials[s.next]
	s.next++
	if t.IsCatchTrial {
		return 0
	}
	return noCatchDraw
}

// #endregion scripted-draws

// #region replay
// Replay drives a fresh engine with the recorded responses and catch pattern.
// Replay stops early if the engine terminates before the recording does.
func Replay(cfg staircase.Config, recorded []staircase.TrialRecord) (Result, error) {
	engine, err := staircase.NewEngine(cfg, &scriptedDraws{trials: recorded})
	if err != nil {
		return Result{}, err
	}

	for _, rec := range recorded {
		if _, err := engine.ProposeNext(); err != nil {
			if errors.Is(err, staircase.ErrSessionFinished) {
				break
			}
			return Result{}, fmt.Errorf("replay trial %d: %w", rec.TrialNumber, err)
		}
		if _, err := engine.RecordResponse(rec.ResponseCorrect); err != nil {
			return Result{}, fmt.Errorf("replay trial %d: %w", rec.TrialNumber, err)
		}
	}

	threshold, err := engine.Threshold()
	res := Result{
		Trials:           engine.History(),
		ReversalPoints:   engine.ReversalPoints(),
		Threshold:        threshold,
		InsufficientData: errors.Is(err, staircase.ErrInsufficientData),
		Finished:         engine.Finished(),
	}
	res.Mismatches = Compare(recorded, res.Trials)
	return res, nil
}

// #endregion replay

// #region compare
const gainTolerance = 1e-9

// Compare reports per-trial differences between two histories, including
// trials present in only one of them.
func Compare(recorded, replayed []staircase.TrialRecord) []Mismatch {
	var out []Mismatch
	n := max(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(replayed):
			out = append(out, Mismatch{TrialNumber: recorded[i].TrialNumber, Field: "trial", Recorded: "present", Replayed: "missing"})
			continue
		case i >= len(recorded):
			out = append(out, Mismatch{TrialNumber: replayed[i].TrialNumber, Field: "trial", Recorded: "missing", Replayed: "present"})
			continue
		}
		a, b := recorded[i], replayed[i]
		if a.TrialNumber != b.TrialNumber {
			out = append(out, Mismatch{a.TrialNumber, "trial_number", strconv.Itoa(a.TrialNumber), strconv.Itoa(b.TrialNumber)})
		}
		if math.Abs(a.GainValue-b.GainValue) > gainTolerance {
			out = append(out, Mismatch{a.TrialNumber, "gain_value", formatFloat(a.GainValue), formatFloat(b.GainValue)})
		}
		if a.IsCatchTrial != b.IsCatchTrial {
			out = append(out, Mismatch{a.TrialNumber, "is_catch_trial", strconv.FormatBool(a.IsCatchTrial), strconv.FormatBool(b.IsCatchTrial)})
		}
		if a.ResponseCorrect != b.ResponseCorrect {
			out = append(out, Mismatch{a.TrialNumber, "response_correct", strconv.FormatBool(a.ResponseCorrect), strconv.FormatBool(b.ResponseCorrect)})
		}
		if a.WasReversal != b.WasReversal {
			out = append(out, Mismatch{a.TrialNumber, "was_reversal", strconv.FormatBool(a.WasReversal), strconv.FormatBool(b.WasReversal)})
		}
		if math.Abs(a.StepSizeUsed-b.StepSizeUsed) > gainTolerance {
			out = append(out, Mismatch{a.TrialNumber, "step_size_used", formatFloat(a.StepSizeUsed), formatFloat(b.StepSizeUsed)})
		}
	}
	return out
}

// ComparePoints reports differences between two reversal point lists.
func ComparePoints(recorded, replayed []float64) []Mismatch {
	var out []Mismatch
	n := max(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		field := fmt.Sprintf("reversal[%d]", i)
		switch {
		case i >= len(replayed):
			out = append(out, Mismatch{0, field, formatFloat(recorded[i]), "missing"})
		case i >= len(recorded):
			out = append(out, Mismatch{0, field, "missing", formatFloat(replayed[i])})
		case math.Abs(recorded[i]-replayed[i]) > gainTolerance:
			out = append(out, Mismatch{0, field, formatFloat(recorded[i]), formatFloat(replayed[i])})
		}
	}
	return out
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

// #endregion compare

// #region summarize
// Summarize computes aggregate stats from a replay result.
func Summarize(r Result) Summary {
	s := Summary{
		TotalTrials:    len(r.Trials),
		TotalReversals: len(r.ReversalPoints),
		Threshold:      r.Threshold,
		Mismatches:     len(r.Mismatches),
	}
	for _, t := range r.Trials {
		if t.IsCatchTrial {
			s.CatchTrials++
		}
	}
	return s
}

// #endregion summarize
