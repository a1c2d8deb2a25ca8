package gate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region gate
// Gate judges whether a finished staircase session is usable.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Config returns the gate thresholds.
func (g *Gate) Config() GateConfig { return g.config }

// Evaluate checks hard vetoes first, then scores soft signals.
// Takes the session's trial history and its reversal points.
func (g *Gate) Evaluate(history []staircase.TrialRecord, reversals []float64) GateDecision {
	var vetoes []VetoSignal

	catchTrials, missed := catchStats(history)
	var missRate float64
	if catchTrials > 0 {
		missRate = float64(missed) / float64(catchTrials)
	}

	// --- Hard veto pass ---

	// 1. Nothing recorded
	if len(history) == 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNoTrials,
			Reason: "no trials recorded",
		})
	}

	// 2. Participant missed too many obvious catch trials
	if catchTrials >= g.config.MinCatchTrials && missRate > g.config.MaxCatchMissRate {
		vetoes = append(vetoes, VetoSignal{
			Type: VetoCatchMisses,
			Reason: fmt.Sprintf("catch miss rate %.2f exceeds cap %.2f (%d/%d)",
				missRate, g.config.MaxCatchMissRate, missed, catchTrials),
		})
	}

	// 3. Staircase never turned around
	if len(history) > 0 && len(reversals) == 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNoReversals,
			Reason: "no reversals observed",
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:        "reject",
			Reason:        fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:        true,
			VetoSignals:   vetoes,
			SoftScore:     0,
			CatchTrials:   catchTrials,
			CatchMissRate: missRate,
		}
	}

	// --- Soft scoring ---
	softScore := computeSoftScore(reversals, catchTrials, missRate, g.config.TargetReversals)

	return GateDecision{
		Action:        "accept",
		Reason:        fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		SoftScore:     softScore,
		CatchTrials:   catchTrials,
		CatchMissRate: missRate,
	}
}

// #endregion gate

// #region helpers
// catchStats counts catch trials and how many of them went undetected.
func catchStats(history []staircase.TrialRecord) (total, missed int) {
	for _, t := range history {
		if !t.IsCatchTrial {
			continue
		}
		total++
		if !t.ResponseCorrect {
			missed++
		}
	}
	return total, missed
}

// convergence is 1 minus the coefficient of variation of the reversal points
// that feed the threshold, floored at 0. Fewer than two points score 0.5.
func convergence(reversals []float64) float64 {
	pts := reversals
	if len(pts) >= 3 {
		pts = pts[2:]
	}
	if len(pts) < 2 {
		return 0.5
	}
	mean, std := stat.MeanStdDev(pts, nil)
	if mean == 0 || math.IsNaN(std) {
		return 0
	}
	return math.Max(0, 1-std/math.Abs(mean))
}

// computeSoftScore produces a 0-1 composite from reversal coverage, catch
// reliability and reversal convergence. Logged but does not block.
func computeSoftScore(reversals []float64, catchTrials int, missRate float64, target int) float64 {
	var score float64

	// Coverage: reversals relative to target (weight 0.4)
	if target > 0 {
		score += 0.4 * math.Min(1, float64(len(reversals))/float64(target))
	} else {
		score += 0.4
	}

	// Catch reliability (weight 0.3); neutral when no catch trial ran
	if catchTrials == 0 {
		score += 0.15
	} else {
		score += 0.3 * (1 - missRate)
	}

	// Convergence of the threshold reversals (weight 0.3)
	score += 0.3 * convergence(reversals)

	return score
}

// #endregion helpers
