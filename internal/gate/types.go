package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNoTrials    VetoType = "no_trials"
	VetoCatchMisses VetoType = "catch_misses"
	VetoNoReversals VetoType = "no_reversals"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MaxCatchMissRate float64 // veto above this share of missed catch trials
	MinCatchTrials   int     // miss rate is only judged with at least this many catch trials
	TargetReversals  int     // reversal count that earns the full coverage score
}

// DefaultGateConfig returns the defaults used by the experiment runner.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxCatchMissRate: 0.5,
		MinCatchTrials:   2,
		TargetReversals:  6,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action        string // "accept" | "reject"
	Reason        string
	Vetoed        bool
	VetoSignals   []VetoSignal // non-empty if vetoed
	SoftScore     float64      // 0-1 composite of soft signals (for logging)
	CatchTrials   int
	CatchMissRate float64
}

// #endregion gate-decision
