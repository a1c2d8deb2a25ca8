package state

import "time"

// #region session-record
// SessionRecord is one staircase run for one participant and condition.
type SessionRecord struct {
	SessionID      string
	ParticipantID  string
	Condition      string // "rotation" | "curvature"
	AgeGroup       int    // 0 = child, 1 = adult
	Seed           uint64 // catch-trial generator seed
	ConfigJSON     string
	StartedAt      time.Time
	FinishedAt     time.Time // zero while running
	Threshold      float64
	TotalTrials    int
	TotalReversals int
	GateAction     string // "accept" | "reject" | "" while running
	GateReason     string
}

// Finished reports whether FinishSession has been recorded.
func (r SessionRecord) Finished() bool { return !r.FinishedAt.IsZero() }

// #endregion session-record

// #region summary
// Summary is written once when a session ends.
type Summary struct {
	Threshold      float64
	TotalTrials    int
	TotalReversals int
	ReversalPoints []float64
	GateAction     string
	GateReason     string
	FinishedAt     time.Time
}

// #endregion summary
