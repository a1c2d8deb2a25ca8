package experiment

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/gate"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/session"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region state
// State is the orchestrator's position in the experiment.
type State int

const (
	StateWaiting State = iota
	StateTrialInProgress
	StateWaitingForResponse
	StateTrialComplete
	StateExperimentComplete
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateTrialInProgress:
		return "trial_in_progress"
	case StateWaitingForResponse:
		return "waiting_for_response"
	case StateTrialComplete:
		return "trial_complete"
	case StateExperimentComplete:
		return "experiment_complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrState is returned for operations that do not fit the current state.
var ErrState = fmt.Errorf("%w: wrong experiment state", staircase.ErrProtocolViolation)

// #endregion state

// #region command
// CommandKind identifies an operator input.
type CommandKind int

const (
	CmdStart         CommandKind = iota // start the first trial
	CmdCompleteTrial                    // motion phase is over
	CmdRespond                          // participant answered; see Detected
	CmdForceEnd                         // abort and persist what we have
)

// Command is one operator input for Run.
type Command struct {
	Kind     CommandKind
	Detected bool
}

// #endregion command

// #region clock
// Clock supplies wall time and the inter-trial pause timer.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }

// #endregion clock

// #region outcome
// Outcome is the result of a finished (or force-ended) experiment.
type Outcome struct {
	SessionID        string
	Condition        redirect.Kind
	Threshold        float64
	InsufficientData bool
	TotalTrials      int
	TotalReversals   int
	ReversalPoints   []float64
	History          []staircase.TrialRecord
	Gate             gate.GateDecision
	CSVPath          string
	Forced           bool
}

// TrialReport describes one answered trial.
type TrialReport struct {
	Record   staircase.TrialRecord
	Motion   session.MotionStats
	Continue bool
	Status   staircase.Status
}

// #endregion outcome
