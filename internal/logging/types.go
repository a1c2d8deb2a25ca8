package logging

import "time"

// #region event-kind
// EventKind classifies an audit event.
type EventKind string

const (
	KindTrialStart        EventKind = "trial_start"
	KindTrialEnd          EventKind = "trial_end"
	KindCatchTrial        EventKind = "catch_trial"
	KindParamClamped      EventKind = "param_clamped"
	KindInsufficientData  EventKind = "insufficient_data"
	KindSessionFinished   EventKind = "session_finished"
	KindProtocolViolation EventKind = "protocol_violation"
)

// #endregion event-kind

// #region event
// Event is one row in the event_log table.
type Event struct {
	SessionID   string
	TrialNumber int // 0 when not tied to a trial
	Kind        EventKind
	DetailJSON  string
	CreatedAt   time.Time
}

// #endregion event
