package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region phase
// Phase is the per-trial lifecycle of a session.
type Phase int

const (
	PhaseIdle       Phase = iota // no trial configured
	PhaseConfigured              // strategy holds this trial's value
	PhaseActive                  // receiving frames
	PhaseEnded                   // motion over, awaiting the response
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConfigured:
		return "configured"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrPhase is returned for calls that do not fit the current phase.
var ErrPhase = fmt.Errorf("%w: wrong session phase", staircase.ErrProtocolViolation)

// #endregion phase

// #region motion-stats
// MotionStats summarizes the frames of one trial.
type MotionStats struct {
	Frames         int
	InjectedFrames int
	NetInjected    float64 // signed sum of corrections (deg)
	TotalInjected  float64 // sum of |corrections| (deg)
}

// #endregion motion-stats

// #region session
// Session binds the staircase to the active redirection strategy: the
// proposed value is pushed into the strategy once per trial and frames are
// forwarded to it while the trial runs. Not safe for concurrent use; the
// owner must call it from a single goroutine in frame order.
type Session struct {
	engine   *staircase.Engine
	strategy redirect.Strategy
	logger   *slog.Logger

	phase    Phase
	proposal staircase.Proposal
	stats    MotionStats
}

// New creates an idle session. A nil logger uses slog.Default().
func New(engine *staircase.Engine, strategy redirect.Strategy, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{engine: engine, strategy: strategy, logger: logger}
}

// BeginTrial asks the staircase for the next stimulus and configures the
// strategy with it. A clamped parameter is logged and returned as a warning
// alongside a usable proposal.
func (s *Session) BeginTrial() (staircase.Proposal, error) {
	if s.phase != PhaseIdle {
		return s.proposal, fmt.Errorf("%w: begin trial while %s", ErrPhase, s.phase)
	}
	p, err := s.engine.ProposeNext()
	if err != nil {
		return p, err
	}

	s.proposal = p
	s.stats = MotionStats{}
	s.phase = PhaseConfigured

	warn := s.strategy.SetParameter(p.Gain)
	if warn != nil {
		if !errors.Is(warn, redirect.ErrParameterClamped) {
			return p, fmt.Errorf("configure %s strategy: %w", s.strategy.Kind(), warn)
		}
		s.logger.Warn("strategy parameter clamped",
			slog.String("strategy", string(s.strategy.Kind())),
			slog.Float64("requested", p.Gain),
			slog.Float64("applied", s.strategy.Parameter()))
	}
	s.logger.Debug("trial configured",
		slog.Int("trial", s.engine.State().TrialCount+1),
		slog.Float64("gain", p.Gain),
		slog.Bool("catch", p.IsCatch))
	return p, warn
}

// Tick forwards one tracking frame to the strategy and returns the yaw
// correction (deg) to feed back into the tracking pipeline.
func (s *Session) Tick(sample redirect.MotionSample) (float64, error) {
	switch s.phase {
	case PhaseConfigured:
		s.phase = PhaseActive
	case PhaseActive:
	default:
		return 0, fmt.Errorf("%w: tick while %s", ErrPhase, s.phase)
	}

	c := s.strategy.ComputeCorrection(sample)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		s.logger.Warn("discarding non-finite correction", slog.Float64("correction", c))
		c = 0
	}
	s.stats.Frames++
	if c != 0 {
		s.stats.InjectedFrames++
		s.stats.NetInjected += c
		s.stats.TotalInjected += math.Abs(c)
	}
	return c, nil
}

// EndMotion closes the motion phase of the current trial. The orchestrator
// decides when that happens.
func (s *Session) EndMotion() (MotionStats, error) {
	if s.phase != PhaseConfigured && s.phase != PhaseActive {
		return MotionStats{}, fmt.Errorf("%w: end motion while %s", ErrPhase, s.phase)
	}
	s.phase = PhaseEnded
	return s.stats, nil
}

// Respond records the participant's answer for the ended trial and reports
// whether the experiment continues.
func (s *Session) Respond(detected bool) (bool, error) {
	if s.phase != PhaseEnded {
		return !s.engine.Finished(), fmt.Errorf("%w: respond while %s", ErrPhase, s.phase)
	}
	cont, err := s.engine.RecordResponse(detected)
	if err != nil {
		return cont, err
	}
	s.phase = PhaseIdle
	return cont, nil
}

// #endregion session

// #region accessors
// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Proposal returns the stimulus of the current or last trial.
func (s *Session) Proposal() staircase.Proposal { return s.proposal }

// Stats returns the motion statistics of the current or last trial.
func (s *Session) Stats() MotionStats { return s.stats }

// Engine returns the underlying staircase.
func (s *Session) Engine() *staircase.Engine { return s.engine }

// Strategy returns the active strategy.
func (s *Session) Strategy() redirect.Strategy { return s.strategy }

// #endregion accessors
