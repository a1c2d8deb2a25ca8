package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/export"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/gate"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/logging"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/session"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/tracking"
)

// #region deps
// Deps are the runner's collaborators. Every field is optional: a nil Store
// skips persistence and audit events, a nil Exporter skips CSV files, a nil
// Sink drops corrections, a nil Clock uses the system clock.
type Deps struct {
	Store    *state.Store
	Exporter *export.Writer
	Sink     tracking.Sink
	Clock    Clock
	Logger   *slog.Logger
}

// #endregion deps

// #region runner
// Runner sequences the trials of one condition: it starts trials, forwards
// tracking frames to the session, collects responses, waits the inter-trial
// pause and finalizes the experiment. Not safe for concurrent use; Run is
// the single goroutine that owns it.
type Runner struct {
	cfg      config.Config
	kind     redirect.Kind
	session  *session.Session
	gate     *gate.Gate
	store    *state.Store
	exporter *export.Writer
	sink     tracking.Sink
	clock    Clock
	logger   *slog.Logger

	sessionID string
	state     State
	seq       uint64
	pauseC    <-chan time.Time
	outcome   *Outcome
}

// NewRunner builds the staircase, the strategy for cfg's condition and,
// when a store is given, the persisted session row.
func NewRunner(cfg config.Config, deps Deps) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("experiment config: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}

	kind := cfg.Kind()
	engine, err := staircase.NewSeededEngine(cfg.StaircaseFor(kind), cfg.Seed)
	if err != nil {
		return nil, err
	}
	strategy, err := redirect.New(kind, cfg.RotationStrategy(), cfg.CurvatureStrategy())
	if err != nil && !errors.Is(err, redirect.ErrParameterClamped) {
		return nil, err
	}

	r := &Runner{
		cfg:      cfg,
		kind:     kind,
		session:  session.New(engine, strategy, logger),
		gate:     gate.NewGate(cfg.GateThresholds()),
		store:    deps.Store,
		exporter: deps.Exporter,
		sink:     deps.Sink,
		clock:    clock,
		logger:   logger.With(slog.String("participant", cfg.ParticipantID), slog.String("condition", string(kind))),
	}

	if r.store != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		rec, err := r.store.CreateSession(state.SessionRecord{
			ParticipantID: cfg.ParticipantID,
			Condition:     string(kind),
			AgeGroup:      cfg.AgeGroup,
			Seed:          cfg.Seed,
			ConfigJSON:    string(cfgJSON),
			StartedAt:     clock.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		r.sessionID = rec.SessionID
	}

	r.logger.Info("experiment initialized",
		slog.String("session", r.sessionID),
		slog.Uint64("seed", cfg.Seed),
		slog.Float64("initial", engine.Config().InitialGain))
	return r, nil
}

// #endregion runner

// #region operations
// StartNextTrial proposes the next stimulus and configures the strategy.
// When the staircase has already terminated the experiment is completed.
func (r *Runner) StartNextTrial() error {
	if r.state != StateWaiting && r.state != StateTrialComplete {
		return r.violation("start trial")
	}
	r.pauseC = nil

	engine := r.session.Engine()
	if engine.Finished() {
		return r.complete(false)
	}

	trial := engine.State().TrialCount + 1
	p, err := r.session.BeginTrial()
	if err != nil {
		if !errors.Is(err, redirect.ErrParameterClamped) {
			return err
		}
		r.event(trial, logging.KindParamClamped, map[string]float64{
			"requested": p.Gain,
			"applied":   r.session.Strategy().Parameter(),
		})
	}

	r.state = StateTrialInProgress
	r.event(trial, logging.KindTrialStart, map[string]any{"gain": p.Gain, "catch": p.IsCatch})
	if p.IsCatch {
		r.event(trial, logging.KindCatchTrial, map[string]float64{"gain": p.Gain})
	}
	r.logger.Info("trial started",
		slog.Int("trial", trial),
		slog.Float64("gain", p.Gain),
		slog.Bool("catch", p.IsCatch))
	return nil
}

// HandleSample forwards one tracking frame during a trial and publishes the
// resulting correction. Frames outside a trial are consumed without effect.
func (r *Runner) HandleSample(s redirect.MotionSample) (float64, error) {
	if r.state != StateTrialInProgress {
		return 0, nil
	}
	c, err := r.session.Tick(s)
	if err != nil {
		return 0, err
	}
	r.seq++
	if r.sink != nil {
		corr := tracking.Correction{
			Seq:       r.seq,
			Trial:     r.session.Engine().State().TrialCount + 1,
			Condition: r.kind,
			Degrees:   c,
		}
		if err := r.sink.PublishCorrection(corr); err != nil {
			r.logger.Warn("publish correction failed", slog.Any("error", err))
		}
	}
	return c, nil
}

// CompleteTrial ends the motion phase and waits for the response.
func (r *Runner) CompleteTrial() error {
	if r.state != StateTrialInProgress {
		return r.violation("complete trial")
	}
	stats, err := r.session.EndMotion()
	if err != nil {
		return err
	}
	r.state = StateWaitingForResponse
	r.logger.Debug("trial motion complete",
		slog.Int("frames", stats.Frames),
		slog.Float64("net_injected", stats.NetInjected))
	return nil
}

// SubmitResponse records whether the participant detected the manipulation.
// If the experiment continues the next trial starts after the configured
// pause; otherwise the experiment is completed.
func (r *Runner) SubmitResponse(detected bool) (TrialReport, error) {
	if r.state != StateWaitingForResponse {
		return TrialReport{}, r.violation("submit response")
	}
	cont, err := r.session.Respond(detected)
	if err != nil {
		return TrialReport{}, err
	}

	engine := r.session.Engine()
	history := engine.History()
	rec := history[len(history)-1]
	report := TrialReport{Record: rec, Motion: r.session.Stats(), Continue: cont, Status: engine.Status()}

	if r.store != nil {
		if err := r.store.AppendTrial(r.sessionID, rec); err != nil {
			return report, err
		}
	}
	r.event(rec.TrialNumber, logging.KindTrialEnd, rec)
	r.logger.Info("response recorded",
		slog.Int("trial", rec.TrialNumber),
		slog.Bool("detected", detected),
		slog.Bool("reversal", rec.WasReversal),
		slog.String("status", report.Status.String()))

	if !cont {
		return report, r.complete(false)
	}
	r.state = StateTrialComplete
	r.pauseC = r.clock.After(r.cfg.InterTrialPause)
	return report, nil
}

// ForceEnd completes the experiment with whatever has been recorded.
func (r *Runner) ForceEnd() error {
	if r.state == StateExperimentComplete {
		return nil
	}
	return r.complete(true)
}

// #endregion operations

// #region run
// Run owns the runner until the experiment completes. Samples are handled in
// arrival order. A due inter-trial pause is served before other input.
// Out-of-order commands are logged and ignored. Cancelling ctx force-ends
// the experiment.
func (r *Runner) Run(ctx context.Context, samples <-chan redirect.MotionSample, commands <-chan Command) (Outcome, error) {
	for r.state != StateExperimentComplete {
		if r.pauseC != nil {
			select {
			case <-r.pauseC:
				if err := r.StartNextTrial(); err != nil {
					return Outcome{}, err
				}
				continue
			default:
			}
		}

		select {
		case <-ctx.Done():
			if err := r.ForceEnd(); err != nil {
				return Outcome{}, err
			}
			return *r.outcome, ctx.Err()

		case <-r.pauseC:
			if err := r.StartNextTrial(); err != nil {
				return Outcome{}, err
			}

		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			if _, err := r.HandleSample(s); err != nil {
				return Outcome{}, err
			}

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				if err := r.ForceEnd(); err != nil {
					return Outcome{}, err
				}
				continue
			}
			if err := r.dispatch(cmd); err != nil {
				if !errors.Is(err, staircase.ErrProtocolViolation) {
					return Outcome{}, err
				}
				r.logger.Warn("command ignored", slog.Any("error", err))
			}
		}
	}
	return *r.outcome, nil
}

func (r *Runner) dispatch(cmd Command) error {
	switch cmd.Kind {
	case CmdStart:
		return r.StartNextTrial()
	case CmdCompleteTrial:
		return r.CompleteTrial()
	case CmdRespond:
		_, err := r.SubmitResponse(cmd.Detected)
		return err
	case CmdForceEnd:
		return r.ForceEnd()
	}
	return fmt.Errorf("%w: unknown command %d", staircase.ErrProtocolViolation, cmd.Kind)
}

// #endregion run

// #region complete
func (r *Runner) complete(forced bool) error {
	r.state = StateExperimentComplete
	r.pauseC = nil

	engine := r.session.Engine()
	st := engine.State()
	threshold, thErr := engine.Threshold()
	insufficient := errors.Is(thErr, staircase.ErrInsufficientData)
	history := engine.History()
	reversals := engine.ReversalPoints()
	decision := r.gate.Evaluate(history, reversals)

	out := &Outcome{
		SessionID:        r.sessionID,
		Condition:        r.kind,
		Threshold:        threshold,
		InsufficientData: insufficient,
		TotalTrials:      st.TrialCount,
		TotalReversals:   st.ReversalCount,
		ReversalPoints:   reversals,
		History:          history,
		Gate:             decision,
		Forced:           forced,
	}
	r.outcome = out

	if insufficient {
		r.event(0, logging.KindInsufficientData, map[string]float64{"fallback": threshold})
		r.logger.Warn("no reversals observed, threshold falls back to current value",
			slog.Float64("threshold", threshold))
	}

	if r.store != nil {
		err := r.store.FinishSession(r.sessionID, state.Summary{
			Threshold:      threshold,
			TotalTrials:    st.TrialCount,
			TotalReversals: st.ReversalCount,
			ReversalPoints: reversals,
			GateAction:     decision.Action,
			GateReason:     decision.Reason,
			FinishedAt:     r.clock.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}

	if r.exporter != nil {
		path, err := r.exporter.WriteStaircase(export.Result{
			ParticipantID:  r.cfg.ParticipantID,
			Condition:      r.kind.Title(),
			AgeGroup:       r.cfg.AgeGroup,
			Threshold:      threshold,
			TotalTrials:    st.TrialCount,
			TotalReversals: st.ReversalCount,
			Trials:         history,
			ReversalPoints: reversals,
			Timestamp:      r.clock.Now(),
		})
		if err != nil {
			return err
		}
		out.CSVPath = path
	}

	r.event(0, logging.KindSessionFinished, map[string]any{
		"threshold":   threshold,
		"trials":      st.TrialCount,
		"reversals":   st.ReversalCount,
		"forced":      forced,
		"gate_action": decision.Action,
		"gate_reason": decision.Reason,
		"soft_score":  decision.SoftScore,
	})
	r.logger.Info("experiment complete",
		slog.Float64("threshold", threshold),
		slog.Int("trials", st.TrialCount),
		slog.Int("reversals", st.ReversalCount),
		slog.String("gate", decision.Action),
		slog.Bool("forced", forced))
	return nil
}

// #endregion complete

// #region helpers
func (r *Runner) violation(op string) error {
	err := fmt.Errorf("%w: %s while %s", ErrState, op, r.state)
	r.event(r.session.Engine().State().TrialCount, logging.KindProtocolViolation, map[string]string{
		"op":    op,
		"state": r.state.String(),
	})
	return err
}

// event writes an audit row; failures are logged, never fatal.
func (r *Runner) event(trial int, kind logging.EventKind, detail any) {
	if r.store == nil {
		return
	}
	err := logging.LogEvent(r.store.DB(), logging.Event{
		SessionID:   r.sessionID,
		TrialNumber: trial,
		Kind:        kind,
		DetailJSON:  logging.Detail(detail),
		CreatedAt:   r.clock.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("audit event failed", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// #endregion helpers

// #region accessors
// State returns the current experiment state.
func (r *Runner) State() State { return r.state }

// SessionID returns the persisted session ID ("" without a store).
func (r *Runner) SessionID() string { return r.sessionID }

// Session returns the underlying redirection session.
func (r *Runner) Session() *session.Session { return r.session }

// Kind returns the experiment condition.
func (r *Runner) Kind() redirect.Kind { return r.kind }

// Outcome returns the result once the experiment is complete.
func (r *Runner) Outcome() (Outcome, bool) {
	if r.outcome == nil {
		return Outcome{}, false
	}
	return *r.outcome, true
}

// #endregion accessors
