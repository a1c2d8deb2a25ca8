package experiment

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/export"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/logging"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/tracking"
)

// #region helpers
var epoch = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// fakeClock fires every pause immediately and records requested durations.
type fakeClock struct {
	pauses []time.Duration
}

func (c *fakeClock) Now() time.Time { return epoch }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.pauses = append(c.pauses, d)
	ch := make(chan time.Time, 1)
	ch <- epoch.Add(d)
	return ch
}

type recordingSink struct {
	corrections []tracking.Correction
}

func (s *recordingSink) PublishCorrection(c tracking.Correction) error {
	s.corrections = append(s.corrections, c)
	return nil
}

// testConfig is a short rotation run without catch trials.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.ParticipantID = "T01"
	cfg.Staircase.Rotation.MaxTrials = 4
	cfg.Staircase.Rotation.CatchProbability = 0
	return cfg
}

type fixture struct {
	runner *Runner
	store  *state.Store
	clock  *fakeClock
	sink   *recordingSink
	outDir string
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := state.NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{}
	writer, err := export.NewWriter(filepath.Join(dir, "out"), cfg.ParticipantID, clock.Now())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	sink := &recordingSink{}
	r, err := NewRunner(cfg, Deps{
		Store:    store,
		Exporter: writer,
		Sink:     sink,
		Clock:    clock,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return &fixture{runner: r, store: store, clock: clock, sink: sink, outDir: writer.Dir()}
}

// turn is a fast in-place turn: 10 deg over 0.1 s.
func turn() redirect.MotionSample {
	return redirect.MotionSample{HeadingDelta: 10, ElapsedTime: 0.1}
}

func runTrial(t *testing.T, r *Runner, detected bool) TrialReport {
	t.Helper()
	if err := r.StartNextTrial(); err != nil {
		t.Fatalf("StartNextTrial: %v", err)
	}
	if _, err := r.HandleSample(turn()); err != nil {
		t.Fatalf("HandleSample: %v", err)
	}
	if err := r.CompleteTrial(); err != nil {
		t.Fatalf("CompleteTrial: %v", err)
	}
	report, err := r.SubmitResponse(detected)
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	return report
}

func countKinds(events []logging.Event) map[logging.EventKind]int {
	out := map[logging.EventKind]int{}
	for _, ev := range events {
		out[ev.Kind]++
	}
	return out
}

// #endregion helpers

// #region lifecycle-tests
func TestRunnerFullExperiment(t *testing.T) {
	f := newFixture(t, testConfig())
	r := f.runner

	if r.State() != StateWaiting {
		t.Fatalf("expected waiting, got %s", r.State())
	}

	// Trial 1 step by step.
	if err := r.StartNextTrial(); err != nil {
		t.Fatalf("StartNextTrial: %v", err)
	}
	if r.State() != StateTrialInProgress {
		t.Fatalf("expected trial in progress, got %s", r.State())
	}
	c, err := r.HandleSample(turn())
	if err != nil {
		t.Fatalf("HandleSample: %v", err)
	}
	if math.Abs(c-5) > 1e-9 {
		t.Fatalf("expected correction 5, got %f", c)
	}
	if err := r.CompleteTrial(); err != nil {
		t.Fatalf("CompleteTrial: %v", err)
	}
	if r.State() != StateWaitingForResponse {
		t.Fatalf("expected waiting for response, got %s", r.State())
	}
	report, err := r.SubmitResponse(true)
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if !report.Continue || report.Record.TrialNumber != 1 || report.Motion.Frames != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if r.State() != StateTrialComplete {
		t.Fatalf("expected trial complete, got %s", r.State())
	}
	if len(f.clock.pauses) != 1 || f.clock.pauses[0] != time.Second {
		t.Fatalf("expected one 1s pause, got %v", f.clock.pauses)
	}

	// Trials 2-4: correct lowers to 1.45, then two misses; the first miss reverses.
	runTrial(t, r, true)
	runTrial(t, r, false)
	last := runTrial(t, r, false)
	if last.Continue {
		t.Fatal("max trials reached, experiment should stop")
	}
	if r.State() != StateExperimentComplete {
		t.Fatalf("expected complete, got %s", r.State())
	}

	out, ok := r.Outcome()
	if !ok {
		t.Fatal("expected outcome")
	}
	if out.TotalTrials != 4 || out.TotalReversals != 1 {
		t.Fatalf("unexpected totals: %+v", out)
	}
	if math.Abs(out.Threshold-1.475) > 1e-9 {
		t.Fatalf("expected threshold 1.475, got %f", out.Threshold)
	}
	if out.Gate.Action != "accept" {
		t.Fatalf("expected gate accept, got %s: %s", out.Gate.Action, out.Gate.Reason)
	}

	// Corrections carry sequence and trial numbers.
	if len(f.sink.corrections) != 4 {
		t.Fatalf("expected 4 corrections, got %d", len(f.sink.corrections))
	}
	for i, corr := range f.sink.corrections {
		if corr.Seq != uint64(i+1) || corr.Trial != i+1 || corr.Condition != redirect.KindRotation {
			t.Fatalf("correction %d: unexpected %+v", i, corr)
		}
	}

	// Persistence.
	rec, err := f.store.GetSession(r.SessionID())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !rec.Finished() || rec.TotalTrials != 4 || rec.GateAction != "accept" {
		t.Fatalf("unexpected stored session: %+v", rec)
	}
	trials, err := f.store.Trials(r.SessionID())
	if err != nil {
		t.Fatalf("Trials: %v", err)
	}
	if len(trials) != 4 || !trials[2].WasReversal {
		t.Fatalf("unexpected stored trials: %+v", trials)
	}
	events, err := logging.ListEvents(f.store.DB(), r.SessionID())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	kinds := countKinds(events)
	if kinds[logging.KindTrialStart] != 4 || kinds[logging.KindTrialEnd] != 4 || kinds[logging.KindSessionFinished] != 1 {
		t.Fatalf("unexpected event counts: %v", kinds)
	}

	// CSV artifact.
	if out.CSVPath == "" {
		t.Fatal("expected CSV path")
	}
	if filepath.Base(out.CSVPath) != "T01_Rotation_staircase.csv" {
		t.Fatalf("unexpected CSV name %s", out.CSVPath)
	}
	if _, err := os.Stat(out.CSVPath); err != nil {
		t.Fatalf("stat CSV: %v", err)
	}
}

func TestRunnerOutOfOrderOperations(t *testing.T) {
	f := newFixture(t, testConfig())
	r := f.runner

	if err := r.CompleteTrial(); !errors.Is(err, ErrState) || !errors.Is(err, staircase.ErrProtocolViolation) {
		t.Fatalf("expected ErrState, got %v", err)
	}
	if _, err := r.SubmitResponse(true); !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
	if err := r.StartNextTrial(); err != nil {
		t.Fatalf("StartNextTrial: %v", err)
	}
	if err := r.StartNextTrial(); !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState for double start, got %v", err)
	}
	if _, err := r.SubmitResponse(true); !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState before motion ends, got %v", err)
	}

	events, err := logging.ListEvents(f.store.DB(), r.SessionID())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if n := countKinds(events)[logging.KindProtocolViolation]; n != 4 {
		t.Fatalf("expected 4 protocol violations, got %d", n)
	}
}

func TestRunnerIgnoresSamplesOutsideTrial(t *testing.T) {
	f := newFixture(t, testConfig())
	c, err := f.runner.HandleSample(turn())
	if err != nil || c != 0 {
		t.Fatalf("expected (0, nil), got (%f, %v)", c, err)
	}
	if len(f.sink.corrections) != 0 {
		t.Fatal("no correction should be published outside a trial")
	}
}

func TestRunnerForceEnd(t *testing.T) {
	f := newFixture(t, testConfig())
	r := f.runner
	if err := r.StartNextTrial(); err != nil {
		t.Fatalf("StartNextTrial: %v", err)
	}
	if err := r.ForceEnd(); err != nil {
		t.Fatalf("ForceEnd: %v", err)
	}
	out, ok := r.Outcome()
	if !ok || !out.Forced {
		t.Fatalf("expected forced outcome, got %+v", out)
	}
	if !out.InsufficientData || out.Threshold != 1.5 {
		t.Fatalf("expected fallback threshold 1.5, got %f", out.Threshold)
	}
	if out.Gate.Action != "reject" {
		t.Fatalf("expected gate reject on empty session, got %s", out.Gate.Action)
	}
	if err := r.ForceEnd(); err != nil {
		t.Fatalf("second ForceEnd should be a no-op: %v", err)
	}

	events, err := logging.ListEvents(f.store.DB(), r.SessionID())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if countKinds(events)[logging.KindInsufficientData] != 1 {
		t.Fatal("expected insufficient_data event")
	}
}

func TestRunnerClampedCurvatureRadius(t *testing.T) {
	cfg := testConfig()
	cfg.Condition = "curvature"
	cfg.Staircase.Curvature.InitialGain = 0.05
	cfg.Staircase.Curvature.CatchProbability = 0
	f := newFixture(t, cfg)

	if err := f.runner.StartNextTrial(); err != nil {
		t.Fatalf("StartNextTrial: %v", err)
	}
	if got := f.runner.Session().Strategy().Parameter(); got != 0.1 {
		t.Fatalf("expected radius clamped to 0.1, got %f", got)
	}
	events, err := logging.ListEvents(f.store.DB(), f.runner.SessionID())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if countKinds(events)[logging.KindParamClamped] != 1 {
		t.Fatal("expected param_clamped event")
	}
}

func TestRunnerWithoutOptionalDeps(t *testing.T) {
	r, err := NewRunner(testConfig(), Deps{Clock: &fakeClock{}, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	for i := 0; i < 4; i++ {
		runTrial(t, r, i%2 == 0)
	}
	out, ok := r.Outcome()
	if !ok || out.SessionID != "" || out.CSVPath != "" {
		t.Fatalf("unexpected outcome without store/exporter: %+v", out)
	}
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Condition = "sideways"
	if _, err := NewRunner(cfg, Deps{}); err == nil {
		t.Fatal("expected config error")
	}
}

// #endregion lifecycle-tests

// #region run-tests
func TestRunProcessesCommandsAndSamples(t *testing.T) {
	f := newFixture(t, testConfig())
	samples := make(chan redirect.MotionSample)
	commands := make(chan Command)

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.runner.Run(context.Background(), samples, commands)
		done <- result{out, err}
	}()

	// A sample before the first trial is consumed without effect, and an
	// early response is ignored.
	samples <- turn()
	commands <- Command{Kind: CmdRespond, Detected: true}
	commands <- Command{Kind: CmdStart}
	for _, detected := range []bool{true, true, false, false} {
		samples <- turn()
		samples <- turn()
		commands <- Command{Kind: CmdCompleteTrial}
		commands <- Command{Kind: CmdRespond, Detected: detected}
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run: %v", res.err)
		}
		if res.out.TotalTrials != 4 || res.out.Forced {
			t.Fatalf("unexpected outcome: %+v", res.out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
	}
	if len(f.sink.corrections) != 8 {
		t.Fatalf("expected 8 corrections, got %d", len(f.sink.corrections))
	}
	if len(f.clock.pauses) != 3 {
		t.Fatalf("expected 3 inter-trial pauses, got %d", len(f.clock.pauses))
	}
}

func TestRunCancelForceEnds(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.runner.Run(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !out.Forced {
		t.Fatal("expected forced outcome")
	}
	rec, err := f.store.GetSession(f.runner.SessionID())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !rec.Finished() {
		t.Fatal("cancelled session should still be persisted as finished")
	}
}

func TestRunClosedCommandsForceEnds(t *testing.T) {
	f := newFixture(t, testConfig())
	commands := make(chan Command)
	close(commands)

	out, err := f.runner.Run(context.Background(), nil, commands)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Forced {
		t.Fatal("expected forced outcome")
	}
}

// #endregion run-tests
