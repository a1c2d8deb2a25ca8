package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/replay"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to rdw.db (DB mode)")
	sessionID := flag.String("session", "", "session to replay (DB mode, default latest)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/rdw.db [--session id]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *sessionID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

func runDBMode(dbPath, sessionID string) int {
	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	rec, err := resolveSession(store, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "find session: %v\n", err)
		return 2
	}

	cfg, err := config.FromSnapshot([]byte(rec.ConfigJSON))
	if err != nil {
		fmt.Fprintf(os.Stderr, "session %s: %v\n", rec.SessionID, err)
		return 2
	}
	kind, err := redirect.ParseKind(rec.Condition)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session %s: %v\n", rec.SessionID, err)
		return 2
	}

	trials, err := store.Trials(rec.SessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load trials: %v\n", err)
		return 2
	}
	if len(trials) == 0 {
		fmt.Fprintf(os.Stderr, "session %s has no trials\n", rec.SessionID)
		return 2
	}
	points, err := store.ReversalPoints(rec.SessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load reversal points: %v\n", err)
		return 2
	}

	res, err := replay.Replay(cfg.StaircaseFor(kind), trials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	fmt.Printf("Session %s (%s, participant %s)\n\n", rec.SessionID, kind, rec.ParticipantID)
	mismatches := res.Mismatches
	if rec.Finished() {
		mismatches = append(mismatches, replay.ComparePoints(points, res.ReversalPoints)...)
	}
	return printComparison(trials, res, mismatches)
}

// resolveSession returns the named session or the most recent one.
func resolveSession(store *state.Store, id string) (state.SessionRecord, error) {
	if id != "" {
		return store.GetSession(id)
	}
	recs, err := store.ListSessions(1)
	if err != nil {
		return state.SessionRecord{}, err
	}
	if len(recs) == 0 {
		return state.SessionRecord{}, fmt.Errorf("no sessions recorded")
	}
	return recs[0], nil
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	res, mismatches, err := f.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	return printComparison(f.Trials, res, mismatches)
}

// #endregion fixture-mode

// #region output

// printComparison outputs a per-trial table and returns the exit code.
func printComparison(recorded []staircase.TrialRecord, res replay.Result, mismatches []replay.Mismatch) int {
	fmt.Printf("%-6s| %-10s| %-10s| %-6s| %-9s| %-9s| %s\n",
		"Trial", "Recorded", "Replayed", "Catch", "Detected", "Reversal", "Match")
	fmt.Printf("%-6s+%-10s+%-10s+%-6s+%-9s+%-9s+%s\n",
		"------", "-----------", "-----------", "-------", "----------", "----------", "------")

	bad := make(map[int]bool)
	for _, m := range mismatches {
		bad[m.TrialNumber] = true
	}

	for i, rec := range recorded {
		replayed := "-"
		if i < len(res.Trials) {
			replayed = fmt.Sprintf("%.4f", res.Trials[i].GainValue)
		}
		match := "OK"
		if bad[rec.TrialNumber] {
			match = "DIFF"
		}
		fmt.Printf("%-6d| %-10.4f| %-10s| %-6s| %-9s| %-9s| %s\n",
			rec.TrialNumber, rec.GainValue, replayed,
			mark(rec.IsCatchTrial), mark(rec.ResponseCorrect), mark(rec.WasReversal), match)
	}

	sum := replay.Summarize(res)
	threshold := fmt.Sprintf("%.4f", sum.Threshold)
	if res.InsufficientData {
		threshold += " (insufficient data)"
	}
	fmt.Printf("\nSummary: %d trials (%d catch), %d reversals, threshold %s, %d mismatches\n",
		sum.TotalTrials, sum.CatchTrials, sum.TotalReversals, threshold, len(mismatches))

	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	if len(mismatches) > 0 {
		return 1
	}
	return 0
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// #endregion output
