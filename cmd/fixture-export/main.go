package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/replay"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to rdw.db")
	sessionID := flag.String("session", "", "session to export (default latest)")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/rdw.db --out path/to/fixture.json [--session id] [--description text]")
		os.Exit(2)
	}

	if err := run(*dbPath, *sessionID, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, sessionID, outPath, description string) error {
	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	var rec state.SessionRecord
	if sessionID != "" {
		rec, err = store.GetSession(sessionID)
	} else {
		var recs []state.SessionRecord
		recs, err = store.ListSessions(1)
		if err == nil && len(recs) == 0 {
			err = fmt.Errorf("no sessions recorded")
		}
		if err == nil {
			rec = recs[0]
		}
	}
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}

	cfg, err := config.FromSnapshot([]byte(rec.ConfigJSON))
	if err != nil {
		return fmt.Errorf("session %s: %w", rec.SessionID, err)
	}
	kind, err := redirect.ParseKind(rec.Condition)
	if err != nil {
		return fmt.Errorf("session %s: %w", rec.SessionID, err)
	}

	trials, err := store.Trials(rec.SessionID)
	if err != nil {
		return fmt.Errorf("load trials: %w", err)
	}
	if len(trials) == 0 {
		return fmt.Errorf("session %s has no trials", rec.SessionID)
	}
	points, err := store.ReversalPoints(rec.SessionID)
	if err != nil {
		return fmt.Errorf("load reversal points: %w", err)
	}

	if description == "" {
		description = fmt.Sprintf("Recorded %s session for %s: %d trials", kind, rec.ParticipantID, len(trials))
	}
	f := &replay.Fixture{
		Description: description,
		SessionID:   rec.SessionID,
		Condition:   string(kind),
		Config:      replay.FixtureConfigFrom(cfg.StaircaseFor(kind)),
		Trials:      trials,
	}

	// Finished sessions carry their recorded outcome; running ones are
	// completed from a replay of what was stored so far.
	if rec.Finished() {
		f.Expected = replay.FixtureExpected{
			Threshold:        rec.Threshold,
			ReversalPoints:   points,
			TotalTrials:      rec.TotalTrials,
			TotalReversals:   rec.TotalReversals,
			InsufficientData: len(points) == 0,
		}
	} else {
		res, err := replay.Replay(cfg.StaircaseFor(kind), trials)
		if err != nil {
			return fmt.Errorf("replay session %s: %w", rec.SessionID, err)
		}
		f.Expected = replay.FixtureExpected{
			Threshold:        res.Threshold,
			ReversalPoints:   res.ReversalPoints,
			TotalTrials:      len(res.Trials),
			TotalReversals:   len(res.ReversalPoints),
			InsufficientData: res.InsufficientData,
		}
	}
	if f.Expected.ReversalPoints == nil {
		f.Expected.ReversalPoints = []float64{}
	}

	if err := replay.WriteFixture(outPath, f); err != nil {
		return err
	}
	fmt.Printf("Wrote fixture to %s (session %s, %d trials, %d reversals)\n",
		outPath, shortID(rec.SessionID), len(trials), f.Expected.TotalReversals)
	return nil
}

// #endregion extract

// #region helpers

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
