package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/logging"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to rdw.db")
	last := flag.Int("last", 20, "show N most recent sessions")
	session := flag.String("session", "", "show single session detail")
	events := flag.Bool("events", false, "include the event log in session detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/rdw.db [--last N] [--session id] [--events] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *session != "" {
		if err := runDetailMode(store, *session, *events, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(store, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SessionID   string   `json:"session_id"`
	Participant string   `json:"participant_id"`
	Condition   string   `json:"condition"`
	AgeGroup    int      `json:"age_group"`
	Trials      int      `json:"total_trials"`
	Reversals   int      `json:"total_reversals"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Gate        string   `json:"gate,omitempty"`
	StartedAt   string   `json:"started_at"`
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	recs, err := store.ListSessions(last)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no sessions found")
		return nil
	}

	// Store returns newest first; print chronologically.
	rows := make([]listRow, len(recs))
	for i, rec := range recs {
		lr := listRow{
			SessionID:   rec.SessionID,
			Participant: rec.ParticipantID,
			Condition:   rec.Condition,
			AgeGroup:    rec.AgeGroup,
			Trials:      rec.TotalTrials,
			Reversals:   rec.TotalReversals,
			Gate:        rec.GateAction,
			StartedAt:   rec.StartedAt.Format("2006-01-02T15:04:05Z"),
		}
		if rec.Finished() {
			th := rec.Threshold
			lr.Threshold = &th
		}
		rows[len(recs)-1-i] = lr
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-12s  %-10s  %3s  %6s  %9s  %9s  %-8s  %s\n",
		"Session", "Participant", "Condition", "Age", "Trials", "Reversals", "Threshold", "Gate", "Started")
	fmt.Printf("%-12s+-%-12s+-%-10s+-%3s+-%6s+-%9s+-%9s+-%-8s+-%s\n",
		"------------", "------------", "----------", "---", "------", "---------", "---------", "--------", "--------------------")
	for _, r := range rows {
		threshold, gateAction := "-", "running"
		if r.Threshold != nil {
			threshold = fmt.Sprintf("%.4f", *r.Threshold)
			gateAction = r.Gate
		}
		fmt.Printf("%-12s  %-12s  %-10s  %3s  %6d  %9d  %9s  %-8s  %s\n",
			shortID(r.SessionID), r.Participant, r.Condition, ageLabel(r.AgeGroup),
			r.Trials, r.Reversals, threshold, gateAction, r.StartedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	SessionID      string                  `json:"session_id"`
	Participant    string                  `json:"participant_id"`
	Condition      string                  `json:"condition"`
	AgeGroup       int                     `json:"age_group"`
	Seed           uint64                  `json:"seed"`
	StartedAt      string                  `json:"started_at"`
	FinishedAt     string                  `json:"finished_at,omitempty"`
	Threshold      float64                 `json:"threshold"`
	GateAction     string                  `json:"gate_action,omitempty"`
	GateReason     string                  `json:"gate_reason,omitempty"`
	ReversalPoints []float64               `json:"reversal_points"`
	ReversalMean   float64                 `json:"reversal_mean"`
	ReversalStd    float64                 `json:"reversal_std"`
	Trials         []staircase.TrialRecord `json:"trials"`
	Events         []eventRow              `json:"events,omitempty"`
}

type eventRow struct {
	Trial     int             `json:"trial_number"`
	Kind      string          `json:"kind"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func runDetailMode(store *state.Store, sessionID string, withEvents, jsonOut bool) error {
	rec, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	trials, err := store.Trials(rec.SessionID)
	if err != nil {
		return err
	}
	points, err := store.ReversalPoints(rec.SessionID)
	if err != nil {
		return err
	}

	out := detailOutput{
		SessionID:      rec.SessionID,
		Participant:    rec.ParticipantID,
		Condition:      rec.Condition,
		AgeGroup:       rec.AgeGroup,
		Seed:           rec.Seed,
		StartedAt:      rec.StartedAt.Format("2006-01-02T15:04:05Z"),
		Threshold:      rec.Threshold,
		GateAction:     rec.GateAction,
		GateReason:     rec.GateReason,
		ReversalPoints: points,
		Trials:         trials,
	}
	if rec.Finished() {
		out.FinishedAt = rec.FinishedAt.Format("2006-01-02T15:04:05Z")
	}
	if len(points) > 1 {
		out.ReversalMean, out.ReversalStd = stat.MeanStdDev(points, nil)
	} else if len(points) == 1 {
		out.ReversalMean = points[0]
	}

	if withEvents {
		evs, err := logging.ListEvents(store.DB(), rec.SessionID)
		if err != nil {
			return err
		}
		for _, ev := range evs {
			er := eventRow{
				Trial:     ev.TrialNumber,
				Kind:      string(ev.Kind),
				CreatedAt: ev.CreatedAt.Format("2006-01-02T15:04:05Z"),
			}
			if ev.DetailJSON != "" {
				er.Detail = json.RawMessage(ev.DetailJSON)
			}
			out.Events = append(out.Events, er)
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Session:     %s\n", out.SessionID)
	fmt.Printf("Participant: %s (%s)\n", out.Participant, ageLabel(out.AgeGroup))
	fmt.Printf("Condition:   %s\n", out.Condition)
	fmt.Printf("Seed:        %d\n", out.Seed)
	fmt.Printf("Started:     %s\n", out.StartedAt)
	if out.FinishedAt == "" {
		fmt.Printf("Finished:    running\n")
	} else {
		fmt.Printf("Finished:    %s\n", out.FinishedAt)
		fmt.Printf("Threshold:   %.4f\n", out.Threshold)
		fmt.Printf("Gate:        %s (%s)\n", out.GateAction, out.GateReason)
	}

	fmt.Printf("\n%-6s  %8s  %-5s  %-8s  %-8s  %6s\n", "Trial", "Gain", "Catch", "Detected", "Reversal", "Step")
	fmt.Printf("%-6s+-%8s+-%-5s+-%-8s+-%-8s+-%6s\n", "------", "--------", "-----", "--------", "--------", "------")
	for _, t := range trials {
		fmt.Printf("%-6d  %8.4f  %-5s  %-8s  %-8s  %6.3f\n",
			t.TrialNumber, t.GainValue, mark(t.IsCatchTrial), mark(t.ResponseCorrect), mark(t.WasReversal), t.StepSizeUsed)
	}

	fmt.Printf("\nReversal points (%d):", len(points))
	for _, p := range points {
		fmt.Printf(" %.4f", p)
	}
	fmt.Println()
	if len(points) > 1 {
		fmt.Printf("  mean %.4f  std %.4f\n", out.ReversalMean, out.ReversalStd)
	}

	if withEvents {
		fmt.Printf("\nEvents (%d):\n", len(out.Events))
		for _, ev := range out.Events {
			fmt.Printf("  %s  trial %-3d  %-18s  %s\n", ev.CreatedAt, ev.Trial, ev.Kind, strings.TrimSpace(string(ev.Detail)))
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func ageLabel(group int) string {
	if group == 0 {
		return "child"
	}
	return "adult"
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
