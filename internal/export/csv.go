package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region types
// Result is one finished staircase as written to disk.
type Result struct {
	ParticipantID  string
	Condition      string // display name, e.g. "Rotation"
	AgeGroup       int    // 0 = child, 1 = adult
	Threshold      float64
	TotalTrials    int
	TotalReversals int
	Trials         []staircase.TrialRecord
	ReversalPoints []float64
	Timestamp      time.Time
}

// #endregion types

// #region formatting
const (
	timestampLayout = "2006-01-02 15:04:05"
	dirLayout       = "20060102_150405"
)

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func ageLabel(group int) string {
	if group == 0 {
		return "Child (8-10)"
	}
	return "Adult (20-25)"
}

func ageShort(group int) string {
	if group == 0 {
		return "Child"
	}
	return "Adult"
}

// #endregion formatting

// #region encode
// EncodeStaircase writes the per-condition staircase CSV.
func EncodeStaircase(w io.Writer, r Result) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Participant ID:", r.ParticipantID},
		{"Condition:", r.Condition},
		{"Age Group:", ageLabel(r.AgeGroup)},
		{"Threshold:", f6(r.Threshold)},
		{"Total Trials:", strconv.Itoa(r.TotalTrials)},
		{"Total Reversals:", strconv.Itoa(r.TotalReversals)},
		{"Timestamp:", r.Timestamp.Format(timestampLayout)},
		{},
		{"Trial Data"},
		{"Trial Number", "Gain Value", "Is Catch Trial", "Response Correct", "Was Reversal", "Step Size"},
	}
	for _, t := range r.Trials {
		rows = append(rows, []string{
			strconv.Itoa(t.TrialNumber),
			f6(t.GainValue),
			yesNo(t.IsCatchTrial),
			yesNo(t.ResponseCorrect),
			yesNo(t.WasReversal),
			f6(t.StepSizeUsed),
		})
	}
	rows = append(rows, []string{}, []string{"Reversal Points"})
	for _, p := range r.ReversalPoints {
		rows = append(rows, []string{f6(p)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write staircase csv: %w", err)
	}
	return nil
}

// EncodeSummary writes one line per condition for a participant.
func EncodeSummary(w io.Writer, participantID string, started time.Time, results []Result) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Participant ID:", participantID},
		{"Experiment Date:", started.Format(timestampLayout)},
		{},
		{"Condition", "Age Group", "Threshold", "Total Trials", "Total Reversals"},
	}
	for _, r := range results {
		rows = append(rows, []string{
			r.Condition,
			ageShort(r.AgeGroup),
			f6(r.Threshold),
			strconv.Itoa(r.TotalTrials),
			strconv.Itoa(r.TotalReversals),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write summary csv: %w", err)
	}
	return nil
}

// #endregion encode

// #region writer
// Writer owns one participant's output directory and accumulates results
// for the summary file.
type Writer struct {
	dir         string
	participant string
	started     time.Time
	results     []Result
}

// NewWriter creates <baseDir>/<participant>_<yyyyMMdd_HHmmss>.
func NewWriter(baseDir, participantID string, started time.Time) (*Writer, error) {
	dir := filepath.Join(baseDir, participantID+"_"+started.Format(dirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir, participant: participantID, started: started}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Results returns the results written so far.
func (w *Writer) Results() []Result {
	out := make([]Result, len(w.results))
	copy(out, w.results)
	return out
}

// WriteStaircase writes <participant>_<condition>_staircase.csv and records
// the result for the summary.
func (w *Writer) WriteStaircase(r Result) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s_staircase.csv", w.participant, r.Condition))
	if err := writeFile(path, func(f io.Writer) error { return EncodeStaircase(f, r) }); err != nil {
		return "", err
	}
	w.results = append(w.results, r)
	return path, nil
}

// WriteSummary writes <participant>_summary.csv over all recorded results.
func (w *Writer) WriteSummary() (string, error) {
	path := filepath.Join(w.dir, w.participant+"_summary.csv")
	err := writeFile(path, func(f io.Writer) error {
		return EncodeSummary(f, w.participant, w.started, w.results)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// #endregion writer
