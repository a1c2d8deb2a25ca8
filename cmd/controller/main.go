package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/config"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/experiment"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/export"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/logging"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/state"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/tracking"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("RDW_CONFIG", ""), "YAML experiment config (defaults when empty)")
	participant := flag.String("participant", "", "override participant_id")
	condition := flag.String("condition", "", "override condition (rotation|curvature)")
	seed := flag.Uint64("seed", 0, "override seed (0 keeps the configured seed)")
	simulate := flag.Bool("simulate", false, "run with a simulated walker and observer instead of MQTT and stdin")
	frames := flag.Int("frames", 180, "tracking frames per simulated trial")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *participant != "" {
		cfg.ParticipantID = *participant
	}
	if *condition != "" {
		cfg.Condition = *condition
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	cfg.Storage.DBPath = envOr("RDW_DB", cfg.Storage.DBPath)
	cfg.MQTT.Broker = envOr("RDW_BROKER", cfg.MQTT.Broker)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, os.Stderr)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	store, err := state.NewStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	exporter, err := export.NewWriter(cfg.Storage.OutputDir, cfg.ParticipantID, time.Now())
	if err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out experiment.Outcome
	if *simulate {
		out, err = runSimulated(ctx, cfg, store, exporter, logger, *frames)
	} else {
		out, err = runLive(ctx, cfg, store, exporter, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("experiment failed: %v", err)
	}

	printOutcome(out)
	if path, err := exporter.WriteSummary(); err != nil {
		log.Printf("summary export error: %v", err)
	} else {
		fmt.Printf("  Summary:   %s\n", path)
	}
}

// #endregion main

// #region simulate
func runSimulated(ctx context.Context, cfg config.Config, store *state.Store, exporter *export.Writer, logger *slog.Logger, frames int) (experiment.Outcome, error) {
	walker := tracking.NewSimulator(tracking.DefaultSimulatorConfig())
	runner, err := experiment.NewRunner(cfg, experiment.Deps{
		Store:    store,
		Exporter: exporter,
		Sink:     walker,
		Logger:   logger,
	})
	if err != nil {
		return experiment.Outcome{}, err
	}

	fmt.Printf("RDW threshold controller (simulated %s)\n", runner.Kind())
	fmt.Printf("  DB: %s | Session: %s\n\n", cfg.Storage.DBPath, shortID(runner.SessionID()))

	sim := experiment.Simulation{
		Runner:         runner,
		Walker:         walker,
		Observer:       experiment.NewSimulatedObserver(cfg.Observer, runner.Kind(), cfg.Seed+1),
		FramesPerTrial: frames,
		OnTrial: func(rep experiment.TrialReport) {
			rec := rep.Record
			fmt.Printf("[trial %2d] gain=%.3f catch=%-5t detected=%-5t reversal=%-5t injected=%+.2f°\n",
				rec.TrialNumber, rec.GainValue, rec.IsCatchTrial, rec.ResponseCorrect,
				rec.WasReversal, rep.Motion.NetInjected)
		},
	}
	return sim.Run(ctx)
}

// #endregion simulate

// #region live
func runLive(ctx context.Context, cfg config.Config, store *state.Store, exporter *export.Writer, logger *slog.Logger) (experiment.Outcome, error) {
	if !cfg.MQTT.Enabled {
		return experiment.Outcome{}, errors.New("mqtt.enabled is false; enable it or pass --simulate")
	}

	client, err := tracking.DialMQTT(tracking.MQTTOptions{
		Broker:          cfg.MQTT.Broker,
		ClientID:        cfg.MQTT.ClientID,
		MotionTopic:     cfg.MQTT.MotionTopic,
		CorrectionTopic: cfg.MQTT.CorrectionTopic,
	}, logger)
	if err != nil {
		return experiment.Outcome{}, fmt.Errorf("connect to tracker at %s: %w", cfg.MQTT.Broker, err)
	}
	defer client.Close()

	runner, err := experiment.NewRunner(cfg, experiment.Deps{
		Store:    store,
		Exporter: exporter,
		Sink:     client,
		Logger:   logger,
	})
	if err != nil {
		return experiment.Outcome{}, err
	}

	fmt.Printf("RDW threshold controller ready (%s).\n", runner.Kind())
	fmt.Printf("  DB: %s | Broker: %s | Session: %s\n", cfg.Storage.DBPath, cfg.MQTT.Broker, shortID(runner.SessionID()))
	printHelp()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	commands := make(chan experiment.Command)
	lines := readLines(os.Stdin)

	var out experiment.Outcome
	g.Go(func() error {
		defer cancel()
		var err error
		out, err = runner.Run(runCtx, client.Samples(), commands)
		return err
	})
	g.Go(func() error {
		defer close(commands)
		return repl(gctx, lines, commands)
	})

	err = g.Wait()
	return out, err
}

// repl turns operator lines into commands until quit, EOF or ctx is done.
func repl(ctx context.Context, lines <-chan string, commands chan<- experiment.Command) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.ToLower(strings.TrimSpace(l))
		}
		if line == "" {
			continue
		}

		var cmd experiment.Command
		switch line {
		case "start", "s":
			cmd = experiment.Command{Kind: experiment.CmdStart}
		case "done", "d":
			cmd = experiment.Command{Kind: experiment.CmdCompleteTrial}
		case "yes", "y":
			cmd = experiment.Command{Kind: experiment.CmdRespond, Detected: true}
		case "no", "n":
			cmd = experiment.Command{Kind: experiment.CmdRespond, Detected: false}
		case "quit", "exit", "q":
			return nil
		case "help", "?":
			printHelp()
			continue
		default:
			fmt.Printf("unknown command %q\n", line)
			continue
		}

		select {
		case commands <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

// readLines scans r on its own goroutine. Stdin reads cannot be cancelled,
// so the goroutine is left behind when the experiment ends first.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func printHelp() {
	fmt.Println("Commands: start | done (motion over) | yes / no (detected?) | quit")
}

// #endregion live

// #region output
func printOutcome(out experiment.Outcome) {
	fmt.Println()
	fmt.Printf("Session %s (%s)\n", shortID(out.SessionID), out.Condition)
	threshold := strconv.FormatFloat(out.Threshold, 'f', 4, 64)
	if out.InsufficientData {
		threshold += " (insufficient data: current gain)"
	}
	if out.Condition == redirect.KindCurvature {
		threshold += " m"
	}
	fmt.Printf("  Threshold: %s\n", threshold)
	fmt.Printf("  Trials:    %d | Reversals: %d | Forced: %t\n", out.TotalTrials, out.TotalReversals, out.Forced)
	fmt.Printf("  Gate:      %s (%s) score=%.3f\n", out.Gate.Action, out.Gate.Reason, out.Gate.SoftScore)
	if out.CSVPath != "" {
		fmt.Printf("  CSV:       %s\n", out.CSVPath)
	}
}

// #endregion output

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
