package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.InterTrialPause != time.Second {
		t.Fatalf("expected 1s pause, got %s", cfg.InterTrialPause)
	}
	if diff := cmp.Diff(staircase.DefaultConfig(), cfg.StaircaseFor(redirect.KindRotation)); diff != "" {
		t.Fatalf("rotation staircase mismatch (-want +got):\n%s", diff)
	}
	curv := cfg.StaircaseFor(redirect.KindCurvature)
	if curv.InitialGain != 6.0 || curv.CoarseStep != 0.04 || curv.FineStep != 0.01 {
		t.Fatalf("unexpected curvature staircase: %+v", curv)
	}
}

func TestDecodeOverridesDefaults(t *testing.T) {
	doc := `
participant_id: P17
age_group: 0
condition: curvature
seed: 99
inter_trial_pause: 1500ms
staircase:
  curvature:
    initial_gain: 5.5
    coarse_step: 0.04
    fine_step: 0.01
    reversals_for_fine_step: 2
    max_trials: 30
    min_reversals: 8
    catch_probability: 0.2
    catch_gain: 2
curvature:
  rotation_cap: 10
  radius_floor: 0.1
  movement_threshold: 0.2
  bearing_threshold: 160
  temp_target_distance: 4
`
	cfg, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.ParticipantID != "P17" || cfg.AgeGroup != 0 || cfg.Seed != 99 {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if cfg.Kind() != redirect.KindCurvature {
		t.Fatalf("expected curvature, got %s", cfg.Kind())
	}
	if cfg.InterTrialPause != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s pause, got %s", cfg.InterTrialPause)
	}
	sc := cfg.StaircaseFor(redirect.KindCurvature)
	if sc.MaxTrials != 30 || sc.MinReversals != 8 || sc.CatchProbability != 0.2 {
		t.Fatalf("unexpected staircase: %+v", sc)
	}
	strat := cfg.CurvatureStrategy()
	if strat.Radius != 5.5 || strat.RotationCap != 10 {
		t.Fatalf("unexpected curvature strategy: %+v", strat)
	}
	// Untouched sections keep defaults.
	if cfg.MQTT.MotionTopic != "rdw/motion" {
		t.Fatalf("expected default motion topic, got %q", cfg.MQTT.MotionTopic)
	}
	if cfg.RotationStrategy().Gain != 1.5 {
		t.Fatalf("expected rotation gain 1.5, got %f", cfg.RotationStrategy().Gain)
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("empty document should yield defaults (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("participant_id: P1\nwobble: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty participant", func(c *Config) { c.ParticipantID = " " }},
		{"age group", func(c *Config) { c.AgeGroup = 2 }},
		{"condition", func(c *Config) { c.Condition = "translation" }},
		{"negative pause", func(c *Config) { c.InterTrialPause = -time.Second }},
		{"fine above coarse", func(c *Config) { c.Staircase.Rotation.FineStep = 0.1 }},
		{"catch probability", func(c *Config) { c.Staircase.Curvature.CatchProbability = 1.5 }},
		{"zero max trials", func(c *Config) { c.Staircase.Rotation.MaxTrials = 0 }},
		{"radius floor", func(c *Config) { c.Curvature.RadiusFloor = 0 }},
		{"bearing", func(c *Config) { c.Curvature.BearingThreshold = 200 }},
		{"miss rate", func(c *Config) { c.Gate.MaxCatchMissRate = -0.1 }},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }},
		{"lapse", func(c *Config) { c.Observer.Lapse = 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := os.WriteFile(path, []byte("participant_id: P42\ncondition: rotation\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParticipantID != "P42" {
		t.Fatalf("expected P42, got %q", cfg.ParticipantID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromSnapshotRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.ParticipantID = "P07"
	cfg.Condition = "curvature"
	cfg.Seed = 99
	cfg.Staircase.Curvature.InitialGain = 7.5
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := FromSnapshot(data)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestFromSnapshotKeepsDefaults(t *testing.T) {
	got, err := FromSnapshot([]byte(`{"ParticipantID":"P08"}`))
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if got.ParticipantID != "P08" || got.Seed != 1 || got.Kind() != redirect.KindRotation {
		t.Fatalf("unexpected config: %+v", got)
	}

	if _, err := FromSnapshot([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := FromSnapshot([]byte(`{"Condition":"walk"}`)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGateThresholds(t *testing.T) {
	cfg := Default()
	cfg.Gate.MaxCatchMissRate = 0.3
	g := cfg.GateThresholds()
	if g.MaxCatchMissRate != 0.3 || g.MinCatchTrials != 2 || g.TargetReversals != 6 {
		t.Fatalf("unexpected gate config: %+v", g)
	}
}
