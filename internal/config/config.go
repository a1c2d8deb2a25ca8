package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/gate"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region types
// Config is one experiment run as read from YAML.
type Config struct {
	ParticipantID   string          `yaml:"participant_id"`
	AgeGroup        int             `yaml:"age_group"` // 0 = child, 1 = adult
	Condition       string          `yaml:"condition"` // "rotation" | "curvature"
	Seed            uint64          `yaml:"seed"`
	InterTrialPause time.Duration   `yaml:"inter_trial_pause"`
	Storage         StorageConfig   `yaml:"storage"`
	Logging         LoggingConfig   `yaml:"logging"`
	MQTT            MQTTConfig      `yaml:"mqtt"`
	Staircase       StaircaseSet    `yaml:"staircase"`
	Rotation        RotationConfig  `yaml:"rotation"`
	Curvature       CurvatureConfig `yaml:"curvature"`
	Gate            GateConfig      `yaml:"gate"`
	Observer        ObserverConfig  `yaml:"observer"`
}

type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	MotionTopic     string `yaml:"motion_topic"`
	CorrectionTopic string `yaml:"correction_topic"`
}

// StaircaseSet holds one staircase per condition.
type StaircaseSet struct {
	Rotation  StaircaseConfig `yaml:"rotation"`
	Curvature StaircaseConfig `yaml:"curvature"`
}

type StaircaseConfig struct {
	InitialGain          float64 `yaml:"initial_gain"`
	CoarseStep           float64 `yaml:"coarse_step"`
	FineStep             float64 `yaml:"fine_step"`
	ReversalsForFineStep int     `yaml:"reversals_for_fine_step"`
	MaxTrials            int     `yaml:"max_trials"`
	MinReversals         int     `yaml:"min_reversals"`
	CatchProbability     float64 `yaml:"catch_probability"`
	CatchGain            float64 `yaml:"catch_gain"`
}

type RotationConfig struct {
	SpeedThreshold   float64 `yaml:"speed_threshold"`
	FastRotationOnly bool    `yaml:"fast_rotation_only"`
}

type CurvatureConfig struct {
	RadiusFloor        float64 `yaml:"radius_floor"`
	RotationCap        float64 `yaml:"rotation_cap"`
	MovementThreshold  float64 `yaml:"movement_threshold"`
	BearingThreshold   float64 `yaml:"bearing_threshold"`
	TempTargetDistance float64 `yaml:"temp_target_distance"`
}

type GateConfig struct {
	MaxCatchMissRate float64 `yaml:"max_catch_miss_rate"`
	MinCatchTrials   int     `yaml:"min_catch_trials"`
	TargetReversals  int     `yaml:"target_reversals"`
}

// ObserverConfig parameterises the simulated participant used by --simulate.
// Rotation values are in gain units, curvature values in deg/m.
type ObserverConfig struct {
	RotationThreshold  float64 `yaml:"rotation_threshold"`
	RotationSpread     float64 `yaml:"rotation_spread"`
	CurvatureThreshold float64 `yaml:"curvature_threshold"`
	CurvatureSpread    float64 `yaml:"curvature_spread"`
	Lapse              float64 `yaml:"lapse"`
}

// #endregion types

// #region defaults
// Default returns a config with every value set to the experiment defaults.
func Default() Config {
	rot := redirect.DefaultRotationConfig()
	curv := redirect.DefaultCurvatureConfig()
	g := gate.DefaultGateConfig()
	return Config{
		ParticipantID:   "P000",
		AgeGroup:        1,
		Condition:       string(redirect.KindRotation),
		Seed:            1,
		InterTrialPause: time.Second,
		Storage: StorageConfig{
			DBPath:    "rdw.db",
			OutputDir: "ThresholdData",
		},
		Logging: LoggingConfig{Level: "info"},
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost:1883",
			ClientID:        "rdw-controller",
			MotionTopic:     "rdw/motion",
			CorrectionTopic: "rdw/correction",
		},
		Staircase: StaircaseSet{
			Rotation:  fromStaircase(staircase.DefaultConfig()),
			Curvature: fromStaircase(staircase.DefaultCurvatureConfig()),
		},
		Rotation: RotationConfig{
			SpeedThreshold:   rot.SpeedThreshold,
			FastRotationOnly: rot.FastRotationOnly,
		},
		Curvature: CurvatureConfig{
			RadiusFloor:        curv.RadiusFloor,
			RotationCap:        curv.RotationCap,
			MovementThreshold:  curv.MovementThreshold,
			BearingThreshold:   curv.BearingThreshold,
			TempTargetDistance: curv.TempTargetDistance,
		},
		Gate: GateConfig{
			MaxCatchMissRate: g.MaxCatchMissRate,
			MinCatchTrials:   g.MinCatchTrials,
			TargetReversals:  g.TargetReversals,
		},
		Observer: ObserverConfig{
			RotationThreshold:  1.3,
			RotationSpread:     0.05,
			CurvatureThreshold: 9.0,
			CurvatureSpread:    0.5,
			Lapse:              0.02,
		},
	}
}

func fromStaircase(c staircase.Config) StaircaseConfig {
	return StaircaseConfig{
		InitialGain:          c.InitialGain,
		CoarseStep:           c.CoarseStep,
		FineStep:             c.FineStep,
		ReversalsForFineStep: c.ReversalsForFineStep,
		MaxTrials:            c.MaxTrials,
		MinReversals:         c.MinReversals,
		CatchProbability:     c.CatchProbability,
		CatchGain:            c.CatchGain,
	}
}

// #endregion defaults

// #region load
// Load reads a YAML file over Default(). Unknown keys are errors.
func Load(path string) (Config, error) {
	r, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading %s: %w", path, err)
	}
	defer r.Close()

	cfg, err := Decode(r)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over Default() and validates the result.
// An empty document yields the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromSnapshot decodes the JSON copy of a config stored with a session.
// Fields missing from older snapshots keep their defaults.
func FromSnapshot(data []byte) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config snapshot: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config snapshot: %w", err)
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate reports the first invalid value.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ParticipantID) == "" {
		return errors.New("participant_id is required")
	}
	if c.AgeGroup != 0 && c.AgeGroup != 1 {
		return fmt.Errorf("age_group must be 0 (child) or 1 (adult), got %d", c.AgeGroup)
	}
	if _, err := redirect.ParseKind(c.Condition); err != nil {
		return err
	}
	if c.InterTrialPause < 0 {
		return fmt.Errorf("inter_trial_pause must not be negative, got %s", c.InterTrialPause)
	}
	if err := c.Staircase.Rotation.validate("staircase.rotation"); err != nil {
		return err
	}
	if err := c.Staircase.Curvature.validate("staircase.curvature"); err != nil {
		return err
	}
	if c.Rotation.SpeedThreshold < 0 {
		return fmt.Errorf("rotation.speed_threshold must not be negative, got %f", c.Rotation.SpeedThreshold)
	}
	switch {
	case c.Curvature.RadiusFloor <= 0:
		return fmt.Errorf("curvature.radius_floor must be positive, got %f", c.Curvature.RadiusFloor)
	case c.Curvature.RotationCap <= 0:
		return fmt.Errorf("curvature.rotation_cap must be positive, got %f", c.Curvature.RotationCap)
	case c.Curvature.MovementThreshold < 0:
		return fmt.Errorf("curvature.movement_threshold must not be negative, got %f", c.Curvature.MovementThreshold)
	case c.Curvature.BearingThreshold <= 0 || c.Curvature.BearingThreshold > 180:
		return fmt.Errorf("curvature.bearing_threshold must be in (0, 180], got %f", c.Curvature.BearingThreshold)
	case c.Curvature.TempTargetDistance <= 0:
		return fmt.Errorf("curvature.temp_target_distance must be positive, got %f", c.Curvature.TempTargetDistance)
	}
	switch {
	case c.Gate.MaxCatchMissRate < 0 || c.Gate.MaxCatchMissRate > 1:
		return fmt.Errorf("gate.max_catch_miss_rate must be in [0, 1], got %f", c.Gate.MaxCatchMissRate)
	case c.Gate.MinCatchTrials < 1:
		return fmt.Errorf("gate.min_catch_trials must be >= 1, got %d", c.Gate.MinCatchTrials)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.Observer.RotationSpread <= 0 || c.Observer.CurvatureSpread <= 0 {
		return errors.New("observer spreads must be positive")
	}
	if c.Observer.Lapse < 0 || c.Observer.Lapse >= 0.5 {
		return fmt.Errorf("observer.lapse must be in [0, 0.5), got %f", c.Observer.Lapse)
	}
	return nil
}

func (s StaircaseConfig) validate(name string) error {
	if s.FineStep > s.CoarseStep {
		return fmt.Errorf("%s: fine_step %f exceeds coarse_step %f", name, s.FineStep, s.CoarseStep)
	}
	if err := s.Engine().Validate(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// #endregion validate

// #region conversions
// Kind returns the parsed condition. Call after Validate.
func (c Config) Kind() redirect.Kind {
	k, _ := redirect.ParseKind(c.Condition)
	return k
}

// Engine converts to the staircase engine config.
func (s StaircaseConfig) Engine() staircase.Config {
	return staircase.Config{
		InitialGain:          s.InitialGain,
		CoarseStep:           s.CoarseStep,
		FineStep:             s.FineStep,
		ReversalsForFineStep: s.ReversalsForFineStep,
		MaxTrials:            s.MaxTrials,
		MinReversals:         s.MinReversals,
		CatchProbability:     s.CatchProbability,
		CatchGain:            s.CatchGain,
	}
}

// StaircaseFor returns the engine config of the given condition.
func (c Config) StaircaseFor(k redirect.Kind) staircase.Config {
	if k == redirect.KindCurvature {
		return c.Staircase.Curvature.Engine()
	}
	return c.Staircase.Rotation.Engine()
}

// RotationStrategy returns the rotation strategy config seeded with the
// rotation staircase's initial gain.
func (c Config) RotationStrategy() redirect.RotationConfig {
	return redirect.RotationConfig{
		Gain:             c.Staircase.Rotation.InitialGain,
		SpeedThreshold:   c.Rotation.SpeedThreshold,
		FastRotationOnly: c.Rotation.FastRotationOnly,
	}
}

// CurvatureStrategy returns the curvature strategy config seeded with the
// curvature staircase's initial radius.
func (c Config) CurvatureStrategy() redirect.CurvatureConfig {
	return redirect.CurvatureConfig{
		Radius:             c.Staircase.Curvature.InitialGain,
		RadiusFloor:        c.Curvature.RadiusFloor,
		RotationCap:        c.Curvature.RotationCap,
		MovementThreshold:  c.Curvature.MovementThreshold,
		BearingThreshold:   c.Curvature.BearingThreshold,
		TempTargetDistance: c.Curvature.TempTargetDistance,
	}
}

// GateThresholds converts to the gate config.
func (c Config) GateThresholds() gate.GateConfig {
	return gate.GateConfig{
		MaxCatchMissRate: c.Gate.MaxCatchMissRate,
		MinCatchTrials:   c.Gate.MinCatchTrials,
		TargetReversals:  c.Gate.TargetReversals,
	}
}

// #endregion conversions
