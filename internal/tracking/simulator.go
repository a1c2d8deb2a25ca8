package tracking

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
)

// #region simulator-config
// SimulatorConfig describes a participant walking a steady arc.
type SimulatorConfig struct {
	Start         r2.Vec
	Heading       r2.Vec  // initial forward direction
	Center        r2.Vec  // tracking area center
	Speed         float64 // m/s
	TurnRate      float64 // deg/s, positive clockwise
	FrameInterval float64 // s
}

// DefaultSimulatorConfig walks at 1 m/s on a wide clockwise arc at 60 Hz.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Start:         r2.Vec{X: 0, Y: -2},
		Heading:       r2.Vec{X: 1, Y: 0},
		Center:        r2.Vec{},
		Speed:         1.0,
		TurnRate:      20,
		FrameInterval: 1.0 / 60,
	}
}

// #endregion simulator-config

// #region simulator
// Simulator produces deterministic motion samples. Published corrections turn
// the walking direction on the next frame but are not reported as head
// rotation, so gains are never applied to their own output.
type Simulator struct {
	mu       sync.Mutex
	cfg      SimulatorConfig
	pos      r2.Vec
	heading  r2.Vec
	pending  float64 // correction to fold into the next frame
	frames   int
	injected float64
}

// NewSimulator starts a walk at cfg.Start.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	h := cfg.Heading
	if r2.Norm(h) < 1e-9 {
		h = r2.Vec{X: 0, Y: 1}
	}
	return &Simulator{cfg: cfg, pos: cfg.Start, heading: r2.Unit(h)}
}

// Next advances one frame.
func (s *Simulator) Next() redirect.MotionSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt := s.cfg.FrameInterval
	turn := s.cfg.TurnRate * dt
	s.heading = r2.Unit(redirect.YawRotate(s.heading, turn+s.pending))
	s.pending = 0

	delta := r2.Scale(s.cfg.Speed*dt, s.heading)
	s.pos = r2.Add(s.pos, delta)
	s.frames++

	return redirect.MotionSample{
		PositionDelta:      delta,
		HeadingDelta:       turn,
		ElapsedTime:        dt,
		Position:           s.pos,
		Heading:            s.heading,
		TrackingAreaCenter: s.cfg.Center,
	}
}

// PublishCorrection queues c for the next frame.
func (s *Simulator) PublishCorrection(c Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending += c.Degrees
	s.injected += c.Degrees
	return nil
}

// Frames returns the number of frames produced.
func (s *Simulator) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Injected returns the sum of all applied corrections.
func (s *Simulator) Injected() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

// Position returns the current position.
func (s *Simulator) Position() r2.Vec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Stream sends n samples on out, or until ctx is done when n <= 0.
func (s *Simulator) Stream(ctx context.Context, out chan<- redirect.MotionSample, n int) error {
	for i := 0; n <= 0 || i < n; i++ {
		select {
		case out <- s.Next():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// #endregion simulator
