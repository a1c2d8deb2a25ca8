package tracking

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/redirect"
)

// #region correction
// Correction is one frame's injected yaw, published back to the tracking
// pipeline.
type Correction struct {
	Seq       uint64        `json:"seq"`
	Trial     int           `json:"trial"`
	Condition redirect.Kind `json:"condition"`
	Degrees   float64       `json:"degrees"`
}

// Sink consumes corrections in the order they are produced.
type Sink interface {
	PublishCorrection(c Correction) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Correction) error

func (f SinkFunc) PublishCorrection(c Correction) error { return f(c) }

// #endregion correction

// #region wire
type vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func toVec(v r2.Vec) vec { return vec{X: v.X, Y: v.Y} }

func (v vec) vec2() r2.Vec { return r2.Vec{X: v.X, Y: v.Y} }

// samplePayload is the JSON form of a MotionSample on the motion topic.
type samplePayload struct {
	PositionDelta      vec     `json:"position_delta"`
	HeadingDelta       float64 `json:"heading_delta"`
	ElapsedTime        float64 `json:"elapsed_time"`
	Position           vec     `json:"position"`
	Heading            vec     `json:"heading"`
	TrackingAreaCenter vec     `json:"tracking_area_center"`
}

// EncodeSample marshals a motion sample for the motion topic.
func EncodeSample(s redirect.MotionSample) ([]byte, error) {
	return json.Marshal(samplePayload{
		PositionDelta:      toVec(s.PositionDelta),
		HeadingDelta:       s.HeadingDelta,
		ElapsedTime:        s.ElapsedTime,
		Position:           toVec(s.Position),
		Heading:            toVec(s.Heading),
		TrackingAreaCenter: toVec(s.TrackingAreaCenter),
	})
}

// DecodeSample parses a motion topic payload.
func DecodeSample(b []byte) (redirect.MotionSample, error) {
	var p samplePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return redirect.MotionSample{}, fmt.Errorf("decode motion sample: %w", err)
	}
	return redirect.MotionSample{
		PositionDelta:      p.PositionDelta.vec2(),
		HeadingDelta:       p.HeadingDelta,
		ElapsedTime:        p.ElapsedTime,
		Position:           p.Position.vec2(),
		Heading:            p.Heading.vec2(),
		TrackingAreaCenter: p.TrackingAreaCenter.vec2(),
	}, nil
}

// #endregion wire
