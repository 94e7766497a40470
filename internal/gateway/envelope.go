// Package gateway turns perception messages arriving on the serial link, UDP
// or a packet capture into Snapshot updates.
package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/motion-planner/internal/geometry"
	"github.com/banshee-data/motion-planner/internal/planner"
)

var (
	// ErrUnknownTopic is returned for envelopes on a topic the router does
	// not subscribe to.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrMalformed wraps every payload decoding failure.
	ErrMalformed = errors.New("malformed payload")
)

// Envelope is the framing used on every transport: one JSON object per line
// or datagram.
type Envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// DecodeEnvelope parses one line or datagram.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return env, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if env.Topic == "" {
		return env, fmt.Errorf("%w: envelope has no topic", ErrMalformed)
	}
	return env, nil
}

// EncodeEnvelope frames data under topic. The result has no trailing newline.
func EncodeEnvelope(topic string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Topic: topic, Data: raw})
}

// wrapped matches the std_msgs style {"data": ...} object some publishers
// send instead of a bare value.
type wrapped[T any] struct {
	Data *T `json:"data"`
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeScalar accepts either a bare JSON value or {"data": value}. A null
// payload is rejected rather than decoded as the zero value.
func decodeScalar[T any](raw json.RawMessage) (T, error) {
	var v T
	if isNull(raw) {
		return v, errors.New("null payload")
	}
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var w wrapped[T]
	if err := json.Unmarshal(raw, &w); err != nil {
		return v, err
	}
	if w.Data == nil {
		return v, errors.New(`missing "data" field`)
	}
	return *w.Data, nil
}

func decodeObstacle(raw json.RawMessage) (planner.ObstacleSignal, error) {
	present, err := decodeScalar[bool](raw)
	if err != nil {
		return planner.ObstacleSignal{}, fmt.Errorf("%w: obstacle: %v", ErrMalformed, err)
	}
	return planner.ObstacleSignal{Present: present}, nil
}

func decodeTrafficLight(raw json.RawMessage) (planner.TrafficLightSignal, error) {
	label, err := decodeScalar[string](raw)
	if err != nil {
		return planner.TrafficLightSignal{}, fmt.Errorf("%w: traffic light: %v", ErrMalformed, err)
	}
	return planner.TrafficLightSignal{Label: label}, nil
}

// wireDetections follows the vision_msgs Detection2DArray layout, where the
// box centre is nested under a pose.
type wireDetections struct {
	Detections []struct {
		ClassName string `json:"class_name"`
		BBox      struct {
			Center struct {
				Position *geometry.Point `json:"position"`
			} `json:"center"`
			Size *geometry.Point `json:"size"`
		} `json:"bbox"`
	} `json:"detections"`
}

func decodeDetections(raw json.RawMessage) (planner.DetectionSet, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("%w: detections: null payload", ErrMalformed)
	}
	var w wireDetections
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: detections: %v", ErrMalformed, err)
	}
	set := make(planner.DetectionSet, 0, len(w.Detections))
	for i, d := range w.Detections {
		if d.BBox.Center.Position == nil || d.BBox.Size == nil {
			return nil, fmt.Errorf("%w: detection %d has no bounding box", ErrMalformed, i)
		}
		set = append(set, planner.Detection{
			ClassName: d.ClassName,
			BBox: planner.BoundingBox{
				Center: *d.BBox.Center.Position,
				Size:   *d.BBox.Size,
			},
		})
	}
	return set, nil
}

func decodeLane(raw json.RawMessage) (planner.LaneTarget, error) {
	var w struct {
		X *float64 `json:"target_x"`
		Y *float64 `json:"target_y"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return planner.LaneTarget{}, fmt.Errorf("%w: lane: %v", ErrMalformed, err)
	}
	if w.X == nil || w.Y == nil {
		return planner.LaneTarget{}, fmt.Errorf("%w: lane target needs target_x and target_y", ErrMalformed)
	}
	return planner.LaneTarget{X: *w.X, Y: *w.Y}, nil
}
