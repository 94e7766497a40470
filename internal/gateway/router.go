package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/planner"
)

// Topics names the four perception channels.
type Topics struct {
	Obstacle     string `json:"obstacle"`
	TrafficLight string `json:"traffic_light"`
	Detections   string `json:"detections"`
	Lane         string `json:"lane"`
}

// TopicsFromConfig reads the subscription names from cfg, falling back to the
// defaults for unset keys.
func TopicsFromConfig(cfg *config.PlannerConfig) Topics {
	return Topics{
		Obstacle:     cfg.GetObstacleTopic(),
		TrafficLight: cfg.GetTrafficLightTopic(),
		Detections:   cfg.GetDetectionTopic(),
		Lane:         cfg.GetLaneTopic(),
	}
}

// DefaultTopics returns the stock topic names.
func DefaultTopics() Topics {
	return TopicsFromConfig(&config.PlannerConfig{})
}

// InputRecorder receives every applied update. Implementations must not
// block.
type InputRecorder interface {
	RecordInput(topic string, payload json.RawMessage, at time.Time)
}

// Stats counts what the router has seen.
type Stats struct {
	Applied   uint64 `json:"applied"`
	Unknown   uint64 `json:"unknown"`
	Malformed uint64 `json:"malformed"`
}

// Router decodes envelopes and applies them to a Snapshot.
type Router struct {
	topics   Topics
	snap     *planner.Snapshot
	recorder InputRecorder
	now      func() time.Time

	applied   atomic.Uint64
	unknown   atomic.Uint64
	malformed atomic.Uint64
}

// NewRouter returns a router writing to snap. recorder may be nil.
func NewRouter(topics Topics, snap *planner.Snapshot, recorder InputRecorder) *Router {
	return &Router{
		topics:   topics,
		snap:     snap,
		recorder: recorder,
		now:      time.Now,
	}
}

// Topics returns the names the router subscribes to.
func (r *Router) Topics() Topics { return r.topics }

// Stats returns a copy of the router counters.
func (r *Router) Stats() Stats {
	return Stats{
		Applied:   r.applied.Load(),
		Unknown:   r.unknown.Load(),
		Malformed: r.malformed.Load(),
	}
}

// HandleMessage decodes one framed message and applies it.
func (r *Router) HandleMessage(b []byte) error {
	env, err := DecodeEnvelope(b)
	if err != nil {
		r.malformed.Add(1)
		return err
	}
	return r.Apply(env)
}

// Apply stores the envelope's payload in the snapshot channel its topic maps
// to. A malformed payload leaves the snapshot untouched.
func (r *Router) Apply(env Envelope) error {
	var err error
	switch env.Topic {
	case r.topics.Obstacle:
		var sig planner.ObstacleSignal
		if sig, err = decodeObstacle(env.Data); err == nil {
			r.snap.SetObstacle(sig)
		}
	case r.topics.TrafficLight:
		var sig planner.TrafficLightSignal
		if sig, err = decodeTrafficLight(env.Data); err == nil {
			r.snap.SetTrafficLight(sig)
		}
	case r.topics.Detections:
		var set planner.DetectionSet
		if set, err = decodeDetections(env.Data); err == nil {
			r.snap.SetDetections(set)
		}
	case r.topics.Lane:
		var target planner.LaneTarget
		if target, err = decodeLane(env.Data); err == nil {
			r.snap.SetLane(target)
		}
	default:
		r.unknown.Add(1)
		return fmt.Errorf("%w: %q", ErrUnknownTopic, env.Topic)
	}
	if err != nil {
		r.malformed.Add(1)
		return err
	}

	r.applied.Add(1)
	if r.recorder != nil {
		r.recorder.RecordInput(env.Topic, env.Data, r.now())
	}
	return nil
}

// logMessageError is shared by the transport loops.
func logMessageError(source string, err error) {
	log.Printf("[gateway] %s: dropped message: %v", source, err)
}
