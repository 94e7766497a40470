package planner

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/motion-planner/internal/geometry"
	"github.com/banshee-data/motion-planner/internal/monitoring"
)

const (
	// StopLineY is the image row a red traffic light's box must end above
	// (y_max < StopLineY) for the vehicle to stop for it.
	StopLineY = 140

	// CruiseSpeed is the wheel speed used whenever the lane branch runs.
	CruiseSpeed = 255
)

// ReferencePoint is the front-bumper centre of the vehicle in the cropped
// camera frame. Lane slopes are measured from here.
var ReferencePoint = geometry.Point{X: 320, Y: 179}

// Options configures an Engine.
type Options struct {
	// StaleAfter, when positive, makes Tick treat any channel older than this
	// as never received. Zero keeps every channel until it is overwritten.
	StaleAfter time.Duration

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Engine owns the channel snapshot and produces one Decision per Tick.
type Engine struct {
	snap       *Snapshot
	now        func() time.Time
	staleAfter time.Duration

	mu    sync.Mutex
	last  MotionCommand
	ticks uint64
}

// NewEngine creates an Engine with an empty snapshot and a zero previous
// command.
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		snap:       newSnapshot(now),
		now:        now,
		staleAfter: opts.StaleAfter,
	}
}

// Snapshot returns the engine's channel state for input producers.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap
}

// Last returns the most recently emitted command.
func (e *Engine) Last() MotionCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Ticks returns the number of ticks evaluated so far.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

// Tick evaluates the current snapshot and returns the command to emit. It
// always returns a Decision; branches that decide nothing re-emit the previous
// command.
func (e *Engine) Tick() Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	view := e.snap.load().expire(now, e.staleAfter)

	d := Decide(view, e.last)
	if !ValidSteering(d.Command.Steering) {
		panic(fmt.Sprintf("planner: steering %d outside the steering table", d.Command.Steering))
	}

	e.ticks++
	d.Tick = e.ticks
	d.At = now
	e.last = d.Command

	if d.Slope != nil {
		monitoring.Logf("[planner] target slope: %.3f", *d.Slope)
	}
	monitoring.Logf("[planner] steering command: %d (%s/%s)", d.Command.Steering, d.Branch, d.Outcome)
	return d
}

// Decide runs the arbitration over one view. prev is the command emitted on
// the previous tick. Tick and At are left zero.
func Decide(view SnapshotView, prev MotionCommand) Decision {
	if view.Obstacle != nil && view.Obstacle.Present {
		return Decision{Branch: BranchObstacle, Outcome: OutcomeSet, Command: MotionCommand{}}
	}

	if view.TrafficLight != nil && view.TrafficLight.Label == LightRed {
		// An absent detection set scans as empty.
		if redLightInView(view.Detections) {
			return Decision{Branch: BranchTrafficLight, Outcome: OutcomeSet, Command: MotionCommand{}}
		}
		return Decision{Branch: BranchTrafficLight, Outcome: OutcomeUnchanged, Command: prev}
	}

	return followLane(view.Lane)
}

// redLightInView reports whether any traffic-light detection ends above the
// stop line.
func redLightInView(set DetectionSet) bool {
	for _, det := range set {
		if det.ClassName != ClassTrafficLight {
			continue
		}
		if _, _, _, yMax := det.BBox.Bounds(); yMax < StopLineY {
			return true
		}
	}
	return false
}

func followLane(lane *LaneTarget) Decision {
	d := Decision{
		Branch:  BranchLane,
		Outcome: OutcomeSet,
		Command: MotionCommand{LeftSpeed: CruiseSpeed, RightSpeed: CruiseSpeed},
	}
	if lane == nil {
		d.LaneAbsent = true
		return d
	}
	slope := geometry.SlopeDegrees(lane.Point(), ReferencePoint)
	d.Slope = &slope
	d.Command.Steering = SteeringForSlope(slope)
	return d
}
