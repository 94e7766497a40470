// Package planner implements the reactive decision layer: it keeps the latest
// value of each perception channel and, once per control tick, arbitrates
// obstacle avoidance, traffic-light compliance and lane following into a
// single MotionCommand.
package planner

import (
	"fmt"
	"time"

	"github.com/banshee-data/motion-planner/internal/geometry"
)

// ObstacleSignal reports whether the obstacle sensor currently sees something
// in the vehicle's path.
type ObstacleSignal struct {
	Present bool `json:"present"`
}

// Traffic light labels produced by the classifier. Other labels are carried
// through verbatim; only LightRed affects decisions.
const (
	LightRed    = "Red"
	LightYellow = "Yellow"
	LightGreen  = "Green"
)

// TrafficLightSignal is the most recent traffic-light classification.
type TrafficLightSignal struct {
	Label string `json:"label"`
}

// BoundingBox is an axis-aligned box in image pixels described by its centre
// and full size.
type BoundingBox struct {
	Center geometry.Point `json:"center"`
	Size   geometry.Point `json:"size"`
}

// Bounds returns the integer pixel corners of the box, truncating toward zero
// the same way the detector's consumers always have.
func (b BoundingBox) Bounds() (xMin, yMin, xMax, yMax int) {
	xMin = int(b.Center.X - b.Size.X/2)
	xMax = int(b.Center.X + b.Size.X/2)
	yMin = int(b.Center.Y - b.Size.Y/2)
	yMax = int(b.Center.Y + b.Size.Y/2)
	return xMin, yMin, xMax, yMax
}

// Detection is one object perceived in the current camera frame.
type Detection struct {
	ClassName string      `json:"class_name"`
	BBox      BoundingBox `json:"bbox"`
}

// ClassTrafficLight is the detector class name for traffic lights.
const ClassTrafficLight = "traffic_light"

// DetectionSet is every detection in one frame. A new set replaces the
// previous one wholesale.
type DetectionSet []Detection

// LaneTarget is the desired lane-centre point ahead of the vehicle.
type LaneTarget struct {
	X float64 `json:"target_x"`
	Y float64 `json:"target_y"`
}

// Point returns the target as an image-plane point.
func (l LaneTarget) Point() geometry.Point {
	return geometry.Point{X: l.X, Y: l.Y}
}

// MotionCommand is the output of one tick.
type MotionCommand struct {
	Steering   int `json:"steering"`
	LeftSpeed  int `json:"left_speed"`
	RightSpeed int `json:"right_speed"`
}

func (c MotionCommand) String() string {
	return fmt.Sprintf("steering=%d left=%d right=%d", c.Steering, c.LeftSpeed, c.RightSpeed)
}

// Branch identifies which arm of the arbitration handled a tick.
type Branch string

const (
	BranchObstacle     Branch = "obstacle"
	BranchTrafficLight Branch = "traffic_light"
	BranchLane         Branch = "lane"
)

// Outcome records whether the winning branch produced new command values or
// left the previous ones in place.
type Outcome string

const (
	OutcomeSet       Outcome = "set"
	OutcomeUnchanged Outcome = "unchanged"
)

// Decision is the auditable result of one tick.
type Decision struct {
	Tick    uint64        `json:"tick"`
	At      time.Time     `json:"at"`
	Branch  Branch        `json:"branch"`
	Outcome Outcome       `json:"outcome"`
	Command MotionCommand `json:"command"`

	// Slope is the target slope in degrees; nil unless the lane branch
	// computed one.
	Slope *float64 `json:"slope,omitempty"`

	// LaneAbsent is set when the lane branch ran without a lane target.
	LaneAbsent bool `json:"lane_absent,omitempty"`
}
