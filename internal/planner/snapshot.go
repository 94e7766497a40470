package planner

import (
	"sync"
	"sync/atomic"
	"time"
)

// SnapshotView is an immutable copy of every channel's latest value. A nil
// field means the channel has never been received (or, with staleness
// enabled, has expired).
type SnapshotView struct {
	Obstacle     *ObstacleSignal     `json:"obstacle,omitempty"`
	TrafficLight *TrafficLightSignal `json:"traffic_light,omitempty"`
	Detections   DetectionSet        `json:"detections,omitempty"`
	Lane         *LaneTarget         `json:"lane,omitempty"`

	// HasDetections distinguishes an empty set from one never received.
	HasDetections bool `json:"has_detections"`

	ObstacleAt     time.Time `json:"obstacle_at,omitempty"`
	TrafficLightAt time.Time `json:"traffic_light_at,omitempty"`
	DetectionsAt   time.Time `json:"detections_at,omitempty"`
	LaneAt         time.Time `json:"lane_at,omitempty"`
}

// Snapshot holds the latest value of each input channel. Writers may run
// concurrently with each other and with readers; every reader sees a complete
// view, never a partially written one.
type Snapshot struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[SnapshotView]
	now func() time.Time
}

func newSnapshot(now func() time.Time) *Snapshot {
	s := &Snapshot{now: now}
	s.cur.Store(&SnapshotView{})
	return s
}

// update copies the current view, lets fn modify the copy and publishes it.
func (s *Snapshot) update(fn func(v *SnapshotView, at time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.cur.Load()
	fn(&next, s.now())
	s.cur.Store(&next)
}

// SetObstacle records the latest obstacle flag.
func (s *Snapshot) SetObstacle(sig ObstacleSignal) {
	s.update(func(v *SnapshotView, at time.Time) {
		v.Obstacle = &sig
		v.ObstacleAt = at
	})
}

// SetTrafficLight records the latest traffic-light label.
func (s *Snapshot) SetTrafficLight(sig TrafficLightSignal) {
	s.update(func(v *SnapshotView, at time.Time) {
		v.TrafficLight = &sig
		v.TrafficLightAt = at
	})
}

// SetDetections replaces the detection set. The slice is copied so later
// changes by the caller are not observed.
func (s *Snapshot) SetDetections(set DetectionSet) {
	cp := make(DetectionSet, len(set))
	copy(cp, set)
	s.update(func(v *SnapshotView, at time.Time) {
		v.Detections = cp
		v.HasDetections = true
		v.DetectionsAt = at
	})
}

// SetLane records the latest lane target.
func (s *Snapshot) SetLane(target LaneTarget) {
	s.update(func(v *SnapshotView, at time.Time) {
		v.Lane = &target
		v.LaneAt = at
	})
}

// View returns the current view. The returned value shares no mutable state
// with the snapshot.
func (s *Snapshot) View() SnapshotView {
	v := *s.cur.Load()
	if v.Detections != nil {
		cp := make(DetectionSet, len(v.Detections))
		copy(cp, v.Detections)
		v.Detections = cp
	}
	return v
}

// load returns the published view without copying. Callers must not modify it.
func (s *Snapshot) load() *SnapshotView {
	return s.cur.Load()
}

// expire returns a copy of v with every channel older than maxAge cleared.
func (v SnapshotView) expire(now time.Time, maxAge time.Duration) SnapshotView {
	if maxAge <= 0 {
		return v
	}
	stale := func(at time.Time) bool { return now.Sub(at) > maxAge }
	if v.Obstacle != nil && stale(v.ObstacleAt) {
		v.Obstacle = nil
	}
	if v.TrafficLight != nil && stale(v.TrafficLightAt) {
		v.TrafficLight = nil
	}
	if v.HasDetections && stale(v.DetectionsAt) {
		v.Detections = nil
		v.HasDetections = false
	}
	if v.Lane != nil && stale(v.LaneAt) {
		v.Lane = nil
	}
	return v
}
