package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-planner/internal/config"
	"github.com/banshee-data/motion-planner/internal/planner"
)

type recordedInput struct {
	topic   string
	payload string
}

type fakeRecorder struct {
	mu     sync.Mutex
	inputs []recordedInput
}

func (f *fakeRecorder) RecordInput(topic string, payload json.RawMessage, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, recordedInput{topic, string(payload)})
}

func (f *fakeRecorder) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func newTestRouter(rec InputRecorder) (*Router, *planner.Snapshot) {
	snap := planner.NewEngine(planner.Options{}).Snapshot()
	return NewRouter(DefaultTopics(), snap, rec), snap
}

func TestRouter_AppliesEveryChannel(t *testing.T) {
	rec := &fakeRecorder{}
	r, snap := newTestRouter(rec)

	msgs := []string{
		`{"topic":"lidar_obstacle_info","data":{"data":true}}`,
		`{"topic":"yolov8_traffic_light_info","data":"Red"}`,
		`{"topic":"detections","data":{"detections":[{"class_name":"traffic_light","bbox":{"center":{"position":{"x":10,"y":20}},"size":{"x":4,"y":8}}}]}}`,
		`{"topic":"yolov8_lane_info","data":{"target_x":330,"target_y":100}}`,
	}
	for _, m := range msgs {
		require.NoError(t, r.HandleMessage([]byte(m)))
	}

	view := snap.View()
	require.NotNil(t, view.Obstacle)
	assert.True(t, view.Obstacle.Present)
	require.NotNil(t, view.TrafficLight)
	assert.Equal(t, planner.LightRed, view.TrafficLight.Label)
	assert.True(t, view.HasDetections)
	assert.Len(t, view.Detections, 1)
	require.NotNil(t, view.Lane)
	assert.Equal(t, planner.LaneTarget{X: 330, Y: 100}, *view.Lane)

	assert.Equal(t, Stats{Applied: 4}, r.Stats())
	assert.Equal(t, 4, rec.len())
	assert.Equal(t, "lidar_obstacle_info", rec.inputs[0].topic)
}

func TestRouter_KeepsOnlyLatest(t *testing.T) {
	r, snap := newTestRouter(nil)
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"yolov8_lane_info","data":{"target_x":1,"target_y":2}}`)))
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"yolov8_lane_info","data":{"target_x":3,"target_y":4}}`)))
	assert.Equal(t, planner.LaneTarget{X: 3, Y: 4}, *snap.View().Lane)
}

func TestRouter_UnknownTopic(t *testing.T) {
	rec := &fakeRecorder{}
	r, snap := newTestRouter(rec)

	err := r.HandleMessage([]byte(`{"topic":"camera_raw","data":1}`))
	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Equal(t, planner.SnapshotView{}, snap.View())
	assert.Equal(t, uint64(1), r.Stats().Unknown)
	assert.Equal(t, 0, rec.len())
}

func TestRouter_MalformedLeavesSnapshot(t *testing.T) {
	r, snap := newTestRouter(nil)
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"yolov8_traffic_light_info","data":"Green"}`)))

	err := r.HandleMessage([]byte(`{"topic":"yolov8_traffic_light_info","data":17}`))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, planner.LightGreen, snap.View().TrafficLight.Label)

	err = r.HandleMessage([]byte(`garbage`))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, uint64(2), r.Stats().Malformed)
}

func TestRouter_NullPayloadLeavesSnapshot(t *testing.T) {
	r, snap := newTestRouter(nil)
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"lidar_obstacle_info","data":true}`)))
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"yolov8_traffic_light_info","data":"Red"}`)))
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"detections","data":{"detections":[]}}`)))
	before := snap.View()

	nulls := []string{
		`{"topic":"lidar_obstacle_info","data":null}`,
		`{"topic":"lidar_obstacle_info","data":{"data":null}}`,
		`{"topic":"yolov8_traffic_light_info","data":null}`,
		`{"topic":"detections","data":null}`,
		`{"topic":"yolov8_lane_info","data":null}`,
	}
	for _, m := range nulls {
		assert.ErrorIs(t, r.HandleMessage([]byte(m)), ErrMalformed, m)
	}

	after := snap.View()
	require.NotNil(t, after.Obstacle)
	assert.True(t, after.Obstacle.Present)
	assert.Equal(t, planner.LightRed, after.TrafficLight.Label)
	assert.Nil(t, after.Lane)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(len(nulls)), r.Stats().Malformed)
	assert.Equal(t, uint64(3), r.Stats().Applied)
}

func TestTopicsFromConfig(t *testing.T) {
	lane := "lane_custom"
	topics := TopicsFromConfig(&config.PlannerConfig{LaneTopic: &lane})
	assert.Equal(t, "lane_custom", topics.Lane)
	assert.Equal(t, config.DefaultObstacleTopic, topics.Obstacle)

	snap := planner.NewEngine(planner.Options{}).Snapshot()
	r := NewRouter(topics, snap, nil)
	require.NoError(t, r.HandleMessage([]byte(`{"topic":"lane_custom","data":{"target_x":1,"target_y":1}}`)))
	assert.ErrorIs(t, r.HandleMessage([]byte(`{"topic":"yolov8_lane_info","data":{"target_x":1,"target_y":1}}`)), ErrUnknownTopic)
}
