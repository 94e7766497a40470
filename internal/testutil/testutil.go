// Package testutil provides shared test helpers and perception fixtures.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/motion-planner/internal/geometry"
	"github.com/banshee-data/motion-planner/internal/planner"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// DecodeJSON unmarshals a recorded response body into v.
func DecodeJSON(t testing.TB, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// Serve runs a GET against h and returns the recorder.
func Serve(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// TrafficLightBox returns a traffic_light detection whose bottom edge sits at
// yMax. The box is 20 by 40 pixels centred horizontally at x.
func TrafficLightBox(x float64, yMax int) planner.Detection {
	return planner.Detection{
		ClassName: planner.ClassTrafficLight,
		BBox: planner.BoundingBox{
			Center: geometry.Point{X: x, Y: float64(yMax) - 20},
			Size:   geometry.Point{X: 20, Y: 40},
		},
	}
}

// Scenario is a complete perception state to load into a snapshot.
type Scenario struct {
	Obstacle     bool
	Light        string
	Detections   planner.DetectionSet
	Lane         *planner.LaneTarget
	NoDetections bool
}

// Apply writes every channel of sc into snap.
func (sc Scenario) Apply(snap *planner.Snapshot) {
	snap.SetObstacle(planner.ObstacleSignal{Present: sc.Obstacle})
	if sc.Light != "" {
		snap.SetTrafficLight(planner.TrafficLightSignal{Label: sc.Light})
	}
	if !sc.NoDetections {
		snap.SetDetections(sc.Detections)
	}
	if sc.Lane != nil {
		snap.SetLane(*sc.Lane)
	}
}

// RedLightAtStopLine is a red light whose detection ends above the stop line.
func RedLightAtStopLine() Scenario {
	return Scenario{
		Light:      planner.LightRed,
		Detections: planner.DetectionSet{TrafficLightBox(300, planner.StopLineY-10)},
		Lane:       &planner.LaneTarget{X: 320, Y: 79},
	}
}

// LaneAt is a clear road with a lane target at (x, y).
func LaneAt(x, y float64) Scenario {
	return Scenario{Light: planner.LightGreen, Lane: &planner.LaneTarget{X: x, Y: y}}
}
