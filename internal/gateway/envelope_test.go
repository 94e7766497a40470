package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-planner/internal/geometry"
	"github.com/banshee-data/motion-planner/internal/planner"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(" {\"topic\":\"lane\",\"data\":{\"target_x\":1}}\n"))
	require.NoError(t, err)
	assert.Equal(t, "lane", env.Topic)
	assert.JSONEq(t, `{"target_x":1}`, string(env.Data))

	for _, in := range []string{"", "not json", `{"data":true}`} {
		_, err := DecodeEnvelope([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestEncodeEnvelope_RoundTrip(t *testing.T) {
	b, err := EncodeEnvelope("obstacle", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"obstacle","data":true}`, string(b))

	env, err := DecodeEnvelope(b)
	require.NoError(t, err)
	sig, err := decodeObstacle(env.Data)
	require.NoError(t, err)
	assert.True(t, sig.Present)
}

func TestDecodeScalarForms(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`"Red"`, "Red", false},
		{`{"data":"Green"}`, "Green", false},
		{`{"label":"Green"}`, "", true},
		{`42`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			sig, err := decodeTrafficLight(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Label)
		})
	}
}

func TestDecodeDetections(t *testing.T) {
	raw := `{"detections":[
		{"class_name":"traffic_light","bbox":{"center":{"position":{"x":100,"y":80}},"size":{"x":20,"y":40}}},
		{"class_name":"car","bbox":{"center":{"position":{"x":300,"y":200}},"size":{"x":50,"y":30}}}
	]}`
	set, err := decodeDetections(json.RawMessage(raw))
	require.NoError(t, err)

	want := planner.DetectionSet{
		{ClassName: "traffic_light", BBox: planner.BoundingBox{Center: geometry.Point{X: 100, Y: 80}, Size: geometry.Point{X: 20, Y: 40}}},
		{ClassName: "car", BBox: planner.BoundingBox{Center: geometry.Point{X: 300, Y: 200}, Size: geometry.Point{X: 50, Y: 30}}},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}

	empty, err := decodeDetections(json.RawMessage(`{"detections":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	_, err = decodeDetections(json.RawMessage(`{"detections":[{"class_name":"car","bbox":{}}]}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeLane(t *testing.T) {
	target, err := decodeLane(json.RawMessage(`{"target_x":400.5,"target_y":100}`))
	require.NoError(t, err)
	assert.Equal(t, planner.LaneTarget{X: 400.5, Y: 100}, target)

	_, err = decodeLane(json.RawMessage(`{"target_x":400.5}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
