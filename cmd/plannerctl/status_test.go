package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-planner/internal/api"
	"github.com/banshee-data/motion-planner/internal/gateway"
	"github.com/banshee-data/motion-planner/internal/httputil"
	"github.com/banshee-data/motion-planner/internal/monitoring"
	"github.com/banshee-data/motion-planner/internal/planner"
	"github.com/banshee-data/motion-planner/internal/testutil"
)

func TestStatus_AgainstAPIServer(t *testing.T) {
	defer monitoring.Mute()()
	engine := planner.NewEngine(planner.Options{})
	router := gateway.NewRouter(gateway.DefaultTopics(), engine.Snapshot(), nil)
	require.NoError(t, router.HandleMessage([]byte(`{"topic":"yolov8_lane_info","data":{"target_x":420,"target_y":79}}`)))
	testutil.LaneAt(420, 79).Apply(engine.Snapshot())
	engine.Tick()

	srv := httptest.NewServer(api.NewServer(api.Options{Engine: engine, Router: router, RunID: "run-s"}).ServeMux())
	defer srv.Close()

	var out bytes.Buffer
	opts := &StatusOptions{RootOptions: &RootOptions{Format: "text"}, URL: srv.URL + "/"}
	require.NoError(t, runStatus(context.Background(), opts, srv.Client(), &out))

	text := out.String()
	assert.Contains(t, text, "run-s")
	assert.Contains(t, text, "steering=4 left=255 right=255")
	assert.Contains(t, text, "lane target       (420, 79)")
	assert.Contains(t, text, "traffic light     Green")
	assert.Contains(t, text, "applied 1, unknown 0, malformed 0")
	assert.NotContains(t, text, "recorded decisions")
}

func TestStatus_Errors(t *testing.T) {
	c := httputil.NewMockHTTPClient().
		Handle("/api/snapshot", http.StatusOK, `{"ticks":0}`).
		Fail("/api/stats", errors.New("connection refused"))
	opts := &StatusOptions{RootOptions: &RootOptions{Format: "json"}, URL: "http://planner"}

	err := runStatus(context.Background(), opts, c, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	c = httputil.NewMockHTTPClient()
	err = runStatus(context.Background(), opts, c, &bytes.Buffer{})
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}
