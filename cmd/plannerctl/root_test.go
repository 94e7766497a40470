package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// scenario is sent 50ms apart; replayed at a 100ms period it yields one lane
// tick, one held red-light tick and a final obstacle tick.
const scenario = `# green light, then lane targets
{"topic":"yolov8_traffic_light_info","data":"Green"}
{"topic":"yolov8_lane_info","data":{"target_x":320,"target_y":79}}
{"topic":"yolov8_lane_info","data":{"target_x":420,"target_y":79}}
{"topic":"yolov8_traffic_light_info","data":{"data":"Red"}}
{"topic":"detections","data":{"detections":[{"class_name":"traffic_light","bbox":{"center":{"position":{"x":300,"y":60}},"size":{"x":20,"y":40}}}]}}
{"topic":"lidar_obstacle_info","data":true}
`

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	in := filepath.Join(dir, "scenario.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(scenario), 0o644))
	pcap := filepath.Join(dir, "scenario.pcap")
	out, err := execute(t, "capture", "--in", in, "--out", pcap, "--port", "7700",
		"--period", "50ms", "--start", "2026-03-01T12:00:00Z")
	require.NoError(t, err, out)
	assert.Contains(t, out, "wrote 6 datagrams")
	return pcap
}

func TestRoot_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCapture_RejectsBadLines(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(in, []byte("{\"topic\":\"a\",\"data\":1}\nnot json\n"), 0o644))
	_, err := execute(t, "capture", "--in", in, "--out", filepath.Join(dir, "x.pcap"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReplay_TicksOnCaptureTime(t *testing.T) {
	dir := t.TempDir()
	pcap := writeCapture(t, dir)

	out, err := execute(t, "replay", "--pcap", pcap, "--period", "100ms", "--db", filepath.Join(dir, "p.db"))
	require.NoError(t, err, out)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3, out)
	assert.Equal(t, "tick=1 branch=lane outcome=set steering=0 left=255 right=255 slope=0.000", lines[0])
	assert.Equal(t, "tick=2 branch=traffic_light outcome=unchanged steering=0 left=255 right=255", lines[1])
	assert.Equal(t, "tick=3 branch=obstacle outcome=set steering=0 left=0 right=0", lines[2])
	assert.Contains(t, out, "6 packets, 6 applied, 0 rejected; 3 ticks")
	assert.NotContains(t, out, "recorded as run")
}

func TestReplay_PortFilter(t *testing.T) {
	dir := t.TempDir()
	pcap := writeCapture(t, dir)

	out, err := execute(t, "replay", "--pcap", pcap, "--port", "9999")
	require.NoError(t, err, out)
	assert.Contains(t, out, "0 applied")
	assert.Contains(t, out, "0 ticks")
}

func TestReplay_RecordThenQuery(t *testing.T) {
	dir := t.TempDir()
	pcap := writeCapture(t, dir)
	dbPath := filepath.Join(dir, "planner.db")

	out, err := execute(t, "replay", "--pcap", pcap, "--period", "100ms", "--record", "--run-id", "run-r", "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "recorded as run run-r")

	out, err = execute(t, "decisions", "--db", dbPath, "--run", "run-r")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "tick="), out)
	assert.Contains(t, out, "2026-03-01T12:00:00.3Z tick=3 branch=obstacle")

	out, err = execute(t, "runs", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-r")

	out, err = execute(t, "stats", "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"decisions": 3`)
	assert.Contains(t, out, `"obstacle": 1`)

	out, err = execute(t, "stats", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "branch traffic_light")

	plotDir := filepath.Join(dir, "plots")
	out, err = execute(t, "plot", "--db", dbPath, "--out-dir", plotDir)
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(plotDir, "steering.png"))
	assert.FileExists(t, filepath.Join(plotDir, "slope.png"))

	out, err = execute(t, "plot", "--db", dbPath, "--run", "run-r", "--out-dir", plotDir)
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(plotDir, "run-r-steering.png"))

	_, err = execute(t, "plot", "--db", dbPath, "--out-dir", "/proc/plots")
	require.Error(t, err)
}

func TestPlot_NoDecisions(t *testing.T) {
	_, err := execute(t, "plot", "--db", filepath.Join(t.TempDir(), "empty.db"), "--out-dir", t.TempDir())
	require.Error(t, err)
}

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")

	out, err := execute(t, "migrate", "status", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Run 'plannerctl migrate up'")

	out, err = execute(t, "migrate", "up", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date.")

	out, err = execute(t, "migrate", "down", "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"current_version": 1`)

	out, err = execute(t, "migrate", "version", "2", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 2")

	_, err = execute(t, "migrate", "version", "x", "--db", dbPath)
	require.Error(t, err)

	// the prompt reads an empty stdin and aborts
	out, err = execute(t, "migrate", "force", "1", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")

	out, err = execute(t, "migrate", "force", "1", "--yes", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Current version: 1")
}
