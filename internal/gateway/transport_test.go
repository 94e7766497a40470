package gateway

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion-planner/internal/serialmux"
)

func TestConsumeSerial(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	mux := serialmux.NewSerialMux("perception", port)
	r, snap := newTestRouter(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ConsumeSerial(ctx, mux, r) }()
	require.Eventually(t, func() bool { return mux.SubscriberCount() == 1 }, time.Second, time.Millisecond)
	go mux.Monitor(ctx)

	port.AddReadData([]byte(`{"topic":"lidar_obstacle_info","data":true}` + "\n"))
	require.Eventually(t, func() bool { return r.Stats().Applied == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, snap.View().Obstacle.Present)

	// bad lines are logged and skipped
	port.AddReadData([]byte("oops\n"))
	require.Eventually(t, func() bool { return r.Stats().Malformed == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ConsumeSerial did not return after close")
	}
}

type mockUDPSocket struct {
	packets [][]byte
	idx     int
	closed  bool
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (m *mockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.idx >= len(m.packets) {
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutErr{}}
	}
	n := copy(b, m.packets[m.idx])
	m.idx++
	return n, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}, nil
}

func (m *mockUDPSocket) SetReadDeadline(time.Time) error { return nil }
func (m *mockUDPSocket) Close() error                    { m.closed = true; return nil }
func (m *mockUDPSocket) LocalAddr() net.Addr             { return &net.UDPAddr{Port: 7000} }

type mockUDPFactory struct {
	socket *mockUDPSocket
	err    error
}

func (f *mockUDPFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.socket, nil
}

func TestUDPListener(t *testing.T) {
	sock := &mockUDPSocket{packets: [][]byte{
		[]byte(`{"topic":"yolov8_lane_info","data":{"target_x":320,"target_y":0}}`),
		[]byte(`{"topic":"nope","data":1}`),
		[]byte(`{"topic":"lidar_obstacle_info","data":false}`),
	}}
	r, snap := newTestRouter(nil)
	l := NewUDPListener("127.0.0.1:7000", r, &mockUDPFactory{socket: sock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return r.Stats().Applied == 2 }, 2*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, uint64(1), r.Stats().Unknown)
	assert.False(t, snap.View().Obstacle.Present)
	assert.True(t, sock.closed)
}

func TestUDPListener_ListenError(t *testing.T) {
	r, _ := newTestRouter(nil)
	l := NewUDPListener("127.0.0.1:7000", r, &mockUDPFactory{err: errors.New("address in use")})
	assert.ErrorContains(t, l.Start(context.Background()), "address in use")

	l = NewUDPListener("not an address", r, nil)
	assert.ErrorContains(t, l.Start(context.Background()), "resolve")
}

func TestPCAPRoundTrip(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	payloads := [][]byte{
		[]byte(`{"topic":"yolov8_traffic_light_info","data":"Red"}`),
		[]byte(`{"topic":"yolov8_lane_info","data":{"target_x":100,"target_y":50}}`),
		[]byte(`not json`),
	}
	times := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(200 * time.Millisecond)}

	var buf bytes.Buffer
	require.NoError(t, WritePCAP(&buf, 9000, payloads, times))

	r, snap := newTestRouter(nil)
	var seen []time.Time
	stats, err := ReplayPCAP(context.Background(), &buf, 9000, r, func(_ []byte, ts time.Time) {
		seen = append(seen, ts)
	})
	require.NoError(t, err)

	assert.Equal(t, ReplayStats{Packets: 3, Matched: 3, Applied: 2, Rejected: 1}, stats)
	require.Len(t, seen, 3)
	assert.True(t, seen[1].Equal(times[1]))
	assert.Equal(t, "Red", snap.View().TrafficLight.Label)
	assert.Equal(t, 100.0, snap.View().Lane.X)
}

func TestPCAPPortFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePCAP(&buf, 9000, [][]byte{[]byte(`{"topic":"lidar_obstacle_info","data":true}`)}, []time.Time{time.Unix(0, 0)}))

	r, snap := newTestRouter(nil)
	stats, err := ReplayPCAP(context.Background(), &buf, 9100, r, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Packets)
	assert.Equal(t, 0, stats.Matched)
	assert.Nil(t, snap.View().Obstacle)
}

func TestPCAP_Errors(t *testing.T) {
	r, _ := newTestRouter(nil)
	_, err := ReplayPCAP(context.Background(), bytes.NewReader([]byte("short")), 0, r, nil)
	assert.Error(t, err)

	assert.Error(t, WritePCAP(&bytes.Buffer{}, 1, [][]byte{nil}, nil))
}
