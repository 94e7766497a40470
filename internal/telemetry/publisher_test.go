package telemetry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/motion-planner/internal/planner"
)

func startTestPublisher(t *testing.T, cfg Config) (*Publisher, CommandStreamClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	p := NewPublisher(cfg)
	require.NoError(t, p.Serve(lis))
	t.Cleanup(p.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return p, NewCommandStreamClient(conn)
}

func TestPublisher_StreamsDecisions(t *testing.T) {
	p, client := startTestPublisher(t, Config{RunID: "run-42"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, ClientNameKey, "unit-test")

	stream, err := client.StreamCommands(ctx, &structpb.Struct{})
	require.NoError(t, err)

	hdr, err := stream.Header()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-42"}, hdr.Get(RunIDKey))
	require.Eventually(t, func() bool { return p.Stats().Clients == 1 }, 2*time.Second, time.Millisecond)

	slope := -45.0
	want := planner.Decision{
		Tick:    3,
		At:      time.Date(2025, 5, 1, 10, 0, 0, 500, time.UTC),
		Branch:  planner.BranchLane,
		Outcome: planner.OutcomeSet,
		Command: planner.MotionCommand{Steering: -7, LeftSpeed: 255, RightSpeed: 255},
		Slope:   &slope,
	}
	require.NoError(t, p.Emit(ctx, want))

	msg, err := stream.Recv()
	require.NoError(t, err)
	got, err := DecisionFromStruct(msg)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(1), p.Stats().Published)

	cancel()
	require.Eventually(t, func() bool { return p.Stats().Clients == 0 }, 2*time.Second, time.Millisecond)
}

func TestPublisher_BranchFilter(t *testing.T) {
	p, client := startTestPublisher(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := StreamRequest(planner.BranchObstacle)
	require.NoError(t, err)
	stream, err := client.StreamCommands(ctx, req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Stats().Clients == 1 }, 2*time.Second, time.Millisecond)

	p.Emit(ctx, planner.Decision{Tick: 1, Branch: planner.BranchLane})
	p.Emit(ctx, planner.Decision{Tick: 2, Branch: planner.BranchObstacle})

	msg, err := stream.Recv()
	require.NoError(t, err)
	d, err := DecisionFromStruct(msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), d.Tick)
	assert.Nil(t, d.Slope)
}

func TestPublisher_ClientLimit(t *testing.T) {
	p, client := startTestPublisher(t, Config{MaxClients: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.StreamCommands(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Stats().Clients == 1 }, 2*time.Second, time.Millisecond)

	second, err := client.StreamCommands(ctx, &structpb.Struct{})
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublisher_EmitWhenStopped(t *testing.T) {
	p := NewPublisher(Config{})
	assert.NoError(t, p.Emit(context.Background(), planner.Decision{}))
	assert.Equal(t, PublisherStats{}, p.Stats())
	p.Stop()
}

func TestDecisionFromStruct_Errors(t *testing.T) {
	_, err := DecisionFromStruct(&structpb.Struct{})
	assert.ErrorContains(t, err, `missing field "tick"`)

	s, _ := structpb.NewStruct(map[string]interface{}{
		"tick": 1, "steering": "left", "left_speed": 0, "right_speed": 0,
	})
	_, err = DecisionFromStruct(s)
	assert.ErrorContains(t, err, "not a number")

	s, _ = structpb.NewStruct(map[string]interface{}{
		"tick": 1, "steering": 0, "left_speed": 0, "right_speed": 0, "timestamp": "yesterday",
	})
	_, err = DecisionFromStruct(s)
	assert.ErrorContains(t, err, "bad timestamp")
}
