package telemetry

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The CommandStream service carries google.protobuf.Struct messages in both
// directions, so it needs no generated message types:
//
//	service CommandStream {
//	  rpc StreamCommands(google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	}
const (
	ServiceName                  = "motionplanner.v1.CommandStream"
	StreamCommandsFullMethodName = "/motionplanner.v1.CommandStream/StreamCommands"
)

// CommandStreamServer is the server API for CommandStream.
type CommandStreamServer interface {
	StreamCommands(*structpb.Struct, CommandStream_StreamCommandsServer) error
}

type CommandStream_StreamCommandsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type commandStreamStreamCommandsServer struct {
	grpc.ServerStream
}

func (x *commandStreamStreamCommandsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func streamCommandsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CommandStreamServer).StreamCommands(m, &commandStreamStreamCommandsServer{stream})
}

// CommandStream_ServiceDesc describes the service for grpc.Server.
var CommandStream_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamCommands",
			Handler:       streamCommandsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "motionplanner/v1/command_stream.proto",
}

func RegisterCommandStreamServer(s grpc.ServiceRegistrar, srv CommandStreamServer) {
	s.RegisterService(&CommandStream_ServiceDesc, srv)
}

// CommandStreamClient is the client API for CommandStream.
type CommandStreamClient interface {
	StreamCommands(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (CommandStream_StreamCommandsClient, error)
}

type CommandStream_StreamCommandsClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type commandStreamClient struct {
	cc grpc.ClientConnInterface
}

func NewCommandStreamClient(cc grpc.ClientConnInterface) CommandStreamClient {
	return &commandStreamClient{cc}
}

func (c *commandStreamClient) StreamCommands(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (CommandStream_StreamCommandsClient, error) {
	stream, err := c.cc.NewStream(ctx, &CommandStream_ServiceDesc.Streams[0], StreamCommandsFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &commandStreamStreamCommandsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type commandStreamStreamCommandsClient struct {
	grpc.ClientStream
}

func (x *commandStreamStreamCommandsClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
