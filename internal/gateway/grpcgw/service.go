// Package grpcgw serves the lobby over a bidirectional gRPC stream. Each
// stream message is a google.protobuf.Struct holding one JSON frame.
package grpcgw

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "lobby.v1.LobbyService"
	// ConnectMethod is the full method name of the frame stream.
	ConnectMethod = "/" + ServiceName + "/Connect"
)

type lobbyService interface {
	connect(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*lobbyService)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "lobby/v1/lobby.proto",
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(lobbyService).connect(stream)
}

// toStruct converts a JSON frame into its stream message.
func toStruct(frame []byte) (*structpb.Struct, error) {
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return msg, nil
}

// fromStruct converts a stream message back into a JSON frame.
func fromStruct(msg *structpb.Struct) ([]byte, error) {
	raw, err := protojson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("converting message: %w", err)
	}
	return raw, nil
}
