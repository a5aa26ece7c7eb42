package grpcgw

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client dials a LobbyService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the service at addr.
//
// Postcondition: Returns a Client or a non-nil error. No connection is made
// until the first stream is opened.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Stream is an open frame stream. Send and Recv may each be used from one
// goroutine at a time.
type Stream struct {
	cs grpc.ClientStream
}

// Connect opens a frame stream. It ends when ctx is cancelled.
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	cs, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], ConnectMethod)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	return &Stream{cs: cs}, nil
}

// Send writes one JSON frame.
func (s *Stream) Send(frame []byte) error {
	msg, err := toStruct(frame)
	if err != nil {
		return err
	}
	return s.cs.SendMsg(msg)
}

// Recv blocks for the next JSON frame.
func (s *Stream) Recv() ([]byte, error) {
	msg := &structpb.Struct{}
	if err := s.cs.RecvMsg(msg); err != nil {
		return nil, err
	}
	return fromStruct(msg)
}

// CloseSend tells the server no more frames follow.
func (s *Stream) CloseSend() error {
	return s.cs.CloseSend()
}
