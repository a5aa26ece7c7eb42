package grpcgw

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/config"
	"github.com/cory-johannsen/rushlobby/internal/gateway"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

func startServer(t *testing.T) (*Server, gateway.Lobby) {
	t.Helper()
	settings, err := catalog.New([]*catalog.Vehicle{{Name: "truck", Seats: 4}}, nil)
	require.NoError(t, err)
	lb := gateway.NewLobby(lobby.NewRegistry(lobby.UUIDGenerator()), settings, nil, nil, 16, zaptest.NewLogger(t))

	srv := NewServer(config.GRPCConfig{Host: "127.0.0.1"}, lb)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	return srv, lb
}

func openStream(t *testing.T, addr string) *Stream {
	t.Helper()
	client, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := client.Connect(ctx)
	require.NoError(t, err)
	return stream
}

func send(t *testing.T, s *Stream, event, requestID string, data any) {
	t.Helper()
	raw, err := protocol.Encode(event, requestID, data)
	require.NoError(t, err)
	require.NoError(t, s.Send(raw))
}

func recv(t *testing.T, s *Stream) protocol.Frame {
	t.Helper()
	raw, err := s.Recv()
	require.NoError(t, err)
	var f protocol.Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestServer_CreateJoinOverStream(t *testing.T) {
	srv, lb := startServer(t)

	alice := openStream(t, srv.Addr())
	send(t, alice, protocol.EventSessionCreate, "r1", map[string]any{"leaderName": "alice"})
	created := recv(t, alice)
	require.Equal(t, protocol.EventSessionCreated, created.Event)
	assert.Equal(t, "r1", created.RequestID)

	var body struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(created.Data, &body))
	require.NotEmpty(t, body.Session.ID)
	assert.Equal(t, 1, lb.Registry.Len())

	bob := openStream(t, srv.Addr())
	send(t, bob, protocol.EventSessionJoin, "r2", map[string]any{"sessionId": body.Session.ID, "playerName": "bob"})

	joined := recv(t, bob)
	assert.Equal(t, protocol.EventSessionJoined, joined.Event)
	assert.Equal(t, "r2", joined.RequestID)

	announced := recv(t, alice)
	assert.Equal(t, protocol.EventSessionPlayerJoined, announced.Event)
	assert.Empty(t, announced.RequestID)
}

func TestServer_ExceptionFrame(t *testing.T) {
	srv, _ := startServer(t)
	s := openStream(t, srv.Addr())

	send(t, s, protocol.EventSessionJoin, "r9", map[string]any{"sessionId": "missing", "playerName": "bob"})
	f := recv(t, s)
	assert.Equal(t, protocol.EventException, f.Event)
	assert.Equal(t, "r9", f.RequestID)
	assert.Contains(t, string(f.Data), string(lobby.CodeSessionNotFound))
}

func TestServer_StreamCloseLeavesSession(t *testing.T) {
	srv, lb := startServer(t)
	s := openStream(t, srv.Addr())

	send(t, s, protocol.EventSessionCreate, "", map[string]any{"leaderName": "solo"})
	recv(t, s)
	require.Equal(t, 1, lb.Registry.Len())

	require.NoError(t, s.CloseSend())
	require.Eventually(t, func() bool {
		return lb.Registry.Len() == 0 && lb.Hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
