package grpcgw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/rushlobby/internal/config"
	"github.com/cory-johannsen/rushlobby/internal/gateway"
)

// stopGrace bounds how long Stop waits for open streams before forcing them closed.
const stopGrace = 5 * time.Second

// Server exposes the lobby as the LobbyService gRPC service.
type Server struct {
	cfg    config.GRPCConfig
	lobby  gateway.Lobby
	logger *zap.Logger
	grpc   *grpc.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a gRPC gateway.
//
// Precondition: lobby.Hub, lobby.Dispatcher and lobby.Logger must be non-nil.
func NewServer(cfg config.GRPCConfig, lobby gateway.Lobby) *Server {
	s := &Server{
		cfg:    cfg,
		lobby:  lobby,
		logger: lobby.Logger.Named("grpc"),
		grpc:   grpc.NewServer(),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc gateway listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving grpc: %w", err)
	}
	return nil
}

// Stop drains open streams, forcing them closed after a grace period.
func (s *Server) Stop() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.logger.Warn("forcing grpc streams closed")
		s.grpc.Stop()
		<-done
	}
	s.logger.Info("grpc gateway stopped")
}

// Addr returns the listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) connect(stream grpc.ServerStream) error {
	conn, err := s.lobby.Open("grpc")
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.forward(ctx, conn, stream)
	}()

	err = s.receive(conn, stream)
	cancel()
	conn.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		conn.Logger().Debug("stream ended", zap.Error(err))
	}
	return nil
}

func (s *Server) receive(conn *gateway.Conn, stream grpc.ServerStream) error {
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			return err
		}
		raw, err := fromStruct(msg)
		if err != nil {
			conn.Logger().Warn("dropping malformed message", zap.Error(err))
			continue
		}
		conn.Handle(raw)
	}
}

// forward sends outbound frames until the endpoint closes or ctx ends.
func (s *Server) forward(ctx context.Context, conn *gateway.Conn, stream grpc.ServerStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-conn.Frames():
			if !ok {
				return
			}
			msg, err := toStruct(frame)
			if err != nil {
				conn.Logger().Error("encoding outbound frame", zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				conn.Logger().Debug("sending frame", zap.Error(err))
				return
			}
		}
	}
}
