// Package wsgw serves the lobby over WebSocket. Every text message carries
// one JSON frame.
package wsgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/config"
	"github.com/cory-johannsen/rushlobby/internal/gateway"
)

// Server exposes the lobby on a WebSocket endpoint plus a /healthz probe.
type Server struct {
	cfg      config.WebSocketConfig
	lobby    gateway.Lobby
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	wg       sync.WaitGroup
	mu       sync.Mutex
	listener net.Listener
	conns    map[*websocket.Conn]struct{}
}

// NewServer creates a WebSocket gateway.
//
// Precondition: cfg.Path must start with "/"; lobby fields must be non-nil.
func NewServer(cfg config.WebSocketConfig, lobby gateway.Lobby) *Server {
	s := &Server{
		cfg:    cfg,
		lobby:  lobby,
		logger: lobby.Logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handler returns the HTTP handler serving the WebSocket path and /healthz.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("websocket gateway listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("shutting down http server", zap.Error(err))
	}

	s.mu.Lock()
	for ws := range s.conns {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("websocket gateway stopped")
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

type health struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Dropped     uint64 `json:"droppedFrames"`
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health{
		Status:      "ok",
		Sessions:    s.lobby.Registry.Len(),
		Connections: s.lobby.Hub.ConnectionCount(),
		Dropped:     s.lobby.Hub.Dropped(),
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	conn, err := s.lobby.Open("ws")
	if err != nil {
		s.logger.Error("opening connection", zap.Error(err))
		_ = ws.Close()
		return
	}

	s.mu.Lock()
	s.conns[ws] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.handle(ws, conn)
}

func (s *Server) handle(ws *websocket.Conn, conn *gateway.Conn) {
	defer s.wg.Done()
	start := time.Now()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ws, conn)
	}()

	err := s.read(ws, conn)
	conn.Close()
	<-writerDone

	s.mu.Lock()
	delete(s.conns, ws)
	s.mu.Unlock()
	_ = ws.Close()

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		conn.Logger().Debug("connection ended", zap.Error(err), zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) read(ws *websocket.Conn, conn *gateway.Conn) error {
	pongWait := 2 * s.cfg.PingInterval
	ws.SetReadLimit(s.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		conn.Handle(data)
	}
}

// write drains outbound frames and keeps the connection alive with pings.
// It returns once the endpoint closes or a write fails.
func (s *Server) write(ws *websocket.Conn, conn *gateway.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-conn.Frames():
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(s.cfg.WriteTimeout))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Logger().Debug("writing frame", zap.Error(err))
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
