// Package gateway attaches transport connections to the lobby. Each transport
// package owns its wire handling and uses Conn for the lobby side.
package gateway

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/hub"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/handler"
	"github.com/cory-johannsen/rushlobby/internal/observability"
)

// Lobby is the shared state every gateway attaches connections to.
type Lobby struct {
	Registry   *lobby.Registry
	Hub        *hub.Hub
	Dispatcher *handler.Dispatcher
	Logger     *zap.Logger
}

// NewLobby wires a registry, a hub and the request handlers together.
// observer may be nil; reducer may be nil to use lobby.SumReducer.
//
// Precondition: registry, settings and logger must be non-nil.
func NewLobby(
	registry *lobby.Registry,
	settings *catalog.Settings,
	reducer lobby.Reducer,
	observer handler.LaunchObserver,
	bufferSize int,
	logger *zap.Logger,
) Lobby {
	h := hub.New(bufferSize, logger.Named("hub"))
	hd := handler.NewHandler(registry, settings, reducer, h, observer, logger.Named("handler"))
	return Lobby{
		Registry:   registry,
		Hub:        h,
		Dispatcher: handler.NewDispatcher(hd, logger.Named("dispatch")),
		Logger:     logger,
	}
}

// Conn is one client connection registered with the hub.
type Conn struct {
	cc        *handler.ConnContext
	endpoint  *hub.Endpoint
	lobby     Lobby
	logger    *zap.Logger
	closeOnce sync.Once
}

// Open registers a new connection under a fresh id.
//
// Postcondition: Returns a Conn whose Frames channel receives every frame
// addressed to it, or a non-nil error.
func (l Lobby) Open(transport string) (*Conn, error) {
	id := uuid.NewString()
	ep, err := l.Hub.Connect(id)
	if err != nil {
		return nil, fmt.Errorf("registering connection: %w", err)
	}
	logger := observability.ConnLogger(l.Logger, transport, id)
	logger.Info("client connected")
	return &Conn{
		cc:       handler.NewConnContext(id),
		endpoint: ep,
		lobby:    l,
		logger:   logger,
	}, nil
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.cc.ID
}

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() *zap.Logger {
	return c.logger
}

// Frames returns the outbound frames for this connection. The channel is
// closed by Close.
func (c *Conn) Frames() <-chan []byte {
	return c.endpoint.Frames()
}

// Handle dispatches one raw inbound frame.
func (c *Conn) Handle(raw []byte) {
	c.lobby.Dispatcher.Dispatch(c.cc, raw)
}

// Close leaves the bound session and unregisters the connection. It is safe
// to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.lobby.Dispatcher.Disconnect(c.cc)
		c.lobby.Hub.Disconnect(c.cc.ID)
		c.logger.Info("client disconnected")
	})
}
