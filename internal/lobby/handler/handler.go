package handler

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

// LaunchObserver is notified of every successful launch. It is called with
// the session lock held and must not block.
type LaunchObserver interface {
	SessionLaunched(rec lobby.LaunchRecord)
}

// Handler runs lobby operations against the session bound to a connection and
// delivers their outcomes while the session lock is held.
type Handler struct {
	registry  *lobby.Registry
	settings  *catalog.Settings
	reducer   lobby.Reducer
	transport protocol.Transport
	observer  LaunchObserver
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates a Handler.
//
// Precondition: registry, settings, transport and logger must be non-nil.
// reducer and observer may be nil.
// Postcondition: Returns a ready Handler.
func NewHandler(
	registry *lobby.Registry,
	settings *catalog.Settings,
	reducer lobby.Reducer,
	transport protocol.Transport,
	observer LaunchObserver,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:  registry,
		settings:  settings,
		reducer:   reducer,
		transport: transport,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) deliver(cc *ConnContext, requestID, room string, out protocol.Outcome) {
	protocol.Deliver(h.transport, h.logger, protocol.Target{
		ConnID:    cc.ID,
		RequestID: requestID,
		Room:      room,
	}, out)
}

// Reject unicasts err to the requester as an exception frame.
func (h *Handler) Reject(cc *ConnContext, requestID string, err error) {
	code := lobby.GetCode(err)
	if code.Class() == lobby.ClassUnknown {
		h.logger.Error("request failed", zap.String("conn_id", cc.ID), zap.Error(err))
	} else {
		h.logger.Debug("request rejected",
			zap.String("conn_id", cc.ID),
			zap.String("code", string(code)),
			zap.String("class", code.Class().String()),
		)
	}
	h.deliver(cc, requestID, "", protocol.Outcome{
		Envelopes: []protocol.Envelope{protocol.Exception(err)},
	})
}

// inSession runs op under the lock of the session bound to cc and delivers
// its outcome before releasing the lock.
func (h *Handler) inSession(cc *ConnContext, requestID string, op func(s *lobby.Session) (protocol.Outcome, error)) error {
	s, _ := cc.Bound()
	if s == nil {
		return lobby.ErrSessionNotFound("")
	}
	s.Lock()
	defer s.Unlock()
	if s.Closed() {
		return lobby.ErrSessionNotFound(s.ID)
	}
	out, err := op(s)
	if err != nil {
		return err
	}
	h.deliver(cc, requestID, s.ID, out)
	return nil
}

type playerSession struct {
	Player  *lobby.Player  `json:"player"`
	Session *lobby.Session `json:"session"`
}

// Create starts a new session led by req.LeaderName and binds cc to it. A
// connection that is already bound leaves its current session once the
// request is validated; nothing after that point can fail.
//
// Postcondition: cc is bound to the new session and receives session:created.
func (h *Handler) Create(cc *ConnContext, requestID string, req CreateRequest) error {
	if req.LeaderName == "" {
		return missingField("leaderName")
	}
	h.leave(cc, "", false)

	s, leader := lobby.NewSession(req.LeaderName, h.settings, req.SingleMode, h.reducer)
	s.Lock()
	defer s.Unlock()
	id := h.registry.Register(s)
	cc.bind(s, leader)

	h.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("player", leader.Name),
		zap.Bool("single", req.SingleMode),
		zap.Int("sessions", h.registry.Len()),
	)
	h.deliver(cc, requestID, id, protocol.Outcome{
		Subscribe: id,
		Envelopes: []protocol.Envelope{
			protocol.Reply(protocol.EventSessionCreated, playerSession{Player: leader, Session: s}),
		},
	})
	return nil
}

// Join adds req.PlayerName to the session req.SessionID and binds cc to it.
// A bound connection leaves its current session as part of the same commit,
// so a rejected join leaves every session untouched.
//
// Postcondition: On success the joiner receives session:joined and the other
// members receive session:playerJoined. On failure no state changes.
func (h *Handler) Join(cc *ConnContext, requestID string, req JoinRequest) error {
	if req.SessionID == "" {
		return missingField("sessionId")
	}
	if req.PlayerName == "" {
		return missingField("playerName")
	}

	s, err := h.registry.Lookup(req.SessionID)
	if err != nil {
		return err
	}
	cur, prev := cc.Bound()
	switch {
	case cur == nil:
		s.Lock()
		defer s.Unlock()
	case cur == s:
		s.Lock()
		defer s.Unlock()
		return h.rejoin(cc, requestID, s, prev, req.PlayerName)
	default:
		unlock := lockPair(cur, s)
		defer unlock()
		if err := s.CanJoin(req.PlayerName); err != nil {
			return err
		}
		if old, p := cc.Unbind(); old == cur {
			h.deliver(cc, "", old.ID, h.depart(old, p, false))
		}
	}

	p, err := s.Join(req.PlayerName)
	if err != nil {
		return err
	}
	cc.bind(s, p)

	h.logger.Info("player joined",
		zap.String("session_id", s.ID),
		zap.String("player", p.Name),
	)
	h.deliver(cc, requestID, s.ID, protocol.Outcome{
		Subscribe: s.ID,
		Envelopes: []protocol.Envelope{
			protocol.Reply(protocol.EventSessionJoined, playerSession{Player: p, Session: s}),
			protocol.ToOthers(protocol.EventSessionPlayerJoined, map[string]any{"player": p}),
		},
	})
	return nil
}

// rejoin replaces the player cc holds in s with a new player named name.
// The new player is added before the old one leaves so s never empties.
//
// Precondition: caller holds the session lock and cc is bound to s as prev.
func (h *Handler) rejoin(cc *ConnContext, requestID string, s *lobby.Session, prev *lobby.Player, name string) error {
	p, err := s.Join(name)
	if err != nil {
		return err
	}
	s.Leave(prev.Name)
	cc.bind(s, p)

	h.logger.Info("player rejoined",
		zap.String("session_id", s.ID),
		zap.String("player", p.Name),
		zap.String("previous", prev.Name),
	)
	h.deliver(cc, requestID, s.ID, protocol.Outcome{
		Envelopes: []protocol.Envelope{
			protocol.ToOthers(protocol.EventSessionPlayerLeaved, map[string]string{"playerName": prev.Name}),
			protocol.Reply(protocol.EventSessionJoined, playerSession{Player: p, Session: s}),
			protocol.ToOthers(protocol.EventSessionPlayerJoined, map[string]any{"player": p}),
		},
	})
	return nil
}

// lockPair locks two distinct sessions in id order and returns the unlock.
func lockPair(a, b *lobby.Session) func() {
	if b.ID < a.ID {
		a, b = b, a
	}
	a.Lock()
	b.Lock()
	return func() {
		b.Unlock()
		a.Unlock()
	}
}

// Launch moves the bound session to the Launched state.
//
// Postcondition: Every member receives session:launched and the launch
// observer, if any, receives a snapshot.
func (h *Handler) Launch(cc *ConnContext, requestID string) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.Launch(); err != nil {
			return protocol.Outcome{}, err
		}
		h.logger.Info("session launched", zap.String("session_id", s.ID))
		if h.observer != nil {
			rec, err := s.LaunchRecord(h.now())
			if err != nil {
				h.logger.Error("snapshotting launched session", zap.String("session_id", s.ID), zap.Error(err))
			} else {
				h.observer.SessionLaunched(rec)
			}
		}
		return protocol.Outcome{Envelopes: []protocol.Envelope{
			protocol.ToAll(protocol.EventSessionLaunched, map[string]string{"sessionId": s.ID}),
		}}, nil
	})
}

// Leave removes the bound player from its session. It is a no-op when cc is
// unbound.
//
// Postcondition: cc is unbound and receives session:leaved if it was bound.
func (h *Handler) Leave(cc *ConnContext, requestID string) error {
	h.leave(cc, requestID, true)
	return nil
}

// Disconnect runs the leave cleanup for a closed connection. It is safe to
// call more than once.
func (h *Handler) Disconnect(cc *ConnContext) {
	h.leave(cc, "", false)
}

func (h *Handler) leave(cc *ConnContext, requestID string, ack bool) {
	s, p := cc.Unbind()
	if s == nil {
		return
	}
	s.Lock()
	defer s.Unlock()
	h.deliver(cc, requestID, s.ID, h.depart(s, p, ack))
}

// depart removes p from s, dissolving s when it empties, and returns the
// frames announcing it.
//
// Precondition: caller holds the session lock and has already unbound p.
func (h *Handler) depart(s *lobby.Session, p *lobby.Player, ack bool) protocol.Outcome {
	removed, empty := s.Leave(p.Name)
	out := protocol.Outcome{Unsubscribe: s.ID}
	if ack {
		out.Envelopes = append(out.Envelopes, protocol.Reply(protocol.EventSessionLeaved, nil))
	}
	switch {
	case empty:
		h.registry.Unregister(s.ID)
		h.logger.Info("session dissolved",
			zap.String("session_id", s.ID),
			zap.String("player", p.Name),
			zap.Int("sessions", h.registry.Len()),
		)
	case removed:
		out.Envelopes = append(out.Envelopes,
			protocol.ToOthers(protocol.EventSessionPlayerLeaved, map[string]string{"playerName": p.Name}))
		h.logger.Info("player left", zap.String("session_id", s.ID), zap.String("player", p.Name))
	}
	return out
}
