// Package protocol defines the lobby wire frames, event names and the
// delivery of handler outcomes to connections.
package protocol

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

// Inbound event names.
const (
	EventSessionCreate = "session:create"
	EventSessionJoin   = "session:join"
	EventSessionLaunch = "session:launch"
	EventSessionLeave  = "session:leave"

	EventGroupCreate       = "group:create"
	EventGroupUpdateProps  = "group:updateProps"
	EventGroupRemove       = "group:remove"
	EventGroupAddPlayer    = "group:addPlayer"
	EventGroupRemovePlayer = "group:removePlayer"
	EventGroupSwitchPlayer = "group:switchPlayer"

	EventPlayerUpdateProps = "player:updateProps"

	EventRucksackAddBoxItem         = "player:rucksack:addBoxItem"
	EventRucksackUpdateBoxItemProps = "player:rucksack:updateBoxItemProps"
	EventRucksackMoveToBox          = "player:rucksack:moveToBox"
)

// Outbound event names.
const (
	EventSessionCreated      = "session:created"
	EventSessionJoined       = "session:joined"
	EventSessionPlayerJoined = "session:playerJoined"
	EventSessionLaunched     = "session:launched"
	EventSessionLeaved       = "session:leaved"
	EventSessionPlayerLeaved = "session:playerLeaved"

	EventGroupCreated        = "group:created"
	EventGroupPropsUpdated   = "group:propsUpdated"
	EventGroupRemoved        = "group:removed"
	EventGroupPlayerAdded    = "group:playerAdded"
	EventGroupPlayerRemoved  = "group:playerRemoved"
	EventGroupPlayerSwitched = "group:playerSwitched"

	EventPlayerPropsUpdated = "player:propsUpdated"

	EventRucksackBoxItemAdded        = "player:rucksack:boxItemAdded"
	EventRucksackBoxItemPropsUpdated = "player:rucksack:boxItemPropsUpdated"
	EventRucksackMovedToBox          = "player:rucksack:movedToBox"

	EventException = "exception"
)

// Frame is the JSON envelope of every message in either direction.
type Frame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw inbound frame.
//
// Postcondition: Returns the frame, or an invalidPayload *lobby.Error.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, lobby.NewError(lobby.CodeInvalidPayload, map[string]any{"reason": err.Error()})
	}
	if f.Event == "" {
		return Frame{}, lobby.NewError(lobby.CodeInvalidPayload, map[string]any{"reason": "missing event"})
	}
	return f, nil
}

// Encode renders an outbound frame carrying data.
func Encode(event, requestID string, data any) ([]byte, error) {
	f := Frame{Event: event, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// Delivery selects the recipients of an envelope.
type Delivery int

const (
	// Unicast reaches only the requesting connection.
	Unicast Delivery = iota
	// BroadcastExclude reaches every session member except the requester.
	BroadcastExclude
	// BroadcastInclude reaches every session member including the requester.
	BroadcastInclude
)

func (d Delivery) String() string {
	switch d {
	case Unicast:
		return "unicast"
	case BroadcastExclude:
		return "broadcast_exclude"
	case BroadcastInclude:
		return "broadcast_include"
	default:
		return fmt.Sprintf("delivery(%d)", int(d))
	}
}

// Envelope is one outbound event and its audience.
type Envelope struct {
	Delivery Delivery
	Event    string
	Data     any
}

// Outcome is the result of a successful operation. Subscribe and Unsubscribe
// name the session room the requesting connection enters or leaves before the
// envelopes are delivered in order.
type Outcome struct {
	Subscribe   string
	Unsubscribe string
	Envelopes   []Envelope
}

// Reply returns an envelope unicast to the requester.
func Reply(event string, data any) Envelope {
	return Envelope{Delivery: Unicast, Event: event, Data: data}
}

// ToOthers returns an envelope broadcast to everyone but the requester.
func ToOthers(event string, data any) Envelope {
	return Envelope{Delivery: BroadcastExclude, Event: event, Data: data}
}

// ToAll returns an envelope broadcast to the whole session.
func ToAll(event string, data any) Envelope {
	return Envelope{Delivery: BroadcastInclude, Event: event, Data: data}
}

// ExceptionData is the payload of an exception frame.
type ExceptionData struct {
	Code lobby.Code     `json:"code"`
	Data map[string]any `json:"data,omitempty"`
}

// Exception converts err into an exception envelope for the requester.
//
// Precondition: err must be non-nil.
func Exception(err error) Envelope {
	e := lobby.AsError(err)
	return Reply(EventException, ExceptionData{Code: e.Code, Data: e.Data})
}

// Transport routes encoded frames to connections and session rooms.
type Transport interface {
	// Send enqueues frame for a single connection.
	Send(connID string, frame []byte) error
	// Broadcast enqueues frame for every connection subscribed to room other
	// than exceptConnID. An empty exceptConnID excludes nobody.
	Broadcast(room, exceptConnID string, frame []byte)
	// Subscribe adds connID to room.
	Subscribe(room, connID string)
	// Unsubscribe removes connID from room.
	Unsubscribe(room, connID string)
}

// Target identifies the requester of an operation.
type Target struct {
	ConnID    string
	RequestID string
	// Room is the session room broadcasts are sent to.
	Room string
}

// Deliver applies out to the transport on behalf of target. Frames that
// cannot be enqueued are dropped and logged; committed state is never
// rolled back.
//
// Precondition: for broadcasts, the caller holds the lock of the session
// named by target.Room so that frames leave in commit order.
func Deliver(t Transport, logger *zap.Logger, target Target, out Outcome) {
	if out.Unsubscribe != "" {
		t.Unsubscribe(out.Unsubscribe, target.ConnID)
	}
	if out.Subscribe != "" {
		t.Subscribe(out.Subscribe, target.ConnID)
	}
	for _, env := range out.Envelopes {
		requestID := ""
		if env.Delivery == Unicast {
			requestID = target.RequestID
		}
		frame, err := Encode(env.Event, requestID, env.Data)
		if err != nil {
			logger.Error("encoding frame", zap.String("event", env.Event), zap.Error(err))
			continue
		}
		switch env.Delivery {
		case Unicast:
			if err := t.Send(target.ConnID, frame); err != nil {
				logger.Warn("dropping frame",
					zap.String("conn_id", target.ConnID),
					zap.String("event", env.Event),
					zap.Error(err),
				)
			}
		case BroadcastExclude:
			t.Broadcast(target.Room, target.ConnID, frame)
		case BroadcastInclude:
			t.Broadcast(target.Room, "", frame)
		}
	}
}
