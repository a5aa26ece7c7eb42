package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

type route func(cc *ConnContext, requestID string, data json.RawMessage) error

// payload adapts a typed operation to a route, decoding data into T.
func payload[T any](op func(cc *ConnContext, requestID string, req T) error) route {
	return func(cc *ConnContext, requestID string, data json.RawMessage) error {
		var req T
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &req); err != nil {
				return lobby.NewError(lobby.CodeInvalidPayload, map[string]any{"reason": err.Error()})
			}
		}
		return op(cc, requestID, req)
	}
}

func bare(op func(cc *ConnContext, requestID string) error) route {
	return func(cc *ConnContext, requestID string, _ json.RawMessage) error {
		return op(cc, requestID)
	}
}

// Dispatcher decodes inbound frames and routes them to Handler operations.
// It is safe for concurrent use; frames of one connection must be
// dispatched sequentially.
type Dispatcher struct {
	handler *Handler
	routes  map[string]route
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher routing every lobby event to h.
//
// Precondition: h and logger must be non-nil.
func NewDispatcher(h *Handler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: h,
		logger:  logger,
		routes: map[string]route{
			protocol.EventSessionCreate: payload(h.Create),
			protocol.EventSessionJoin:   payload(h.Join),
			protocol.EventSessionLaunch: bare(h.Launch),
			protocol.EventSessionLeave:  bare(h.Leave),

			protocol.EventGroupCreate:       payload(h.CreateGroup),
			protocol.EventGroupUpdateProps:  payload(h.UpdateGroupProps),
			protocol.EventGroupRemove:       payload(h.RemoveGroup),
			protocol.EventGroupAddPlayer:    payload(h.AddPlayer),
			protocol.EventGroupRemovePlayer: payload(h.RemovePlayer),
			protocol.EventGroupSwitchPlayer: payload(h.SwitchPlayer),

			protocol.EventPlayerUpdateProps: payload(h.UpdatePlayerProps),

			protocol.EventRucksackAddBoxItem:         payload(h.AddBoxItem),
			protocol.EventRucksackUpdateBoxItemProps: payload(h.UpdateBoxItemProps),
			protocol.EventRucksackMoveToBox:          payload(h.MoveToBox),
		},
	}
}

// Dispatch handles one raw inbound frame from cc. Failures are unicast back
// to cc as exception frames.
func (d *Dispatcher) Dispatch(cc *ConnContext, raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		d.handler.Reject(cc, "", err)
		return
	}
	d.DispatchFrame(cc, f)
}

// DispatchFrame handles one decoded inbound frame from cc.
func (d *Dispatcher) DispatchFrame(cc *ConnContext, f protocol.Frame) {
	r, ok := d.routes[f.Event]
	if !ok {
		d.handler.Reject(cc, f.RequestID, lobby.NewError(lobby.CodeUnknownEvent, map[string]any{"event": f.Event}))
		return
	}
	d.logger.Debug("dispatching", zap.String("conn_id", cc.ID), zap.String("event", f.Event))
	if err := r(cc, f.RequestID, f.Data); err != nil {
		d.handler.Reject(cc, f.RequestID, err)
	}
}

// Disconnect runs the leave cleanup for cc.
func (d *Dispatcher) Disconnect(cc *ConnContext) {
	d.handler.Disconnect(cc)
}
