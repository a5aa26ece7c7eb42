package handler

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

func broadcast(event string, data any) protocol.Outcome {
	return protocol.Outcome{Envelopes: []protocol.Envelope{protocol.ToAll(event, data)}}
}

// CreateGroup adds a group to the bound session.
func (h *Handler) CreateGroup(cc *ConnContext, requestID string, req CreateGroupRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		g, err := s.CreateGroup(req.GroupName)
		if err != nil {
			return protocol.Outcome{}, err
		}
		h.logger.Debug("group created", zap.String("session_id", s.ID), zap.Int("group_index", g.Index))
		return broadcast(protocol.EventGroupCreated, map[string]any{"group": g}), nil
	})
}

// UpdateGroupProps applies req.UpdatedProps atomically to a group.
func (h *Handler) UpdateGroupProps(cc *ConnContext, requestID string, req UpdateGroupRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.UpdateGroup(req.GroupIndex, req.UpdatedProps); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventGroupPropsUpdated, map[string]any{
			"groupIndex":   req.GroupIndex,
			"updatedProps": req.UpdatedProps,
		}), nil
	})
}

// RemoveGroup deletes a group, returning its players to the pool.
func (h *Handler) RemoveGroup(cc *ConnContext, requestID string, req GroupRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if _, err := s.RemoveGroup(req.GroupIndex); err != nil {
			return protocol.Outcome{}, err
		}
		h.logger.Debug("group removed", zap.String("session_id", s.ID), zap.Int("group_index", req.GroupIndex))
		return broadcast(protocol.EventGroupRemoved, map[string]any{"groupIndex": req.GroupIndex}), nil
	})
}

// AddPlayer moves a pooled player into a group.
func (h *Handler) AddPlayer(cc *ConnContext, requestID string, req GroupPlayerRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.AddPlayerToGroup(req.PlayerName, req.GroupIndex); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventGroupPlayerAdded, map[string]any{
			"playerName": req.PlayerName,
			"groupIndex": req.GroupIndex,
		}), nil
	})
}

// RemovePlayer moves a grouped player back to the pool.
func (h *Handler) RemovePlayer(cc *ConnContext, requestID string, req GroupPlayerRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.RemovePlayerFromGroup(req.PlayerName, req.GroupIndex); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventGroupPlayerRemoved, map[string]any{
			"playerName": req.PlayerName,
			"groupIndex": req.GroupIndex,
		}), nil
	})
}

// SwitchPlayer moves a player between two groups.
func (h *Handler) SwitchPlayer(cc *ConnContext, requestID string, req SwitchPlayerRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.SwitchPlayer(req.PlayerName, req.OldGroupIndex, req.NewGroupIndex); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventGroupPlayerSwitched, map[string]any{
			"playerName":    req.PlayerName,
			"oldGroupIndex": req.OldGroupIndex,
			"newGroupIndex": req.NewGroupIndex,
		}), nil
	})
}
