package handler

import (
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/protocol"
)

// UpdatePlayerProps applies req.UpdatedProps to a player anywhere in the session.
func (h *Handler) UpdatePlayerProps(cc *ConnContext, requestID string, req UpdatePlayerRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.UpdatePlayerProps(req.PlayerName, req.UpdatedProps); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventPlayerPropsUpdated, map[string]any{
			"playerName":   req.PlayerName,
			"updatedProps": req.UpdatedProps,
		}), nil
	})
}

// AddBoxItem puts one unit of a catalog item into the player's rucksack.
func (h *Handler) AddBoxItem(cc *ConnContext, requestID string, req AddBoxItemRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		item, err := s.AddBoxItem(req.PlayerName, req.ItemType, req.ItemName)
		if err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventRucksackBoxItemAdded, map[string]any{
			"playerName": req.PlayerName,
			"boxItem":    item,
		}), nil
	})
}

// UpdateBoxItemProps changes a rucksack item and recomputes its aggregates.
func (h *Handler) UpdateBoxItemProps(cc *ConnContext, requestID string, req UpdateBoxItemRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		if err := s.UpdateBoxItemProps(req.PlayerName, req.ItemName, req.UpdatedProps); err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventRucksackBoxItemPropsUpdated, map[string]any{
			"playerName":   req.PlayerName,
			"itemName":     req.ItemName,
			"updatedProps": req.UpdatedProps,
		}), nil
	})
}

// MoveToBox closes the player's rucksack into a box.
func (h *Handler) MoveToBox(cc *ConnContext, requestID string, req PlayerRequest) error {
	return h.inSession(cc, requestID, func(s *lobby.Session) (protocol.Outcome, error) {
		box, err := s.MoveToBox(req.PlayerName)
		if err != nil {
			return protocol.Outcome{}, err
		}
		return broadcast(protocol.EventRucksackMovedToBox, map[string]any{
			"playerName": req.PlayerName,
			"box":        box,
		}), nil
	})
}
