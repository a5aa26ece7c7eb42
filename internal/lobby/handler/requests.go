package handler

import (
	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

// CreateRequest is the payload of session:create.
type CreateRequest struct {
	LeaderName string `json:"leaderName"`
	SingleMode bool   `json:"singleMode"`
}

// JoinRequest is the payload of session:join.
type JoinRequest struct {
	SessionID  string `json:"sessionId"`
	PlayerName string `json:"playerName"`
}

// CreateGroupRequest is the payload of group:create.
type CreateGroupRequest struct {
	GroupName string `json:"groupName"`
}

// UpdateGroupRequest is the payload of group:updateProps.
type UpdateGroupRequest struct {
	GroupIndex   int              `json:"groupIndex"`
	UpdatedProps lobby.GroupProps `json:"updatedProps"`
}

// GroupRequest is the payload of group:remove.
type GroupRequest struct {
	GroupIndex int `json:"groupIndex"`
}

// GroupPlayerRequest is the payload of group:addPlayer and group:removePlayer.
type GroupPlayerRequest struct {
	PlayerName string `json:"playerName"`
	GroupIndex int    `json:"groupIndex"`
}

// SwitchPlayerRequest is the payload of group:switchPlayer.
type SwitchPlayerRequest struct {
	PlayerName    string `json:"playerName"`
	OldGroupIndex int    `json:"oldGroupIndex"`
	NewGroupIndex int    `json:"newGroupIndex"`
}

// UpdatePlayerRequest is the payload of player:updateProps.
type UpdatePlayerRequest struct {
	PlayerName   string            `json:"playerName"`
	UpdatedProps lobby.PlayerProps `json:"updatedProps"`
}

// AddBoxItemRequest is the payload of player:rucksack:addBoxItem.
type AddBoxItemRequest struct {
	PlayerName string           `json:"playerName"`
	ItemType   catalog.ItemType `json:"itemType"`
	ItemName   string           `json:"itemName"`
}

// UpdateBoxItemRequest is the payload of player:rucksack:updateBoxItemProps.
type UpdateBoxItemRequest struct {
	PlayerName   string             `json:"playerName"`
	ItemName     string             `json:"itemName"`
	UpdatedProps lobby.BoxItemProps `json:"updatedProps"`
}

// PlayerRequest is the payload of player:rucksack:moveToBox.
type PlayerRequest struct {
	PlayerName string `json:"playerName"`
}

func missingField(name string) *lobby.Error {
	return lobby.NewError(lobby.CodeInvalidPayload, map[string]any{"field": name})
}
