package models

import (
	"encoding/json"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	EventPermissionUpdate EventType = "permission:update"
	EventRevokeAccess     EventType = "revoke:access"
	EventGalleryRefresh   EventType = "gallery:refresh"
)

// Scope addresses either every connected session or one room.
type Scope string

const GlobalScope Scope = "global"

const userScopePrefix = "user:"

// UserScope is the room every session of a user joins.
func UserScope(userID primitive.ObjectID) Scope {
	return Scope(userScopePrefix + userID.Hex())
}

func (s Scope) IsGlobal() bool {
	return s == GlobalScope || s == ""
}

func (s Scope) Valid() bool {
	if s.IsGlobal() {
		return true
	}
	hex, ok := strings.CutPrefix(string(s), userScopePrefix)
	return ok && primitive.IsValidObjectID(hex)
}

// Event is delivered to subscribers; the payload is already JSON encoded so it
// survives any broker unchanged.
type Event struct {
	Type    EventType       `json:"eventType"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope is what travels through a broker. Origin identifies the
// publishing process so it can skip its own messages.
type Envelope struct {
	Origin string `json:"origin,omitempty"`
	Scope  Scope  `json:"scope"`
	Event  Event  `json:"event"`
}

type PermissionUpdatePayload struct {
	FolderPath  string `json:"folderPath"`
	FolderID    string `json:"folderId,omitempty"`
	IsRecursive bool   `json:"isRecursive,omitempty"`
	IsBulk      bool   `json:"isBulk,omitempty"`
}

type RevokeAccessPayload struct {
	FolderID string `json:"folderId"`
}

type GalleryRefreshPayload struct {
	FolderPath string `json:"folderPath,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
