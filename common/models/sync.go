package models

import (
	"encoding/json"
	"time"
)

// SyncType identifies the external mutation a queue entry carries
type SyncType string

const (
	SyncCreateRoom       SyncType = "create_room"
	SyncUpdateRoom       SyncType = "update_room"
	SyncAddUser          SyncType = "add_user"
	SyncUpdatePermission SyncType = "update_permission"
	SyncRemoveUser       SyncType = "remove_user"
	SyncDeleteRoom       SyncType = "delete_room"
)

// SyncDrainOrder is the fixed priority in which the drain task processes
// entry types. One invocation drains exactly one non-empty type, fully, in
// this order. The order is a contract: earlier types are always applied
// before later ones.
var SyncDrainOrder = []SyncType{
	SyncCreateRoom,
	SyncUpdateRoom,
	SyncAddUser,
	SyncUpdatePermission,
	SyncRemoveUser,
	SyncDeleteRoom,
}

// SyncEntry is a pending external mutation, created by upstream handlers and
// consumed one at a time by the drain task
// Maps to: communication_sync table
type SyncEntry struct {
	ID int64 `db:"id" json:"id"`

	Type SyncType `db:"type" json:"type"`

	// Room the mutation targets
	RoomID int64 `db:"roomid" json:"roomid"`

	// Mutation-specific payload: user ids for membership changes, a JSON
	// merge patch over the room config for update_room
	CustomData json.RawMessage `db:"customdata" json:"customdata"`

	TimeCreated time.Time `db:"timecreated" json:"timecreated"`
}

// SyncUserData is the customdata payload for membership mutations
type SyncUserData struct {
	UserIDs []int64 `json:"userids"`
}

// Room is the local snapshot of an external communication room
// Maps to: communication_room table
type Room struct {
	ID int64 `db:"id" json:"id"`

	// Identifier assigned by the external room service, empty until created
	ExternalID string `db:"externalid" json:"externalid"`

	// Room configuration as sent to the external service. update_room
	// entries merge-patch this document before the gateway call.
	Config json.RawMessage `db:"config" json:"config"`
}
