package store

import "time"

// Snapshot is the persisted state of one room's replicated document.
type Snapshot struct {
	RoomID    string    `json:"room_id"`
	State     []byte    `json:"state"` // encoded document state
	UpdatedAt time.Time `json:"updated_at"`
}
