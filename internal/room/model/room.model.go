package model

import "time"

const (
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	JoinCodeLength   = 8
	MaxRoomName      = 80
	DefaultMaxUsers  = 10
)

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code"`
	MaxUsers  int       `json:"max_users"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"-"`
}

// RoomResponse is returned on create and join: everything a client needs
// to open the room's replicated document on the relay.
type RoomResponse struct {
	Room
	WSURL   string `json:"ws_url"`
	DocName string `json:"doc_name"`
}

type RoomListResponse struct {
	WSURL string `json:"ws_url"`
	Rooms []Room `json:"rooms"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	JoinCode string `json:"join_code"`
}

type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joined_at"`
}

// DocName is the replicated document name clients use for a room.
func DocName(roomID string) string {
	return "room:" + roomID
}
