package model

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidJoinCode = errors.New("invalid-code")
	ErrNotMember       = errors.New("not a member of this room")
	ErrNotCreator      = errors.New("unauthorized: only the room creator can do that")
)

var ErrInvalidRoomName = errors.New("room name must be 1-80 characters")
