// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

var (
	ErrNameEmpty             = errors.New("display name empty")
	ErrNameTooLong           = errors.New("display name too long")
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomClosed            = errors.New("room closed for joining")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotEnoughParticipants = errors.New("not enough participants")
	ErrAlreadyResolved       = errors.New("selection already resolved")
)

type RoomID string

// RoomState only ever moves forward: open → selecting → resolved → expired.
type RoomState string

const (
	StateOpen      RoomState = "open"
	StateSelecting RoomState = "selecting"
	StateResolved  RoomState = "resolved"
	StateExpired   RoomState = "expired"
)

// Room is the immutable identity of a selection session. The mutable parts
// (state, roster, winner) live behind the core room guard.
type Room struct {
	ID        RoomID
	OwnerName string
	CreatedAt time.Time
}
