package store

import (
	"errors"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
)

var ErrConflict = errors.New("room was modified concurrently")
var ErrUnavailable = errors.New("room store unavailable")
var ErrCodeTaken = errors.New("room code already in use")
var ErrRoundNotReady = errors.New("round cannot be closed yet")

type Kind int

const (
	KindTransient Kind = iota
	KindNotFound
	KindCapacity
	KindPrecondition
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCapacity:
		return "capacity"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	default:
		return "transient"
	}
}

var preconditions = []error{
	room.ErrNotEnoughPlayers,
	room.ErrPlayersNotReady,
	room.ErrGameStarted,
	room.ErrGameNotStarted,
	room.ErrGameCompleted,
	room.ErrInvalidRound,
	room.ErrInvalidScore,
	room.ErrInvalidConfig,
	room.ErrInvalidName,
	room.ErrPlayerExists,
	room.ErrUnsupportedCommand,
	ErrRoundNotReady,
}

// KindOf classifies err. Anything unrecognized is treated as transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrPlayerNotFound):
		return KindNotFound
	case errors.Is(err, room.ErrRoomFull):
		return KindCapacity
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	for _, target := range preconditions {
		if errors.Is(err, target) {
			return KindPrecondition
		}
	}
	return KindTransient
}

// UserMessage turns err into the one line shown to a player.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNotFound:
		if errors.Is(err, room.ErrPlayerNotFound) {
			return "That player is no longer in the room."
		}
		return "Room not found. Check the code and try again."
	case KindCapacity:
		return "This room is full."
	case KindPrecondition:
		for _, target := range preconditions {
			if errors.Is(err, target) {
				return capitalize(target.Error()) + "."
			}
		}
	}
	return "Could not reach the room. Please try again."
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
