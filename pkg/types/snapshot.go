package types

import "github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"

// HTTP request and response bodies.

type CreateRoomRequest struct {
	PointLimit int    `json:"pointLimit"`
	PointValue int    `json:"pointValue"`
	Name       string `json:"name"`
}

type JoinRoomRequest struct {
	Name string `json:"name"`
}

// JoinResponse carries the id the caller now plays as.
type JoinResponse struct {
	Room     room.Room `json:"room"`
	PlayerID string    `json:"playerId"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}

type ScoreRequest struct {
	PlayerID string `json:"playerId"`
	Round    int    `json:"round"`
	Score    int    `json:"score"`
}

type AdvanceRequest struct {
	SelectedRound int `json:"selectedRound"`
}

// EndRequest ends with WinnerID, or with the live leader when empty. Void clears every score.
type EndRequest struct {
	WinnerID string `json:"winnerId,omitempty"`
	Void     bool   `json:"void,omitempty"`
}

type Envelope struct {
	Error   bool   `json:"error"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}
