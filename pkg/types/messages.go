package types

import "github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"

// Client -> Server (websocket)
//
// SetReady:    { playerId, ready }
// SubmitScore: { playerId, round, score }
// NextRound:   { round }
type ClientMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	Ready    bool   `json:"ready,omitempty"`
	Round    int    `json:"round,omitempty"`
	Score    int    `json:"score,omitempty"`
}

const (
	MsgSetReady    = "SetReady"
	MsgSubmitScore = "SubmitScore"
	MsgNextRound   = "NextRound"
)

// Server -> Client (websocket)
//
// StateSnapshot: { version, phase, room } after every committed change, room omitted when deleted
// Unavailable:   the store cannot be reached; keep showing the last snapshot
// Error:         { error } for a rejected client message
type ServerMessage struct {
	Type    string     `json:"type"`
	Version int64      `json:"version,omitempty"`
	Phase   room.Phase `json:"phase,omitempty"`
	Room    *room.Room `json:"room,omitempty"`
	Error   string     `json:"error,omitempty"`
}

const (
	MsgStateSnapshot = "StateSnapshot"
	MsgUnavailable   = "Unavailable"
	MsgError         = "Error"
)
