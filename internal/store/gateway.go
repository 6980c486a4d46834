package store

import (
	"context"
	"sync"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
)

type CreateParams struct {
	PointLimit  int
	PointValue  int
	CreatorName string
	IdentityRef string
}

// Gateway is every room operation a client may perform. Mutations are
// transactional: each one reads the latest document and conditionally writes it.
type Gateway interface {
	CreateRoom(ctx context.Context, p CreateParams) (room.Room, string, error)
	JoinRoom(ctx context.Context, code, name, identityRef string) (room.Room, string, error)
	LeaveRoom(ctx context.Context, code, playerID string) error
	SetReady(ctx context.Context, code, playerID string, ready bool) (room.Room, error)
	StartGame(ctx context.Context, code string) (room.Room, error)
	// UpdateScore also returns the transition events of the committed write,
	// including room.EvtPlayerEliminated when this score took the player out.
	UpdateScore(ctx context.Context, code, playerID string, score, round int) (room.Room, []room.Event, error)
	NextRound(ctx context.Context, code string, fromRound int) (room.Room, error)
	EndGame(ctx context.Context, code, winnerID string) (room.Room, error)
	GetRoom(ctx context.Context, code string) (room.Room, error)
	Observe(ctx context.Context, code string) (*Subscription, error)
	GamesForUser(ctx context.Context, ref string) ([]room.Room, error)
	GamesBetweenUsers(ctx context.Context, a, b string) ([]room.Room, error)
}

// Snapshot is one committed state of a room document. A nil Room with a nil
// Err means the document no longer exists.
type Snapshot struct {
	Room    *room.Room
	Version int64
	Err     error
}

func (s Snapshot) Absent() bool { return s.Room == nil && s.Err == nil }

// Subscription delivers snapshots for one room code until cancelled.
type Subscription struct {
	code   string
	c      <-chan Snapshot
	cancel context.CancelFunc
	once   sync.Once
}

func NewSubscription(code string, c <-chan Snapshot, cancel context.CancelFunc) *Subscription {
	return &Subscription{code: code, c: c, cancel: cancel}
}

func (s *Subscription) Code() string { return s.code }

// C is closed after Cancel, or when the backend shuts down. A slow reader
// skips intermediate snapshots but always receives the latest.
func (s *Subscription) C() <-chan Snapshot { return s.c }

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
