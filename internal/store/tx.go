package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
)

// Backend is a key-document store with versioned conditional writes.
type Backend interface {
	// Load returns room.ErrRoomNotFound when no document exists.
	Load(ctx context.Context, code string) (room.Room, int64, error)
	// Insert returns ErrCodeTaken when the code already holds a document.
	Insert(ctx context.Context, r room.Room) (int64, error)
	// Swap replaces the document at version with next, or deletes it when next
	// is nil. A stale version yields ErrConflict.
	Swap(ctx context.Context, code string, version int64, next *room.Room) (int64, error)
	// Watch emits the current document first, then every commit in order. The
	// channel closes when ctx ends.
	Watch(ctx context.Context, code string) (<-chan Snapshot, error)
	// History returns completed rooms whose participants include every ref, newest first.
	History(ctx context.Context, refs ...string) ([]room.Room, error)
	Close() error
}

type TxGateway struct {
	backend     Backend
	logger      *zap.Logger
	metrics     *Metrics
	maxAttempts int
	now         func() time.Time
	newID       func() string
}

type Option func(*TxGateway)

func WithLogger(l *zap.Logger) Option {
	return func(g *TxGateway) { g.logger = l }
}

func WithMaxAttempts(n int) Option {
	return func(g *TxGateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *TxGateway) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *TxGateway) { g.now = now }
}

func New(b Backend, opts ...Option) *TxGateway {
	g := &TxGateway{
		backend:     b,
		logger:      zap.NewNop(),
		metrics:     NewMetrics(),
		maxAttempts: config.DefaultTxAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ Gateway = (*TxGateway)(nil)

func (g *TxGateway) Metrics() *Metrics { return g.metrics }

func (g *TxGateway) Close() error { return g.backend.Close() }

// Transact applies cmd to the latest document and writes the result only if
// nobody committed in between, retrying on conflict.
func (g *TxGateway) Transact(ctx context.Context, code string, cmd room.Command) (room.Room, []room.Event, error) {
	code = room.NormalizeCode(code)
	if !room.ValidCode(code) {
		return room.Room{}, nil, room.ErrRoomNotFound
	}
	g.metrics.incTransactions()

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		current, version, err := g.backend.Load(ctx, code)
		if err != nil {
			return room.Room{}, nil, err
		}
		current.Version = version

		next, events, err := room.Apply(current, cmd, g.now())
		if err != nil {
			return current, nil, err
		}
		if len(events) == 0 {
			return current, nil, nil
		}

		var doc *room.Room
		if !room.ContainsEvent(events, room.EvtRoomEmptied) {
			doc = &next
		}
		committed, err := g.backend.Swap(ctx, code, version, doc)
		if err == nil {
			next.Version = committed
			g.metrics.incCommits()
			g.logger.Debug("room committed",
				zap.String("code", code),
				zap.String("command", string(cmd.Type)),
				zap.Int64("version", committed),
				zap.Int("attempt", attempt),
				zap.Bool("deleted", doc == nil),
			)
			return next, events, nil
		}
		if !errors.Is(err, ErrConflict) {
			return current, nil, err
		}

		g.metrics.incConflicts()
		if attempt == g.maxAttempts {
			break
		}
		g.metrics.incRetries()
		if err := sleepCtx(ctx, backoff(attempt)); err != nil {
			return room.Room{}, nil, err
		}
	}

	g.metrics.incExhausted()
	g.logger.Warn("room transaction gave up",
		zap.String("code", code),
		zap.String("command", string(cmd.Type)),
		zap.Int("attempts", g.maxAttempts),
	)
	return room.Room{}, nil, fmt.Errorf("%s on %s after %d attempts: %w", cmd.Type, code, g.maxAttempts, ErrUnavailable)
}

func backoff(attempt int) time.Duration {
	d := config.TxBaseBackoff << (attempt - 1)
	if d > config.TxMaxBackoff || d <= 0 {
		d = config.TxMaxBackoff
	}
	return d/2 + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *TxGateway) CreateRoom(ctx context.Context, p CreateParams) (room.Room, string, error) {
	creator := room.Player{ID: g.newID(), Name: p.CreatorName, IdentityRef: p.IdentityRef}

	for i := 0; i < config.MaxCodeAttempts; i++ {
		code, err := room.NewCode()
		if err != nil {
			return room.Room{}, "", fmt.Errorf("generate room code: %w", err)
		}
		r, err := room.New(code, p.PointLimit, p.PointValue, creator, g.now())
		if err != nil {
			return room.Room{}, "", err
		}

		version, err := g.backend.Insert(ctx, r)
		if errors.Is(err, ErrCodeTaken) {
			g.logger.Debug("collision on room code, regenerating", zap.String("code", code))
			continue
		}
		if err != nil {
			return room.Room{}, "", err
		}
		r.Version = version
		g.metrics.incCommits()
		g.logger.Info("room created", zap.String("code", code), zap.String("player", creator.ID))
		return r, creator.ID, nil
	}
	return room.Room{}, "", fmt.Errorf("no free room code after %d attempts: %w", config.MaxCodeAttempts, ErrUnavailable)
}

func (g *TxGateway) JoinRoom(ctx context.Context, code, name, identityRef string) (room.Room, string, error) {
	id := g.newID()
	r, _, err := g.Transact(ctx, code, room.Command{Type: room.CmdJoin, PlayerID: id, Name: name, IdentityRef: identityRef})
	if err != nil {
		return room.Room{}, "", err
	}
	return r, id, nil
}

func (g *TxGateway) LeaveRoom(ctx context.Context, code, playerID string) error {
	_, events, err := g.Transact(ctx, code, room.Command{Type: room.CmdLeave, PlayerID: playerID})
	if err == nil && room.ContainsEvent(events, room.EvtRoomEmptied) {
		g.logger.Info("room deleted", zap.String("code", room.NormalizeCode(code)))
	}
	return err
}

func (g *TxGateway) SetReady(ctx context.Context, code, playerID string, ready bool) (room.Room, error) {
	r, _, err := g.Transact(ctx, code, room.Command{Type: room.CmdSetReady, PlayerID: playerID, Ready: ready})
	return r, err
}

func (g *TxGateway) StartGame(ctx context.Context, code string) (room.Room, error) {
	r, _, err := g.Transact(ctx, code, room.Command{Type: room.CmdStart})
	return r, err
}

func (g *TxGateway) UpdateScore(ctx context.Context, code, playerID string, score, round int) (room.Room, []room.Event, error) {
	return g.Transact(ctx, code, room.Command{Type: room.CmdScore, PlayerID: playerID, Round: round, Score: score})
}

// NextRound is a no-op unless fromRound is still the open round.
func (g *TxGateway) NextRound(ctx context.Context, code string, fromRound int) (room.Room, error) {
	r, _, err := g.Transact(ctx, code, room.Command{Type: room.CmdNextRound, Round: fromRound})
	return r, err
}

// EndGame completes the room. An empty winnerID voids the game and clears scores.
func (g *TxGateway) EndGame(ctx context.Context, code, winnerID string) (room.Room, error) {
	r, _, err := g.Transact(ctx, code, room.Command{Type: room.CmdEnd, WinnerID: winnerID})
	return r, err
}

func (g *TxGateway) GetRoom(ctx context.Context, code string) (room.Room, error) {
	code = room.NormalizeCode(code)
	if !room.ValidCode(code) {
		return room.Room{}, room.ErrRoomNotFound
	}
	r, version, err := g.backend.Load(ctx, code)
	r.Version = version
	return r, err
}

func (g *TxGateway) Observe(ctx context.Context, code string) (*Subscription, error) {
	code = room.NormalizeCode(code)
	if !room.ValidCode(code) {
		return nil, room.ErrRoomNotFound
	}

	wctx, cancel := context.WithCancel(ctx)
	ch, err := g.backend.Watch(wctx, code)
	if err != nil {
		cancel()
		return nil, err
	}
	g.metrics.incSubscriptions()
	context.AfterFunc(wctx, g.metrics.decSubscriptions)
	return NewSubscription(code, ch, cancel), nil
}

func (g *TxGateway) GamesForUser(ctx context.Context, ref string) ([]room.Room, error) {
	if ref == "" {
		return nil, nil
	}
	return g.backend.History(ctx, ref)
}

func (g *TxGateway) GamesBetweenUsers(ctx context.Context, a, b string) ([]room.Room, error) {
	if a == "" || b == "" {
		return nil, nil
	}
	return g.backend.History(ctx, a, b)
}
