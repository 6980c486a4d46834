// Package session holds one client's view of a room: which room it is in,
// which player it is, and the live subscription keeping that view current.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/engine"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/identity"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

type Coordinator struct {
	gateway  store.Gateway
	engine   *engine.Engine
	identity identity.Provider
	logger   *zap.Logger
	onChange func(room.Room)

	mu      sync.Mutex
	current *room.Room
	userID  string
	sub     *store.Subscription
	message string
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithOnChange is called, outside the lock, after every authoritative update.
func WithOnChange(fn func(room.Room)) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

func New(g store.Gateway, e *engine.Engine, id identity.Provider, opts ...Option) *Coordinator {
	c := &Coordinator{gateway: g, engine: e, identity: id, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Room returns a copy of the held room.
func (c *Coordinator) Room() (room.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return room.Room{}, false
	}
	return c.current.Clone(), true
}

func (c *Coordinator) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Message is the last user-facing error, empty after a success.
func (c *Coordinator) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Coordinator) CreateRoom(ctx context.Context, pointLimit, pointValue int) (room.Room, error) {
	ref, _ := c.identity.CurrentUserID()
	r, id, err := c.gateway.CreateRoom(ctx, store.CreateParams{
		PointLimit:  pointLimit,
		PointValue:  pointValue,
		CreatorName: c.identity.DisplayName(),
		IdentityRef: ref,
	})
	if err != nil {
		return room.Room{}, c.fail(err)
	}
	return r, c.enter(ctx, r, id)
}

func (c *Coordinator) JoinRoom(ctx context.Context, code string) (room.Room, error) {
	ref, _ := c.identity.CurrentUserID()
	r, id, err := c.gateway.JoinRoom(ctx, code, c.identity.DisplayName(), ref)
	if err != nil {
		return room.Room{}, c.fail(err)
	}
	return r, c.enter(ctx, r, id)
}

// enter adopts r as the held room and replaces any previous subscription.
func (c *Coordinator) enter(ctx context.Context, r room.Room, userID string) error {
	sub, err := c.gateway.Observe(context.WithoutCancel(ctx), r.Code)

	c.mu.Lock()
	if c.sub != nil {
		c.sub.Cancel()
	}
	held := r.Clone()
	c.current = &held
	c.userID = userID
	c.sub = sub
	c.message = ""
	c.mu.Unlock()

	if err != nil {
		// The room is joined; only live updates are missing.
		c.logger.Warn("observe failed", zap.String("code", r.Code), zap.Error(err))
		c.setMessage(store.UserMessage(err))
	} else {
		go c.consume(sub)
	}
	c.notify(r)
	return nil
}

// consume applies snapshots until the subscription is replaced or cancelled.
// A stream that ends while still current is observed again.
func (c *Coordinator) consume(sub *store.Subscription) {
	for {
		for snap := range sub.C() {
			c.apply(sub, snap)
		}
		next, ok := c.resubscribe(sub)
		if !ok {
			return
		}
		sub = next
	}
}

func (c *Coordinator) resubscribe(ended *store.Subscription) (*store.Subscription, bool) {
	ended.Cancel()

	c.mu.Lock()
	if c.sub != ended || c.current == nil {
		c.mu.Unlock()
		return nil, false
	}
	code := ended.Code()
	c.mu.Unlock()

	sub, err := c.gateway.Observe(context.Background(), code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != ended {
		if sub != nil {
			sub.Cancel()
		}
		return nil, false
	}
	if err != nil {
		c.logger.Warn("observe again failed", zap.String("code", code), zap.Error(err))
		c.sub = nil
		c.message = store.UserMessage(err)
		return nil, false
	}
	c.logger.Debug("room stream resumed", zap.String("code", code))
	c.sub = sub
	return sub, true
}

func (c *Coordinator) apply(sub *store.Subscription, snap store.Snapshot) {
	c.mu.Lock()
	// Stale stream: a newer subscription or no room replaced it.
	if c.sub != sub || c.current == nil || c.current.Code != sub.Code() {
		c.mu.Unlock()
		return
	}
	if snap.Err != nil || snap.Room == nil {
		// Keep the last good state; deletions and outages are not shown as a blank room.
		c.mu.Unlock()
		if snap.Err != nil {
			c.logger.Debug("room stream unavailable", zap.String("code", sub.Code()), zap.Error(snap.Err))
		}
		return
	}
	// Gateway replies may already have moved the held room past this commit.
	if snap.Version < c.current.Version {
		c.mu.Unlock()
		return
	}
	next := snap.Room.Clone()
	next.Version = snap.Version
	c.current = &next
	c.mu.Unlock()

	c.notify(next)
}

// ToggleReady flips the local ready flag at once, then asks the store. The
// store's answer wins; on failure the previous room is restored.
func (c *Coordinator) ToggleReady(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return c.fail(room.ErrRoomNotFound)
	}
	prev := c.current.Clone()
	optimistic := c.current.Clone()
	p, ok := room.FindPlayer(optimistic, c.userID)
	if !ok {
		c.mu.Unlock()
		return c.fail(room.ErrPlayerNotFound)
	}
	for i := range optimistic.Players {
		if optimistic.Players[i].ID == p.ID {
			optimistic.Players[i].IsReady = !p.IsReady
		}
	}
	c.current = &optimistic
	code, userID := prev.Code, c.userID
	c.mu.Unlock()
	c.notify(optimistic)

	r, err := c.gateway.SetReady(ctx, code, userID, !p.IsReady)
	if err != nil {
		c.restore(code, prev)
		return c.fail(err)
	}
	c.adopt(r)
	return nil
}

func (c *Coordinator) StartGame(ctx context.Context) error {
	code, err := c.code()
	if err != nil {
		return c.fail(err)
	}
	r, err := c.engine.StartGame(ctx, code)
	if err != nil {
		return c.fail(err)
	}
	c.adopt(r)
	return nil
}

func (c *Coordinator) SubmitScore(ctx context.Context, playerID string, round, score int) (engine.Outcome, error) {
	code, err := c.code()
	if err != nil {
		return engine.Outcome{}, c.fail(err)
	}
	out, err := c.engine.SubmitScore(ctx, engine.ScoreInput{
		Code:     code,
		ActorID:  c.UserID(),
		PlayerID: playerID,
		Round:    round,
		Score:    score,
	})
	return c.finish(out, err)
}

func (c *Coordinator) AdvanceRound(ctx context.Context, selectedRound int) (engine.Outcome, error) {
	code, err := c.code()
	if err != nil {
		return engine.Outcome{}, c.fail(err)
	}
	return c.finish(c.engine.AdvanceRound(ctx, code, selectedRound))
}

func (c *Coordinator) EndGame(ctx context.Context, winnerID string) (engine.Outcome, error) {
	code, err := c.code()
	if err != nil {
		return engine.Outcome{}, c.fail(err)
	}
	return c.finish(c.engine.EndGame(ctx, code, winnerID))
}

func (c *Coordinator) VoidGame(ctx context.Context) (engine.Outcome, error) {
	code, err := c.code()
	if err != nil {
		return engine.Outcome{}, c.fail(err)
	}
	return c.finish(c.engine.VoidGame(ctx, code))
}

// LeaveRoom always clears local state. Store failures are logged, not returned.
func (c *Coordinator) LeaveRoom(ctx context.Context) {
	c.mu.Lock()
	sub, current, userID := c.sub, c.current, c.userID
	c.sub, c.current, c.userID, c.message = nil, nil, "", ""
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if current == nil {
		return
	}
	if err := c.gateway.LeaveRoom(ctx, current.Code, userID); err != nil {
		c.logger.Warn("leave room failed", zap.String("code", current.Code), zap.String("player", userID), zap.Error(err))
	}
}

// Close stops live updates. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (c *Coordinator) code() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", room.ErrRoomNotFound
	}
	return c.current.Code, nil
}

func (c *Coordinator) finish(out engine.Outcome, err error) (engine.Outcome, error) {
	if err != nil {
		return out, c.fail(err)
	}
	c.adopt(out.Room)
	return out, nil
}

// adopt takes a gateway reply as the held room if it is still the same room
// and the stream has not already delivered a later commit.
func (c *Coordinator) adopt(r room.Room) {
	c.mu.Lock()
	if c.current == nil || c.current.Code != r.Code || r.Version < c.current.Version {
		c.mu.Unlock()
		return
	}
	held := r.Clone()
	c.current = &held
	c.message = ""
	c.mu.Unlock()
	c.notify(r)
}

// restore undoes an optimistic change unless a commit arrived meanwhile.
func (c *Coordinator) restore(code string, prev room.Room) {
	c.mu.Lock()
	if c.current == nil || c.current.Code != code || c.current.Version != prev.Version {
		c.mu.Unlock()
		return
	}
	c.current = &prev
	c.mu.Unlock()
	c.notify(prev)
}

func (c *Coordinator) fail(err error) error {
	c.setMessage(store.UserMessage(err))
	return err
}

func (c *Coordinator) setMessage(msg string) {
	c.mu.Lock()
	c.message = msg
	c.mu.Unlock()
}

func (c *Coordinator) notify(r room.Room) {
	if c.onChange != nil {
		c.onChange(r.Clone())
	}
}
