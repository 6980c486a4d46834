package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/engine"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/identity"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/memstore"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

const eventually = time.Second

func newGateway(t *testing.T) *store.TxGateway {
	t.Helper()
	g := memstore.NewGateway(context.Background())
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func newCoordinator(t *testing.T, g store.Gateway, name string, opts ...Option) *Coordinator {
	t.Helper()
	e := engine.New(g, engine.WithSettleDelay(0))
	c := New(g, e, identity.Static{UserID: "uid-" + name, Name: name}, opts...)
	t.Cleanup(c.Close)
	return c
}

func playerCount(c *Coordinator) int {
	r, ok := c.Room()
	if !ok {
		return -1
	}
	return len(r.Players)
}

func TestCreateAndJoin_SnapshotsReachEveryone(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	var changes atomic.Int32
	host := newCoordinator(t, g, "Asha", WithOnChange(func(room.Room) { changes.Add(1) }))
	guest := newCoordinator(t, g, "Bo")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"uid-Asha"}, r.ParticipantIDs)
	assert.NotEmpty(t, host.UserID())

	_, err = guest.JoinRoom(ctx, " "+r.Code+" ")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return playerCount(host) == 2 }, eventually, 5*time.Millisecond)
	assert.GreaterOrEqual(t, changes.Load(), int32(2))

	held, _ := guest.Room()
	assert.Equal(t, "Bo", held.Players[1].Name)
	assert.Equal(t, guest.UserID(), held.Players[1].ID)
}

func TestJoinRoom_FailureSetsMessage(t *testing.T) {
	c := newCoordinator(t, newGateway(t), "Bo")

	_, err := c.JoinRoom(context.Background(), "ZZZZZZ")

	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.Contains(t, c.Message(), "Room not found")
	_, ok := c.Room()
	assert.False(t, ok)
}

func isReady(c *Coordinator) bool {
	r, ok := c.Room()
	if !ok {
		return false
	}
	p, ok := room.FindPlayer(r, c.UserID())
	return ok && p.IsReady
}

func TestToggleReady(t *testing.T) {
	g := newGateway(t)
	c := newCoordinator(t, g, "Asha")
	ctx := context.Background()
	r, err := c.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)

	require.NoError(t, c.ToggleReady(ctx))
	require.Eventually(t, func() bool { return isReady(c) }, eventually, 5*time.Millisecond)

	stored, err := g.GetRoom(ctx, r.Code)
	require.NoError(t, err)
	assert.True(t, stored.Players[0].IsReady)

	require.NoError(t, c.ToggleReady(ctx))
	require.Eventually(t, func() bool { return !isReady(c) }, eventually, 5*time.Millisecond)
}

func TestToggleReady_FailureRestoresAndDeletionKeepsState(t *testing.T) {
	g := newGateway(t)
	c := newCoordinator(t, g, "Asha")
	ctx := context.Background()
	r, err := c.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)

	// The document disappears underneath the session.
	require.NoError(t, g.LeaveRoom(ctx, r.Code, c.UserID()))
	time.Sleep(20 * time.Millisecond)
	held, ok := c.Room()
	require.True(t, ok, "absent snapshots keep the last room")
	assert.Len(t, held.Players, 1)

	err = c.ToggleReady(ctx)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	held, _ = c.Room()
	assert.False(t, held.Players[0].IsReady)
	assert.NotEmpty(t, c.Message())
}

func TestApply_DiscardsStaleAndFailedSnapshots(t *testing.T) {
	c := New(nil, nil, identity.Static{})
	now := time.Now()
	held, err := room.New("BBB222", 200, 1, room.Player{ID: "p1", Name: "Asha"}, now)
	require.NoError(t, err)

	current := store.NewSubscription("BBB222", make(chan store.Snapshot), func() {})
	old := store.NewSubscription("AAA222", make(chan store.Snapshot), func() {})
	c.current, c.sub, c.userID = &held, current, "p1"

	stale, err := room.New("AAA222", 999, 1, room.Player{ID: "p1", Name: "Asha"}, now)
	require.NoError(t, err)
	c.apply(old, store.Snapshot{Room: &stale, Version: 9})
	got, _ := c.Room()
	assert.Equal(t, "BBB222", got.Code)

	c.apply(current, store.Snapshot{Err: errors.New("stream reset")})
	c.apply(current, store.Snapshot{})
	got, _ = c.Room()
	assert.Equal(t, 200, got.PointLimit)

	fresh := held.Clone()
	fresh.PointLimit = 250
	c.apply(current, store.Snapshot{Room: &fresh, Version: 10})
	got, _ = c.Room()
	assert.Equal(t, 250, got.PointLimit)

	older := held.Clone()
	older.PointLimit = 150
	c.apply(current, store.Snapshot{Room: &older, Version: 9})
	got, _ = c.Room()
	assert.Equal(t, 250, got.PointLimit, "an older commit never replaces a newer one")
	assert.EqualValues(t, 10, got.Version)

	c.current = nil
	c.apply(current, store.Snapshot{Room: &fresh, Version: 11})
	_, ok := c.Room()
	assert.False(t, ok, "snapshots after leaving are dropped")
}

func TestOneSubscriptionAtATime(t *testing.T) {
	g := newGateway(t)
	c := newCoordinator(t, g, "Asha")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.CreateRoom(ctx, 100, 1)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return g.Metrics().Snapshot().ActiveSubscriptions == 1
	}, eventually, 5*time.Millisecond)

	c.Close()
	c.Close()
	require.Eventually(t, func() bool {
		return g.Metrics().Snapshot().ActiveSubscriptions == 0
	}, eventually, 5*time.Millisecond)
}

func TestGameFlow(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	host := newCoordinator(t, g, "Asha")
	guest := newCoordinator(t, g, "Bo")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	_, err = guest.JoinRoom(ctx, r.Code)
	require.NoError(t, err)

	err = host.StartGame(ctx)
	assert.ErrorIs(t, err, room.ErrPlayersNotReady)
	assert.Equal(t, "All players must be ready to start.", host.Message())

	require.NoError(t, host.ToggleReady(ctx))
	require.NoError(t, guest.ToggleReady(ctx))
	require.NoError(t, host.StartGame(ctx))
	assert.Empty(t, host.Message())

	_, err = host.SubmitScore(ctx, host.UserID(), 4, 10)
	assert.ErrorIs(t, err, room.ErrInvalidRound)

	_, err = host.SubmitScore(ctx, host.UserID(), 1, 20)
	require.NoError(t, err)
	out, err := guest.SubmitScore(ctx, guest.UserID(), 1, 100)
	require.NoError(t, err)

	assert.True(t, out.Eliminated)
	assert.True(t, out.GameEnded)
	assert.Equal(t, host.UserID(), out.WinnerID)
	require.Eventually(t, func() bool {
		held, _ := host.Room()
		return held.Completed
	}, eventually, 5*time.Millisecond)
}

func TestLeaveRoom_SwallowsErrors(t *testing.T) {
	g := newGateway(t)
	c := newCoordinator(t, g, "Asha")
	ctx := context.Background()
	r, err := c.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	require.NoError(t, g.LeaveRoom(ctx, r.Code, c.UserID()))

	c.LeaveRoom(ctx)

	_, ok := c.Room()
	assert.False(t, ok)
	assert.Empty(t, c.UserID())
	c.LeaveRoom(ctx)
}

func TestCommandsWithoutRoom(t *testing.T) {
	c := newCoordinator(t, newGateway(t), "Asha")
	ctx := context.Background()

	assert.ErrorIs(t, c.StartGame(ctx), room.ErrRoomNotFound)
	_, err := c.AdvanceRound(ctx, 1)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, err = c.EndGame(ctx, "")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, err = c.VoidGame(ctx)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.ErrorIs(t, c.ToggleReady(ctx), room.ErrRoomNotFound)
}

func TestVoidAndEnd(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	host := newCoordinator(t, g, "Asha")
	guest := newCoordinator(t, g, "Bo")
	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	_, err = guest.JoinRoom(ctx, r.Code)
	require.NoError(t, err)
	require.NoError(t, host.ToggleReady(ctx))
	require.NoError(t, guest.ToggleReady(ctx))
	require.NoError(t, host.StartGame(ctx))

	_, err = host.AdvanceRound(ctx, 1)
	assert.ErrorIs(t, err, store.ErrRoundNotReady)

	out, err := host.VoidGame(ctx)
	require.NoError(t, err)
	assert.True(t, out.GameEnded)
	assert.Empty(t, out.WinnerID)

	again, err := guest.EndGame(ctx, guest.UserID())
	require.NoError(t, err)
	assert.Empty(t, again.WinnerID, "first completion wins")
}

func guestReady(c *Coordinator, guestID string) bool {
	r, ok := c.Room()
	if !ok {
		return false
	}
	p, ok := room.FindPlayer(r, guestID)
	return ok && p.IsReady
}

func TestSlowOnChangeStillSeesLaterCommits(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	var slow atomic.Bool
	host := newCoordinator(t, g, "Asha", WithOnChange(func(room.Room) {
		if slow.CompareAndSwap(true, false) {
			time.Sleep(300 * time.Millisecond)
		}
	}))
	guest := newCoordinator(t, g, "Bo")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	_, err = guest.JoinRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return playerCount(host) == 2 }, eventually, 5*time.Millisecond)

	slow.Store(true)
	for i := 0; i < 40; i++ {
		_, err := g.SetReady(ctx, r.Code, guest.UserID(), i%2 == 0)
		require.NoError(t, err)
	}
	_, _, err = g.JoinRoom(ctx, r.Code, "Cy", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return playerCount(host) == 3 }, 2*time.Second, 5*time.Millisecond)
}

// replyHook runs after the wrapped SetReady commits but before its reply is
// returned, letting another writer commit in between.
type replyHook struct {
	store.Gateway
	after func(ctx context.Context, code string)
	err   error
}

func (g replyHook) SetReady(ctx context.Context, code, playerID string, ready bool) (room.Room, error) {
	r, err := g.Gateway.SetReady(ctx, code, playerID, ready)
	if err == nil && g.after != nil {
		g.after(ctx, code)
	}
	if g.err != nil {
		return room.Room{}, g.err
	}
	return r, err
}

func TestToggleReady_OlderReplyKeepsNewerSnapshot(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	guest := newCoordinator(t, g, "Bo")

	var host *Coordinator
	hooked := replyHook{Gateway: g}
	hooked.after = func(ctx context.Context, code string) {
		_, err := g.SetReady(ctx, code, guest.UserID(), true)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return guestReady(host, guest.UserID()) }, eventually, 5*time.Millisecond)
	}
	host = newCoordinator(t, hooked, "Asha")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	_, err = guest.JoinRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return playerCount(host) == 2 }, eventually, 5*time.Millisecond)

	require.NoError(t, host.ToggleReady(ctx))

	assert.True(t, guestReady(host, guest.UserID()), "reply predates the guest's commit")
	assert.True(t, isReady(host))
}

func TestToggleReady_FailureKeepsNewerSnapshot(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	guest := newCoordinator(t, g, "Bo")

	var host *Coordinator
	hooked := replyHook{Gateway: g, err: store.ErrUnavailable}
	hooked.after = func(ctx context.Context, code string) {
		_, err := g.SetReady(ctx, code, guest.UserID(), true)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return guestReady(host, guest.UserID()) }, eventually, 5*time.Millisecond)
	}
	host = newCoordinator(t, hooked, "Asha")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	_, err = guest.JoinRoom(ctx, r.Code)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return playerCount(host) == 2 }, eventually, 5*time.Millisecond)

	assert.ErrorIs(t, host.ToggleReady(ctx), store.ErrUnavailable)

	assert.True(t, guestReady(host, guest.UserID()), "no rollback past a newer commit")
	assert.NotEmpty(t, host.Message())
}

// endingStream hands out one subscription whose channel the test closes,
// then delegates to the real gateway.
type endingStream struct {
	store.Gateway
	mu       sync.Mutex
	observed int
	first    chan store.Snapshot
}

func (g *endingStream) Observe(ctx context.Context, code string) (*store.Subscription, error) {
	g.mu.Lock()
	g.observed++
	n := g.observed
	g.mu.Unlock()
	if n == 1 {
		return store.NewSubscription(room.NormalizeCode(code), g.first, func() {}), nil
	}
	return g.Gateway.Observe(ctx, code)
}

func (g *endingStream) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.observed
}

func TestEndedStreamIsObservedAgain(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	wrapped := &endingStream{Gateway: g, first: make(chan store.Snapshot)}
	host := newCoordinator(t, wrapped, "Asha")

	r, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	close(wrapped.first)
	require.Eventually(t, func() bool { return wrapped.count() == 2 }, eventually, 5*time.Millisecond)

	_, _, err = g.JoinRoom(ctx, r.Code, "Bo", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return playerCount(host) == 2 }, eventually, 5*time.Millisecond)
}

func TestEndedStreamStopsWhenObserveFails(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	wrapped := &endingStream{Gateway: g, first: make(chan store.Snapshot)}
	host := newCoordinator(t, wrapped, "Asha")

	_, err := host.CreateRoom(ctx, 100, 1)
	require.NoError(t, err)
	require.NoError(t, g.Close())
	close(wrapped.first)

	require.Eventually(t, func() bool { return host.Message() != "" }, eventually, 5*time.Millisecond)
	_, ok := host.Room()
	assert.True(t, ok, "the last room is kept")
}
