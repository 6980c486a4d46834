// Package storetest checks that a store.Gateway honours the room rules under
// concurrent use. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

const waitFor = 2 * time.Second

type Factory func(t *testing.T) store.Gateway

func Run(t *testing.T, newGateway Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, g store.Gateway)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"JoinAfterStartRejected", testJoinAfterStart},
		{"ScoreZeroFill", testScoreZeroFill},
		{"ModeratorReassigned", testModeratorReassigned},
		{"LastLeaveDeletes", testLastLeaveDeletes},
		{"ConcurrentScoresPersist", testConcurrentScores},
		{"ConcurrentJoinsPersist", testConcurrentJoins},
		{"Capacity", testCapacity},
		{"VoidClearsScores", testVoidClearsScores},
		{"NextRoundIdempotent", testNextRoundIdempotent},
		{"ObserveOrdering", testObserveOrdering},
		{"History", testHistory},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newGateway(t))
		})
	}
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// lobbyWith creates a room and joins n-1 more players. ids[0] is the creator.
func lobbyWith(t *testing.T, g store.Gateway, n int, refs ...string) (string, []string) {
	t.Helper()
	ctx := ctxT(t)
	ref := func(i int) string {
		if i < len(refs) {
			return refs[i]
		}
		return ""
	}

	r, id, err := g.CreateRoom(ctx, store.CreateParams{PointLimit: 100, PointValue: 1, CreatorName: "p0", IdentityRef: ref(0)})
	require.NoError(t, err)
	ids := []string{id}
	for i := 1; i < n; i++ {
		_, id, err := g.JoinRoom(ctx, r.Code, fmt.Sprintf("p%d", i), ref(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return r.Code, ids
}

func startedWith(t *testing.T, g store.Gateway, n int, refs ...string) (string, []string) {
	t.Helper()
	ctx := ctxT(t)
	code, ids := lobbyWith(t, g, n, refs...)
	for _, id := range ids {
		_, err := g.SetReady(ctx, code, id, true)
		require.NoError(t, err)
	}
	r, err := g.StartGame(ctx, code)
	require.NoError(t, err)
	require.True(t, r.Started)
	return code, ids
}

func scoresOf(t *testing.T, r room.Room, id string) []int {
	t.Helper()
	p, ok := room.FindPlayer(r, id)
	require.True(t, ok, "player %s missing", id)
	return p.Scores
}

func testCreateAndGet(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	created, id, err := g.CreateRoom(ctx, store.CreateParams{PointLimit: 201, PointValue: 5, CreatorName: "Asha"})
	require.NoError(t, err)
	require.True(t, room.ValidCode(created.Code))

	got, err := g.GetRoom(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, 201, got.PointLimit)
	assert.Equal(t, 5, got.PointValue)
	require.Len(t, got.Players, 1)
	assert.Equal(t, id, got.Players[0].ID)
	assert.True(t, got.Players[0].IsModerator)
	assert.Equal(t, room.PhaseLobby, room.DerivePhase(got))

	_, err = g.GetRoom(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	_, _, err = g.JoinRoom(ctx, "ZZZZZZ", "Bo", "")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func testJoinAfterStart(t *testing.T, g store.Gateway) {
	code, _ := startedWith(t, g, 2)
	_, _, err := g.JoinRoom(ctxT(t), code, "late", "")
	assert.ErrorIs(t, err, room.ErrGameStarted)
}

func testScoreZeroFill(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := startedWith(t, g, 2)

	for round := 1; round < 5; round++ {
		_, _, err := g.UpdateScore(ctx, code, ids[0], 1, round)
		require.NoError(t, err)
		if round <= 2 {
			_, _, err = g.UpdateScore(ctx, code, ids[1], 10*round, round)
			require.NoError(t, err)
		}
		_, err = g.NextRound(ctx, code, round)
		require.NoError(t, err)
	}

	r, _, err := g.UpdateScore(ctx, code, ids[1], 7, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, r.CurrentRound)
	assert.Equal(t, []int{10, 20, 0, 0, 7}, scoresOf(t, r, ids[1]))
}

func testModeratorReassigned(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := lobbyWith(t, g, 3)

	require.NoError(t, g.LeaveRoom(ctx, code, ids[0]))

	r, err := g.GetRoom(ctx, code)
	require.NoError(t, err)
	require.Len(t, r.Players, 2)
	assert.Equal(t, ids[1], r.Players[0].ID)
	assert.True(t, r.Players[0].IsModerator)
	assert.False(t, r.Players[1].IsModerator)
}

func testLastLeaveDeletes(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := lobbyWith(t, g, 1)

	sub, err := g.Observe(ctx, code)
	require.NoError(t, err)
	defer sub.Cancel()
	first := recvSnapshot(t, sub.C(), waitFor)
	require.NotNil(t, first.Room)

	require.NoError(t, g.LeaveRoom(ctx, code, ids[0]))

	next := recvUntil(t, sub.C(), func(s store.Snapshot) bool { return s.Absent() })
	assert.Nil(t, next.Room)

	_, err = g.GetRoom(ctx, code)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func testConcurrentScores(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := startedWith(t, g, 3)

	var eg errgroup.Group
	for i, id := range ids {
		eg.Go(func() error {
			_, _, err := g.UpdateScore(ctx, code, id, 10+i, 1)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	r, err := g.GetRoom(ctx, code)
	require.NoError(t, err)
	for i, id := range ids {
		assert.Equal(t, []int{10 + i}, scoresOf(t, r, id))
	}
}

func testConcurrentJoins(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, _ := lobbyWith(t, g, 1)

	const joiners = 3
	var eg errgroup.Group
	for i := 0; i < joiners; i++ {
		eg.Go(func() error {
			_, _, err := g.JoinRoom(ctx, code, fmt.Sprintf("j%d", i), "")
			return err
		})
	}
	require.NoError(t, eg.Wait())

	r, err := g.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, r.Players, 1+joiners)
	require.NoError(t, r.Validate())
}

func testCapacity(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, _ := lobbyWith(t, g, room.MaxPlayers)

	_, _, err := g.JoinRoom(ctx, code, "eleventh", "")
	assert.ErrorIs(t, err, room.ErrRoomFull)
	assert.Equal(t, store.KindCapacity, store.KindOf(err))

	r, err := g.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, r.Players, room.MaxPlayers)
}

func testVoidClearsScores(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := startedWith(t, g, 2)
	_, _, err := g.UpdateScore(ctx, code, ids[0], 40, 1)
	require.NoError(t, err)

	r, err := g.EndGame(ctx, code, "")
	require.NoError(t, err)

	assert.True(t, r.Completed)
	assert.Empty(t, r.WinnerID)
	require.Len(t, r.Players, 2)
	for _, p := range r.Players {
		assert.Empty(t, p.Scores)
	}

	again, err := g.EndGame(ctx, code, ids[1])
	require.NoError(t, err)
	assert.Empty(t, again.WinnerID, "first completion wins")
}

func testNextRoundIdempotent(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, _ := startedWith(t, g, 2)

	var eg errgroup.Group
	for i := 0; i < 3; i++ {
		eg.Go(func() error {
			_, err := g.NextRound(ctx, code, 1)
			return err
		})
	}
	require.NoError(t, eg.Wait())

	r, err := g.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 2, r.CurrentRound)
}

func testObserveOrdering(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	code, ids := lobbyWith(t, g, 2)

	sub, err := g.Observe(ctx, code)
	require.NoError(t, err)
	defer sub.Cancel()

	first := recvSnapshot(t, sub.C(), waitFor)
	require.NotNil(t, first.Room)
	assert.Len(t, first.Room.Players, 2)

	_, err = g.SetReady(ctx, code, ids[0], true)
	require.NoError(t, err)
	_, err = g.SetReady(ctx, code, ids[1], true)
	require.NoError(t, err)
	_, err = g.StartGame(ctx, code)
	require.NoError(t, err)

	last := first.Version
	final := recvUntil(t, sub.C(), func(s store.Snapshot) bool {
		if s.Room == nil {
			return false
		}
		assert.GreaterOrEqual(t, s.Version, last, "snapshots must not go backwards")
		last = s.Version
		return s.Room.Started
	})
	assert.Greater(t, final.Version, first.Version)

	sub.Cancel()
	sub.Cancel()
}

func testHistory(t *testing.T, g store.Gateway) {
	ctx := ctxT(t)
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()

	code, ids := startedWith(t, g, 2, a, b)
	_, err := g.EndGame(ctx, code, ids[1])
	require.NoError(t, err)
	open, _ := startedWith(t, g, 2, a, c)

	games, err := g.GamesForUser(ctx, a)
	require.NoError(t, err)
	require.Len(t, games, 1, "only completed games count")
	assert.Equal(t, code, games[0].Code)

	between, err := g.GamesBetweenUsers(ctx, a, b)
	require.NoError(t, err)
	require.Len(t, between, 1)

	none, err := g.GamesBetweenUsers(ctx, a, c)
	require.NoError(t, err)
	assert.Empty(t, none, "room %s is still open", open)
}

func recvSnapshot(t *testing.T, ch <-chan store.Snapshot, within time.Duration) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return store.Snapshot{}
	}
}

func recvUntil(t *testing.T, ch <-chan store.Snapshot, done func(store.Snapshot) bool) store.Snapshot {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed unexpectedly")
			}
			if done(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching snapshot")
			return store.Snapshot{}
		}
	}
}
