package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Gateway {
		g := NewGateway(context.Background(), store.WithMaxAttempts(20))
		t.Cleanup(func() { _ = g.Close() })
		return g
	})
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	s := New(context.Background())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Watch(ctx, "ABC234")
	require.NoError(t, err)
	first := recvSnapshot(t, ch, 100*time.Millisecond)
	assert.True(t, first.Absent())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestClose_FailsLaterCalls(t *testing.T) {
	s := New(context.Background())
	require.NoError(t, s.Close())

	require.Eventually(t, func() bool {
		_, _, err := s.Load(context.Background(), "ABC234")
		return err == store.ErrUnavailable
	}, time.Second, 10*time.Millisecond)
}

func TestHistory_NewestFirst(t *testing.T) {
	s := New(context.Background())
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, code := range []string{"AAA222", "BBB333", "CCC444"} {
		r, err := room.New(code, 100, 1, room.Player{ID: "p", Name: "p", IdentityRef: "uid-1"}, base)
		require.NoError(t, err)
		if i != 1 {
			ended := base.Add(time.Duration(i) * time.Hour)
			r.Completed = true
			r.EndedAt = &ended
		}
		_, err = s.Insert(ctx, r)
		require.NoError(t, err)
	}

	games, err := s.History(ctx, "uid-1")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "CCC444", games[0].Code)
	assert.Equal(t, "AAA222", games[1].Code)

	games, err = s.History(ctx, "uid-1", "uid-2")
	require.NoError(t, err)
	assert.Empty(t, games)
}

func lobbyCount(t *testing.T, s *Store) int {
	t.Helper()
	reply := make(chan []*Lobby, 1)
	s.hub.Inbox() <- ListLobbies{Reply: reply}
	return len(<-reply)
}

func TestDeletedRoomsReleaseTheirLobby(t *testing.T) {
	s := New(context.Background())
	g := store.New(s)
	defer g.Close()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		r, id, err := g.CreateRoom(ctx, store.CreateParams{PointLimit: 100, CreatorName: "p"})
		require.NoError(t, err)
		require.NoError(t, g.LeaveRoom(ctx, r.Code, id))
	}

	wctx, cancel := context.WithCancel(ctx)
	_, err := s.Watch(wctx, "ZZZ999")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return lobbyCount(t, s) == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatchedDeletedRoomKeepsItsLobby(t *testing.T) {
	s := New(context.Background())
	g := store.New(s)
	defer g.Close()
	ctx := context.Background()

	r, id, err := g.CreateRoom(ctx, store.CreateParams{PointLimit: 100, CreatorName: "p"})
	require.NoError(t, err)
	sub, err := g.Observe(ctx, r.Code)
	require.NoError(t, err)
	defer sub.Cancel()
	_ = recvSnapshot(t, sub.C(), 100*time.Millisecond)

	require.NoError(t, g.LeaveRoom(ctx, r.Code, id))
	gone := recvSnapshot(t, sub.C(), 100*time.Millisecond)
	assert.True(t, gone.Absent())

	// The same code can be used again and the watcher sees it.
	fresh, err := room.New(r.Code, 50, 1, room.Player{ID: "q", Name: "q"}, time.Now())
	require.NoError(t, err)
	_, err = s.Insert(ctx, fresh)
	require.NoError(t, err)
	back := recvSnapshot(t, sub.C(), 100*time.Millisecond)
	require.NotNil(t, back.Room)
	assert.Equal(t, 50, back.Room.PointLimit)
	assert.Equal(t, 1, lobbyCount(t, s))
}
