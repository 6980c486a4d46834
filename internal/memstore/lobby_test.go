package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan store.Snapshot, within time.Duration) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return store.Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan store.Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// closed: no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
	}
}

func recvResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for result")
		return Result{}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newTestLobby(ctx context.Context) (*Lobby, chan HubMsg) {
	hub := make(chan HubMsg, 4)
	return NewLobby(ctx, "QRS789", hub), hub
}

// watch registers a mailbox and waits until the lobby has taken it.
func watch(t *testing.T, l *Lobby, id string) *store.Mailbox {
	t.Helper()
	mb := store.NewMailbox()
	reply := make(chan Result, 1)
	l.Inbox() <- Watch{ClientID: id, Outbox: mb, Reply: reply}
	recvResult(t, reply)
	return mb
}

func testRoom(t *testing.T) room.Room {
	t.Helper()
	r, err := room.New("QRS789", 100, 1, room.Player{ID: "p1", Name: "Asha"}, time.Now())
	if err != nil {
		t.Fatalf("room.New: %v", err)
	}
	return r
}

func TestLobby_InsertSwap_BroadcastsAndVersionIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	out := watch(t, l, "c1").C()

	// watching an empty slot yields an absent snapshot first
	first := recvSnapshot(t, out, 100*time.Millisecond)
	if !first.Absent() || first.Version != 0 {
		t.Fatalf("after watch: want absent version=0, got %+v", first)
	}

	reply := make(chan Result, 1)
	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	if res := recvResult(t, reply); res.Err != nil || res.Version != 1 {
		t.Fatalf("insert: got %+v", res)
	}
	inserted := recvSnapshot(t, out, 100*time.Millisecond)
	if inserted.Version != 1 || inserted.Room == nil || len(inserted.Room.Players) != 1 {
		t.Fatalf("after insert: got %+v", inserted)
	}
	if inserted.Room.Version != 1 {
		t.Fatalf("snapshot room carries version %d, want 1", inserted.Room.Version)
	}

	next := testRoom(t)
	next.PointLimit = 250
	l.Inbox() <- Swap{Version: 1, Next: &next, Reply: reply}
	if res := recvResult(t, reply); res.Err != nil || res.Version != 2 {
		t.Fatalf("swap: got %+v", res)
	}
	swapped := recvSnapshot(t, out, 100*time.Millisecond)
	if swapped.Version != 2 || swapped.Room.PointLimit != 250 {
		t.Fatalf("after swap: got %+v", swapped)
	}

	l.Inbox() <- Load{Reply: reply}
	if res := recvResult(t, reply); res.Room.Version != 2 {
		t.Fatalf("load: room version %d, want 2", res.Room.Version)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_StaleSwapConflictsWithoutBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	reply := make(chan Result, 1)
	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	recvResult(t, reply)

	out := watch(t, l, "c1").C()
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	next := testRoom(t)
	l.Inbox() <- Swap{Version: 0, Next: &next, Reply: reply}
	if res := recvResult(t, reply); !errors.Is(res.Err, store.ErrConflict) {
		t.Fatalf("stale swap: want ErrConflict, got %v", res.Err)
	}
	recvNoSnapshot(t, out, 50*time.Millisecond)

	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	if res := recvResult(t, reply); !errors.Is(res.Err, store.ErrCodeTaken) {
		t.Fatalf("second insert: want ErrCodeTaken, got %v", res.Err)
	}
}

func TestLobby_DeleteBroadcastsAbsentAndAllowsReinsert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	reply := make(chan Result, 1)
	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	recvResult(t, reply)

	out := watch(t, l, "c1").C()
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Swap{Version: 1, Next: nil, Reply: reply}
	recvResult(t, reply)
	if gone := recvSnapshot(t, out, 100*time.Millisecond); !gone.Absent() {
		t.Fatalf("after delete: want absent snapshot, got %+v", gone)
	}

	l.Inbox() <- Load{Reply: reply}
	if res := recvResult(t, reply); !errors.Is(res.Err, room.ErrRoomNotFound) {
		t.Fatalf("load after delete: want ErrRoomNotFound, got %v", res.Err)
	}

	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	if res := recvResult(t, reply); res.Err != nil || res.Version != 3 {
		t.Fatalf("reinsert: got %+v", res)
	}
}

func TestLobby_SlowSubscriberKeepsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	out := watch(t, l, "c1").C()

	reply := make(chan Result, 1)
	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	recvResult(t, reply)
	for v := int64(1); v <= 40; v++ {
		next := testRoom(t)
		next.PointLimit = 100 + int(v)
		l.Inbox() <- Swap{Version: v, Next: &next, Reply: reply}
		if res := recvResult(t, reply); res.Err != nil {
			t.Fatalf("swap %d: %v", v, res.Err)
		}
	}

	views := make(chan View, 1)
	l.Inbox() <- GetView{Reply: views}
	if view := recvView(t, views, 100*time.Millisecond); view.Subscribers != 1 {
		t.Fatalf("slow subscriber was dropped; Subscribers=%d", view.Subscribers)
	}

	// Only the newest state waits in the mailbox.
	latest := recvSnapshot(t, out, 100*time.Millisecond)
	if latest.Version != 41 || latest.Room.PointLimit != 140 {
		t.Fatalf("want latest version 41, got %+v", latest)
	}
	recvNoSnapshot(t, out, 50*time.Millisecond)
}

func TestLobby_Unwatch_ClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	out := watch(t, l, "c1").C()
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Unwatch{ClientID: "c1"}
	l.Inbox() <- Unwatch{ClientID: "c1"}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox still open after unwatch")
	}
}

func TestLobby_IdleAsksHubToRetire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, hub := newTestLobby(ctx)

	out := watch(t, l, "c1").C()
	_ = recvSnapshot(t, out, 100*time.Millisecond)
	select {
	case m := <-hub:
		t.Fatalf("watched lobby asked to retire: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}

	l.Inbox() <- Unwatch{ClientID: "c1"}
	var req RemoveLobby
	select {
	case m := <-hub:
		req = m.(RemoveLobby)
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("idle lobby never asked to retire")
	}
	if req.Code != "QRS789" || req.Lobby != l {
		t.Fatalf("unexpected remove request %+v", req)
	}

	ok := make(chan bool, 1)
	l.Inbox() <- Retire{Reply: ok}
	if !<-ok {
		t.Fatalf("idle lobby refused to retire")
	}
	select {
	case <-l.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("retired lobby did not stop")
	}
}

func TestLobby_RetireRefusedOnceBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	reply := make(chan Result, 1)
	l.Inbox() <- Insert{Room: testRoom(t), Reply: reply}
	recvResult(t, reply)

	ok := make(chan bool, 1)
	l.Inbox() <- Retire{Reply: ok}
	if <-ok {
		t.Fatalf("lobby holding a room agreed to retire")
	}
	l.Inbox() <- Load{Reply: reply}
	if res := recvResult(t, reply); res.Err != nil {
		t.Fatalf("load after refused retire: %v", res.Err)
	}
}

func TestLobby_Shutdown_ClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, _ := newTestLobby(ctx)

	out := watch(t, l, "c1").C()
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Shutdown{}

	select {
	case <-l.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("lobby did not stop")
	}
	recvNoSnapshot(t, out, 100*time.Millisecond)
}
