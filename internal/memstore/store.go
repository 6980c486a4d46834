// Package memstore keeps room documents in process memory, one actor
// goroutine per room code.
package memstore

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

type Store struct {
	hub      *Hub
	watchers atomic.Int64
}

var _ store.Backend = (*Store)(nil)

func New(parent context.Context) *Store {
	return &Store{hub: NewHub(parent)}
}

// NewGateway is the in-memory store wrapped in the transactional gateway.
func NewGateway(parent context.Context, opts ...store.Option) *store.TxGateway {
	return store.New(New(parent), opts...)
}

func (s *Store) Load(ctx context.Context, code string) (room.Room, int64, error) {
	_, res, err := s.call(ctx, code, false, func(reply chan Result) Msg { return Load{Reply: reply} })
	return res.Room, res.Version, err
}

func (s *Store) Insert(ctx context.Context, r room.Room) (int64, error) {
	_, res, err := s.call(ctx, r.Code, true, func(reply chan Result) Msg { return Insert{Room: r, Reply: reply} })
	return res.Version, err
}

func (s *Store) Swap(ctx context.Context, code string, version int64, next *room.Room) (int64, error) {
	_, res, err := s.call(ctx, code, false, func(reply chan Result) Msg { return Swap{Version: version, Next: next, Reply: reply} })
	return res.Version, err
}

func (s *Store) Watch(ctx context.Context, code string) (<-chan store.Snapshot, error) {
	id := strconv.FormatInt(s.watchers.Add(1), 10)
	mb := store.NewMailbox()

	lb, _, err := s.call(ctx, code, true, func(reply chan Result) Msg {
		return Watch{ClientID: id, Outbox: mb, Reply: reply}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		// The lobby closes the mailbox; if it is already gone it closed it on shutdown.
		select {
		case lb.Inbox() <- Unwatch{ClientID: id}:
		case <-lb.Done():
			mb.Close()
		}
	}()
	return mb.C(), nil
}

func (s *Store) History(ctx context.Context, refs ...string) ([]room.Room, error) {
	reply := make(chan []*Lobby, 1)
	select {
	case s.hub.Inbox() <- ListLobbies{Reply: reply}:
	case <-s.hub.Done():
		return nil, store.ErrUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var lobbies []*Lobby
	select {
	case lobbies = <-reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var games []room.Room
	for _, lb := range lobbies {
		res, err := exchange(ctx, lb, func(reply chan Result) Msg { return Load{Reply: reply} })
		if err != nil {
			continue
		}
		if res.Room.Completed && hasAll(res.Room.ParticipantIDs, refs) {
			games = append(games, res.Room)
		}
	}
	sortNewestFirst(games)
	return games, nil
}

func (s *Store) Close() error {
	select {
	case s.hub.Inbox() <- ShutdownHub{}:
	case <-s.hub.Done():
	}
	return nil
}

func (s *Store) lobby(ctx context.Context, code string, create bool) (*Lobby, error) {
	reply := make(chan *Lobby, 1)
	var msg HubMsg = GetLobby{Code: code, Reply: reply}
	if create {
		msg = EnsureLobby{Code: code, Reply: reply}
	}

	select {
	case s.hub.Inbox() <- msg:
	case <-s.hub.Done():
		return nil, store.ErrUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case lb := <-reply:
		if lb == nil {
			return nil, room.ErrRoomNotFound
		}
		return lb, nil
	case <-s.hub.Done():
		return nil, store.ErrUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// call sends one request to the lobby for code and waits for its reply. A
// lobby that retired between lookup and delivery never saw the request, so
// the request is retried against a fresh lookup.
func (s *Store) call(ctx context.Context, code string, create bool, build func(chan Result) Msg) (*Lobby, Result, error) {
	for {
		lb, err := s.lobby(ctx, code, create)
		if err != nil {
			return nil, Result{}, err
		}
		res, err := exchange(ctx, lb, build)
		if errors.Is(err, errRetired) {
			select {
			case <-s.hub.Done():
				return nil, Result{}, store.ErrUnavailable
			default:
				continue
			}
		}
		return lb, res, err
	}
}

var errRetired = errors.New("lobby retired")

func exchange(ctx context.Context, lb *Lobby, build func(chan Result) Msg) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case lb.Inbox() <- build(reply):
	case <-lb.Done():
		return Result{}, errRetired
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-lb.Done():
		// A reply sent just before the lobby stopped still counts.
		select {
		case res := <-reply:
			return res, res.Err
		default:
			return Result{}, errRetired
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func hasAll(participants, refs []string) bool {
	for _, ref := range refs {
		if !slices.Contains(participants, ref) {
			return false
		}
	}
	return true
}

func sortNewestFirst(games []room.Room) {
	slices.SortFunc(games, func(a, b room.Room) int {
		return endedAt(b).Compare(endedAt(a))
	})
}

func endedAt(r room.Room) time.Time {
	if r.EndedAt != nil {
		return *r.EndedAt
	}
	return r.CreatedAt
}
