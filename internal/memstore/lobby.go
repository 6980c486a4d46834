package memstore

import (
	"context"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/room"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

type Msg interface{ isLobbyMsg() }

type Load struct {
	Reply chan Result
}

type Insert struct {
	Room  room.Room
	Reply chan Result
}

// Swap commits Next only if the lobby is still at Version. A nil Next deletes.
type Swap struct {
	Version int64
	Next    *room.Room
	Reply   chan Result
}

type Watch struct {
	ClientID string
	Outbox   *store.Mailbox // where this subscriber wants to receive snapshots
	Reply    chan Result
}

type Unwatch struct{ ClientID string }

// Retire is sent by the hub after it unregistered the lobby. The lobby stops
// only if it is still idle; otherwise it replies false and stays registered.
type Retire struct {
	Reply chan bool
}

type Shutdown struct{}

type GetView struct {
	Reply chan View
}

func (Load) isLobbyMsg()     {}
func (Insert) isLobbyMsg()   {}
func (Swap) isLobbyMsg()     {}
func (Watch) isLobbyMsg()    {}
func (Unwatch) isLobbyMsg()  {}
func (Retire) isLobbyMsg()   {}
func (Shutdown) isLobbyMsg() {}
func (GetView) isLobbyMsg()  {}

type Result struct {
	Room    room.Room
	Version int64
	Err     error
}

type View struct {
	Version     int64
	Subscribers int
	Room        *room.Room
}

// Lobby owns one room code: the document (nil when absent), its version and
// the subscribers watching it. A lobby with neither asks the hub to remove it.
type Lobby struct {
	code     string
	hub      chan<- HubMsg
	inbox    chan Msg
	doc      *room.Room
	version  int64
	clients  map[string]*store.Mailbox
	retiring bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLobby(parent context.Context, code string, hub chan<- HubMsg) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		code:    code,
		hub:     hub,
		inbox:   make(chan Msg, config.InboxBuffer),
		clients: make(map[string]*store.Mailbox),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Load:
				if l.doc == nil {
					msg.Reply <- Result{Err: room.ErrRoomNotFound}
					break
				}
				msg.Reply <- Result{Room: l.current(), Version: l.version}

			case Insert:
				if l.doc != nil {
					msg.Reply <- Result{Err: store.ErrCodeTaken}
					break
				}
				doc := msg.Room.Clone()
				l.doc = &doc
				l.version++
				msg.Reply <- Result{Version: l.version}
				l.broadcast()

			case Swap:
				if l.doc == nil {
					msg.Reply <- Result{Err: room.ErrRoomNotFound}
					break
				}
				if msg.Version != l.version {
					msg.Reply <- Result{Err: store.ErrConflict}
					break
				}
				if msg.Next == nil {
					l.doc = nil
				} else {
					doc := msg.Next.Clone()
					l.doc = &doc
				}
				l.version++
				msg.Reply <- Result{Version: l.version}
				l.broadcast()

			case Watch:
				// Register and send the current snapshot immediately.
				l.clients[msg.ClientID] = msg.Outbox
				msg.Outbox.Put(l.snapshot())
				msg.Reply <- Result{Version: l.version}

			case Unwatch:
				if mb, ok := l.clients[msg.ClientID]; ok {
					mb.Close()
					delete(l.clients, msg.ClientID)
				}

			case Retire:
				if l.idle() {
					msg.Reply <- true
					l.shutdown()
					return
				}
				l.retiring = false
				msg.Reply <- false

			case GetView:
				// test-only: reflect internal state without data races
				v := View{Version: l.version, Subscribers: len(l.clients)}
				if l.doc != nil {
					doc := l.current()
					v.Room = &doc
				}
				msg.Reply <- v

			case Shutdown:
				l.shutdown()
				return
			}
			l.maybeRetire()
		}
	}
}

func (l *Lobby) current() room.Room {
	doc := l.doc.Clone()
	doc.Version = l.version
	return doc
}

func (l *Lobby) snapshot() store.Snapshot {
	if l.doc == nil {
		return store.Snapshot{Version: l.version}
	}
	doc := l.current()
	return store.Snapshot{Room: &doc, Version: l.version}
}

func (l *Lobby) idle() bool { return l.doc == nil && len(l.clients) == 0 }

// maybeRetire asks the hub, once, to unregister an idle lobby. The send runs
// in its own goroutine so the lobby never blocks on the hub.
func (l *Lobby) maybeRetire() {
	if l.retiring || !l.idle() {
		return
	}
	l.retiring = true
	go func() {
		select {
		case l.hub <- RemoveLobby{Code: l.code, Lobby: l}:
		case <-l.ctx.Done():
		}
	}()
}

func (l *Lobby) shutdown() {
	for id, mb := range l.clients {
		mb.Close() // no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

// broadcast hands every subscriber the new state. A subscriber that has not
// read the previous snapshot gets it replaced, never dropped.
func (l *Lobby) broadcast() {
	snap := l.snapshot()
	for _, mb := range l.clients {
		s := snap
		if s.Room != nil {
			doc := s.Room.Clone()
			s.Room = &doc
		}
		mb.Put(s)
	}
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
