package memstore

import (
	"context"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	Code  string
	Reply chan *Lobby
}

type EnsureLobby struct {
	Code  string
	Reply chan *Lobby
}

type ListLobbies struct {
	Reply chan []*Lobby
}

// RemoveLobby is sent by an idle lobby. Lobby identifies the sender so a late
// request never removes a newer lobby registered under the same code.
type RemoveLobby struct {
	Code  string
	Lobby *Lobby
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the code -> lobby table. A lobby stays registered while it holds a
// document or has watchers, so watchers of a deleted room still hear about it.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*Lobby
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, config.InboxBuffer),
		lobbies: make(map[string]*Lobby),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := NewLobby(h.ctx, msg.Code, h.inbox)
				h.lobbies[msg.Code] = lb
				msg.Reply <- lb

			case ListLobbies:
				all := make([]*Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					all = append(all, lb)
				}
				msg.Reply <- all

			case RemoveLobby:
				if h.lobbies[msg.Code] != msg.Lobby {
					break
				}
				// No EnsureLobby can hand the lobby out while the hub waits here.
				if retire(msg.Lobby) {
					delete(h.lobbies, msg.Code)
				}

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Inbox() <- Shutdown{}
				}
				clear(h.lobbies)
				h.cancel()
			}
		}
	}
}

// retire reports whether lb agreed to stop. A lobby that is gone already
// counts as retired.
func retire(lb *Lobby) bool {
	reply := make(chan bool, 1)
	select {
	case lb.Inbox() <- Retire{Reply: reply}:
	case <-lb.Done():
		return true
	}
	select {
	case ok := <-reply:
		return ok
	case <-lb.Done():
		// The lobby may have replied just before stopping.
		select {
		case ok := <-reply:
			return ok
		default:
			return true
		}
	}
}
