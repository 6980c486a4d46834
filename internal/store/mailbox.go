package store

import "sync"

// Mailbox delivers snapshots to one watcher. It holds at most one unread
// snapshot: a newer one replaces it, so a slow reader skips stale states but
// is never dropped. Only Close ends the channel.
type Mailbox struct {
	mu     sync.Mutex
	c      chan Snapshot
	closed bool
}

func NewMailbox() *Mailbox {
	return &Mailbox{c: make(chan Snapshot, 1)}
}

func (m *Mailbox) C() <-chan Snapshot { return m.c }

// Put never blocks. It reports false once the mailbox is closed.
func (m *Mailbox) Put(s Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.c <- s:
		return true
	default:
	}
	// Full: the unread snapshot is older than s.
	select {
	case <-m.c:
	default:
	}
	m.c <- s
	return true
}

func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.c)
	}
}
