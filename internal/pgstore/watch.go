package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/config"
	"github.com/vinodlingamsetty/Rummy-Score-Sheet-sub000/internal/store"
)

const relistenDelay = time.Second

// Watch registers a mailbox with the feed for code. Every watcher shares the
// Store's one LISTEN connection, so watchers never hold pooled connections.
func (s *Store) Watch(ctx context.Context, code string) (<-chan store.Snapshot, error) {
	if s.ctx.Err() != nil {
		return nil, store.ErrUnavailable
	}
	mb := store.NewMailbox()
	id, ok := s.feeds.attach(code, mb)
	if !ok {
		return nil, store.ErrUnavailable
	}
	context.AfterFunc(ctx, func() { s.feeds.detach(code, id) })
	return mb.C(), nil
}

// listener routes notifications to feeds, one feed per watched room code.
type listener struct {
	ctx  context.Context
	load func(context.Context, string) store.Snapshot

	mu     sync.Mutex
	feeds  map[string]*feed
	nextID int64
	closed bool
	wg     sync.WaitGroup
}

// feed reloads one room on every notification and hands the result to each
// watcher. Repeated versions are collapsed.
type feed struct {
	code string
	kick chan struct{}
	done chan struct{}

	mu       sync.Mutex
	watchers map[int64]*store.Mailbox
	last     store.Snapshot
	primed   bool
}

func newListener(ctx context.Context, load func(context.Context, string) store.Snapshot) *listener {
	return &listener{ctx: ctx, load: load, feeds: make(map[string]*feed)}
}

// attach reports false once the listener is stopping.
func (l *listener) attach(code string, mb *store.Mailbox) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, false
	}

	f := l.feeds[code]
	if f == nil {
		f = &feed{
			code:     code,
			kick:     make(chan struct{}, 1),
			done:     make(chan struct{}),
			watchers: make(map[int64]*store.Mailbox),
		}
		l.feeds[code] = f
		l.wg.Add(1)
		go l.run(f)
	}

	l.nextID++
	id := l.nextID
	f.mu.Lock()
	f.watchers[id] = mb
	if f.primed {
		mb.Put(f.last)
	}
	f.mu.Unlock()
	f.notify()
	return id, true
}

func (l *listener) detach(code string, id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.feeds[code]
	if f == nil {
		return
	}
	f.mu.Lock()
	if mb, ok := f.watchers[id]; ok {
		mb.Close()
		delete(f.watchers, id)
	}
	empty := len(f.watchers) == 0
	f.mu.Unlock()

	if empty {
		delete(l.feeds, code)
		close(f.done)
	}
}

// notify asks the feed for code to reload. Codes nobody watches are ignored.
func (l *listener) notify(code string) {
	l.mu.Lock()
	f := l.feeds[code]
	l.mu.Unlock()
	if f != nil {
		f.notify()
	}
}

func (l *listener) notifyAll() {
	for _, f := range l.all() {
		f.notify()
	}
}

// fail tells every watcher the stream is unavailable until the listener reconnects.
func (l *listener) fail(err error) {
	for _, f := range l.all() {
		f.publish(store.Snapshot{Err: err})
	}
}

func (l *listener) all() []*feed {
	l.mu.Lock()
	defer l.mu.Unlock()
	feeds := make([]*feed, 0, len(l.feeds))
	for _, f := range l.feeds {
		feeds = append(feeds, f)
	}
	return feeds
}

func (l *listener) run(f *feed) {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			f.closeAll()
			return
		case <-f.done:
			return
		case <-f.kick:
			f.publish(l.load(l.ctx, f.code))
		}
	}
}

// wait refuses new watchers and blocks until every goroutine has stopped.
// The listener context must already be cancelled.
func (l *listener) wait() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

// notify never blocks; a pending kick already covers this one.
func (f *feed) notify() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *feed) publish(snap store.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.primed && sameState(f.last, snap) {
		return
	}
	f.last, f.primed = snap, true
	for _, mb := range f.watchers {
		s := snap
		if s.Room != nil {
			doc := s.Room.Clone()
			s.Room = &doc
		}
		mb.Put(s)
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, mb := range f.watchers {
		mb.Close()
		delete(f.watchers, id)
	}
}

func sameState(a, b store.Snapshot) bool {
	switch {
	case a.Err != nil || b.Err != nil:
		return a.Err != nil && b.Err != nil
	case a.Room == nil || b.Room == nil:
		return a.Room == nil && b.Room == nil
	default:
		return a.Version == b.Version
	}
}

// listen holds one connection in LISTEN for the life of the Store and wakes
// the feed named by each notification. After a lost connection every feed is
// told the stream is unavailable, then reloaded once the connection is back.
func (s *Store) listen() {
	defer s.feeds.wg.Done()
	for {
		err := s.listenOnce()
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("room listener lost", zap.Error(err))
		s.feeds.fail(err)
		if !sleepCtx(s.ctx, relistenDelay) {
			return
		}
	}
}

func (s *Store) listenOnce() error {
	conn, err := s.pool.Acquire(s.ctx)
	if err != nil {
		return err
	}
	defer s.release(conn)
	if _, err := conn.Exec(s.ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	// Commits may have happened while disconnected.
	s.feeds.notifyAll()
	for {
		n, err := conn.Conn().WaitForNotification(s.ctx)
		if err != nil {
			return err
		}
		s.feeds.notify(n.Payload)
	}
}

func (s *Store) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), config.WriteTimeout)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN "+notifyChannel); err != nil {
		// Never hand a listening connection back to the pool.
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}
