package shell

import "sync"

const noticeBuffer = 8

// Watch is a scoped observer of a Router. Close releases it.
type Watch struct {
	router  *Router
	views   chan View
	notices chan Notice
	closed  bool
	once    sync.Once
}

func newWatch(r *Router) *Watch {
	return &Watch{
		router:  r,
		views:   make(chan View, 1),
		notices: make(chan Notice, noticeBuffer),
	}
}

// Views delivers render snapshots. Only the latest undelivered view is kept.
// The channel is closed when the watch or its router is closed.
func (w *Watch) Views() <-chan View { return w.views }

// Notices delivers toast notices. Notices are dropped when the buffer is full.
func (w *Watch) Notices() <-chan Notice { return w.notices }

// Close detaches the watch from its router.
func (w *Watch) Close() {
	w.once.Do(func() { w.router.removeWatch(w) })
}

// offerView and offerNotice are called with the router lock held; the router is the
// only sender so draining before sending cannot block.
func (w *Watch) offerView(v View) {
	if w.closed {
		return
	}
	select {
	case <-w.views:
	default:
	}
	w.views <- v
}

func (w *Watch) offerNotice(n Notice) {
	if w.closed {
		return
	}
	select {
	case w.notices <- n:
	default:
	}
}

func (w *Watch) closeLocked() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.views)
	close(w.notices)
}
