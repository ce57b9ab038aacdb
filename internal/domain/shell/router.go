package shell

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
)

var (
	// ErrClientRequired indicates a router cannot be constructed without an auth client.
	ErrClientRequired = errors.New("router auth client is required")
	// ErrAlreadyMounted is returned when Mount is called on a mounted router.
	ErrAlreadyMounted = errors.New("router already mounted")
	// ErrUnmounted is returned when operating on a router that has been torn down.
	ErrUnmounted = errors.New("router unmounted")
)

const maxPendingNotices = 8

// RouterOptions configure a Router.
type RouterOptions struct {
	Client ports.AuthClient
	Logger *slog.Logger

	// FetchTimeout bounds the initial session lookup. Zero disables the bound.
	FetchTimeout time.Duration

	// OnTransition, when set, is called after the rendered branch changes.
	OnTransition func(from, to Branch)

	Now func() time.Time
}

type lifecycle int

const (
	lifecycleIdle lifecycle = iota
	lifecycleMounted
	lifecycleUnmounted
)

// Router holds the state of one mounted view and maps it onto a render branch.
// All mutation goes through mu; change events are applied by a single goroutine in
// the order the client emits them.
type Router struct {
	client       ports.AuthClient
	logger       *slog.Logger
	fetchTimeout time.Duration
	onTransition func(from, to Branch)
	now          func() time.Time

	mu       sync.Mutex
	phase    lifecycle
	loading  bool
	user     *domainauth.User
	page     Page
	branch   Branch
	revision uint64
	release  func()
	cancel   context.CancelFunc
	watchers map[*Watch]struct{}
	pending  []Notice

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// NewRouter constructs a Router in the loading state.
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Client == nil {
		return nil, ErrClientRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		client:       opts.Client,
		logger:       logger,
		fetchTimeout: opts.FetchTimeout,
		onTransition: opts.OnTransition,
		now:          now,
		loading:      true,
		page:         PageHome,
		branch:       BranchLoading,
		watchers:     make(map[*Watch]struct{}),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Mount subscribes to change events and starts the initial session lookup.
// The router outlives ctx; only Unmount tears it down.
func (r *Router) Mount(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case lifecycleMounted:
		return ErrAlreadyMounted
	case lifecycleUnmounted:
		return ErrUnmounted
	}

	release, events := r.client.Subscribe()
	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	r.phase = lifecycleMounted
	r.loading = true
	r.release = release
	r.cancel = cancel

	go r.consume(events)
	go r.fetch(fetchCtx)
	return nil
}

func (r *Router) fetch(ctx context.Context) {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}
	sess, err := r.client.GetSession(ctx)
	r.resolveFetch(sess, err)
}

// resolveFetch records the initial lookup result and leaves the loading state.
// It runs at most once and is dropped once the router is unmounted.
func (r *Router) resolveFetch(sess *domainauth.Session, err error) {
	r.mu.Lock()
	if r.phase != lifecycleMounted || !r.loading {
		r.mu.Unlock()
		return
	}

	r.loading = false
	if err != nil {
		// A failed lookup has no user to record; one already delivered by a change stays.
		r.logger.Warn("initial session lookup failed", "error", err, "signed_in", r.user != nil)
		if r.user == nil {
			r.noticeLocked(Notice{
				Level:   NoticeError,
				Title:   "Session unavailable",
				Message: "We couldn't restore your session. Please sign in again.",
			})
		}
	} else if sess != nil {
		r.user = sess.User()
	} else {
		r.user = nil
	}
	from, to := r.publishLocked()
	r.mu.Unlock()

	r.readyOnce.Do(func() { close(r.ready) })
	r.transitioned(from, to)
}

func (r *Router) consume(events <-chan domainauth.ChangeEvent) {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.apply(ev)
		}
	}
}

// apply overwrites the user with the event's payload. While loading the value is
// stored but the loading branch is still rendered.
func (r *Router) apply(ev domainauth.ChangeEvent) {
	r.mu.Lock()
	if r.phase != lifecycleMounted {
		r.mu.Unlock()
		return
	}
	r.user = ev.User()
	r.logger.Debug("session change applied", "kind", ev.Kind, "signed_in", r.user != nil)
	from, to := r.publishLocked()
	r.mu.Unlock()

	r.transitioned(from, to)
}

// Navigate sets the page selector. The selector is kept while signed out but only
// affects rendering once a user is present.
func (r *Router) Navigate(page Page) error {
	if !page.Valid() {
		return ErrInvalidPage
	}
	r.mu.Lock()
	if r.phase == lifecycleUnmounted {
		r.mu.Unlock()
		return ErrUnmounted
	}
	r.page = page
	from, to := r.publishLocked()
	r.mu.Unlock()

	r.transitioned(from, to)
	return nil
}

// Notify posts a toast notice to every watcher. Notices posted while nobody is
// watching are held (up to a small limit) for the next watcher.
func (r *Router) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == lifecycleUnmounted {
		return
	}
	r.noticeLocked(n)
}

func (r *Router) noticeLocked(n Notice) {
	if n.Level == "" {
		n.Level = NoticeInfo
	}
	if n.At.IsZero() {
		n.At = r.now()
	}
	if len(r.watchers) == 0 {
		if len(r.pending) == maxPendingNotices {
			r.pending = r.pending[1:]
		}
		r.pending = append(r.pending, n)
		return
	}
	for w := range r.watchers {
		w.offerNotice(n)
	}
}

// View returns the current render snapshot.
func (r *Router) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Router) viewLocked() View {
	var user *domainauth.User
	if r.user != nil {
		u := *r.user
		user = &u
	}
	return View{
		Branch:   r.branch,
		User:     user,
		Page:     r.page,
		Revision: r.revision,
	}
}

// Ready is closed once the initial session lookup has resolved.
func (r *Router) Ready() <-chan struct{} { return r.ready }

// Done is closed when the router is unmounted.
func (r *Router) Done() <-chan struct{} { return r.done }

// Watch registers an observer that receives the current view immediately and every
// later view. Slow observers only see the latest view.
func (r *Router) Watch() *Watch {
	w := newWatch(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == lifecycleUnmounted {
		w.closeLocked()
		return w
	}
	r.watchers[w] = struct{}{}
	w.offerView(r.viewLocked())
	for _, n := range r.pending {
		w.offerNotice(n)
	}
	r.pending = nil
	return w
}

// Watchers reports how many observers are attached.
func (r *Router) Watchers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

func (r *Router) removeWatch(w *Watch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watchers[w]; !ok {
		return
	}
	delete(r.watchers, w)
	w.closeLocked()
}

// Unmount releases the change subscription and closes every watcher. It is safe to
// call more than once; nothing changes the router's state afterwards.
func (r *Router) Unmount() {
	r.mu.Lock()
	if r.phase == lifecycleUnmounted {
		r.mu.Unlock()
		return
	}
	r.phase = lifecycleUnmounted
	close(r.done)
	if r.cancel != nil {
		r.cancel()
	}
	release := r.release
	r.release = nil
	for w := range r.watchers {
		delete(r.watchers, w)
		w.closeLocked()
	}
	r.pending = nil
	r.mu.Unlock()

	if release != nil {
		release()
	}
}

// publishLocked recomputes the branch and pushes the view to watchers.
func (r *Router) publishLocked() (from, to Branch) {
	from = r.branch
	r.branch = Select(r.loading, r.user, r.page)
	r.revision++
	v := r.viewLocked()
	for w := range r.watchers {
		w.offerView(v)
	}
	return from, r.branch
}

func (r *Router) transitioned(from, to Branch) {
	if from == to || r.onTransition == nil {
		return
	}
	r.onTransition(from, to)
}
