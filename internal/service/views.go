package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gatehouse/gatehouse/internal/domain/shell"
	"github.com/gatehouse/gatehouse/internal/observability/metrics"
	"github.com/gatehouse/gatehouse/internal/observability/statsd"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/google/uuid"
)

var (
	// ErrRegistryClosed is returned when mounting into a closed registry.
	ErrRegistryClosed = errors.New("view registry closed")
	// ErrClientIDRequired is returned when a view is mounted without a client id.
	ErrClientIDRequired = errors.New("client ID is required")
)

// AuthClients hands out the AuthClient for a browser client.
type AuthClients interface {
	For(clientID string) ports.AuthClient
}

// ViewRegistryOptions configure a ViewRegistry.
type ViewRegistryOptions struct {
	Clients AuthClients
	Logger  *slog.Logger
	Metrics statsd.Sink

	// FetchTimeout bounds each view's initial session lookup.
	FetchTimeout time.Duration
	// IdleTTL is how long a view with no watcher survives before Sweep unmounts it.
	IdleTTL time.Duration
	// SweepInterval is how often Run sweeps idle views.
	SweepInterval time.Duration

	Now func() time.Time
}

type viewEntry struct {
	router   *shell.Router
	clientID string
	lastSeen time.Time
}

// ViewRegistry owns the routers mounted for open browser views.
type ViewRegistry struct {
	clients       AuthClients
	logger        *slog.Logger
	metrics       statsd.Sink
	fetchTimeout  time.Duration
	idleTTL       time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu     sync.Mutex
	views  map[string]*viewEntry
	closed bool
}

// NewViewRegistry constructs a ViewRegistry.
func NewViewRegistry(opts ViewRegistryOptions) *ViewRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idle := opts.IdleTTL
	if idle <= 0 {
		idle = 2 * time.Minute
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ViewRegistry{
		clients:       opts.Clients,
		logger:        logger.With("component", "view_registry"),
		metrics:       opts.Metrics,
		fetchTimeout:  opts.FetchTimeout,
		idleTTL:       idle,
		sweepInterval: interval,
		now:           now,
		views:         make(map[string]*viewEntry),
	}
}

// Mount creates and mounts a router for clientID and returns its view id.
func (r *ViewRegistry) Mount(ctx context.Context, clientID string) (string, *shell.Router, error) {
	if clientID == "" {
		return "", nil, ErrClientIDRequired
	}
	if r.isClosed() {
		return "", nil, ErrRegistryClosed
	}

	router, err := shell.NewRouter(shell.RouterOptions{
		Client:       r.clients.For(clientID),
		Logger:       r.logger.With("client_id", clientID),
		FetchTimeout: r.fetchTimeout,
		OnTransition: r.recordTransition,
		Now:          r.now,
	})
	if err != nil {
		return "", nil, err
	}
	if err := router.Mount(ctx); err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		router.Unmount()
		return "", nil, ErrRegistryClosed
	}
	r.views[id] = &viewEntry{router: router, clientID: clientID, lastSeen: r.now()}
	n := len(r.views)
	r.mu.Unlock()

	r.logger.Debug("view mounted", "view_id", id, "client_id", clientID)
	metrics.EmitViewsMounted(r.metrics, n)
	return id, router, nil
}

// Get returns the router for id and marks the view as recently used.
func (r *ViewRegistry) Get(id string) (*shell.Router, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.router, true
}

// Owner reports which client mounted view id.
func (r *ViewRegistry) Owner(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[id]
	if !ok {
		return "", false
	}
	return entry.clientID, true
}

// Unmount tears down view id. It reports whether the view existed.
func (r *ViewRegistry) Unmount(id string) bool {
	r.mu.Lock()
	entry, ok := r.views[id]
	if ok {
		delete(r.views, id)
	}
	n := len(r.views)
	r.mu.Unlock()

	if !ok {
		return false
	}
	entry.router.Unmount()
	r.logger.Debug("view unmounted", "view_id", id, "client_id", entry.clientID)
	metrics.EmitViewsMounted(r.metrics, n)
	return true
}

// NotifyClient posts n to every view of clientID and returns how many received it.
func (r *ViewRegistry) NotifyClient(clientID string, n shell.Notice) int {
	r.mu.Lock()
	routers := make([]*shell.Router, 0, len(r.views))
	for _, entry := range r.views {
		if entry.clientID == clientID {
			routers = append(routers, entry.router)
		}
	}
	r.mu.Unlock()

	for _, router := range routers {
		router.Notify(n)
	}
	return len(routers)
}

// Sweep unmounts views nobody has watched for longer than the idle TTL.
func (r *ViewRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	var stale []string
	for id, entry := range r.views {
		if entry.router.Watchers() > 0 {
			entry.lastSeen = now
			continue
		}
		if now.Sub(entry.lastSeen) > r.idleTTL {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range stale {
		if r.Unmount(id) {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("swept idle views", "count", removed)
	}
	return removed
}

// Run sweeps idle views until ctx is cancelled, then closes the registry.
func (r *ViewRegistry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Close unmounts every view and rejects further mounts.
func (r *ViewRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.views
	r.views = make(map[string]*viewEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.router.Unmount()
	}
	metrics.EmitViewsMounted(r.metrics, 0)
}

// Len reports how many views are mounted.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *ViewRegistry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ViewRegistry) recordTransition(from, to shell.Branch) {
	metrics.EmitViewTransition(r.metrics, metrics.ViewTransition{From: string(from), To: string(to)})
}
