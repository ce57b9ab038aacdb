package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gatehouse/gatehouse/internal/adapters/memory"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/domain/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newCountingSink() *countingSink {
	return &countingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (s *countingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += value
}

func (s *countingSink) Gauge(name string, value float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func (s *countingSink) count(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *countingSink) gauge(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauges[name]
}

type registryFixture struct {
	registry *ViewRegistry
	bus      *memory.ChangeBus
	clock    *fakeClock
	sink     *countingSink
}

func newRegistryFixture(t *testing.T, sessions ClientSessions) *registryFixture {
	t.Helper()
	bus := memory.NewChangeBus()
	f := &registryFixture{
		bus:   bus,
		clock: &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		sink:  newCountingSink(),
	}
	f.registry = NewViewRegistry(ViewRegistryOptions{
		Clients:      AuthClientFactory{Sessions: sessions, Hub: newTestHub(t, bus)},
		Metrics:      f.sink,
		FetchTimeout: time.Second,
		IdleTTL:      time.Minute,
		Now:          f.clock.Now,
	})
	t.Cleanup(f.registry.Close)
	return f
}

func signedOutSessions() ClientSessions {
	return sessionsFunc(func(context.Context, string) (*domainauth.Session, error) { return nil, nil })
}

func waitReady(t *testing.T, r *shell.Router) {
	t.Helper()
	select {
	case <-r.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("router never became ready")
	}
}

func TestViewRegistry_MountResolvesView(t *testing.T) {
	f := newRegistryFixture(t, sessionsFunc(func(_ context.Context, clientID string) (*domainauth.Session, error) {
		return &domainauth.Session{ID: "s", UserID: "u-" + clientID, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}))

	id, router, err := f.registry.Mount(context.Background(), "client-1")

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	waitReady(t, router)
	view := router.View()
	assert.Equal(t, shell.BranchHome, view.Branch)
	require.NotNil(t, view.User)
	assert.Equal(t, "u-client-1", view.User.ID)

	got, ok := f.registry.Get(id)
	require.True(t, ok)
	assert.Same(t, router, got)
	owner, ok := f.registry.Owner(id)
	require.True(t, ok)
	assert.Equal(t, "client-1", owner)

	assert.Equal(t, 1, f.registry.Len())
	assert.InDelta(t, 1.0, f.sink.gauge("view.mounted"), 0)
	assert.Eventually(t, func() bool { return f.sink.count("view.transition") == 1 }, time.Second, 10*time.Millisecond)
}

func TestViewRegistry_MountRequiresClientID(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())

	_, _, err := f.registry.Mount(context.Background(), "")

	require.ErrorIs(t, err, ErrClientIDRequired)
}

func TestViewRegistry_ChangeEventsReachMountedView(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	_, router, err := f.registry.Mount(context.Background(), "client-1")
	require.NoError(t, err)
	waitReady(t, router)
	require.Equal(t, shell.BranchSignIn, router.View().Branch)

	require.NoError(t, f.bus.Publish(context.Background(), "client-1", domainauth.ChangeEvent{
		Kind:    domainauth.ChangeSignedIn,
		Session: &domainauth.Session{ID: "s", UserID: "u1"},
	}))

	assert.Eventually(t, func() bool {
		return router.View().Branch == shell.BranchHome
	}, time.Second, 10*time.Millisecond)
}

func TestViewRegistry_UnmountTearsDownRouter(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	id, router, err := f.registry.Mount(context.Background(), "client-1")
	require.NoError(t, err)

	assert.True(t, f.registry.Unmount(id))
	assert.False(t, f.registry.Unmount(id))

	select {
	case <-router.Done():
	default:
		t.Fatal("router should be unmounted")
	}
	_, ok := f.registry.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, f.registry.Len())
	assert.Eventually(t, func() bool { return f.bus.Listeners("client-1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestViewRegistry_NotifyClientOnlyReachesThatClient(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	ctx := context.Background()
	_, mine, err := f.registry.Mount(ctx, "client-1")
	require.NoError(t, err)
	_, theirs, err := f.registry.Mount(ctx, "client-2")
	require.NoError(t, err)

	mineWatch := mine.Watch()
	defer mineWatch.Close()
	theirWatch := theirs.Watch()
	defer theirWatch.Close()

	n := f.registry.NotifyClient("client-1", shell.Notice{Level: shell.NoticeSuccess, Title: "Signed in"})

	assert.Equal(t, 1, n)
	select {
	case got := <-mineWatch.Notices():
		assert.Equal(t, "Signed in", got.Title)
	case <-time.After(time.Second):
		t.Fatal("expected notice")
	}
	select {
	case got := <-theirWatch.Notices():
		t.Fatalf("unexpected notice %+v", got)
	default:
	}
}

func TestViewRegistry_SweepUnmountsIdleViews(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	ctx := context.Background()
	idleID, _, err := f.registry.Mount(ctx, "client-1")
	require.NoError(t, err)
	watchedID, watched, err := f.registry.Mount(ctx, "client-1")
	require.NoError(t, err)
	w := watched.Watch()
	defer w.Close()

	assert.Equal(t, 0, f.registry.Sweep(f.clock.Now().Add(30*time.Second)))

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.registry.Sweep(f.clock.Now()))

	_, ok := f.registry.Get(idleID)
	assert.False(t, ok)
	_, ok = f.registry.Get(watchedID)
	assert.True(t, ok)
}

func TestViewRegistry_GetKeepsViewAlive(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	id, _, err := f.registry.Mount(context.Background(), "client-1")
	require.NoError(t, err)

	f.clock.Advance(50 * time.Second)
	_, ok := f.registry.Get(id)
	require.True(t, ok)
	f.clock.Advance(50 * time.Second)

	assert.Equal(t, 0, f.registry.Sweep(f.clock.Now()))
}

func TestViewRegistry_CloseRejectsMounts(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	_, router, err := f.registry.Mount(context.Background(), "client-1")
	require.NoError(t, err)

	f.registry.Close()
	f.registry.Close()

	<-router.Done()
	_, _, err = f.registry.Mount(context.Background(), "client-1")
	require.ErrorIs(t, err, ErrRegistryClosed)
	assert.Equal(t, 0, f.registry.Len())
}

func TestViewRegistry_RunClosesOnCancel(t *testing.T) {
	f := newRegistryFixture(t, signedOutSessions())
	_, router, err := f.registry.Mount(context.Background(), "client-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.registry.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	<-router.Done()
}
