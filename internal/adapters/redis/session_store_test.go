package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/gatehouse/gatehouse/internal/testutil"
)

func newTestStore(t *testing.T, prefix string) (*SessionStore, *redis.Client) {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	if prefix == "" {
		return NewSessionStore(client), client
	}
	return NewSessionStoreWithPrefix(client, prefix), client
}

func signedInSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:          id,
		UserID:      "u-" + id,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@example.com",
		Role:        domainauth.RoleAdmin,
		AccessToken: "header.payload.sig",
		ExpiresAt:   time.Now().Add(ttl),
	}
}

func TestNotFoundMatchesPort(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, ports.ErrSessionNotFound))
	assert.False(t, errors.Is(errors.New("other"), ports.ErrSessionNotFound))
}

func TestSessionStore_RoundTrip(t *testing.T) {
	store, client := newTestStore(t, "")
	ctx := context.Background()
	want := signedInSession("s1", 30*time.Minute)

	require.NoError(t, store.Save(ctx, want))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Second)
	got.ExpiresAt = want.ExpiresAt
	assert.Equal(t, want, got)

	ttl := client.TTL(ctx, "session:s1").Val()
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 5)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestSessionStore_Rejects(t *testing.T) {
	store, _ := newTestStore(t, "")
	ctx := context.Background()

	tests := []struct {
		name string
		sess domainauth.Session
	}{
		{name: "empty id", sess: signedInSession("", time.Minute)},
		{name: "already expired", sess: signedInSession("old", -time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Save(ctx, tt.sess))
		})
	}
}

func TestSessionStore_MissingIDs(t *testing.T) {
	store, _ := newTestStore(t, "")
	ctx := context.Background()

	for _, id := range []string{"", "never-saved"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
	assert.NoError(t, store.Delete(ctx, ""))
	assert.NoError(t, store.Delete(ctx, "never-saved"))
}

func TestSessionStore_KeyExpires(t *testing.T) {
	store, _ := newTestStore(t, "")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, signedInSession("brief", 1100*time.Millisecond)))
	_, err := store.Get(ctx, "brief")
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = store.Get(ctx, "brief")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_PrefixNamespacesKeys(t *testing.T) {
	store, client := newTestStore(t, "gh:sess:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, signedInSession("s2", time.Minute)))
	require.NoError(t, store.Bind(ctx, "c2", "s2", time.Minute))

	assert.Equal(t, int64(1), client.Exists(ctx, "gh:sess:s2").Val())
	assert.Equal(t, "s2", client.Get(ctx, "gh:sess:client:c2").Val())
	assert.Equal(t, int64(0), client.Exists(ctx, "session:s2").Val())
}

func TestSessionStore_Bindings(t *testing.T) {
	store, client := newTestStore(t, "")
	ctx := context.Background()

	_, err := store.Resolve(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Bind(ctx, "c1", "s1", time.Minute))
	id, err := store.Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
	assert.Positive(t, client.TTL(ctx, "session:client:c1").Val())

	// Rebinding moves the client to the new session.
	require.NoError(t, store.Bind(ctx, "c1", "s9", time.Minute))
	id, err = store.Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s9", id)

	require.NoError(t, store.Unbind(ctx, "c1"))
	_, err = store.Resolve(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_BindValidation(t *testing.T) {
	store, _ := newTestStore(t, "")
	ctx := context.Background()

	assert.Error(t, store.Bind(ctx, "", "s1", time.Minute))
	assert.Error(t, store.Bind(ctx, "c1", "", time.Minute))
	assert.Error(t, store.Bind(ctx, "c1", "s1", 0))
	assert.NoError(t, store.Unbind(ctx, ""))
	_, err := store.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
