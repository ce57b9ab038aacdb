package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gatehouse/gatehouse/internal/adapters/authroles"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	mocks "github.com/gatehouse/gatehouse/internal/mocks/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSessionStore is a test helper for testing session store errors.
type mockSessionStore struct {
	saveFunc   func(context.Context, domainauth.Session) error
	getFunc    func(context.Context, string) (domainauth.Session, error)
	deleteFunc func(context.Context, string) error
}

func (m *mockSessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, sess)
	}
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return domainauth.Session{}, nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

var testRoles = authroles.StaticRoleMapper{AdminGroups: []string{"admins"}, UserGroups: []string{"users"}}

type authFixture struct {
	service   *AuthService
	provider  *mocks.MockAuthProvider
	sessions  *mocks.MemorySessionStore
	tokens    *mocks.StubTokenIssuer
	publisher *mocks.RecordingPublisher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		provider:  mocks.NewMockAuthProvider(),
		sessions:  mocks.NewMemorySessionStore(),
		tokens:    &mocks.StubTokenIssuer{},
		publisher: &mocks.RecordingPublisher{},
	}
	f.service = NewAuthService(AuthServiceOptions{
		Provider:  f.provider,
		Sessions:  f.sessions,
		Bindings:  f.sessions,
		Roles:     testRoles,
		Tokens:    f.tokens,
		Publisher: f.publisher,
	})
	return f
}

func (f *authFixture) login(t *testing.T, clientID string) domainauth.Session {
	t.Helper()
	res, err := f.service.CompleteLogin(context.Background(), CompleteLoginInput{
		Code:     "code",
		State:    "state-1",
		Nonce:    "nonce-1",
		ClientID: clientID,
	})
	require.NoError(t, err)
	return res.Session
}

func TestNewAuthService(t *testing.T) {
	provider := mocks.NewMockAuthProvider()
	sessions := mocks.NewMemorySessionStore()

	service := NewAuthService(AuthServiceOptions{
		Provider: provider,
		Sessions: sessions,
		Bindings: sessions,
		Roles:    testRoles,
	})

	require.NotNil(t, service)
	assert.Equal(t, provider, service.provider)
	assert.Equal(t, sessions, service.sessions)
	assert.Equal(t, testRoles, service.roles)
	assert.NotNil(t, service.logger)
	assert.NotNil(t, service.now)
}

func TestAuthService_BeginLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.service.BeginLogin(context.Background(), "http://localhost:8080/callback")

	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", result.AuthURL)
	assert.Equal(t, "state-1", result.State)
	assert.Equal(t, "nonce-1", result.Nonce)
}

func TestAuthService_BeginLogin_EmptyRedirectURL(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.service.BeginLogin(context.Background(), "")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestAuthService_BeginLogin_ProviderError(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.BeginFunc = func(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
		return "", "", "", errors.New("provider error")
	}

	result, err := f.service.BeginLogin(context.Background(), "http://localhost:8080/callback")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "begin auth flow")
	assert.Contains(t, err.Error(), "provider error")
}

func TestAuthService_WithoutProvider(t *testing.T) {
	ctx := context.Background()
	sessions := mocks.NewMemorySessionStore()
	svc := NewAuthService(AuthServiceOptions{Sessions: sessions, Bindings: sessions, Roles: testRoles})

	_, err := svc.BeginLogin(ctx, "http://localhost:8080/callback")
	require.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = svc.CompleteLogin(ctx, CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	got, err := svc.ClientSession(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, svc.Logout(ctx, "client-1"))
}

func TestAuthService_CompleteLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.service.CompleteLogin(context.Background(), CompleteLoginInput{
		Code:  "auth-code",
		State: "state-1",
		Nonce: "nonce-1",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.Session.ID)
	assert.Equal(t, "mock-user-1", result.Session.UserID)
	assert.Equal(t, "mock.user@example.com", result.Session.Email)
	assert.Equal(t, "Mock", result.Session.FirstName)
	assert.Equal(t, "User", result.Session.LastName)
	assert.Equal(t, domainauth.RoleUser, result.Session.Role)
	assert.Equal(t, "token:"+result.Session.ID+":1", result.Session.AccessToken)
	assert.True(t, result.Session.ExpiresAt.After(time.Now()))

	// Without a client id nothing is bound or announced.
	assert.Empty(t, f.publisher.Published())
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAuthService_CompleteLogin_AdminRole(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.DefaultUser = domainauth.Identity{
		UserID: "admin-user",
		Email:  "admin@example.com",
		Groups: []string{"admins", "users"},
	}

	sess := f.login(t, "")

	assert.Equal(t, domainauth.RoleAdmin, sess.Role)
}

func TestAuthService_CompleteLogin_UnknownGroupsAreGuests(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.DefaultUser = domainauth.Identity{UserID: "u", Groups: []string{"contractors"}}

	sess := f.login(t, "")

	assert.True(t, sess.IsGuest())
}

func TestAuthService_CompleteLogin_MissingParams(t *testing.T) {
	tests := []struct {
		name  string
		input CompleteLoginInput
		want  string
	}{
		{"code", CompleteLoginInput{State: "s", Nonce: "n"}, "authorization code is required"},
		{"state", CompleteLoginInput{Code: "c", Nonce: "n"}, "state parameter is required"},
		{"nonce", CompleteLoginInput{Code: "c", State: "s"}, "nonce parameter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)

			result, err := f.service.CompleteLogin(context.Background(), tt.input)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAuthService_CompleteLogin_ExchangeError(t *testing.T) {
	f := newAuthFixture(t)
	f.provider.ExchangeFunc = func(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{}, errors.New("exchange failed")
	}

	result, err := f.service.CompleteLogin(context.Background(), CompleteLoginInput{
		Code: "c", State: "s", Nonce: "n", ClientID: "client-1",
	})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "exchange authorization code")
	assert.Empty(t, f.publisher.Published())
}

func TestAuthService_CompleteLogin_SessionSaveError(t *testing.T) {
	store := &mockSessionStore{
		saveFunc: func(context.Context, domainauth.Session) error {
			return errors.New("save failed")
		},
	}
	service := NewAuthService(AuthServiceOptions{
		Provider: mocks.NewMockAuthProvider(),
		Sessions: store,
		Bindings: mocks.NewMemorySessionStore(),
		Roles:    testRoles,
	})

	result, err := service.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "save session")
}

func TestAuthService_CompleteLogin_TokenError(t *testing.T) {
	f := newAuthFixture(t)
	f.tokens.Err = errors.New("no key")

	_, err := f.service.CompleteLogin(context.Background(), CompleteLoginInput{Code: "c", State: "s", Nonce: "n"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue access token")
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_CompleteLogin_BindsAndPublishes(t *testing.T) {
	f := newAuthFixture(t)

	sess := f.login(t, "client-1")

	bound, err := f.sessions.Resolve(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, bound)

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "client-1", published[0].ClientID)
	assert.Equal(t, domainauth.ChangeSignedIn, published[0].Event.Kind)
	require.NotNil(t, published[0].Event.Session)
	assert.Equal(t, sess.ID, published[0].Event.Session.ID)
	assert.Equal(t, "mock-user-1", published[0].Event.Subject)
}

func TestAuthService_CompleteLogin_ReplacesPreviousClientSession(t *testing.T) {
	f := newAuthFixture(t)

	first := f.login(t, "client-1")
	second := f.login(t, "client-1")

	require.NotEqual(t, first.ID, second.ID)
	_, err := f.sessions.Get(context.Background(), first.ID)
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAuthService_CompleteLogin_PublishErrorIsNotFatal(t *testing.T) {
	f := newAuthFixture(t)
	f.publisher.Err = errors.New("bus down")

	sess := f.login(t, "client-1")

	assert.NotEmpty(t, sess.ID)
}

func TestAuthService_GetSession_Success(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.login(t, "")

	got, err := f.service.GetSession(context.Background(), sess.ID)

	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.UserID, got.UserID)
}

func TestAuthService_GetSession_EmptyID(t *testing.T) {
	f := newAuthFixture(t)

	got, err := f.service.GetSession(context.Background(), "")

	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "session ID is required")
}

func TestAuthService_GetSession_NotFound(t *testing.T) {
	f := newAuthFixture(t)

	got, err := f.service.GetSession(context.Background(), "missing")

	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	assert.Nil(t, got)
}

func TestAuthService_GetSession_Expired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, domainauth.Session{
		ID:        "expired",
		UserID:    "u",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	got, err := f.service.GetSession(ctx, "expired")

	require.ErrorIs(t, err, errSessionExpired)
	assert.Nil(t, got)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestAuthService_ClientSession(t *testing.T) {
	ctx := context.Background()

	t.Run("bound", func(t *testing.T) {
		f := newAuthFixture(t)
		sess := f.login(t, "client-1")

		got, err := f.service.ClientSession(ctx, "client-1")

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("unbound client is signed out", func(t *testing.T) {
		f := newAuthFixture(t)

		got, err := f.service.ClientSession(ctx, "client-1")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("empty client id", func(t *testing.T) {
		f := newAuthFixture(t)

		got, err := f.service.ClientSession(ctx, "")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("dangling binding is removed", func(t *testing.T) {
		f := newAuthFixture(t)
		require.NoError(t, f.sessions.Bind(ctx, "client-1", "gone", time.Minute))

		got, err := f.service.ClientSession(ctx, "client-1")

		require.NoError(t, err)
		assert.Nil(t, got)
		_, resolveErr := f.sessions.Resolve(ctx, "client-1")
		assert.ErrorIs(t, resolveErr, ports.ErrSessionNotFound)
	})

	t.Run("expired session is removed", func(t *testing.T) {
		f := newAuthFixture(t)
		require.NoError(t, f.sessions.Save(ctx, domainauth.Session{ID: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
		require.NoError(t, f.sessions.Bind(ctx, "client-1", "old", time.Minute))

		got, err := f.service.ClientSession(ctx, "client-1")

		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 0, f.sessions.Len())
	})

	t.Run("store failure is returned", func(t *testing.T) {
		f := newAuthFixture(t)
		f.sessions.GetErr = errors.New("redis down")

		got, err := f.service.ClientSession(ctx, "client-1")

		require.Error(t, err)
		assert.Nil(t, got)
		assert.Contains(t, err.Error(), "resolve client binding")
	})
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	before := f.login(t, "client-1")

	after, err := f.service.Refresh(ctx, "client-1")

	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.UserID, after.UserID)
	assert.Equal(t, before.Role, after.Role)

	bound, err := f.sessions.Resolve(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, after.ID, bound)

	_, err = f.sessions.Get(ctx, before.ID)
	require.ErrorIs(t, err, ports.ErrSessionNotFound)

	published := f.publisher.Published()
	require.Len(t, published, 2)
	assert.Equal(t, domainauth.ChangeTokenRefreshed, published[1].Event.Kind)
	assert.Equal(t, after.ID, published[1].Event.Session.ID)
}

func TestAuthService_Refresh_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	sessions := mocks.NewMemorySessionStore()
	service := NewAuthService(AuthServiceOptions{
		Provider:        mocks.NewMockAuthProvider(),
		Sessions:        sessions,
		Bindings:        sessions,
		Roles:           testRoles,
		RefreshLifetime: 3 * time.Hour,
		Now:             func() time.Time { return now },
	})
	res, err := service.CompleteLogin(ctx, CompleteLoginInput{Code: "code", State: "s", Nonce: "n", ClientID: "client-1"})
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	after, err := service.Refresh(ctx, "client-1")

	require.NoError(t, err)
	assert.True(t, after.ExpiresAt.Equal(now.Add(3*time.Hour)), "expiry = %s", after.ExpiresAt)
	assert.True(t, after.ExpiresAt.After(res.Session.ExpiresAt))
	stored, err := sessions.Get(ctx, after.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(after.ExpiresAt))
}

func TestAuthService_Refresh_NoSession(t *testing.T) {
	f := newAuthFixture(t)

	got, err := f.service.Refresh(context.Background(), "client-1")

	require.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, got)
	assert.Empty(t, f.publisher.Published())
}

func TestAuthService_Logout_Success(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	sess := f.login(t, "client-1")

	require.NoError(t, f.service.Logout(ctx, "client-1"))

	_, err := f.sessions.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ports.ErrSessionNotFound)
	got, err := f.service.ClientSession(ctx, "client-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	published := f.publisher.Published()
	require.Len(t, published, 2)
	last := published[1].Event
	assert.Equal(t, domainauth.ChangeSignedOut, last.Kind)
	assert.Nil(t, last.Session)
	assert.Equal(t, "mock-user-1", last.Subject)
}

func TestAuthService_Logout_NoSessionIsNoop(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.service.Logout(context.Background(), ""))
	require.NoError(t, f.service.Logout(context.Background(), "client-1"))

	assert.Empty(t, f.publisher.Published())
}

func TestAuthService_Logout_DeleteError(t *testing.T) {
	bindings := mocks.NewMemorySessionStore()
	require.NoError(t, bindings.Bind(context.Background(), "client-1", "sess-1", time.Minute))
	store := &mockSessionStore{
		deleteFunc: func(context.Context, string) error {
			return errors.New("delete failed")
		},
	}
	service := NewAuthService(AuthServiceOptions{
		Provider: mocks.NewMockAuthProvider(),
		Sessions: store,
		Bindings: bindings,
		Roles:    testRoles,
	})

	err := service.Logout(context.Background(), "client-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete session")
}

func TestGenerateSessionID(t *testing.T) {
	id1 := generateSessionID()
	id2 := generateSessionID()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Len(t, id1, 36)
}
