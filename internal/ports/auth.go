package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
)

// ErrSessionNotFound matches store errors for a missing session or client binding.
var ErrSessionNotFound = errors.New("session not found")

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SessionStore persists and retrieves user sessions. Get reports a miss with an error
// matching ErrSessionNotFound.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// ClientBindings map a browser client id onto the session it currently holds.
type ClientBindings interface {
	Bind(ctx context.Context, clientID, sessionID string, ttl time.Duration) error
	Resolve(ctx context.Context, clientID string) (sessionID string, err error)
	Unbind(ctx context.Context, clientID string) error
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// TokenIssuer mints and verifies the access tokens attached to sessions.
type TokenIssuer interface {
	Issue(sess domainauth.Session, now time.Time) (string, error)
	Verify(token string) (domainauth.TokenClaims, error)
}

// ChangePublisher announces session changes for a client.
type ChangePublisher interface {
	Publish(ctx context.Context, clientID string, ev domainauth.ChangeEvent) error
}

// AuthClient is the per-browser view of authentication state: a one-shot session lookup
// plus a stream of change notifications.
type AuthClient interface {
	// GetSession returns the current session, or nil when there is none.
	GetSession(ctx context.Context) (*domainauth.Session, error)

	// Subscribe registers for change notifications. The returned func releases the
	// subscription and closes the channel.
	Subscribe() (func(), <-chan domainauth.ChangeEvent)
}

// AuthEventJournal records session changes for later review.
type AuthEventJournal interface {
	Record(ctx context.Context, ev domainauth.AuthEvent) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domainauth.AuthEvent, error)
}
