package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	apperrors "github.com/gatehouse/gatehouse/internal/errors"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/google/uuid"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Bindings ports.ClientBindings
	Roles    ports.RoleMapper

	// Tokens mints access tokens for new and refreshed sessions. Optional.
	Tokens    ports.TokenIssuer
	// Publisher announces session changes to the client's open views. Optional.
	Publisher ports.ChangePublisher

	// RefreshLifetime is how long a refreshed session lives. Defaults to DefaultRefreshLifetime.
	RefreshLifetime time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// AuthService orchestrates authentication flows by coordinating provider, role mapping, and session persistence.
type AuthService struct {
	provider  ports.AuthProvider
	sessions  ports.SessionStore
	bindings  ports.ClientBindings
	roles     ports.RoleMapper
	tokens    ports.TokenIssuer
	publisher ports.ChangePublisher
	logger    *slog.Logger
	now       func() time.Time

	refreshLifetime time.Duration
}

// DefaultRefreshLifetime is the lifetime given to refreshed sessions when none is configured.
const DefaultRefreshLifetime = 8 * time.Hour

var (
	errSessionExpired = errors.New("session expired")

	// ErrNoSession is returned when a client has no live session to act on.
	ErrNoSession = errors.New("no active session")

	// ErrProviderUnavailable is returned by login flows when no identity provider is configured.
	ErrProviderUnavailable error = apperrors.New(apperrors.ErrCodeUnavailable, "identity provider unavailable")
)

// NewAuthService constructs a new AuthService. Provider may be nil, in which case only
// session lookups and sign-out work.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	refreshLifetime := opts.RefreshLifetime
	if refreshLifetime <= 0 {
		refreshLifetime = DefaultRefreshLifetime
	}
	return &AuthService{
		provider:  opts.Provider,
		sessions:  opts.Sessions,
		bindings:  opts.Bindings,
		roles:     opts.Roles,
		tokens:    opts.Tokens,
		publisher: opts.Publisher,
		logger:    logger.With("component", "auth_service"),
		now:       now,

		refreshLifetime: refreshLifetime,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	input := ports.BeginInput{RedirectURL: redirectURL}
	authURL, state, nonce, err := s.provider.Begin(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{
		AuthURL: authURL,
		State:   state,
		Nonce:   nonce,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string

	// ClientID, when set, binds the new session to the browser client and announces it.
	ClientID string
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
}

// CompleteLogin completes an authentication flow by exchanging the code for an identity,
// mapping roles, and persisting a session.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if s.provider == nil {
		return nil, ErrProviderUnavailable
	}
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	session := domainauth.Session{
		ID:        generateSessionID(),
		UserID:    identity.UserID,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Email:     identity.Email,
		Role:      s.roles.Map(identity.Groups),
		ExpiresAt: identity.ExpiresAt,
	}
	if tokErr := s.issueToken(&session); tokErr != nil {
		return nil, tokErr
	}

	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	if input.ClientID != "" {
		previous := s.boundSessionID(ctx, input.ClientID)
		if bindErr := s.bind(ctx, input.ClientID, session); bindErr != nil {
			return nil, bindErr
		}
		if previous != "" && previous != session.ID {
			s.dropSession(ctx, previous)
		}
		s.publish(ctx, input.ClientID, domainauth.ChangeSignedIn, &session, session.UserID)
	}

	return &CompleteLoginResult{
		Session: session,
	}, nil
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// ClientSession returns the live session bound to clientID, or nil when the client is
// signed out. Stale bindings are removed.
func (s *AuthService) ClientSession(ctx context.Context, clientID string) (*domainauth.Session, error) {
	if clientID == "" {
		return nil, nil
	}

	sessionID, err := s.bindings.Resolve(ctx, clientID)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve client binding: %w", err)
	}

	session, err := s.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, errSessionExpired), errors.Is(err, ports.ErrSessionNotFound):
		if unbindErr := s.bindings.Unbind(ctx, clientID); unbindErr != nil {
			s.logger.Warn("failed to remove stale client binding", "client_id", clientID, "error", unbindErr)
		}
		return nil, nil
	default:
		return nil, err
	}
}

// Refresh replaces the client's session with a fresh one carrying a new access token
// and an expiry of now plus the refresh lifetime. The old session is removed once the
// client is rebound.
func (s *AuthService) Refresh(ctx context.Context, clientID string) (*domainauth.Session, error) {
	current, err := s.ClientSession(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNoSession
	}

	next := *current
	next.ID = generateSessionID()
	next.AccessToken = ""
	next.ExpiresAt = s.now().Add(s.refreshLifetime)
	if tokErr := s.issueToken(&next); tokErr != nil {
		return nil, tokErr
	}

	if saveErr := s.sessions.Save(ctx, next); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}
	if bindErr := s.bind(ctx, clientID, next); bindErr != nil {
		return nil, bindErr
	}
	s.dropSession(ctx, current.ID)

	s.publish(ctx, clientID, domainauth.ChangeTokenRefreshed, &next, next.UserID)
	return &next, nil
}

// Logout removes the client's binding and session and announces the sign-out.
// Logging out a client without a session is a no-op.
func (s *AuthService) Logout(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}

	sessionID, err := s.bindings.Resolve(ctx, clientID)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("resolve client binding: %w", err)
	}

	var subject string
	if sess, getErr := s.sessions.Get(ctx, sessionID); getErr == nil {
		subject = sess.UserID
	}

	if unbindErr := s.bindings.Unbind(ctx, clientID); unbindErr != nil {
		return fmt.Errorf("unbind client: %w", unbindErr)
	}
	if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
		return fmt.Errorf("delete session: %w", deleteErr)
	}

	s.publish(ctx, clientID, domainauth.ChangeSignedOut, nil, subject)
	return nil
}

func (s *AuthService) issueToken(sess *domainauth.Session) error {
	if s.tokens == nil {
		return nil
	}
	token, err := s.tokens.Issue(*sess, s.now())
	if err != nil {
		return fmt.Errorf("issue access token: %w", err)
	}
	sess.AccessToken = token
	return nil
}

func (s *AuthService) bind(ctx context.Context, clientID string, sess domainauth.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errSessionExpired
	}
	if err := s.bindings.Bind(ctx, clientID, sess.ID, ttl); err != nil {
		return fmt.Errorf("bind client: %w", err)
	}
	return nil
}

func (s *AuthService) boundSessionID(ctx context.Context, clientID string) string {
	id, err := s.bindings.Resolve(ctx, clientID)
	if err != nil {
		return ""
	}
	return id
}

func (s *AuthService) dropSession(ctx context.Context, sessionID string) {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete replaced session", "session_id", sessionID, "error", err)
	}
}

// publish announces a change. The session change has already been committed, so a
// failed announcement is logged rather than returned.
func (s *AuthService) publish(
	ctx context.Context,
	clientID string,
	kind domainauth.ChangeKind,
	sess *domainauth.Session,
	subject string,
) {
	if s.publisher == nil {
		return
	}
	ev := domainauth.ChangeEvent{
		Kind:    kind,
		Session: sess,
		Subject: subject,
		At:      s.now(),
	}
	if err := s.publisher.Publish(ctx, clientID, ev); err != nil {
		s.logger.Warn("failed to publish session change",
			"client_id", clientID,
			"kind", kind,
			"error", err,
		)
	}
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	return uuid.New().String()
}
