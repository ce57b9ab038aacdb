package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider     = (*MockAuthProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.ClientBindings   = (*MemorySessionStore)(nil)
	_ ports.TokenIssuer      = (*StubTokenIssuer)(nil)
	_ ports.AuthEventJournal = (*MemoryJournal)(nil)
	_ ports.ChangePublisher  = (*RecordingPublisher)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Groups:    []string{"users"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	user := m.DefaultUser
	if user.UserID == "" {
		user = domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Groups:    []string{"users"},
		}
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory session store and client binding table for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	bindings map[string]string

	// GetErr, when set, is returned from Get and Resolve.
	GetErr error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
		bindings: make(map[string]string),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return domainauth.Session{}, m.GetErr
	}
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Bind(_ context.Context, clientID, sessionID string, _ time.Duration) error {
	if clientID == "" || sessionID == "" {
		return errors.New("client ID and session ID are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[clientID] = sessionID
	return nil
}

func (m *MemorySessionStore) Resolve(_ context.Context, clientID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	id, ok := m.bindings[clientID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *MemorySessionStore) Unbind(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, clientID)
	return nil
}

// Len reports how many sessions are stored.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

func (notFoundError) Is(target error) bool { return target == ports.ErrSessionNotFound }

var ErrNotFound error = notFoundError{}

// StubTokenIssuer issues readable fake tokens of the form "token:<session>:<n>".
type StubTokenIssuer struct {
	mu     sync.Mutex
	issued int
	Err    error
}

func (s *StubTokenIssuer) Issue(sess domainauth.Session, _ time.Time) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return fmt.Sprintf("token:%s:%d", sess.ID, s.issued), nil
}

func (s *StubTokenIssuer) Verify(token string) (domainauth.TokenClaims, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 || parts[0] != "token" || parts[1] == "" {
		return domainauth.TokenClaims{}, errors.New("invalid token")
	}
	return domainauth.TokenClaims{SessionID: parts[1]}, nil
}

// MemoryJournal keeps recorded auth events in memory.
type MemoryJournal struct {
	mu     sync.Mutex
	events []domainauth.AuthEvent
	Err    error
}

func (j *MemoryJournal) Record(_ context.Context, ev domainauth.AuthEvent) error {
	if j.Err != nil {
		return j.Err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	ev.ID = int64(len(j.events) + 1)
	j.events = append(j.events, ev)
	return nil
}

// ListByUser returns the newest events for userID first.
func (j *MemoryJournal) ListByUser(_ context.Context, userID string, limit int) ([]domainauth.AuthEvent, error) {
	if j.Err != nil {
		return nil, j.Err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domainauth.AuthEvent
	for _, ev := range j.events {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of everything recorded.
func (j *MemoryJournal) Events() []domainauth.AuthEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domainauth.AuthEvent(nil), j.events...)
}

// PublishedEvent is one call captured by RecordingPublisher.
type PublishedEvent struct {
	ClientID string
	Event    domainauth.ChangeEvent
}

// RecordingPublisher captures published change events.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []PublishedEvent
	Err       error
}

func (p *RecordingPublisher) Publish(_ context.Context, clientID string, ev domainauth.ChangeEvent) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, PublishedEvent{ClientID: clientID, Event: ev})
	return nil
}

// Published returns a copy of the captured events.
func (p *RecordingPublisher) Published() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.published...)
}
