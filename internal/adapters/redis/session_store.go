// Package redis holds the Redis-backed session store, client bindings and change bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-based session store. Session keys expire with the session;
// client bindings expire with the session they point at.
type SessionStore struct {
	client        redis.UniversalClient
	prefix        string
	bindingPrefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, "session:")
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
// Client bindings live under <prefix>client:.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client:        client,
		prefix:        prefix,
		bindingPrefix: prefix + "client:",
	}
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	// TTL rounding can leave a key alive slightly past ExpiresAt.
	if sess.Expired(time.Now()) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}

// Bind points clientID at sessionID for ttl.
func (s *SessionStore) Bind(ctx context.Context, clientID, sessionID string, ttl time.Duration) error {
	if clientID == "" || sessionID == "" {
		return errors.New("client ID and session ID are required")
	}
	if ttl <= 0 {
		return errors.New("binding ttl must be positive")
	}
	return s.client.Set(ctx, s.bindingPrefix+clientID, sessionID, ttl).Err()
}

// Resolve returns the session bound to clientID or ErrNotFound.
func (s *SessionStore) Resolve(ctx context.Context, clientID string) (string, error) {
	if clientID == "" {
		return "", ErrNotFound
	}
	id, err := s.client.Get(ctx, s.bindingPrefix+clientID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get binding: %w", err)
	}
	return id, nil
}

// Unbind removes the binding for clientID.
func (s *SessionStore) Unbind(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	return s.client.Del(ctx, s.bindingPrefix+clientID).Err()
}

type notFoundError struct{}

func (notFoundError) Error() string { return "session not found" }

func (notFoundError) Is(target error) bool { return target == ports.ErrSessionNotFound }

// ErrNotFound is returned for a missing session or binding. It matches
// ports.ErrSessionNotFound under errors.Is.
var ErrNotFound error = notFoundError{}

var (
	_ ports.SessionStore   = (*SessionStore)(nil)
	_ ports.ClientBindings = (*SessionStore)(nil)
)
