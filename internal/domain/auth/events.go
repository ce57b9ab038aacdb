package auth

import (
	"fmt"
	"time"
)

// ChangeKind names the reason a client's session changed.
type ChangeKind string

const (
	ChangeInitialSession ChangeKind = "INITIAL_SESSION"
	ChangeSignedIn       ChangeKind = "SIGNED_IN"
	ChangeSignedOut      ChangeKind = "SIGNED_OUT"
	ChangeTokenRefreshed ChangeKind = "TOKEN_REFRESHED"
	ChangeUserUpdated    ChangeKind = "USER_UPDATED"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeInitialSession, ChangeSignedIn, ChangeSignedOut, ChangeTokenRefreshed, ChangeUserUpdated:
		return true
	}
	return false
}

// ParseChangeKind converts s into a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, error) {
	k := ChangeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown change kind %q", s)
	}
	return k, nil
}

// ChangeEvent is a notification that a client's session changed.
// Session is nil when the client no longer has a session. Subject names the user the
// change concerns and is kept on sign-out.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	Session *Session   `json:"session,omitempty"`
	Subject string     `json:"subject,omitempty"`
	At      time.Time  `json:"at"`
}

// User returns the user carried by the event, or nil when the session is absent.
func (e ChangeEvent) User() *User {
	if e.Session == nil {
		return nil
	}
	return e.Session.User()
}

// AuthEvent is a journaled change event.
type AuthEvent struct {
	ID         int64      `json:"id"`
	ClientID   string     `json:"client_id"`
	UserID     string     `json:"user_id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Kind       ChangeKind `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
}
