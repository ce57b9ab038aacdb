package auth

import "time"

// TokenClaims are the verified contents of an access token issued for a session.
type TokenClaims struct {
	Subject   string
	SessionID string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
