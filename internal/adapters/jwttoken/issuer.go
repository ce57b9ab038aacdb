// Package jwttoken issues and verifies the HS256 access tokens attached to sessions.
package jwttoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned for tokens that fail signature or claim checks.
	ErrTokenInvalid = errors.New("access token is invalid")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("access token is expired")
)

// Config controls token issuance.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration // default 15m; never beyond the session's own expiry
	Now      func() time.Time
}

// Issuer implements ports.TokenIssuer with HMAC-SHA256 signed JWTs.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

// NewIssuer validates cfg and constructs an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	aud := cfg.Audience
	if aud == "" {
		aud = cfg.Issuer
	}
	return &Issuer{
		secret:   append([]byte(nil), cfg.Secret...),
		issuer:   cfg.Issuer,
		audience: aud,
		ttl:      ttl,
		now:      now,
	}, nil
}

// Issue mints a token for sess.
func (i *Issuer) Issue(sess domainauth.Session, now time.Time) (string, error) {
	if sess.ID == "" || sess.UserID == "" {
		return "", errors.New("session ID and user ID are required")
	}
	exp := now.Add(i.ttl)
	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(exp) {
		exp = sess.ExpiresAt
	}
	if !exp.After(now) {
		return "", ErrTokenExpired
	}

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sess.UserID,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		SessionID: sess.ID,
		Email:     sess.Email,
		Role:      string(sess.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and registered claims of token.
func (i *Issuer) Verify(token string) (domainauth.TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.TokenClaims{}, ErrTokenInvalid
	}

	var parsed accessClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if parsed.Issuer != i.issuer || !audienceContains(parsed.Audience, i.audience) {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: issuer or audience mismatch", ErrTokenInvalid)
	}
	if parsed.ExpiresAt == nil || parsed.SessionID == "" || parsed.Subject == "" {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}

	now := i.now()
	exp := parsed.ExpiresAt.Time
	if !exp.After(now) {
		return domainauth.TokenClaims{}, ErrTokenExpired
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time) {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: not active yet", ErrTokenInvalid)
	}

	out := domainauth.TokenClaims{
		Subject:   parsed.Subject,
		SessionID: parsed.SessionID,
		Email:     parsed.Email,
		Role:      domainauth.Role(parsed.Role),
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Time
	}
	return out, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

var _ ports.TokenIssuer = (*Issuer)(nil)
