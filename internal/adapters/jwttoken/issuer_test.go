package jwttoken

import (
	"strings"
	"testing"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("k", 32))

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer(Config{
		Secret: testSecret,
		Issuer: "gatehouse-test",
		TTL:    10 * time.Minute,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return iss
}

func testSession(now time.Time) domainauth.Session {
	return domainauth.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Email:     "user@example.com",
		Role:      domainauth.RoleAdmin,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(Config{Secret: []byte("short"), Issuer: "x"})
	require.Error(t, err)

	_, err = NewIssuer(Config{Secret: testSecret})
	require.Error(t, err)
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	iss := newTestIssuer(t, now)

	token, err := iss.Issue(testSession(now), now)
	require.NoError(t, err)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, domainauth.RoleAdmin, claims.Role)
	assert.Equal(t, now.Add(10*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestIssuer_ExpiryCappedBySession(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	iss := newTestIssuer(t, now)
	sess := testSession(now)
	sess.ExpiresAt = now.Add(2 * time.Minute)

	token, err := iss.Issue(sess, now)
	require.NoError(t, err)
	claims, err := iss.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, sess.ExpiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestIssuer_RejectsExpiredSession(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)
	sess := testSession(now)
	sess.ExpiresAt = now.Add(-time.Second)

	_, err := iss.Issue(sess, now)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestIssuer_VerifyExpired(t *testing.T) {
	issuedAt := time.Now().Truncate(time.Second)
	token, err := newTestIssuer(t, issuedAt).Issue(testSession(issuedAt), issuedAt)
	require.NoError(t, err)

	later := newTestIssuer(t, issuedAt.Add(11*time.Minute))
	_, err = later.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestIssuer_VerifyRejectsTampering(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)

	token, err := iss.Issue(testSession(now), now)
	require.NoError(t, err)

	other, err := NewIssuer(Config{Secret: []byte(strings.Repeat("z", 32)), Issuer: "gatehouse-test"})
	require.NoError(t, err)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = iss.Verify("")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssuer_VerifyRejectsOtherIssuerAndAlg(t *testing.T) {
	now := time.Now()
	iss := newTestIssuer(t, now)

	foreign, err := NewIssuer(Config{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)
	token, err := foreign.Issue(testSession(now), now)
	require.NoError(t, err)
	_, err = iss.Verify(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(unsigned)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
