package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Duration
}

func (r *memRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[string]time.Duration{}
	}
	r.ids[jti] = ttl
	return nil
}

func (r *memRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[jti]
	return ok, nil
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse!"))
}

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT(42, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expiry, 5*time.Second)

	_, err = ParseJWT(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseJWT("not-a-jwt", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsExpiredAndForeignAlg(t *testing.T) {
	expired, err := SignJWT(1, "k", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "k")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(s, "k")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Revoke(t *testing.T) {
	rev := &memRevoker{}
	m := NewTokenManager("k", time.Hour, rev)
	ctx := context.Background()

	tok, err := m.Issue(7)
	require.NoError(t, err)
	claims, err := m.Verify(ctx, tok)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, claims))
	assert.Greater(t, rev.ids[claims.JTI], 59*time.Minute)

	_, err = m.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other, err := m.Issue(7)
	require.NoError(t, err)
	_, err = m.Verify(ctx, other)
	assert.NoError(t, err, "revocation is per token")
}

func TestTokenManager_NilRevoker(t *testing.T) {
	m := NewTokenManager("k", time.Hour, nil)
	tok, err := m.Issue(1)
	require.NoError(t, err)
	claims, err := m.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.NoError(t, m.Revoke(context.Background(), claims))
}
