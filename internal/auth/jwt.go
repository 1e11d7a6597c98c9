package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "mygpt"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Revoker tracks revoked token ids until the token would have expired.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Claims struct {
	UserID uint64
	JTI    string
	Expiry time.Time
}

// SignJWT issues an HS256 token whose subject is userID.
func SignJWT(userID uint64, secret string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(userID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseJWT verifies signature, expiry and issuer.
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), &rc,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	uid, err := strconv.ParseUint(rc.Subject, 10, 64)
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return &Claims{UserID: uid, JTI: rc.ID, Expiry: rc.ExpiresAt.Time}, nil
}

// TokenManager bundles signing, verification and revocation.
type TokenManager struct {
	secret  string
	ttl     time.Duration
	revoker Revoker
}

// NewTokenManager returns a manager; revoker may be nil, in which case
// logout is a no-op on the server side.
func NewTokenManager(secret string, ttl time.Duration, revoker Revoker) *TokenManager {
	return &TokenManager{secret: secret, ttl: ttl, revoker: revoker}
}

func (m *TokenManager) Issue(userID uint64) (string, error) {
	return SignJWT(userID, m.secret, m.ttl)
}

func (m *TokenManager) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseJWT(token, m.secret)
	if err != nil {
		return nil, err
	}
	if m.revoker != nil && claims.JTI != "" {
		revoked, err := m.revoker.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke blacklists the token's jti for its remaining lifetime.
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revoker == nil || claims == nil || claims.JTI == "" {
		return nil
	}
	ttl := time.Until(claims.Expiry)
	if ttl <= 0 {
		return nil
	}
	return m.revoker.Revoke(ctx, claims.JTI, ttl)
}
