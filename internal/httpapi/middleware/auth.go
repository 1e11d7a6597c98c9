package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/auth"
	"github.com/suPer8Hu/mygpt/internal/common"
)

const (
	UserIDKey = "user_id"
	ClaimsKey = "auth_claims"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func setClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(ClaimsKey, claims)
}

// AuthRequired rejects requests without a valid bearer token.
func AuthRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, present := bearerToken(c)
		if !present || tok == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		claims, err := v.Verify(c.Request.Context(), tok)
		if err != nil {
			common.LoggerFromContext(c.Request.Context()).Debug("token rejected", "err", err)
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid or expired token")
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the user when a valid token is sent. Requests with
// no token, or a token that does not verify, proceed as a guest; access to an
// owned conversation then fails with 401 downstream.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, present := bearerToken(c); present && tok != "" {
			if claims, err := v.Verify(c.Request.Context(), tok); err == nil {
				setClaims(c, claims)
			} else {
				common.LoggerFromContext(c.Request.Context()).Debug("token ignored, continuing as guest", "err", err)
			}
		}
		c.Next()
	}
}

func UserIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// RequesterID is the user id, or 0 for a guest.
func RequesterID(c *gin.Context) uint64 {
	id, _ := UserIDFromContext(c)
	return id
}

func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
