package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mygpt/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) {
		id, ok := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"uid": id, "authed": ok, "rid": c.GetString(RequestIDKey)})
	})
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := do(r, "/x", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"rid":"abc-123"`)
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Recovery())
	w := do(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":50000`)
}

func TestAuthRequired(t *testing.T) {
	tm := auth.NewTokenManager("k", time.Hour, nil)
	tok, err := tm.Issue(11)
	require.NoError(t, err)
	r := newEngine(AuthRequired(tm))

	assert.Equal(t, http.StatusUnauthorized, do(r, "/x", "").Code)

	w := do(r, "/x", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40102`)

	w = do(r, "/x", tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":11`)
}

func TestOptionalAuth(t *testing.T) {
	tm := auth.NewTokenManager("k", time.Hour, nil)
	tok, err := tm.Issue(11)
	require.NoError(t, err)
	r := newEngine(OptionalAuth(tm))

	w := do(r, "/x", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authed":false`)

	w = do(r, "/x", "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authed":false`)

	w = do(r, "/x", tok)
	assert.Contains(t, w.Body.String(), `"uid":11`)
}

func TestRateLimit(t *testing.T) {
	tm := auth.NewTokenManager("k", time.Hour, nil)
	tok, err := tm.Issue(3)
	require.NoError(t, err)

	deny := &stubLimiter{allow: false}
	r := newEngine(OptionalAuth(tm), RateLimit(deny))
	w := do(r, "/x", tok)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, []string{"user:3"}, deny.keys)

	do(r, "/x", "")
	assert.Contains(t, deny.keys[1], "ip:")

	broken := &stubLimiter{err: errors.New("redis down")}
	r = newEngine(RateLimit(broken))
	assert.Equal(t, http.StatusOK, do(r, "/x", "").Code)
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}
