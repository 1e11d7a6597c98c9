package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/config"
	"github.com/suPer8Hu/mygpt/internal/conversation"
)

func testConfig() config.Config {
	return config.Config{
		StoreBackend:          "memory",
		JWTSecret:             "k",
		JWTTTL:                time.Hour,
		ChatContextWindowSize: 10,
		InferenceTimeout:      time.Second,
	}
}

func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.IsType(t, &conversation.MemoryStore{}, a.Store)
	assert.NoError(t, a.PingDB(context.Background()))

	u, err := a.Accounts.Register(context.Background(), "x@example.com", "password123", "")
	require.NoError(t, err)
	tok, err := a.Tokens.Issue(u.ID)
	require.NoError(t, err)
	claims, err := a.Tokens.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
}

func TestNew_SQLBackendWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.StoreBackend = "sql"
	cfg.DBDriver = "sqlite"
	cfg.DBDSN = ":memory:"
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	assert.IsType(t, &conversation.GormStore{}, a.Store)
}

func TestNewRegistry_CoversCatalogProviders(t *testing.T) {
	reg := NewRegistry(testConfig())
	for _, p := range catalog.Default().List() {
		prov, err := reg.Get(context.Background(), p.Provider, p.UpstreamModel)
		require.NoError(t, err, p.ID)
		assert.NotNil(t, prov)
	}
	for _, name := range []string{ProviderOllama, ProviderOpenRouter} {
		_, err := reg.Get(context.Background(), name, "m")
		assert.NoError(t, err)
	}
}

func TestNew_RejectsCatalogWithUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`models:
  - id: g
    category: general
    provider: bedrock
  - id: f
    category: fallback
`), 0o600))
	cfg := testConfig()
	cfg.CatalogFile = path

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bedrock")
}
