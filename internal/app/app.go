// Package app wires configuration into the running components shared by the
// server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/suPer8Hu/mygpt/internal/account"
	"github.com/suPer8Hu/mygpt/internal/ai"
	"github.com/suPer8Hu/mygpt/internal/auth"
	"github.com/suPer8Hu/mygpt/internal/catalog"
	"github.com/suPer8Hu/mygpt/internal/config"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/db"
	"github.com/suPer8Hu/mygpt/internal/gateway"
	"github.com/suPer8Hu/mygpt/internal/orchestrator"
	"github.com/suPer8Hu/mygpt/internal/router"
	"github.com/suPer8Hu/mygpt/internal/store/redisstore"
	"gorm.io/gorm"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type App struct {
	Cfg          config.Config
	DB           *gorm.DB
	Redis        *redisstore.Store // nil without REDIS_ADDR
	Catalog      *catalog.Catalog
	Router       *router.Router
	Gateway      *gateway.Gateway
	Store        conversation.Store
	Orchestrator *orchestrator.Orchestrator
	Accounts     *account.Service
	Tokens       *auth.TokenManager
}

// NewRegistry registers every provider the catalog can name.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register(catalog.ProviderHuggingFace, func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewHuggingFaceProvider(cfg.HFBaseURL, cfg.HFAPIKey, model), nil
	})
	reg.Register(ProviderOpenRouter, func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register(ProviderOllama, func(ctx context.Context, model string) (ai.Provider, error) {
		p := ai.NewOllamaProvider(cfg.OllamaBaseURL, model)
		p.KeepAlive = cfg.OllamaKeepAlive
		return p, nil
	})
	return reg
}

func catalogProviders(cat *catalog.Catalog) []string {
	var out []string
	for _, p := range cat.List() {
		out = append(out, p.Provider)
	}
	return out
}

// Routing builds the pieces that need no external services.
func Routing(cfg config.Config) (*catalog.Catalog, *router.Router, error) {
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, nil, err
	}
	return cat, router.New(cat), nil
}

// New connects to the database (and Redis when configured) and assembles the
// turn pipeline. With STORE_BACKEND=memory accounts live in an in-memory
// SQLite database and conversations in process memory.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	cat, rt, err := Routing(cfg)
	if err != nil {
		return nil, err
	}

	driver, dsn := cfg.DBDriver, cfg.DBDSN
	if cfg.StoreBackend == "memory" {
		driver, dsn = "sqlite", db.MemoryDSN
	}
	gdb, err := db.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{
		Cfg:      cfg,
		DB:       gdb,
		Catalog:  cat,
		Router:   rt,
		Accounts: account.NewService(gdb),
	}

	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		a.Redis = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := a.Redis.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		revoker = a.Redis
	} else {
		log.Warn("REDIS_ADDR not set: logout cannot revoke tokens and rate limits are per process")
	}
	a.Tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, revoker)

	switch cfg.StoreBackend {
	case "sql":
		a.Store = conversation.NewGormStore(gdb, cfg.GuestTTL)
	default:
		a.Store = conversation.NewMemoryStore(cfg.GuestTTL)
	}

	reg := NewRegistry(cfg)
	if missing := reg.Missing(catalogProviders(cat)...); len(missing) > 0 {
		_ = a.Close()
		return nil, fmt.Errorf("catalog names unknown providers: %s", strings.Join(missing, ", "))
	}
	a.Gateway = gateway.New(cat, reg, cfg.ChatContextWindowSize)
	a.Orchestrator = orchestrator.New(a.Store, rt, a.Gateway, cfg.InferenceTimeout)

	log.Info("app ready",
		"store_backend", cfg.StoreBackend,
		"db_driver", driver,
		"models", len(cat.List()),
		"redis", a.Redis != nil,
	)
	return a, nil
}

// PingDB is a health check for the SQL connection.
func (a *App) PingDB(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
