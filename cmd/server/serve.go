package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/app"
	"github.com/suPer8Hu/mygpt/internal/config"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/httpapi"
	"github.com/suPer8Hu/mygpt/internal/httpapi/handlers"
	"github.com/suPer8Hu/mygpt/internal/httpapi/middleware"
	"github.com/suPer8Hu/mygpt/internal/store/rabbitmq"
	"github.com/suPer8Hu/mygpt/internal/turnjob"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = 10 * time.Minute

func serve(parent context.Context, cfg config.Config, log *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	h := &handlers.Handler{
		Accounts:      a.Accounts,
		Tokens:        a.Tokens,
		Turns:         a.Orchestrator,
		Conversations: a.Store,
		Catalog:       a.Catalog,
		Checks:        map[string]handlers.Pinger{"db": a.PingDB},
	}

	var limiter middleware.Limiter = middleware.NewLocalLimiter(cfg.RateLimitPerMinute)
	if a.Redis != nil {
		limiter = a.Redis.FixedWindowLimiter("chat", cfg.RateLimitPerMinute, time.Minute)
		h.Checks["redis"] = a.Redis.Ping
	}

	if cfg.AsyncEnabled() {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		h.Jobs = turnjob.NewService(turnjob.NewRepo(a.DB), a.Store, pub)
		log.Info("async chat enabled", "queue", cfg.RabbitQueue)
	} else if cfg.RabbitURL != "" {
		log.Warn("RABBIT_URL ignored: async chat needs STORE_BACKEND=sql")
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.GuestTTL > 0 {
		g.Go(func() error {
			runJanitor(gctx, a.Store, cfg.GuestTTL, janitorInterval, log)
			return nil
		})
	}
	return g.Wait()
}

// runJanitor deletes idle guest conversations until ctx is done.
func runJanitor(ctx context.Context, store conversation.Store, ttl, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := store.PurgeGuests(ctx, time.Now().Add(-ttl))
			if err != nil {
				log.Error("guest purge failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("purged idle guest conversations", "count", n)
			}
		}
	}
}
