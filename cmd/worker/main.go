package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/mygpt/internal/app"
	"github.com/suPer8Hu/mygpt/internal/common"
	"github.com/suPer8Hu/mygpt/internal/config"
	"github.com/suPer8Hu/mygpt/internal/store/rabbitmq"
	"github.com/suPer8Hu/mygpt/internal/turnjob"
)

const (
	slowJob = 2 * time.Second
	// a turn tries at most primary, general and fallback
	maxChain     = 3
	reclaimSlack = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := common.InitLogger(cfg.LogLevel)
	if !cfg.AsyncEnabled() {
		log.Error("worker needs RABBIT_URL and STORE_BACKEND=sql")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("init", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	// the worker never publishes; Submit is the server's job
	reclaimAfter := cfg.InferenceTimeout*maxChain + reclaimSlack
	svc := turnjob.NewService(turnjob.NewRepo(a.DB), a.Store, nil).WithReclaimAfter(reclaimAfter)

	concurrency := cfg.WorkerConcurrency
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Error("rabbit consumer", "err", err)
		os.Exit(1)
	}
	defer consumer.Close()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for d := range jobs {
				handleDelivery(ctx, wlog, svc, a, consumer, reclaimAfter, d)
			}
		}(i)
	}

	// dispatcher
	deliveries := consumer.Deliveries()
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-deliveries:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, log *slog.Logger, svc *turnjob.Service, a *app.App, consumer *rabbitmq.Consumer, reclaimAfter time.Duration, d amqp.Delivery) {
	m, err := rabbitmq.DecodeTurn(d.Body)
	if err != nil {
		log.Warn("bad message", "err", err)
		_ = d.Nack(false, false)
		return
	}

	jlog := log.With("job_id", m.JobID)
	// in-flight turns finish on shutdown; each is bounded by the inference timeout
	tm, err := svc.Process(common.ContextWithLogger(context.WithoutCancel(ctx), jlog), m.JobID, a.Orchestrator)
	if errors.Is(err, turnjob.ErrJobInFlight) {
		// redelivered while a worker may still hold it; check again once it
		// would be reclaimable
		jlog.Info("job in flight elsewhere, parking", "delay", reclaimAfter)
		if err := consumer.Retry(context.WithoutCancel(ctx), d, reclaimAfter); err != nil {
			jlog.Error("park job", "err", err)
			_ = d.Nack(false, true)
		}
		return
	}
	if err != nil {
		jlog.Error("job failed",
			"claim", tm.Claim, "load", tm.Load, "turn", tm.Turn, "mark", tm.Mark, "total", tm.Total,
			"err", err,
		)
		// rejected messages land in the DLQ
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		jlog.Error("ack failed", "err", err)
	}
	if tm.Total > slowJob {
		jlog.Info("job_timing",
			"claim", tm.Claim, "load", tm.Load, "turn", tm.Turn, "mark", tm.Mark, "total", tm.Total,
		)
	}
}
