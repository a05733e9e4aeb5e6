package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vitaex/internal/agent"
	"vitaex/internal/audit"
	"vitaex/internal/bus"
	"vitaex/internal/consent"
	"vitaex/internal/orchestrator"
	"vitaex/internal/platform/config"
	"vitaex/internal/platform/httpserver"
	"vitaex/internal/platform/logger"
	"vitaex/internal/platform/metrics"
	platformredis "vitaex/internal/platform/redis"
	"vitaex/internal/timeseries"
	"vitaex/internal/twin"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventBus, err := bus.NewKafka(cfg.Bus, log, bus.WithKafkaMetrics(m))
	if err != nil {
		log.Fatalf("event bus: %v", err)
	}
	defer eventBus.Close()
	if err := eventBus.EnsureTopics(ctx, bus.AllTopics()...); err != nil {
		log.Fatalf("ensure topics: %v", err)
	}

	db, err := timeseries.Open(cfg.Timeseries.DSN)
	if err != nil {
		log.Fatalf("timeseries db: %v", err)
	}
	defer db.Close()
	tsStore := timeseries.NewPostgresStore(db, cfg.Timeseries.OpTimeout, log)
	if err := tsStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("timeseries schema: %v", err)
	}

	auditStore := audit.NewPostgresStore(db)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("audit schema: %v", err)
	}
	auditSink := audit.NewPublisher(1024, log, audit.WithPublisherMetrics(m))
	auditWorker := audit.NewWorker(auditStore, auditSink.Inbox(), log)

	var consentStore consent.Store = consent.NewInMemoryStore()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		consentStore = consent.NewRedisStore(redisClient.Client)
	}

	engine := twin.NewEngine(eventBus, tsStore, consentStore, auditSink, log, twin.WithMetrics(m))
	router := orchestrator.New(eventBus, log, m, auditSink)

	runtimes := []*agent.Runtime{engine.Runtime(), router.Runtime()}
	for _, rt := range runtimes {
		if err := rt.Start(ctx); err != nil {
			log.Fatalf("start agent %s: %v", rt.Config().Name, err)
		}
	}

	ready := func() bool {
		for _, rt := range runtimes {
			select {
			case <-rt.Ready():
			default:
				return false
			}
		}
		return true
	}
	srv := httpserver.New(cfg.Addr, httpserver.NewRouter(ready))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := auditWorker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := engine.Stop(shutdownCtx); err != nil {
			log.Printf("stop digital twin: %v", err)
		}
		if err := router.Runtime().Stop(shutdownCtx); err != nil {
			log.Printf("stop orchestrator: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	log.Printf("vitaex agents running on %s", cfg.Addr)
	if err := group.Wait(); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
