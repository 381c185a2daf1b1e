// The server binary wires storage, the audit pipeline, caching and the
// HTTP surface together. Business logic lives in the internal services;
// this file only composes them and owns the process lifecycle.
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

	httpapi "github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/http"
	jwttoken "github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/jwt_token"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/allocator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/cache"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/chain"
	ledgerhandler "github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/handler"
	ledgermetrics "github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/config"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/httpserver"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/logger"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/postgres"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/redis"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	auditkafka "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/kafka"
	auditmem "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"
	auditpg "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/postgres"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/publisher"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/worker"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	// Storage. Without a database URL the server runs on in-memory
	// stores, which is enough for local development and demos.
	db, err := postgres.New(cfg.PostgresURL)
	if err != nil {
		return err
	}

	var stores *store.Stores
	var auditStore audit.Store
	if db != nil {
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		if err := auditpg.EnsureSchema(ctx, db); err != nil {
			return err
		}
		stores = store.NewPostgresStores(db)
		auditStore = auditpg.New(db)
	} else {
		log.Warn("postgres not configured, ledger state is in-memory only")
		stores = store.NewMemoryStores()
		auditStore = auditmem.NewInMemoryStore()
	}

	// Audit pipeline. With brokers configured events flow through the
	// worker so they fan out to Kafka; otherwise the synchronous
	// publisher writes straight to the store.
	var auditor service.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditkafka.NewSink(ctx, auditkafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			return err
		}
		defer sink.Close()

		queue := worker.NewQueue(auditStore, cfg.AuditBuffer, log)
		wrk := worker.NewWorker(auditStore, sink, queue.Inbox(), log)
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := wrk.Run(context.Background()); err != nil {
				log.Error("audit worker stopped", "error", err)
			}
		}()
		defer func() {
			queue.Close()
			<-workerDone
		}()
		auditor = queue
	} else {
		opts := []publisher.Option{publisher.WithLogger(log)}
		if cfg.AuditBuffer > 0 {
			opts = append(opts, publisher.WithAsyncBuffer(cfg.AuditBuffer))
		}
		pub := publisher.NewPublisher(auditStore, opts...)
		defer pub.Close()
		auditor = pub
	}

	// Summary cache, optional.
	serviceOpts := []service.Option{service.WithLogger(log)}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		serviceOpts = append(serviceOpts, service.WithSummaryCache(
			cache.New(redisClient.Client,
				cache.WithTTL(config.SummaryCacheTTL),
				cache.WithLogger(log)),
		))
	}

	// Domain services.
	ledgerMetrics := ledgermetrics.New()
	alloc := allocator.NewService(stores.Subjects, auditor, ledgerMetrics)
	chainSvc := chain.NewService(stores.Records, stores.Revisions, auditor, ledgerMetrics)
	svc := service.NewService(stores, alloc, chainSvc, auditor, ledgerMetrics, serviceOpts...)

	// HTTP surface.
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "omnivault", "omnivault-api")
	router := httpapi.NewRouter(httpapi.Deps{
		Ledger:       ledgerhandler.New(svc, log),
		JWTValidator: jwttoken.NewJWTServiceAdapter(jwtService),
		Logger:       log,
		Metrics:      metrics.New(),
		Health: func() error {
			if db != nil {
				return db.PingContext(ctx)
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("governance ledger listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return httpserver.Shutdown(srv, 10*time.Second)
}
