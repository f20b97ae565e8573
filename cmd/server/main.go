// Command server runs the compliance rule engine HTTP service.
//
// main wires configuration, the cache adapter, the rule source, the ledger
// client and the validator service, then serves until interrupted. Business
// logic lives in the internal packages; this file only assembles them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"chaintrace/internal/cache"
	"chaintrace/internal/compliance/audit"
	"chaintrace/internal/compliance/handler"
	"chaintrace/internal/compliance/metrics"
	"chaintrace/internal/compliance/rules"
	"chaintrace/internal/compliance/sequence"
	"chaintrace/internal/compliance/service"
	httpapi "chaintrace/internal/http"
	"chaintrace/internal/ledger"
	"chaintrace/internal/platform/config"
	"chaintrace/internal/platform/httpserver"
	"chaintrace/internal/platform/kafka"
	"chaintrace/internal/platform/logger"
	platformredis "chaintrace/internal/platform/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cache adapter: Redis when configured, in-memory otherwise.
	checks := map[string]httpapi.HealthCheck{}
	var cacheAdapter cache.Adapter = cache.NewMemory()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cacheAdapter = cache.NewRedis(redisClient.Client)
		checks["redis"] = redisClient.Health
		log.Info("cache adapter ready", "backend", "redis")
	} else {
		log.Info("cache adapter ready", "backend", "memory")
	}

	// Rule source.
	var source rules.Source
	switch cfg.Rules.Source {
	case config.RuleSourceYAML:
		yamlSource, err := rules.NewYAMLSource(cfg.Rules.Path)
		if err != nil {
			return fmt.Errorf("load rule pack: %w", err)
		}
		source = yamlSource
		log.Info("rule source ready", "backend", "yaml", "path", cfg.Rules.Path, "version", yamlSource.Version())
	case config.RuleSourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.Rules.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		source = rules.NewPostgresSource(pool)
		checks["postgres"] = pool.Ping
		log.Info("rule source ready", "backend", "postgres")
	}

	// Ledger client.
	var ledgerClient ledger.Client
	if cfg.LedgerMode() == config.LedgerKafka {
		kafkaClient, err := kafka.New(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()

		if err := kafkaClient.EnsureTopic(ctx, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
			return fmt.Errorf("ensure ledger topic: %w", err)
		}

		ledgerClient, err = ledger.NewKafka(kafkaClient, cfg.Kafka.Topic, cfg.Kafka.SubmitTimeout)
		if err != nil {
			return fmt.Errorf("wire ledger client: %w", err)
		}
		checks["ledger"] = kafkaClient.Health
		log.Info("ledger client ready", "backend", "kafka", "topic", cfg.Kafka.Topic)
	} else {
		ledgerClient = ledger.NewMemory()
		log.Warn("ledger client ready", "backend", "memory", "note", "audit records are not durable")
	}

	// Domain wiring.
	repo, err := rules.New(source, cacheAdapter, cfg.CacheTTL.Rules, rules.WithLogger(log))
	if err != nil {
		return fmt.Errorf("wire rule repository: %w", err)
	}

	tracker, err := sequence.New(cacheAdapter, cfg.CacheTTL.State, sequence.WithLogger(log))
	if err != nil {
		return fmt.Errorf("wire sequence tracker: %w", err)
	}

	auditLogger, err := audit.New(ledgerClient, audit.WithLogger(log))
	if err != nil {
		return fmt.Errorf("wire audit logger: %w", err)
	}

	validator, err := service.New(repo, tracker, auditLogger,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	)
	if err != nil {
		return fmt.Errorf("wire validator: %w", err)
	}

	router := httpapi.NewRouter(handler.New(validator, log), log, checks)
	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
