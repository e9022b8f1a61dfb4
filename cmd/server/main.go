// Command server runs the sanctum trust boundary: the isolation gate, the
// couples merge engine and the sanitized external query gate, with the
// disclosure ledger underneath all three.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	adminhandler "sanctum/internal/admin"
	"sanctum/internal/analytics"
	"sanctum/internal/clientcontext"
	"sanctum/internal/isolation"
	isolationhandler "sanctum/internal/isolation/handler"
	jwttoken "sanctum/internal/jwt_token"
	"sanctum/internal/merge"
	mergehandler "sanctum/internal/merge/handler"
	"sanctum/internal/platform/config"
	"sanctum/internal/platform/httpserver"
	"sanctum/internal/platform/kafka"
	"sanctum/internal/platform/logger"
	"sanctum/internal/platform/metrics"
	"sanctum/internal/platform/postgres"
	"sanctum/internal/platform/redis"
	"sanctum/internal/policy"
	"sanctum/internal/sanitize"
	sanitizehandler "sanctum/internal/sanitize/handler"
	httptransport "sanctum/internal/transport/http"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/audit/consumer"
	"sanctum/pkg/platform/audit/relay"
	auditmem "sanctum/pkg/platform/audit/store/memory"
	auditpg "sanctum/pkg/platform/audit/store/postgres"
	"sanctum/pkg/platform/circuit"
)

const (
	shutdownTimeout = 10 * time.Second
	auditPartitions = 3
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if db != nil {
		defer db.Close()
		if cfg.Postgres.AutoMigrate {
			if err := migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	}

	// Stores fall back to in-process memory when Postgres is not configured;
	// the fail-closed semantics are identical, only durability differs.
	var (
		contexts    clientcontext.Store
		policyStore policy.Store
		ledgerStore audit.Store
		pgLedger    *auditpg.Store
	)
	if db != nil {
		contexts = clientcontext.NewPostgres(db)
		policyStore = policy.NewPostgres(db)
		pgLedger = auditpg.New(db)
		ledgerStore = pgLedger
	} else {
		log.Warn("postgres not configured, using in-memory stores")
		contexts = clientcontext.NewInMemory()
		policyStore = policy.NewInMemory()
		ledgerStore = auditmem.NewInMemoryStore()
	}

	if err := policy.SeedStore(ctx, policyStore); err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	policies := policyStore
	if rdb != nil {
		defer rdb.Close()
		policies = policy.NewCache(policyStore, rdb.Client,
			policy.WithCacheTTL(cfg.Redis.PolicyTTL),
			policy.WithCacheLogger(log),
		)
	}

	recorder := audit.NewRecorder(ledgerStore,
		audit.WithRetry(int(cfg.Audit.MaxAttempts), cfg.Audit.InitialInterval, cfg.Audit.MaxInterval),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
	)

	if cfg.Analytics.BaseURL == "" {
		log.Warn("analytics base URL not configured, sanitized queries will fail until it is set")
	}
	breaker := circuit.New("analytics",
		circuit.WithFailureThreshold(cfg.Analytics.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Analytics.SuccessThreshold),
	)
	analyticsClient := analytics.New(cfg.Analytics.BaseURL, cfg.Analytics.APIKey,
		analytics.WithTimeout(cfg.Analytics.Timeout),
		analytics.WithBreaker(breaker),
		analytics.WithProbeInterval(cfg.Analytics.ProbeInterval),
		analytics.WithLogger(log),
	)

	readRetry := int(cfg.Context.MaxAttempts)
	extractor := isolation.NewService(contexts, policies, recorder,
		isolation.WithLogger(log),
		isolation.WithMetrics(isolation.NewMetrics()),
		isolation.WithReadRetry(readRetry, 0, 0),
		isolation.WithReadTimeout(cfg.Context.ReadTimeout),
	)
	merger := merge.NewEngine(contexts, policies, recorder,
		merge.WithLogger(log),
		merge.WithMetrics(merge.NewMetrics()),
		merge.WithReadRetry(readRetry, 0, 0),
		merge.WithReadTimeout(cfg.Context.ReadTimeout),
	)
	sanitizer := sanitize.NewService(
		sanitize.NewClassifier(sanitize.WithMaxTextBytes(cfg.Classifier.MaxTextBytes)),
		analyticsClient,
		recorder,
		sanitize.WithLogger(log),
		sanitize.WithMetrics(sanitize.NewMetrics()),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        metrics.NewHTTP(),
		TokenValidator: jwttoken.NewJWTServiceAdapter(jwtService),
		AdminToken:     cfg.Server.AdminToken,
		AdminTokenHash: cfg.Server.AdminTokenHash,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, httptransport.Handlers{
		Isolation: isolationhandler.New(extractor, log),
		Merge:     mergehandler.New(merger, log),
		Sanitize:  sanitizehandler.New(sanitizer, log),
		Admin:     adminhandler.New(recorder, log),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	// The relay pipeline only exists with both a durable ledger and brokers.
	publisher, err := kafka.NewPublisher(cfg.Kafka, log)
	if err != nil {
		return fmt.Errorf("kafka publisher: %w", err)
	}
	if publisher != nil && pgLedger != nil {
		defer publisher.Close()

		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, auditPartitions); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}

		worker := relay.NewWorker(pgLedger, publisher, cfg.Kafka.AuditTopic,
			relay.WithInterval(cfg.Kafka.RelayInterval),
			relay.WithBatchSize(cfg.Kafka.RelayBatchSize),
			relay.WithLogger(log),
			relay.WithMetrics(relay.NewMetrics()),
		)
		listener := relay.NewListener(cfg.Postgres.DSN, auditpg.NotifyChannel, worker.Wake, log)
		g.Go(func() error { return worker.Run(gctx) })
		g.Go(func() error { return listener.Run(gctx) })

		complianceConsumer, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.AuditTopic}, log)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		compliance := consumer.NewHandler(pgLedger, log)
		g.Go(func() error {
			defer complianceConsumer.Close()
			return complianceConsumer.Run(gctx, compliance.Handle)
		})

		log.Info("audit relay enabled",
			"topic", cfg.Kafka.AuditTopic,
			"brokers", cfg.Kafka.Brokers,
		)
	}

	g.Go(func() error {
		log.Info("sanctum listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("sanctum stopped")
	return nil
}

// migrate applies the embedded schema statements. Each is idempotent
// (CREATE TABLE IF NOT EXISTS), so re-running on boot is safe.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, schema := range []string{
		clientcontext.Schema,
		policy.Schema,
		auditpg.Schema,
	} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}
