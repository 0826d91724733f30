// cmd/matchd/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cooin-core/internal/api"
	"cooin-core/internal/common/auth"
	commonaws "cooin-core/internal/common/aws"
	"cooin-core/internal/common/config"
	"cooin-core/internal/common/database"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/observability"
	"cooin-core/internal/lifecycle"
	"cooin-core/internal/matching/eligibility"
	"cooin-core/internal/matching/matchcache"
	"cooin-core/internal/matching/ranker"
	"cooin-core/internal/matching/scorer"
	"cooin-core/internal/notification"
	"cooin-core/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting matchd...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("matchd")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional prefilter) ---
	var search *store.TicketSearch
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		search = store.NewTicketSearch(esClient, cfg.Database.Elasticsearch.TicketIndex, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Scoring weights ---
	weights := scorer.DefaultWeights()
	if cfg.Matching.WeightsPath != "" {
		weights, err = scorer.LoadWeights(cfg.Matching.WeightsPath)
		if err != nil {
			zapLog.Fatal("weights load failed", zap.Error(err))
		}
		zapLog.Info("Loaded scoring weights", zap.String("path", cfg.Matching.WeightsPath))
	}
	matchScorer, err := scorer.New(weights)
	if err != nil {
		zapLog.Fatal("scorer init failed", zap.Error(err))
	}

	// --- Core wiring ---
	tickets := store.NewTicketStore(pg, log)
	connStore := lifecycle.NewPostgresStore(pg)
	cache := matchcache.New(rdb.Client, cfg.Matching.CacheTTL(), log)

	var prefilter eligibility.Prefilter
	if search != nil {
		prefilter = search
	}
	filter := eligibility.NewFilter(tickets, &connectionReader{
		store:      connStore,
		pendingTTL: cfg.Lifecycle.PendingTTL(),
	}, prefilter, log)

	matchRanker := ranker.New(matchScorer, tickets, filter, cache, log)

	dispatcher := buildDispatcher(ctx, cfg, tickets, zapLog)
	manager := lifecycle.NewManager(connStore, cache, dispatcher, cfg.Lifecycle.PendingTTL(), log)

	verifier := auth.NewKeycloakVerifier(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
	)

	handlers := api.NewHandlers(matchRanker, manager, log)
	router := api.NewRouter(handlers, verifier, log, obs)

	// --- Metrics + pprof server ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics server listening", zap.String("address", cfg.API.MetricsAddress))
		if err := http.ListenAndServe(cfg.API.MetricsAddress, nil); err != nil {
			zapLog.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// --- API server ---
	server := &http.Server{
		Addr:              cfg.API.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.API.ListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("api server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("api server shutdown failed", zap.Error(err))
	}
	zapLog.Info("matchd stopped gracefully")
}

// connectionReader adapts the lifecycle store to the eligibility filter,
// fixing the pending cutoff at call time.
type connectionReader struct {
	store      lifecycle.Store
	pendingTTL time.Duration
}

func (r *connectionReader) BlockedCounterparties(ctx context.Context, userID string) ([]string, error) {
	return r.store.BlockedCounterparties(ctx, userID)
}

func (r *connectionReader) ActiveCounterparties(ctx context.Context, userID string) ([]string, error) {
	return r.store.ActiveCounterparties(ctx, userID, time.Now().Add(-r.pendingTTL))
}

// buildDispatcher picks the configured notification channel: SNS when a
// topic is set, email via SES otherwise, no-op when nothing is enabled.
func buildDispatcher(ctx context.Context, cfg *config.Config, directory notification.RecipientDirectory, zapLog *zap.Logger) notification.Dispatcher {
	switch {
	case cfg.Notifications.SNS.Enabled:
		client, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		return notification.NewSNSDispatcher(client, cfg.Notifications.SNS.TopicARN)
	case cfg.Notifications.Email.Enabled:
		client, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		return notification.NewSESDispatcher(client, directory, cfg.Notifications.Email.FromEmail)
	default:
		zapLog.Warn("no notification channel configured, events will be dropped")
		return notification.NoopDispatcher{}
	}
}
