package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/medsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "cache", cfg.Cache.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	m := metrics.New(registry)

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	idx := index.New(
		index.WithTokenizer(tokenizer.Options{
			MinLength:       cfg.Index.MinTokenLength,
			MaxLength:       cfg.Index.MaxTokenLength,
			RemoveStopWords: cfg.Index.RemoveStopWords,
			Stem:            cfg.Index.Stem,
		}),
		index.WithObserver(func(op string, stats index.Stats) {
			m.ObserveIndex(op, stats.DocumentCount, stats.TermCount)
			if collector != nil {
				collector.TrackIndex(analytics.IndexEvent{
					Type:      analytics.EventIndex,
					Op:        op,
					Documents: stats.DocumentCount,
					Terms:     stats.TermCount,
					Timestamp: time.Now().UTC(),
				})
			}
		}),
	)

	var (
		snapshots *snapshot.Store
		pgClient  *postgres.Client
	)
	if cfg.Snapshot.Enabled {
		pgClient, snapshots, err = openSnapshots(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer pgClient.Close()
		}
	}

	restored := false
	if snapshots != nil && cfg.Snapshot.RestoreOnStart {
		err := resilience.Retry(ctx, "snapshot-restore", resilience.RetryConfig{}, func() error {
			var rerr error
			restored, rerr = snapshots.Restore(ctx, idx)
			if apperrors.IsFormat(rerr) {
				return resilience.Permanent(rerr)
			}
			return rerr
		})
		if err != nil {
			slog.Warn("snapshot restore failed", "error", err)
		}
	}
	if !restored && cfg.Index.CorpusPath != "" {
		c, err := corpus.LoadFile(cfg.Index.CorpusPath)
		if err != nil {
			slog.Error("failed to load corpus", "path", cfg.Index.CorpusPath, "error", err)
			os.Exit(1)
		}
		if err := c.Apply(idx); err != nil {
			slog.Error("failed to index corpus", "path", cfg.Index.CorpusPath, "error", err)
			os.Exit(1)
		}
		slog.Info("corpus loaded", "path", cfg.Index.CorpusPath, "documents", idx.Len())
	}
	if snapshots != nil && cfg.Snapshot.Interval > 0 {
		snapshots.StartPeriodicSave(ctx, idx, cfg.Snapshot.Interval, cfg.Snapshot.Keep)
	}

	workers := cfg.Search.ScoringWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		slog.Error("failed to create scoring pool", "error", err)
		os.Exit(1)
	}
	defer pool.Release()

	var redisClient *pkgredis.Client
	var queryCache *cache.QueryCache[engine.Response]
	switch cfg.Cache.Backend {
	case "memory":
		store, err := cache.NewMemoryStore(cfg.Cache.Size)
		if err != nil {
			slog.Error("failed to create memory cache", "error", err)
			os.Exit(1)
		}
		queryCache = cache.New[engine.Response](store, m)
	case "redis":
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			break
		}
		defer redisClient.Close()
		queryCache = cache.New[engine.Response](cache.NewRedisStore(redisClient, cfg.Redis.CacheTTL), m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	engineOpts := []engine.Option{
		engine.WithRanker(ranker.New(cfg.Ranking)),
		engine.WithHistory(session.New(cfg.Search.HistorySize, cfg.Search.PopularCapacity)),
		engine.WithPool(pool),
		engine.WithMetrics(m),
	}
	if queryCache != nil {
		engineOpts = append(engineOpts, engine.WithCache(queryCache))
	}
	if collector != nil {
		engineOpts = append(engineOpts, engine.WithEventSink(collector))
	}
	eng := engine.New(idx, cfg.Search, engineOpts...)

	var (
		aggregator *analytics.Aggregator
		consumer   *kafka.Consumer
	)
	if cfg.Analytics.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, func(ctx context.Context, key, value []byte) error {
			return analytics.HandleEvent(aggregator)(ctx, key, value)
		})
		aggregator = analytics.NewAggregator(consumer)
		go func() {
			if err := aggregator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()
		slog.Info("analytics aggregator started")
	}

	checker := health.NewChecker(2 * time.Second)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		n := idx.Len()
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", n)}
	})
	if cfg.Cache.Backend == "redis" {
		var ping func(context.Context) error
		if redisClient != nil {
			ping = redisClient.Ping
		}
		checker.Register("redis", health.Optional(ping))
	}
	if cfg.Snapshot.Enabled {
		var ping func(context.Context) error
		if pgClient != nil {
			ping = pgClient.Ping
		}
		check := health.Optional(ping)
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			h := check(ctx)
			if h.Status == health.StatusUp {
				h.Message = pgClient.PoolSummary()
			}
			return h
		})
	}
	if consumer != nil {
		checker.Register("analytics", func(ctx context.Context) health.ComponentHealth {
			st := consumer.Stats()
			msg := fmt.Sprintf("processed %d, failed %d, lag %d", st.Processed, st.Failed, st.Lag)
			if st.Failed > 0 && st.Processed == 0 {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: msg}
		})
	}

	handlerOpts := []handler.Option{handler.WithMaxLimit(cfg.Search.MaxLimit)}
	if queryCache != nil {
		handlerOpts = append(handlerOpts, handler.WithCache(queryCache))
	}
	if snapshots != nil {
		handlerOpts = append(handlerOpts, handler.WithSnapshots(retryingSaver{snapshots}, cfg.Snapshot.Keep))
	}

	mux := http.NewServeMux()
	handler.New(eng, idx, handlerOpts...).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics, err = metrics.StartServer(cfg.Metrics.Port, registry)
		if err != nil {
			slog.Warn("metrics endpoint disabled", "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "documents", idx.Len())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func openSnapshots(ctx context.Context, cfg config.PostgresConfig) (*postgres.Client, *snapshot.Store, error) {
	var client *postgres.Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{}, func() error {
		c, err := postgres.New(ctx, cfg)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	store := snapshot.NewStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, store, nil
}

// retryingSaver retries on-demand snapshot saves with backoff.
type retryingSaver struct {
	store *snapshot.Store
}

func (s retryingSaver) Save(ctx context.Context, idx *index.Index, keep int) (snapshot.Meta, error) {
	var meta snapshot.Meta
	err := resilience.Retry(ctx, "snapshot-save", resilience.RetryConfig{}, func() error {
		var err error
		meta, err = s.store.Save(ctx, idx, keep)
		return err
	})
	return meta, err
}
