package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/refresh"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/spell"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/tables"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/storage/backend"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/tracing"
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
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"backend", cfg.Storage.Backend,
		"tables_source", cfg.Search.TablesSource,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	store, err := backend.Open(ctx, cfg, m)
	if err != nil {
		slog.Error("posting store unavailable", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var db *sql.DB
	if cfg.Search.TablesSource == config.TablesFromPostgres {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("postgres unavailable for ranking tables", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		db = pg.DB
	}
	loader, err := tables.NewLoader(cfg, db)
	if err != nil {
		slog.Error("invalid tables configuration", "error", err)
		os.Exit(1)
	}
	snap, err := loader.Load(ctx)
	if err != nil {
		slog.Error("ranking tables unavailable", "error", err)
		os.Exit(1)
	}
	holder := tables.NewHolder(snap)
	slog.Info("ranking tables loaded",
		"terms", snap.Sample.Len(),
		"total_docs", snap.Sample.TotalDocs(),
		"urls", snap.Authority.Len(),
	)

	bleveSuggester, err := spell.NewBleveSuggester(snap.Sample.Words())
	if err != nil {
		slog.Error("failed to build suggestion index", "error", err)
		os.Exit(1)
	}
	defer bleveSuggester.Close()
	suggester := spell.NewGuarded(bleveSuggester, cfg.Search.SuggestTimeout, m)

	var redisClient *pkgredis.Client
	var queryCache *cache.Tiered
	if cfg.Cache.Enabled {
		var remote *cache.RedisCache
		if cfg.Cache.RedisTier {
			redisClient, err = pkgredis.NewClient(cfg.Redis)
			if err != nil {
				slog.Warn("redis unavailable, shared cache tier disabled", "error", err)
			} else {
				defer redisClient.Close()
				remote = cache.NewRedisCache(redisClient, cfg.Cache.TTL)
			}
		}
		queryCache = cache.NewTiered(cache.NewWeakCache(cfg.Cache.Pinned), remote, m)
		slog.Info("search cache enabled", "pinned", cfg.Cache.Pinned, "redis_tier", remote != nil, "ttl", cfg.Cache.TTL)
	}

	aggregator := analytics.NewAggregator()
	trackers := []analytics.Tracker{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector := analytics.NewCollector(producer, 10000, 100, 0)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
	}

	deps := executor.Deps{
		Store:     store,
		Tables:    holder,
		Suggester: suggester,
		Metrics:   m,
		Tracer:    tracing.NewTracer(cfg.Tracing),
		Tracker:   analytics.Multi(trackers...),
	}
	if queryCache != nil {
		deps.Cache = queryCache
	}
	exec := executor.New(deps, executor.Options{
		MaxNGrams:    cfg.Search.MaxNGrams,
		MaxPage:      cfg.Search.MaxPage,
		MaxPageSize:  cfg.Search.MaxPageSize,
		SuggestLimit: cfg.Search.SuggestLimit,
		ScanTimeout:  cfg.Search.ScanTimeout,
	})

	var cacheAdmin handler.CacheAdmin
	var invalidator refresh.Invalidator
	if queryCache != nil {
		cacheAdmin = queryCache
		invalidator = queryCache
	}

	if cfg.Kafka.Enabled {
		refresher := refresh.New(loader, holder, invalidator, bleveSuggester, m)
		consumers := []*kafka.Consumer{
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.TablesRefresh, "tables", refresher.HandleTablesRefresh()),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, "cache", refresher.HandleCacheInvalidate()),
		}
		for _, c := range consumers {
			go func() {
				if err := c.Start(ctx); err != nil {
					slog.Error("refresh consumer stopped", "error", err)
				}
			}()
		}
		slog.Info("refresh consumers started",
			"tables_topic", cfg.Kafka.Topics.TablesRefresh,
			"cache_topic", cfg.Kafka.Topics.CacheInvalidate,
		)
	}

	checker := health.NewChecker()
	checker.Register("posting_store", health.PingCheck(true, store.Ping))
	checker.Register("ranking_tables", func(ctx context.Context) health.ComponentHealth {
		s := holder.Load()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms, loaded %s", s.Sample.Len(), s.LoadedAt.Format(time.RFC3339)),
		}
	})
	checker.Register("suggester", func(ctx context.Context) health.ComponentHealth {
		if state := suggester.State(); state != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(false, redisClient.Ping))
	}

	h := handler.New(exec, cacheAdmin, cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *grpc.Server
	if cfg.RPC.Enabled {
		rpcServer = grpc.NewServer()
		h.RegisterRPC(rpcServer, checker)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpcServer != nil {
			rpcServer.Stop()
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "rpc", cfg.RPC.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
