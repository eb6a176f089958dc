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
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/alimasry/go-page-editor/config"
	"github.com/alimasry/go-page-editor/editor"
	"github.com/alimasry/go-page-editor/logging"
	"github.com/alimasry/go-page-editor/metrics"
	"github.com/alimasry/go-page-editor/ratelimit"
	"github.com/alimasry/go-page-editor/server"
	"github.com/alimasry/go-page-editor/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.LoadFromEnv("PAGE_EDITOR")
	}
	if err == nil && *addr != "" {
		cfg.Addr = *addr
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, "page-editor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pages, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open page store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	limiter, err := openLimiter(ctx, cfg.RateLimit, log)
	if err != nil {
		log.Fatal("failed to open rate limiter", zap.String("backend", cfg.RateLimit.Backend), zap.Error(err))
	}

	hub := server.NewHub(pages,
		server.WithLimiter(limiter),
		server.WithLogger(log.Named("hub")),
		server.WithMetrics(metrics.New(reg)),
		server.WithHistoryOptions(
			editor.WithMaxDepth(cfg.History.MaxDepth),
			editor.WithCoalesceWindow(cfg.History.CoalesceWindow),
		),
	)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewHandler(hub, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("rate_limit", cfg.RateLimit.Backend))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", zap.Error(err))
	}
}

// openStore builds the configured backend, behind a write-behind cache when
// a flush interval is set. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.PageStore, func(), error) {
	var (
		backing store.PageStore
		release func()
	)
	switch cfg.Backend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		backing = store.NewFirestoreStore(client, cfg.Firestore.Collection)
		release = func() { client.Close() }
	case config.BackendPostgres:
		db, err := store.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		backing = pg
		release = func() { db.Close() }
	default:
		return store.NewMemoryStore(), func() {}, nil
	}

	if cfg.FlushInterval <= 0 {
		return backing, release, nil
	}
	cached := store.NewCachedStore(backing, cfg.FlushInterval, log.Named("store"))
	return cached, func() {
		cached.Close()
		release()
	}, nil
}

func openLimiter(ctx context.Context, cfg config.RateLimitConfig, log *zap.Logger) (ratelimit.Limiter, error) {
	if cfg.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return ratelimit.NewRedisWindow(client, "page-editor:ratelimit:", cfg.Window, cfg.Max), nil
	}
	w := ratelimit.NewWindow(cfg.Window, cfg.Max)
	go w.Run(ctx, cfg.Window)
	log.Debug("in-memory rate limiter", zap.Duration("window", cfg.Window), zap.Int("max", cfg.Max))
	return w, nil
}
