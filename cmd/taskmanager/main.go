// Command taskmanager runs the task management API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	tmhttp "github.com/TheOliver413/taskmanager-back/internal/adapter/http"
	tmnats "github.com/TheOliver413/taskmanager-back/internal/adapter/nats"
	"github.com/TheOliver413/taskmanager-back/internal/adapter/natskv"
	tmotel "github.com/TheOliver413/taskmanager-back/internal/adapter/otel"
	"github.com/TheOliver413/taskmanager-back/internal/adapter/postgres"
	tmredis "github.com/TheOliver413/taskmanager-back/internal/adapter/redis"
	"github.com/TheOliver413/taskmanager-back/internal/adapter/ristretto"
	"github.com/TheOliver413/taskmanager-back/internal/adapter/tiered"
	"github.com/TheOliver413/taskmanager-back/internal/adapter/ws"
	"github.com/TheOliver413/taskmanager-back/internal/config"
	"github.com/TheOliver413/taskmanager-back/internal/logger"
	"github.com/TheOliver413/taskmanager-back/internal/middleware"
	"github.com/TheOliver413/taskmanager-back/internal/port/cache"
	"github.com/TheOliver413/taskmanager-back/internal/port/messagequeue"
	"github.com/TheOliver413/taskmanager-back/internal/resilience"
	"github.com/TheOliver413/taskmanager-back/internal/service"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "admin" {
		if err := runAdmin(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}
	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	}
	os.Exit(run(args))
}

func run(args []string) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"auth_enabled", cfg.Auth.Enabled,
		"cache_l2", cfg.Cache.L2,
	)

	app, err := build(context.Background(), cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	go func() {
		slog.Info("starting server", "addr", app.srv.Addr)
		if err := app.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"taskmanager": app.stop,
	})
	exitCode := <-wait
	slog.Info("shutdown complete", "exit_code", exitCode)
	return exitCode
}

// app holds everything that must be stopped on shutdown, in stop order.
type app struct {
	srv          *http.Server
	stopRelay    func()
	stopCleanup  func()
	hub          *ws.Hub
	queue        messagequeue.Queue
	l1           *ristretto.Cache
	redis        *tmredis.Cache
	closePool    func()
	shutdownOTEL tmotel.ShutdownFunc
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{stopRelay: func() {}, stopCleanup: func() {}, closePool: func() {}}
	ok := false
	defer func() {
		if !ok {
			_ = a.stop(context.Background())
		}
	}()

	// --- Observability ---

	shutdownOTEL, err := tmotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.shutdownOTEL = shutdownOTEL
	metrics, err := tmotel.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closePool = pool.Close
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	var natsQueue *tmnats.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err = tmnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.Notify.Channel)
		if err != nil {
			// Notifications degrade to this instance's websocket clients.
			slog.Warn("nats unavailable, running without broker", "url", cfg.NATS.URL, "error", err)
		} else {
			a.queue = natsQueue
		}
	}

	// --- Caches ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.l1 = l1

	l2, err := a.l2Cache(ctx, cfg, natsQueue)
	if err != nil {
		return nil, err
	}
	userCache := tiered.New(l1, l2, cfg.Cache.UserTTL)

	// --- Services ---

	hub := ws.NewHub(cfg.Notify.Channel, originPatterns(cfg.Server.CORSOrigin))
	a.hub = hub
	store := postgres.NewStore(pool)

	breaker := resilience.NewBreaker("nats-notify", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	notifier := service.NewChangeNotifier(a.queue, breaker, hub, cfg.Notify.Channel, cfg.Notify.Timeout, metrics)
	stopRelay, err := notifier.Relay(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	a.stopRelay = stopRelay

	identity := service.NewIdentityService(store, userCache, cfg.Cache.UserTTL)
	taskSvc := service.NewTaskService(store, identity, notifier, metrics)

	// --- HTTP ---

	handlers := &tmhttp.Handlers{
		Tasks:     taskSvc,
		DB:        store,
		Queue:     a.queue,
		WS:        http.HandlerFunc(hub.HandleWS),
		BodyLimit: cfg.Server.BodyLimit,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	a.stopCleanup = limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(tmotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(tmhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(tmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tmhttp.SecurityHeaders)
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), cfg.Auth))
	if cfg.Idempotency.Enabled {
		idem, err := a.idempotencyStore(ctx, cfg, natsQueue)
		if err != nil {
			return nil, err
		}
		r.Use(middleware.Idempotency(idem, cfg.Idempotency.TTL))
	}
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	tmhttp.MountRoutes(r, handlers)

	a.srv = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ok = true
	return a, nil
}

// l2Cache returns the shared second cache tier, or nil for L1 only.
func (a *app) l2Cache(ctx context.Context, cfg *config.Config, q *tmnats.Queue) (cache.Cache, error) {
	switch cfg.Cache.L2 {
	case "nats":
		if q == nil {
			slog.Warn("nats l2 cache requested without nats, using l1 only")
			return nil, nil
		}
		kv, err := q.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return nil, fmt.Errorf("l2 cache bucket: %w", err)
		}
		return natskv.New(kv), nil
	case "redis":
		rc, err := tmredis.Connect(ctx, cfg.Redis.URL, "taskmanager:")
		if err != nil {
			return nil, fmt.Errorf("l2 cache redis: %w", err)
		}
		a.redis = rc
		return rc, nil
	default:
		return nil, nil
	}
}

// idempotencyStore keeps replay records in NATS KV so every instance sees
// them. Without NATS the records stay in this process.
func (a *app) idempotencyStore(ctx context.Context, cfg *config.Config, q *tmnats.Queue) (cache.Cache, error) {
	if q == nil {
		slog.Warn("idempotency records are local to this instance")
		return a.l1, nil
	}
	kv, err := q.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency bucket: %w", err)
	}
	return natskv.New(kv), nil
}

func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.srv != nil {
		slog.Info("shutting down server")
		if err := a.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	a.stopCleanup()
	a.stopRelay()
	if a.hub != nil {
		a.hub.Close()
	}
	if a.queue != nil {
		if err := a.queue.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.l1 != nil {
		a.l1.Close()
	}
	a.closePool()
	if a.shutdownOTEL != nil {
		if err := a.shutdownOTEL(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel: %w", err))
		}
	}
	return errors.Join(errs...)
}

// originPatterns turns the CORS origin into websocket origin patterns.
// "*" or empty accepts any origin.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return []string{host}
}
