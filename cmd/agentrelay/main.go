// Command agentrelay serves the A2A persistence API and supervises the
// stdio MCP tool servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	arhttp "github.com/Strob0t/agentrelay/internal/adapter/http"
	armcp "github.com/Strob0t/agentrelay/internal/adapter/mcp"
	"github.com/Strob0t/agentrelay/internal/adapter/memory"
	arnats "github.com/Strob0t/agentrelay/internal/adapter/nats"
	"github.com/Strob0t/agentrelay/internal/adapter/natskv"
	cfotel "github.com/Strob0t/agentrelay/internal/adapter/otel"
	"github.com/Strob0t/agentrelay/internal/adapter/postgres"
	"github.com/Strob0t/agentrelay/internal/adapter/ristretto"
	"github.com/Strob0t/agentrelay/internal/adapter/tiered"
	"github.com/Strob0t/agentrelay/internal/adapter/ws"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/logger"
	"github.com/Strob0t/agentrelay/internal/middleware"
	a2aport "github.com/Strob0t/agentrelay/internal/port/a2a"
	"github.com/Strob0t/agentrelay/internal/port/cache"
	"github.com/Strob0t/agentrelay/internal/port/database"
	"github.com/Strob0t/agentrelay/internal/port/messagequeue"
	"github.com/Strob0t/agentrelay/internal/resilience"
	"github.com/Strob0t/agentrelay/internal/service"
)

const (
	version         = "0.1.0"
	threadKVBucket  = "agentrelay-threads"
	shutdownTimeout = 10 * time.Second
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	var err error
	if len(os.Args) > 1 && isAdminCommand(os.Args[1]) {
		err = runAdmin(os.Args[1:])
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"nats", cfg.NATS.URL != "",
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var queue messagequeue.Queue = messagequeue.Nop{}
	var bus *arnats.Queue
	if cfg.NATS.URL != "" {
		bus, err = arnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = bus.Close() }()
		queue = bus
	}

	threadCache, closeCache, err := openThreadCache(ctx, cfg.A2A, bus)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin)

	a2aSvc := service.NewA2AService(store, queue, cfg.A2A)
	a2aSvc.SetBreaker(resilience.NewBreaker("nats", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	a2aSvc.SetBroadcaster(hub)
	a2aSvc.SetCache(threadCache)
	a2aSvc.SetMetrics(metrics)

	orch, err := service.NewMCPOrchestrator(cfg.MCP)
	if err != nil {
		return fmt.Errorf("mcp servers: %w", err)
	}
	orch.SetMetrics(metrics)
	orch.SetBroadcaster(hub)
	if err := orch.Initialize(ctx); err != nil {
		// The relay still serves A2A state; /health reports degraded.
		slog.Error("mcp tool servers unavailable", "error", err)
	}
	defer func() {
		if err := orch.Cleanup(); err != nil {
			slog.Warn("mcp cleanup failed", "error", err)
		}
	}()

	if cfg.MCP.ServerEnabled {
		mcpSrv := armcp.NewServer(armcp.ServerConfig{
			Addr:    cfg.MCP.ServerAddr,
			Version: version,
			APIKey:  cfg.MCP.ServerAPIKey,
		}, armcp.ServerDeps{Tasks: a2aSvc, Stats: a2aSvc, Status: orch})
		if err := mcpSrv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = mcpSrv.Stop(sctx)
		}()
	}

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(arhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(arhttp.SecurityHeaders)
	r.Use(arhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/ws", hub.HandleWS)
	a2aport.NewHandler(cfg.Server.BaseURL, version, a2aSvc).MountRoutes(r)
	arhttp.MountRoutes(r, &arhttp.Handlers{A2A: a2aSvc, MCP: orch}, limiter.Handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if cfg.A2A.CleanupInterval > 0 {
		g.Go(func() error {
			a2aSvc.RunJanitor(gctx, cfg.A2A.CleanupInterval)
			return nil
		})
	}
	if cfg.Server.RateLimitRPS > 0 {
		g.Go(func() error {
			limiter.Run(gctx, time.Minute, 10*time.Minute)
			return nil
		})
	}
	if bus != nil {
		cancelBridge, err := bus.Subscribe(gctx, messagequeue.SubjectAll, hub.ForwardBusEvent)
		if err != nil {
			return fmt.Errorf("event bridge: %w", err)
		}
		defer cancelBridge()
	}
	g.Go(func() error {
		watchReload(gctx, holder)
		return nil
	})

	return g.Wait()
}

// openStore returns the configured A2A store. The postgres store is
// migrated before use.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	if cfg.Storage.Driver == "memory" {
		slog.Warn("using in-memory store; data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	return postgres.NewStore(pool), pool.Close, nil
}

// openThreadCache builds the thread cache: ristretto in process, backed by
// a JetStream KV bucket when NATS is available.
func openThreadCache(ctx context.Context, cfg config.A2A, bus *arnats.Queue) (cache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.CacheMaxMB << 20)
	if err != nil {
		return nil, nil, fmt.Errorf("thread cache: %w", err)
	}
	if bus == nil {
		return l1, l1.Close, nil
	}

	kv, err := bus.KeyValue(ctx, threadKVBucket, cfg.ThreadCacheTTL)
	if err != nil {
		slog.Warn("thread cache kv unavailable, using local cache only", "error", err)
		return l1, l1.Close, nil
	}
	return tiered.New(l1, natskv.New(kv), cfg.ThreadCacheTTL), l1.Close, nil
}

// watchReload re-reads the config on SIGHUP and applies the log level.
func watchReload(ctx context.Context, holder *config.Holder) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
				continue
			}
			logger.SetLevel(holder.Get().Logging.Level)
		}
	}
}
