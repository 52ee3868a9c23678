package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/ShaoKhan/finder-sub000/internal/adapters/http"
	natsadapter "github.com/ShaoKhan/finder-sub000/internal/adapters/nats"
	"github.com/ShaoKhan/finder-sub000/internal/adapters/valkey"
	"github.com/ShaoKhan/finder-sub000/internal/app"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/config"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/logging"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/metrics"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/telemetry"
	"github.com/ShaoKhan/finder-sub000/internal/workflows"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load("finder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, "finder-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Store
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()
	go reportPoolMetrics(ctx, store.DB)

	engine, err := app.NewEngine(cfg.Geometry)
	if err != nil {
		log.Fatalf("geometry: %v", err)
	}

	deps := &http.Dependencies{
		DB:       store.DB,
		Version:  version,
		DocsPath: "api/openapi.yaml",
	}

	// Cache
	var cache ports.CacheService
	if cfg.Valkey.Addr != "" {
		c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer c.Close()
			cache = c
			deps.Cache = c
		}
	}

	// NATS
	var publisher ports.EventPublisher
	if cfg.NATS.URL != "" {
		stats := func(s *domain.Session) domain.SessionStats {
			return engine.Stats(s.Track, s.Duration())
		}
		p, err := natsadapter.NewPublisher(cfg.NATS.URL, stats)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer p.Close()
			publisher = p
			deps.NATS = p.Conn()
		}
	}

	var opts []usecases.SessionOption

	// Temporal
	if cfg.Temporal.HostPort != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("temporal unavailable, purge disabled", "error", err)
		} else {
			defer tc.Close()
			opts = append(opts, usecases.WithPurgeScheduler(
				workflows.NewPurgeScheduler(tc, cfg.Temporal.TaskQueue)))
		}
	}

	deps.Sessions = usecases.NewSessionService(store.Sessions, store.Finds, publisher, cache, engine, opts...)

	// Fiber
	fapp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Finder Survey API",
	})
	fapp.Use(recover.New())
	fapp.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, " + http.OwnerHeader,
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(fapp, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "store", cfg.Store.Driver, "hull", engine.HullName())
		if err := fapp.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := fapp.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reportPoolMetrics refreshes the database pool gauges until ctx ends.
func reportPoolMetrics(ctx context.Context, db app.Database) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.UpdateDBPoolMetrics(db.Stat())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
