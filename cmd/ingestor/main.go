package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	natsadapter "github.com/ShaoKhan/finder-sub000/internal/adapters/nats"
	"github.com/ShaoKhan/finder-sub000/internal/adapters/valkey"
	"github.com/ShaoKhan/finder-sub000/internal/app"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/config"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/logging"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/telemetry"
)

// The ingestor records device point reports published on survey.points.>.
func main() {
	cfg, err := config.Load("finder-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.NATS.URL == "" {
		log.Fatal("nats.url is required for the ingestor")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, "finder-ingestor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	engine, err := app.NewEngine(cfg.Geometry)
	if err != nil {
		log.Fatalf("geometry: %v", err)
	}

	var cache ports.CacheService
	if cfg.Valkey.Addr != "" {
		c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Prefix)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer c.Close()
			cache = c
		}
	}

	publisher, err := natsadapter.NewPublisher(cfg.NATS.URL, func(s *domain.Session) domain.SessionStats {
		return engine.Stats(s.Track, s.Duration())
	})
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer subscriber.Close()

	svc := usecases.NewSessionService(store.Sessions, store.Finds, publisher, cache, engine)

	if err := subscriber.SubscribePointReports(ctx, app.PointHandler(svc)); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("ingestor consuming point reports", "store", cfg.Store.Driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("ingestor stopping", "signal", sig.String())
}
