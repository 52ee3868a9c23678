package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/ShaoKhan/finder-sub000/internal/app"
	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/config"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/logging"
	"github.com/ShaoKhan/finder-sub000/internal/workflows"
)

// The purger runs the Temporal worker that removes all sessions of an owner.
func main() {
	cfg, err := config.Load("finder-purger")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Temporal.HostPort == "" {
		log.Fatal("temporal.host_port is required for the purger")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format, "finder-purger")

	ctx := context.Background()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	engine, err := app.NewEngine(cfg.Geometry)
	if err != nil {
		log.Fatalf("geometry: %v", err)
	}
	svc := usecases.NewSessionService(store.Sessions, store.Finds, nil, nil, engine)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.PurgeOwnerWorkflow)
	w.RegisterActivity(&workflows.PurgeActivities{Sessions: svc})

	slog.Info("purge worker starting", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
