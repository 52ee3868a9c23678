// Package app assembles the session service from configuration for the
// finder binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ShaoKhan/finder-sub000/internal/adapters/postgres"
	"github.com/ShaoKhan/finder-sub000/internal/adapters/sqlite"
	"github.com/ShaoKhan/finder-sub000/internal/core/geometry"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/config"
)

// Database is the handle behind a Store.
type Database interface {
	Ping(ctx context.Context) error
	Stat() any
	Close()
}

// Store bundles the repositories of one backend.
type Store struct {
	Sessions ports.SessionRepository
	Finds    ports.FindRepository
	DB       Database
}

// OpenStore connects to the backend selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &Store{
			Sessions: sqlite.NewSessionRepo(db),
			Finds:    sqlite.NewFindRepo(db),
			DB:       db,
		}, nil
	case "postgres", "":
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Store{
			Sessions: postgres.NewSessionRepo(db.Pool),
			Finds:    postgres.NewFindRepo(db.Pool),
			DB:       db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases the backend.
func (s *Store) Close() {
	s.DB.Close()
}

// NewEngine builds the geometry engine from configuration.
func NewEngine(cfg config.GeometryConfig) (*geometry.Engine, error) {
	hull, err := geometry.NewHullBuilder(cfg.Hull)
	if err != nil {
		return nil, err
	}
	slog.Debug("geometry engine", "hull", hull.Name(), "min_distance_m", cfg.MinDistanceM)
	return geometry.NewEngine(
		geometry.WithHullBuilder(hull),
		geometry.WithMinDistance(cfg.MinDistanceM),
	), nil
}
