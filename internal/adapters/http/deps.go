package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
)

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Sessions *usecases.SessionService
	NATS     *nats.Conn
	DB       Pinger
	Cache    Pinger
	Version  string
	// DocsPath locates the OpenAPI document; defaults to api/openapi.yaml.
	DocsPath string
}
