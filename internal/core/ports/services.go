package ports

import (
	"context"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// EventPublisher publishes session lifecycle events to a message broker.
type EventPublisher interface {
	PublishSessionStarted(ctx context.Context, session *domain.Session) error
	PublishTrackPoint(ctx context.Context, sessionID string, sample domain.Sample) error
	PublishSessionStopped(ctx context.Context, session *domain.Session) error
	PublishSessionDeleted(ctx context.Context, sessionID string) error
}

// PointReport is a device-originated request to record a sample.
type PointReport struct {
	OwnerID   string  `json:"owner_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Timestamp is RFC 3339; empty means the time of ingestion.
	Timestamp string `json:"timestamp,omitempty"`
}

// PointSubscriber delivers point reports from a message broker.
type PointSubscriber interface {
	SubscribePointReports(ctx context.Context, handler func(ctx context.Context, report *PointReport) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// PurgeScheduler starts the background removal of all sessions of an owner
// and returns the workflow id.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, ownerID string) (string, error)
}
