package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// Event types published on survey.session.<id>.<type>.
const (
	EventStarted = "started"
	EventPoint   = "point"
	EventStopped = "stopped"
	EventDeleted = "deleted"
)

// SessionEvent is the JSON payload of a session lifecycle event.
type SessionEvent struct {
	Type       string               `json:"type"`
	SessionID  string               `json:"session_id"`
	OwnerID    string               `json:"owner_id,omitempty"`
	State      domain.SessionState  `json:"state,omitempty"`
	Sample     *domain.Sample       `json:"sample,omitempty"`
	Stats      *domain.SessionStats `json:"stats,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Subject returns the subject an event is published on.
func (e SessionEvent) Subject() string {
	return "survey.session." + e.SessionID + "." + e.Type
}

// StatsFunc derives the stats attached to stopped events.
type StatsFunc func(*domain.Session) domain.SessionStats

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn  *nats.Conn
	js    nats.JetStreamContext
	stats StatsFunc
	now   func() time.Time
}

// NewPublisher connects to NATS and ensures the survey streams exist.
// stats may be nil, in which case stopped events carry no stats.
func NewPublisher(url string, stats StatsFunc) (*Publisher, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, js: js, stats: stats, now: time.Now}, nil
}

func (p *Publisher) PublishSessionStarted(ctx context.Context, s *domain.Session) error {
	return p.publish(ctx, SessionEvent{
		Type: EventStarted, SessionID: s.ID, OwnerID: s.OwnerID, State: s.State,
	})
}

func (p *Publisher) PublishTrackPoint(ctx context.Context, sessionID string, sample domain.Sample) error {
	return p.publish(ctx, SessionEvent{Type: EventPoint, SessionID: sessionID, Sample: &sample})
}

func (p *Publisher) PublishSessionStopped(ctx context.Context, s *domain.Session) error {
	event := SessionEvent{Type: EventStopped, SessionID: s.ID, OwnerID: s.OwnerID, State: s.State}
	if p.stats != nil {
		stats := p.stats(s)
		event.Stats = &stats
	}
	return p.publish(ctx, event)
}

func (p *Publisher) PublishSessionDeleted(ctx context.Context, sessionID string) error {
	return p.publish(ctx, SessionEvent{Type: EventDeleted, SessionID: sessionID})
}

func (p *Publisher) publish(ctx context.Context, event SessionEvent) error {
	event.OccurredAt = p.now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(event.Subject(), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
