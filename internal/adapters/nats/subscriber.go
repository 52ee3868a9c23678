package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/metrics"
)

// ErrMalformedReport marks a report whose fields cannot be interpreted.
// Handlers wrap it so the message is terminated instead of redelivered.
var ErrMalformedReport = errors.New("malformed point report")

// Subscriber implements ports.PointSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS and ensures the survey streams exist.
func NewSubscriber(url string) (*Subscriber, error) {
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
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePointReports consumes device point reports from survey.points.>.
func (s *Subscriber) SubscribePointReports(ctx context.Context, handler func(ctx context.Context, report *ports.PointReport) error) error {
	sub, err := s.js.Subscribe(subjectPoints, func(msg *nats.Msg) {
		switch d := dispose(ctx, msg.Data, handler); d {
		case ack:
			_ = msg.Ack()
		case term:
			_ = msg.Term()
		default:
			_ = msg.Nak()
		}
	},
		nats.Durable("point-ingestor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

type disposition int

const (
	ack disposition = iota
	nak
	term
)

func (d disposition) String() string {
	switch d {
	case ack:
		return "ack"
	case term:
		return "term"
	default:
		return "nak"
	}
}

// dispose runs handler on a raw report. Malformed payloads and invalid
// coordinates are terminated. Other failures are redelivered.
func dispose(ctx context.Context, data []byte, handler func(context.Context, *ports.PointReport) error) disposition {
	var report ports.PointReport
	if err := json.Unmarshal(data, &report); err != nil || report.OwnerID == "" {
		slog.WarnContext(ctx, "dropping malformed point report", "error", err)
		metrics.PointReportsConsumed.WithLabelValues("malformed").Inc()
		return term
	}

	err := handler(ctx, &report)
	switch {
	case err == nil:
		metrics.PointReportsConsumed.WithLabelValues("handled").Inc()
		return ack
	case errors.Is(err, domain.ErrInvalidCoordinate), errors.Is(err, ErrMalformedReport):
		slog.WarnContext(ctx, "dropping point report", "owner_id", report.OwnerID, "error", err)
		metrics.PointReportsConsumed.WithLabelValues("rejected").Inc()
		return term
	default:
		slog.ErrorContext(ctx, "point report failed, will retry", "owner_id", report.OwnerID, "error", err)
		metrics.PointReportsConsumed.WithLabelValues("failed").Inc()
		return nak
	}
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
