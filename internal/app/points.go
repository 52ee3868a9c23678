package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	natsadapter "github.com/ShaoKhan/finder-sub000/internal/adapters/nats"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/core/usecases"
)

// PointHandler records broker point reports on the owner's active session.
// Reports for owners without an active session are dropped.
func PointHandler(svc *usecases.SessionService) func(context.Context, *ports.PointReport) error {
	return func(ctx context.Context, r *ports.PointReport) error {
		var ts time.Time
		if r.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, r.Timestamp)
			if err != nil {
				return fmt.Errorf("%w: timestamp %q", natsadapter.ErrMalformedReport, r.Timestamp)
			}
			ts = parsed
		}

		recorded, err := svc.AddPoint(ctx, r.OwnerID, r.Latitude, r.Longitude, ts)
		if err != nil {
			return err
		}
		if !recorded {
			slog.DebugContext(ctx, "point report without active session", "owner_id", r.OwnerID)
		}
		return nil
	}
}
