package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// SessionPurger is the slice of the session service the purge activities
// drive. *usecases.SessionService implements it.
type SessionPurger interface {
	OwnerSessionIDs(ctx context.Context, ownerID string) ([]string, error)
	DetachFinds(ctx context.Context, sessionID string) ([]string, error)
	RemoveDetached(ctx context.Context, sessionID string) error
	ReattachFinds(ctx context.Context, findIDs []string, sessionID string) error
}

// PurgeActivities holds the activity implementations for the purge workflow.
type PurgeActivities struct {
	Sessions SessionPurger
}

// ListOwnerSessions returns the ids of every session of the owner.
func (a *PurgeActivities) ListOwnerSessions(ctx context.Context, ownerID string) ([]string, error) {
	ids, err := a.Sessions.OwnerSessionIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", ownerID, err)
	}
	return ids, nil
}

// DetachFinds clears the session reference of the session's finds and
// returns their ids for compensation.
func (a *PurgeActivities) DetachFinds(ctx context.Context, sessionID string) ([]string, error) {
	return a.Sessions.DetachFinds(ctx, sessionID)
}

// RemoveSession deletes a detached session. A session that is already gone
// counts as removed so retries stay idempotent.
func (a *PurgeActivities) RemoveSession(ctx context.Context, sessionID string) error {
	err := a.Sessions.RemoveDetached(ctx, sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		activity.GetLogger(ctx).Info("session already removed", "sessionID", sessionID)
		return nil
	}
	return err
}

// ReattachFinds restores the session reference of finds (saga compensation).
func (a *PurgeActivities) ReattachFinds(ctx context.Context, findIDs []string, sessionID string) error {
	if len(findIDs) == 0 {
		return nil
	}
	return a.Sessions.ReattachFinds(ctx, findIDs, sessionID)
}
