package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultTaskQueue is the task queue purge workers poll.
const DefaultTaskQueue = "survey-purge"

// PurgeInput is the input for the purge workflow.
type PurgeInput struct {
	OwnerID string
}

// PurgeResult lists the sessions removed and the sessions left in place
// because their removal failed.
type PurgeResult struct {
	Removed []string
	Failed  []string
}

// PurgeOwnerWorkflow removes every session of an owner. Each session is a
// small saga: its finds are detached first, and reattached if the session
// itself cannot be removed. Finds are never deleted.
func PurgeOwnerWorkflow(ctx workflow.Context, input PurgeInput) (PurgeResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting purge workflow", "ownerID", input.OwnerID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var result PurgeResult

	var sessionIDs []string
	if err := workflow.ExecuteActivity(ctx, "ListOwnerSessions", input.OwnerID).Get(ctx, &sessionIDs); err != nil {
		return result, err
	}

	for _, id := range sessionIDs {
		var detached []string
		if err := workflow.ExecuteActivity(ctx, "DetachFinds", id).Get(ctx, &detached); err != nil {
			logger.Warn("detaching finds failed, keeping session", "sessionID", id, "error", err)
			result.Failed = append(result.Failed, id)
			continue
		}

		if err := workflow.ExecuteActivity(ctx, "RemoveSession", id).Get(ctx, nil); err != nil {
			logger.Warn("session removal failed, compensating", "sessionID", id, "error", err)
			if cerr := workflow.ExecuteActivity(ctx, "ReattachFinds", detached, id).Get(ctx, nil); cerr != nil {
				logger.Error("reattaching finds failed", "sessionID", id, "finds", len(detached), "error", cerr)
			}
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Removed = append(result.Removed, id)
	}

	logger.Info("Purge finished", "removed", len(result.Removed), "failed", len(result.Failed))
	return result, nil
}
