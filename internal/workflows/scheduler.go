package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

// PurgeScheduler starts purge workflows. It implements ports.PurgeScheduler.
type PurgeScheduler struct {
	client    client.Client
	taskQueue string
}

// NewPurgeScheduler creates a scheduler using the given task queue, or
// DefaultTaskQueue when empty.
func NewPurgeScheduler(c client.Client, taskQueue string) *PurgeScheduler {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &PurgeScheduler{client: c, taskQueue: taskQueue}
}

// SchedulePurge starts the purge of an owner's sessions. The workflow id is
// derived from the owner, so a purge already in progress is reused.
func (s *PurgeScheduler) SchedulePurge(ctx context.Context, ownerID string) (string, error) {
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        PurgeWorkflowID(ownerID),
		TaskQueue: s.taskQueue,
	}, PurgeOwnerWorkflow, PurgeInput{OwnerID: ownerID})
	if err != nil {
		return "", fmt.Errorf("start purge workflow: %w", err)
	}
	return run.GetID(), nil
}

// PurgeWorkflowID returns the workflow id used for an owner's purge.
func PurgeWorkflowID(ownerID string) string {
	return "purge-" + ownerID
}
