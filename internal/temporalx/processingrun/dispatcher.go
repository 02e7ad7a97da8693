package processingrun

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/docprov-backend/internal/temporalx"
)

// Dispatcher starts and signals processing-group workflows. A nil Dispatcher
// reports disabled and callers fall back to direct service calls.
type Dispatcher struct {
	client    temporalsdkclient.Client
	taskQueue string
	timeout   time.Duration
}

func NewDispatcher(c temporalsdkclient.Client, cfg temporalx.Config) *Dispatcher {
	if c == nil {
		return nil
	}
	cfg = cfg.Normalized()
	return &Dispatcher{
		client:    c,
		taskQueue: cfg.TaskQueue,
		timeout:   time.Duration(cfg.GroupTimeoutSeconds) * time.Second,
	}
}

func (d *Dispatcher) Enabled() bool { return d != nil && d.client != nil }

// Start is idempotent per group: a second start attaches to the running execution.
func (d *Dispatcher) Start(ctx context.Context, groupID uuid.UUID) (string, error) {
	if !d.Enabled() {
		return "", fmt.Errorf("processingrun: temporal disabled")
	}
	id := WorkflowID(groupID.String())
	run, err := d.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       id,
		TaskQueue:                d.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, WorkflowName, WorkflowInput{GroupID: groupID.String(), TimeoutSeconds: int(d.timeout / time.Second)})
	if err != nil {
		return "", fmt.Errorf("processingrun: start workflow %s: %w", id, err)
	}
	return run.GetRunID(), nil
}

func (d *Dispatcher) Signal(ctx context.Context, groupID uuid.UUID, result GroupResult) error {
	if !d.Enabled() {
		return fmt.Errorf("processingrun: temporal disabled")
	}
	id := WorkflowID(groupID.String())
	if err := d.client.SignalWorkflow(ctx, id, "", SignalGroupResult, result); err != nil {
		return fmt.Errorf("processingrun: signal %s: %w", id, err)
	}
	return nil
}
