package processingrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultGroupTimeout = time.Hour

// Workflow drives one asynchronous processing group: mark it running, wait for
// the runner's group_result signal, then complete or fail it. A missing signal
// fails the group once the timeout elapses.
func Workflow(ctx workflow.Context, in WorkflowInput) (Outcome, error) {
	groupID := strings.TrimSpace(in.GroupID)
	if groupID == "" {
		return Outcome{}, fmt.Errorf("processingrun: missing group_id")
	}
	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultGroupTimeout
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	var out Outcome
	if err := workflow.ExecuteActivity(ctx, ActivityMarkRunning, groupID).Get(ctx, &out); err != nil {
		return out, err
	}

	result, received := waitForResult(ctx, timeout)
	switch {
	case !received:
		msg := fmt.Sprintf("no result within %s", timeout)
		err := workflow.ExecuteActivity(ctx, ActivityFail, FailInput{GroupID: groupID, Message: msg}).Get(ctx, &out)
		return out, err
	case strings.TrimSpace(result.Error) != "":
		err := workflow.ExecuteActivity(ctx, ActivityFail, FailInput{GroupID: groupID, Message: result.Error}).Get(ctx, &out)
		return out, err
	default:
		err := workflow.ExecuteActivity(ctx, ActivityComplete, CompleteInput{GroupID: groupID, Result: result}).Get(ctx, &out)
		return out, err
	}
}

func waitForResult(ctx workflow.Context, timeout time.Duration) (GroupResult, bool) {
	var (
		result   GroupResult
		received bool
	)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()

	sel := workflow.NewSelector(ctx)
	sel.AddReceive(workflow.GetSignalChannel(ctx, SignalGroupResult), func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &result)
		received = true
	})
	sel.AddFuture(workflow.NewTimer(timerCtx, timeout), func(workflow.Future) {})
	sel.Select(ctx)
	return result, received
}
