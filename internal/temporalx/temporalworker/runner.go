package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/temporalx"
	"github.com/yungbote/docprov-backend/internal/temporalx/processingrun"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const startMaxWait = 60 * time.Second

type Runner struct {
	log *logger.Logger
	cfg temporalx.Config

	tc         temporalsdkclient.Client
	processing processingrun.GroupProcessor
	metrics    *observability.Metrics
}

func NewRunner(
	log *logger.Logger,
	cfg temporalx.Config,
	tc temporalsdkclient.Client,
	processing processingrun.GroupProcessor,
	metrics *observability.Metrics,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if processing == nil {
		return nil, fmt.Errorf("temporal worker missing processing service")
	}
	return &Runner{
		log:        log,
		cfg:        cfg.Normalized(),
		tc:         tc,
		processing: processing,
		metrics:    metrics,
	}, nil
}

// Start polls the task queue until ctx is canceled, retrying worker start for
// up to a minute while Temporal comes up.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	ctx = ctxutil.Default(ctx)
	if r.log != nil {
		r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	}

	deadline := time.Now().Add(startMaxWait)
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			if r.log != nil {
				r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			}
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil && r.log != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if time.Now().After(deadline) {
			if errors.As(startErr, &nfe) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		if r.log != nil {
			r.log.Warn("Temporal worker failed to start; retrying", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", startErr)
		}
		time.Sleep(temporalx.ClampBackoff(attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.cfg.WorkerConcurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.cfg.WorkerConcurrency,
	})
	acts := &processingrun.Activities{
		Log:        r.log,
		Processing: r.processing,
		Metrics:    r.metrics,
	}
	w.RegisterWorkflowWithOptions(processingrun.Workflow, workflow.RegisterOptions{Name: processingrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.MarkRunning, activity.RegisterOptions{Name: processingrun.ActivityMarkRunning})
	w.RegisterActivityWithOptions(acts.Complete, activity.RegisterOptions{Name: processingrun.ActivityComplete})
	w.RegisterActivityWithOptions(acts.Fail, activity.RegisterOptions{Name: processingrun.ActivityFail})
	return w
}
