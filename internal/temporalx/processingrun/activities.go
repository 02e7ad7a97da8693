package processingrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/services"
)

// GroupProcessor is the slice of services.ProcessingService the activities drive.
type GroupProcessor interface {
	MarkRunning(ctx context.Context, groupID uuid.UUID) (*processing.ProcessingArtifactGroup, error)
	Complete(ctx context.Context, in services.CompleteProcessingInput) (*services.ProcessingRun, error)
	Fail(ctx context.Context, groupID uuid.UUID, message string) (*processing.ProcessingArtifactGroup, error)
}

type Activities struct {
	Log        *logger.Logger
	Processing GroupProcessor
	Metrics    *observability.Metrics
}

func (a *Activities) MarkRunning(ctx context.Context, groupID string) (Outcome, error) {
	start := time.Now()
	out, err := a.markRunning(ctx, groupID)
	a.observe(ActivityMarkRunning, start, err)
	return out, err
}

func (a *Activities) markRunning(ctx context.Context, groupID string) (Outcome, error) {
	id, err := a.parse(groupID)
	if err != nil {
		return Outcome{}, err
	}
	g, err := a.Processing.MarkRunning(ctx, id)
	if err != nil {
		return Outcome{GroupID: groupID}, classify(err)
	}
	return Outcome{GroupID: groupID, Status: g.Status}, nil
}

func (a *Activities) Complete(ctx context.Context, in CompleteInput) (Outcome, error) {
	start := time.Now()
	out, err := a.complete(ctx, in)
	a.observe(ActivityComplete, start, err)
	return out, err
}

func (a *Activities) complete(ctx context.Context, in CompleteInput) (Outcome, error) {
	id, err := a.parse(in.GroupID)
	if err != nil {
		return Outcome{}, err
	}
	arts := make([]domainagg.ArtifactInput, 0, len(in.Result.Artifacts))
	for _, p := range in.Result.Artifacts {
		arts = append(arts, domainagg.ArtifactInput{Content: p.Content, Metadata: p.Metadata})
	}
	run, err := a.Processing.Complete(ctx, services.CompleteProcessingInput{
		GroupID:   id,
		Artifacts: arts,
		Summary:   in.Result.Summary,
		Agent:     domainagg.Agent{ID: strings.TrimSpace(in.Result.Agent), Kind: strings.TrimSpace(in.Result.AgentKind)},
	})
	if err != nil {
		return Outcome{GroupID: in.GroupID}, classify(err)
	}
	out := Outcome{GroupID: in.GroupID, Artifacts: len(run.Artifacts), Replayed: run.Replayed}
	if run.Group != nil {
		out.Status = run.Group.Status
	}
	return out, nil
}

func (a *Activities) Fail(ctx context.Context, in FailInput) (Outcome, error) {
	start := time.Now()
	out, err := a.fail(ctx, in)
	a.observe(ActivityFail, start, err)
	return out, err
}

func (a *Activities) fail(ctx context.Context, in FailInput) (Outcome, error) {
	id, err := a.parse(in.GroupID)
	if err != nil {
		return Outcome{}, err
	}
	g, err := a.Processing.Fail(ctx, id, in.Message)
	if err != nil {
		return Outcome{GroupID: in.GroupID}, classify(err)
	}
	return Outcome{GroupID: in.GroupID, Status: g.Status, Error: g.ErrorMessage}, nil
}

func (a *Activities) parse(groupID string) (uuid.UUID, error) {
	if a == nil || a.Processing == nil {
		return uuid.Nil, fmt.Errorf("processingrun: activity not configured")
	}
	id, err := uuid.Parse(strings.TrimSpace(groupID))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError("invalid group id", "validation", err)
	}
	return id, nil
}

func (a *Activities) observe(name string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if a.Log != nil {
			a.Log.Warn("processing activity failed", "activity", name, "error", err)
		}
	}
	a.Metrics.ObserveActivity(name, status, time.Since(start))
}

// classify lets Temporal retry only transient store errors and untyped failures.
func classify(err error) error {
	code := domainagg.CodeOf(err)
	if code == "" || code == domainagg.CodeRetryable || code == domainagg.CodeInternal {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(code), err)
}
