package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/aggregates"
	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/realtime"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
)

// ProvenanceMirror copies a family's provenance graph into an external store.
type ProvenanceMirror interface {
	SyncFamily(ctx context.Context, rootID uuid.UUID) error
	DropFamily(ctx context.Context, rootID uuid.UUID) error
}

// ProcessingService drives one processing invocation through the core:
// pick the target version, register the group, store artifacts, record provenance,
// then refresh composites.
type ProcessingService interface {
	// Run records an inline (synchronous) result in one transaction.
	Run(ctx context.Context, in RunProcessingInput) (*ProcessingRun, error)
	// Start registers an asynchronous run; the group stays pending until Complete or Fail.
	Start(ctx context.Context, in StartProcessingInput) (*ProcessingRun, error)
	MarkRunning(ctx context.Context, groupID uuid.UUID) (*types.ProcessingArtifactGroup, error)
	Complete(ctx context.Context, in CompleteProcessingInput) (*ProcessingRun, error)
	Fail(ctx context.Context, groupID uuid.UUID, message string) (*types.ProcessingArtifactGroup, error)
}

// ProcessingTarget selects which version receives the results.
type ProcessingTarget struct {
	DocumentID   uuid.UUID
	ExperimentID *uuid.UUID
	// NewVersion forces a fresh isolated version instead of writing into DocumentID.
	NewVersion bool
}

type RunProcessingInput struct {
	Target           ProcessingTarget
	ProcessingType   string
	MethodKey        string
	ParentMethodKeys []string
	Parameters       map[string]any
	Metadata         map[string]any
	Artifacts        []domainagg.ArtifactInput
	Summary          map[string]any
	Actor            string
	AgentKind        string
	// ExcludeFromComposite registers the method without exposing it in composites.
	ExcludeFromComposite bool
}

type StartProcessingInput struct {
	Target               ProcessingTarget
	ProcessingType       string
	MethodKey            string
	JobID                string
	ParentMethodKeys     []string
	Parameters           map[string]any
	Metadata             map[string]any
	Actor                string
	ExcludeFromComposite bool
}

type CompleteProcessingInput struct {
	GroupID   uuid.UUID
	Artifacts []domainagg.ArtifactInput
	Summary   map[string]any
	Agent     domainagg.Agent
}

// ProcessingRun is what one invocation touched.
type ProcessingRun struct {
	Document       *types.Document                `json:"document"`
	VersionCreated bool                           `json:"version_created"`
	Group          *types.ProcessingArtifactGroup `json:"group"`
	Operation      *types.ProcessingOperation     `json:"operation,omitempty"`
	Artifacts      []*types.ProcessingArtifact    `json:"artifacts,omitempty"`
	// Replayed is set when the group already held results and nothing was written.
	Replayed bool `json:"replayed,omitempty"`
}

type ProcessingServiceDeps struct {
	DB      *gorm.DB
	Log     *logger.Logger
	Repos   repos.Set
	Metrics *observability.Metrics

	Versioning domainagg.Versioning
	Registry   domainagg.Registry
	Composite  domainagg.CompositeAggregator
	Provenance domainagg.ProvenanceTracker

	Bus    bus.Bus
	Mirror ProvenanceMirror

	AutoRefreshComposites bool
}

type processingService struct {
	deps ProcessingServiceDeps
	log  *logger.Logger
}

func NewProcessingService(deps ProcessingServiceDeps) ProcessingService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &processingService{deps: deps, log: log.With("service", "ProcessingService")}
}

func (s *processingService) Run(ctx context.Context, in RunProcessingInput) (*ProcessingRun, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ptype := normalizeType(in.ProcessingType)
	method := strings.TrimSpace(in.MethodKey)
	if ptype == "" || method == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, "ProcessingService.Run", "processing type and method key are required", nil)
	}

	run := &ProcessingRun{}
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		doc, created, err := s.resolveTarget(dbc, in.Target, ptype, in.Actor)
		if err != nil {
			return err
		}
		run.Document, run.VersionCreated = doc, created

		g, err := s.deps.Registry.CreateOrGetGroup(dbc, domainagg.CreateGroupInput{
			DocumentID:           doc.ID,
			ArtifactType:         ptype,
			MethodKey:            method,
			ParentMethodKeys:     in.ParentMethodKeys,
			Metadata:             in.Metadata,
			Actor:                in.Actor,
			ExcludeFromComposite: in.ExcludeFromComposite,
		})
		if err != nil {
			return err
		}
		run.Group = g
		if replay, err := s.alreadyProduced(dbc, g); err != nil || replay {
			run.Replayed = replay
			return err
		}

		now := time.Now().UTC()
		op, err := s.createOperation(dbc, doc, in.Target.ExperimentID, ptype, method, processing.StatusCompleted, "", in.Actor, in.Parameters)
		if err != nil {
			return err
		}
		if err := s.linkOperation(dbc, g, op); err != nil {
			return err
		}
		arts, err := s.deps.Registry.AddArtifacts(dbc, g.ID, in.Artifacts)
		if err != nil {
			return err
		}
		summary := withArtifactCount(in.Summary, len(arts))
		if err := s.finishOperation(dbc, op, processing.StatusCompleted, summary, "", now); err != nil {
			return err
		}
		if err := s.recordActivity(dbc, g, op, arts, domainagg.Agent{ID: in.Actor, Kind: in.AgentKind}, summary, now); err != nil {
			return err
		}
		run.Operation, run.Artifacts = op, arts
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError("ProcessingService.Run", err)
	}

	if run.VersionCreated {
		s.publish(ctx, realtime.EventVersionCreated, run.Document, nil, map[string]any{"version_number": run.Document.VersionNumber})
	}
	if !run.Replayed {
		s.afterCompletion(ctx, run.Document, run.Group, len(run.Artifacts))
	}
	return run, nil
}

func (s *processingService) Start(ctx context.Context, in StartProcessingInput) (*ProcessingRun, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	const op = "ProcessingService.Start"
	ptype := normalizeType(in.ProcessingType)
	method := strings.TrimSpace(in.MethodKey)
	jobID := strings.TrimSpace(in.JobID)
	if ptype == "" || method == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "processing type and method key are required", nil)
	}
	if jobID == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "asynchronous processing needs a job id", nil)
	}

	run := &ProcessingRun{}
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		doc, created, err := s.resolveTarget(dbc, in.Target, ptype, in.Actor)
		if err != nil {
			return err
		}
		run.Document, run.VersionCreated = doc, created

		g, err := s.deps.Registry.CreateOrGetGroup(dbc, domainagg.CreateGroupInput{
			DocumentID:           doc.ID,
			ArtifactType:         ptype,
			MethodKey:            method,
			JobID:                jobID,
			ParentMethodKeys:     in.ParentMethodKeys,
			Metadata:             in.Metadata,
			Actor:                in.Actor,
			ExcludeFromComposite: in.ExcludeFromComposite,
		})
		if err != nil {
			return err
		}
		run.Group = g
		if g.ProcessingOperationID != nil {
			// Retried start for a group that already has its operation.
			run.Replayed = true
			run.Operation, err = s.deps.Repos.Operations.GetByID(dbc, *g.ProcessingOperationID)
			return err
		}
		o, err := s.createOperation(dbc, doc, in.Target.ExperimentID, ptype, method, processing.StatusPending, jobID, in.Actor, in.Parameters)
		if err != nil {
			return err
		}
		if err := s.linkOperation(dbc, g, o); err != nil {
			return err
		}
		run.Operation = o
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if run.VersionCreated {
		s.publish(ctx, realtime.EventVersionCreated, run.Document, nil, map[string]any{"version_number": run.Document.VersionNumber})
	}
	return run, nil
}

func (s *processingService) MarkRunning(ctx context.Context, groupID uuid.UUID) (*types.ProcessingArtifactGroup, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var out *types.ProcessingArtifactGroup
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		g, err := s.deps.Registry.MarkGroupStatus(dbc, domainagg.MarkGroupStatusInput{GroupID: groupID, ToStatus: processing.StatusRunning})
		if err != nil {
			return err
		}
		if g.ProcessingOperationID != nil {
			if err := s.deps.Repos.Operations.UpdateFields(dbc, *g.ProcessingOperationID, map[string]interface{}{
				"status":     processing.StatusRunning,
				"updated_at": time.Now().UTC(),
			}); err != nil {
				return err
			}
			if err := s.deps.Repos.ProcessingIndex.UpdateStatusByOperation(dbc, *g.ProcessingOperationID, processing.StatusRunning); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError("ProcessingService.MarkRunning", err)
	}
	s.publishGroup(ctx, realtime.EventGroupStarted, out, uuid.Nil, nil)
	return out, nil
}

func (s *processingService) Complete(ctx context.Context, in CompleteProcessingInput) (*ProcessingRun, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	const op = "ProcessingService.Complete"
	if in.GroupID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing group id", nil)
	}

	run := &ProcessingRun{}
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		g, err := s.deps.Repos.Groups.GetByID(dbc, in.GroupID)
		if err != nil {
			return err
		}
		if g == nil {
			return domainagg.NewErrorWithDetails(domainagg.CodeNotFound, op, "artifact group not found", map[string]any{"id": in.GroupID})
		}
		if g.Status == processing.StatusCompleted {
			run.Group, run.Replayed = g, true
			run.Document, err = s.deps.Repos.Documents.GetByID(dbc, g.DocumentID)
			return err
		}
		doc, err := s.deps.Repos.Documents.GetByID(dbc, g.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return domainagg.NewErrorWithDetails(domainagg.CodeNotFound, op, "document not found", map[string]any{"id": g.DocumentID})
		}

		arts, err := s.deps.Registry.AddArtifacts(dbc, g.ID, in.Artifacts)
		if err != nil {
			return err
		}
		g, err = s.deps.Registry.MarkGroupStatus(dbc, domainagg.MarkGroupStatusInput{GroupID: g.ID, ToStatus: processing.StatusCompleted})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		summary := withArtifactCount(in.Summary, len(arts))
		var o *types.ProcessingOperation
		if g.ProcessingOperationID != nil {
			if o, err = s.deps.Repos.Operations.GetByID(dbc, *g.ProcessingOperationID); err != nil {
				return err
			}
		}
		if o != nil {
			if err := s.finishOperation(dbc, o, processing.StatusCompleted, summary, "", now); err != nil {
				return err
			}
		}
		if err := s.recordActivity(dbc, g, o, arts, in.Agent, summary, now); err != nil {
			return err
		}
		run.Document, run.Group, run.Operation, run.Artifacts = doc, g, o, arts
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if !run.Replayed {
		s.afterCompletion(ctx, run.Document, run.Group, len(run.Artifacts))
	}
	return run, nil
}

func (s *processingService) Fail(ctx context.Context, groupID uuid.UUID, message string) (*types.ProcessingArtifactGroup, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "processing failed"
	}
	var out *types.ProcessingArtifactGroup
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		g, err := s.deps.Registry.MarkGroupStatus(dbc, domainagg.MarkGroupStatusInput{
			GroupID:      groupID,
			ToStatus:     processing.StatusFailed,
			ErrorMessage: message,
		})
		if err != nil {
			return err
		}
		if g.ProcessingOperationID != nil {
			o, err := s.deps.Repos.Operations.GetByID(dbc, *g.ProcessingOperationID)
			if err != nil {
				return err
			}
			if o != nil {
				if err := s.finishOperation(dbc, o, processing.StatusFailed, nil, message, time.Now().UTC()); err != nil {
					return err
				}
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError("ProcessingService.Fail", err)
	}
	s.publishGroup(ctx, realtime.EventGroupFailed, out, uuid.Nil, map[string]any{"error": message})
	return out, nil
}

// resolveTarget picks the version results go to: the experiment's version, a fresh
// isolated version, or the named document itself.
func (s *processingService) resolveTarget(dbc dbctx.Context, t ProcessingTarget, ptype, actor string) (*types.Document, bool, error) {
	switch {
	case t.ExperimentID != nil && *t.ExperimentID != uuid.Nil:
		return s.deps.Versioning.GetOrCreateExperimentVersion(dbc, domainagg.ExperimentVersionInput{
			DocumentID:   t.DocumentID,
			ExperimentID: *t.ExperimentID,
			Actor:        actor,
		})
	case t.NewVersion:
		doc, err := s.deps.Versioning.CreateIsolatedVersion(dbc, domainagg.CreateIsolatedVersionInput{
			DocumentID:     t.DocumentID,
			ProcessingType: ptype,
			Actor:          actor,
		})
		return doc, err == nil, err
	default:
		doc, err := s.deps.Repos.Documents.GetByID(dbc, t.DocumentID)
		if err != nil {
			return nil, false, err
		}
		if doc == nil {
			return nil, false, domainagg.NewErrorWithDetails(domainagg.CodeNotFound, "ProcessingService.resolveTarget",
				"document not found", map[string]any{"id": t.DocumentID})
		}
		if doc.IsComposite() {
			return nil, false, domainagg.NewErrorWithDetails(domainagg.CodeValidation, "ProcessingService.resolveTarget",
				"composite versions do not take processing results", map[string]any{"document_id": doc.ID})
		}
		return doc, false, nil
	}
}

func (s *processingService) alreadyProduced(dbc dbctx.Context, g *types.ProcessingArtifactGroup) (bool, error) {
	if g.ProcessingOperationID == nil {
		return false, nil
	}
	counts, err := s.deps.Repos.Artifacts.CountByGroupIDs(dbc, []uuid.UUID{g.ID})
	if err != nil {
		return false, err
	}
	return counts[g.ID] > 0 || g.Status == processing.StatusCompleted, nil
}

func (s *processingService) createOperation(dbc dbctx.Context, doc *types.Document, experimentID *uuid.UUID, ptype, method, status, jobID, actor string, params map[string]any) (*types.ProcessingOperation, error) {
	raw, err := encodeJSON("ProcessingService.createOperation", "parameters", params)
	if err != nil {
		return nil, err
	}
	if experimentID != nil && *experimentID == uuid.Nil {
		experimentID = nil
	}
	o := &types.ProcessingOperation{
		DocumentID:     doc.ID,
		ExperimentID:   experimentID,
		ProcessingType: ptype,
		MethodKey:      method,
		Status:         status,
		JobID:          jobID,
		Actor:          strings.TrimSpace(actor),
		Parameters:     raw,
	}
	if _, err := s.deps.Repos.Operations.Create(dbc, []*types.ProcessingOperation{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *processingService) linkOperation(dbc dbctx.Context, g *types.ProcessingArtifactGroup, o *types.ProcessingOperation) error {
	if err := s.deps.Repos.Groups.UpdateFields(dbc, g.ID, map[string]interface{}{
		"processing_operation_id": o.ID,
		"updated_at":              time.Now().UTC(),
	}); err != nil {
		return err
	}
	opID, groupID := o.ID, g.ID
	g.ProcessingOperationID = &opID
	return s.deps.Repos.ProcessingIndex.Upsert(dbc, &types.DocumentProcessingIndex{
		DocumentID:            o.DocumentID,
		ProcessingOperationID: opID,
		ArtifactGroupID:       &groupID,
		ProcessingType:        o.ProcessingType,
		Status:                o.Status,
	})
}

func (s *processingService) finishOperation(dbc dbctx.Context, o *types.ProcessingOperation, status string, summary map[string]any, errMsg string, at time.Time) error {
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": at,
		"updated_at":   at,
	}
	if len(summary) > 0 {
		raw, err := encodeJSON("ProcessingService.finishOperation", "summary", summary)
		if err != nil {
			return err
		}
		updates["result_summary"] = raw
		o.ResultSummary = raw
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
		o.ErrorMessage = errMsg
	}
	if err := s.deps.Repos.Operations.UpdateFields(dbc, o.ID, updates); err != nil {
		return err
	}
	o.Status = status
	o.CompletedAt = &at
	return s.deps.Repos.ProcessingIndex.UpdateStatusByOperation(dbc, o.ID, status)
}

func (s *processingService) recordActivity(dbc dbctx.Context, g *types.ProcessingArtifactGroup, o *types.ProcessingOperation, arts []*types.ProcessingArtifact, agent domainagg.Agent, summary map[string]any, ended time.Time) error {
	if s.deps.Provenance == nil {
		return nil
	}
	var parents []*types.ProcessingArtifactGroup
	if keys := []string(g.ParentMethodKeys); len(keys) > 0 {
		siblings, err := s.deps.Repos.Groups.List(dbc, repos.GroupFilter{DocumentIDs: []uuid.UUID{g.DocumentID}, IncludeDisabled: true})
		if err != nil {
			return err
		}
		want := make(map[string]bool, len(keys))
		for _, k := range keys {
			want[k] = true
		}
		for _, sib := range siblings {
			if sib.ID != g.ID && want[sib.MethodKey] {
				parents = append(parents, sib)
			}
		}
	}
	in := domainagg.RecordProcessingInput{
		Group:   g,
		Inputs:  parents,
		Outputs: arts,
		Agent:   agent,
		EndedAt: ended,
		Summary: summary,
	}
	if o != nil {
		in.Operation = o
		in.StartedAt = o.StartedAt
		if in.Agent.ID == "" {
			in.Agent.ID = o.Actor
		}
	}
	_, err := s.deps.Provenance.RecordProcessingActivity(dbc, in)
	return err
}

// afterCompletion runs post-commit side effects; their errors are only logged.
func (s *processingService) afterCompletion(ctx context.Context, doc *types.Document, g *types.ProcessingArtifactGroup, artifacts int) {
	if doc == nil || g == nil {
		return
	}
	s.publishGroup(ctx, realtime.EventGroupCompleted, g, doc.RootID(), map[string]any{"artifacts": artifacts})
	if s.deps.AutoRefreshComposites && s.deps.Composite != nil && g.IncludeInComposite {
		n, err := s.deps.Composite.RefreshFamily(dbctx.Context{Ctx: ctx}, doc.RootID())
		if err != nil {
			s.log.Warn("composite refresh failed", "root_id", doc.RootID(), "error", err)
		} else if n > 0 {
			s.publish(ctx, realtime.EventCompositeRefreshed, doc, nil, map[string]any{"composites": n})
		}
	}
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.SyncFamily(ctx, doc.RootID()); err != nil {
			s.log.Warn("provenance mirror sync failed", "root_id", doc.RootID(), "error", err)
		}
	}
}

func (s *processingService) publishGroup(ctx context.Context, typ string, g *types.ProcessingArtifactGroup, rootID uuid.UUID, data map[string]any) {
	if g == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["artifact_type"] = g.ArtifactType
	data["method_key"] = g.MethodKey
	data["status"] = g.Status
	ev := realtime.NewEvent(typ, g.DocumentID, rootID, data)
	gid := g.ID
	ev.GroupID = &gid
	s.emit(ctx, ev)
}

func (s *processingService) publish(ctx context.Context, typ string, doc *types.Document, groupID *uuid.UUID, data map[string]any) {
	if doc == nil {
		return
	}
	ev := realtime.NewEvent(typ, doc.ID, doc.RootID(), data)
	ev.GroupID = groupID
	s.emit(ctx, ev)
}

func (s *processingService) emit(ctx context.Context, ev realtime.Event) {
	eventSink{bus: s.deps.Bus, metrics: s.deps.Metrics, log: s.log}.emit(ctx, ev)
}

func (s *processingService) ready() error {
	if s == nil || s.deps.DB == nil || s.deps.Registry == nil || s.deps.Versioning == nil {
		return fmt.Errorf("processing service not configured")
	}
	return nil
}

func normalizeType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func withArtifactCount(summary map[string]any, n int) map[string]any {
	out := make(map[string]any, len(summary)+1)
	for k, v := range summary {
		out[k] = v
	}
	out["artifact_count"] = n
	return out
}

// encodeJSON stores nothing for an empty map and otherwise reports bad values by key path.
func encodeJSON(op, key string, v map[string]any) (datatypes.JSON, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return aggregates.EncodePayload(op, key, v)
}
