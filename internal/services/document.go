package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/composite"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/observability"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/realtime"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
)

// DocumentService is the read/write surface over document families for the
// HTTP and CLI layers. Each call runs in its own transaction.
type DocumentService interface {
	CreateOriginal(ctx context.Context, in domainagg.CreateOriginalInput) (*types.Document, error)
	CreateVersion(ctx context.Context, in domainagg.CreateIsolatedVersionInput) (*types.Document, error)
	ExperimentVersion(ctx context.Context, in domainagg.ExperimentVersionInput) (*types.Document, bool, error)

	Get(ctx context.Context, id uuid.UUID) (*types.Document, error)
	Family(ctx context.Context, id uuid.UUID) ([]*types.Document, error)
	Latest(ctx context.Context, id uuid.UUID) (*types.Document, error)
	History(ctx context.Context, id uuid.UUID) ([]*types.VersionChangelog, error)

	CreateExperiment(ctx context.Context, in CreateExperimentInput) (*types.Experiment, error)
	UnlinkExperiment(ctx context.Context, experimentID, documentID uuid.UUID) (int64, error)

	ListGroups(ctx context.Context, in domainagg.ListGroupsInput) ([]domainagg.GroupSummary, error)
	ListArtifacts(ctx context.Context, groupID uuid.UUID) ([]*types.ProcessingArtifact, error)

	CreateComposite(ctx context.Context, in domainagg.CreateCompositeInput) (*types.Document, error)
	UpdateComposite(ctx context.Context, compositeID uuid.UUID) ([]*types.DocumentProcessingSummary, error)
	AvailableProcessing(ctx context.Context, documentID uuid.UUID) (*composite.View, error)
	Recommend(ctx context.Context, documentID uuid.UUID) ([]composite.Recommendation, error)

	ExportProvenance(ctx context.Context, documentID uuid.UUID) (*provenance.Graph, error)
	PurgeFamily(ctx context.Context, rootID uuid.UUID) (domainagg.PurgeReport, error)
}

type CreateExperimentInput struct {
	Name           string
	Description    string
	ExperimentType string
	OwnerID        string
	Configuration  map[string]any
}

type DocumentServiceDeps struct {
	Log     *logger.Logger
	Repos   repos.Set
	Metrics *observability.Metrics

	Versioning domainagg.Versioning
	Registry   domainagg.Registry
	Composite  domainagg.CompositeAggregator
	Provenance domainagg.ProvenanceTracker
	Purger     domainagg.FamilyPurger

	Bus    bus.Bus
	Mirror ProvenanceMirror
}

type documentService struct {
	deps   DocumentServiceDeps
	log    *logger.Logger
	events eventSink
}

func NewDocumentService(deps DocumentServiceDeps) DocumentService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "DocumentService")
	return &documentService{
		deps:   deps,
		log:    log,
		events: eventSink{bus: deps.Bus, metrics: deps.Metrics, log: log},
	}
}

func (s *documentService) CreateOriginal(ctx context.Context, in domainagg.CreateOriginalInput) (*types.Document, error) {
	doc, err := s.deps.Versioning.CreateOriginal(dbctx.Context{Ctx: ctx}, in)
	if err != nil {
		return nil, err
	}
	s.versionCreated(ctx, doc)
	return doc, nil
}

func (s *documentService) CreateVersion(ctx context.Context, in domainagg.CreateIsolatedVersionInput) (*types.Document, error) {
	doc, err := s.deps.Versioning.CreateIsolatedVersion(dbctx.Context{Ctx: ctx}, in)
	if err != nil {
		return nil, err
	}
	s.versionCreated(ctx, doc)
	return doc, nil
}

func (s *documentService) ExperimentVersion(ctx context.Context, in domainagg.ExperimentVersionInput) (*types.Document, bool, error) {
	doc, created, err := s.deps.Versioning.GetOrCreateExperimentVersion(dbctx.Context{Ctx: ctx}, in)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.versionCreated(ctx, doc)
	}
	return doc, created, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	const op = "DocumentService.Get"
	if id == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing document id", nil)
	}
	doc, err := s.deps.Repos.Documents.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if doc == nil {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeNotFound, op, "document not found", map[string]any{"id": id})
	}
	return doc, nil
}

func (s *documentService) Family(ctx context.Context, id uuid.UUID) ([]*types.Document, error) {
	return s.deps.Versioning.ListFamily(dbctx.Context{Ctx: ctx}, id)
}

func (s *documentService) Latest(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	root, err := s.deps.Versioning.ResolveRoot(dbc, id)
	if err != nil {
		return nil, err
	}
	return s.deps.Versioning.LatestVersion(dbc, root.ID)
}

func (s *documentService) History(ctx context.Context, id uuid.UUID) ([]*types.VersionChangelog, error) {
	return s.deps.Versioning.VersionHistory(dbctx.Context{Ctx: ctx}, id)
}

func (s *documentService) CreateExperiment(ctx context.Context, in CreateExperimentInput) (*types.Experiment, error) {
	const op = "DocumentService.CreateExperiment"
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "experiment name is required", nil)
	}
	cfg, err := encodeJSON(op, "configuration", in.Configuration)
	if err != nil {
		return nil, err
	}
	rows, err := s.deps.Repos.Experiments.Create(dbctx.Context{Ctx: ctx}, []*types.Experiment{{
		Name:           name,
		Description:    in.Description,
		ExperimentType: strings.TrimSpace(in.ExperimentType),
		OwnerID:        in.OwnerID,
		Status:         "active",
		Configuration:  cfg,
	}})
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if len(rows) != 1 {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, fmt.Errorf("expected 1 experiment row, got %d", len(rows)))
	}
	return rows[0], nil
}

// UnlinkExperiment drops the linkage that keeps a family from being purged.
func (s *documentService) UnlinkExperiment(ctx context.Context, experimentID, documentID uuid.UUID) (int64, error) {
	const op = "DocumentService.UnlinkExperiment"
	if experimentID == uuid.Nil || documentID == uuid.Nil {
		return 0, domainagg.NewError(domainagg.CodeValidation, op, "experiment id and document id are required", nil)
	}
	n, err := s.deps.Repos.ExperimentDocs.Unlink(dbctx.Context{Ctx: ctx}, experimentID, documentID)
	if err != nil {
		return 0, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return n, nil
}

func (s *documentService) ListGroups(ctx context.Context, in domainagg.ListGroupsInput) ([]domainagg.GroupSummary, error) {
	dbc := dbctx.Context{Ctx: ctx}
	s.backfillLegacy(dbc, in.DocumentID, in.ArtifactType)
	groups, err := s.deps.Registry.ListGroups(dbc, in)
	if err != nil {
		return nil, err
	}
	return s.deps.Registry.Summarize(dbc, groups)
}

// backfillLegacy groups artifacts written before grouping existed. Failures only log.
func (s *documentService) backfillLegacy(dbc dbctx.Context, documentID uuid.UUID, artifactType string) {
	if documentID == uuid.Nil || s.deps.Repos.Artifacts == nil {
		return
	}
	rows, err := s.deps.Repos.Artifacts.ListUngrouped(dbc, documentID, strings.TrimSpace(artifactType))
	if err != nil {
		s.log.Warn("legacy artifact lookup failed", "document_id", documentID, "error", err)
		return
	}
	seen := map[string]bool{}
	for _, art := range rows {
		key := art.ArtifactType + "|" + strings.TrimSpace(art.MethodKey)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := s.deps.Registry.BackfillLegacyGroup(dbc, art); err != nil {
			s.log.Warn("legacy group backfill failed", "document_id", documentID, "artifact_type", art.ArtifactType, "error", err)
		}
	}
}

func (s *documentService) ListArtifacts(ctx context.Context, groupID uuid.UUID) ([]*types.ProcessingArtifact, error) {
	const op = "DocumentService.ListArtifacts"
	if groupID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing group id", nil)
	}
	dbc := dbctx.Context{Ctx: ctx}
	g, err := s.deps.Repos.Groups.GetByID(dbc, groupID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if g == nil {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeNotFound, op, "artifact group not found", map[string]any{"id": groupID})
	}
	arts, err := s.deps.Repos.Artifacts.ListByGroupID(dbc, groupID)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	return arts, nil
}

func (s *documentService) CreateComposite(ctx context.Context, in domainagg.CreateCompositeInput) (*types.Document, error) {
	doc, err := s.deps.Composite.CreateComposite(dbctx.Context{Ctx: ctx}, in)
	if err != nil {
		return nil, err
	}
	s.versionCreated(ctx, doc)
	s.events.emit(ctx, realtime.NewEvent(realtime.EventCompositeRefreshed, doc.ID, doc.RootID(), map[string]any{"sources": len(in.SourceDocumentIDs)}))
	return doc, nil
}

func (s *documentService) UpdateComposite(ctx context.Context, compositeID uuid.UUID) ([]*types.DocumentProcessingSummary, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := s.deps.Composite.UpdateComposite(dbc, compositeID)
	if err != nil {
		return nil, err
	}
	if doc, err := s.deps.Repos.Documents.GetByID(dbc, compositeID); err == nil && doc != nil {
		s.events.emit(ctx, realtime.NewEvent(realtime.EventCompositeRefreshed, doc.ID, doc.RootID(), map[string]any{"types": len(rows)}))
	}
	return rows, nil
}

func (s *documentService) AvailableProcessing(ctx context.Context, documentID uuid.UUID) (*composite.View, error) {
	return s.deps.Composite.GetAvailableProcessing(dbctx.Context{Ctx: ctx}, documentID)
}

func (s *documentService) Recommend(ctx context.Context, documentID uuid.UUID) ([]composite.Recommendation, error) {
	return s.deps.Composite.RecommendActions(dbctx.Context{Ctx: ctx}, documentID)
}

func (s *documentService) ExportProvenance(ctx context.Context, documentID uuid.UUID) (*provenance.Graph, error) {
	return s.deps.Provenance.ExportGraph(dbctx.Context{Ctx: ctx}, documentID)
}

func (s *documentService) PurgeFamily(ctx context.Context, rootID uuid.UUID) (domainagg.PurgeReport, error) {
	report, err := s.deps.Purger.DeleteFamily(dbctx.Context{Ctx: ctx}, rootID)
	if err != nil {
		return report, err
	}
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.DropFamily(ctx, rootID); err != nil {
			s.log.Warn("provenance mirror drop failed", "root_id", rootID, "error", err)
		}
	}
	s.events.emit(ctx, realtime.NewEvent(realtime.EventFamilyPurged, rootID, rootID, map[string]any{"stages": len(report.Stages)}))
	s.log.Info("family purged", "root_id", rootID, "stages", len(report.Stages))
	return report, nil
}

func (s *documentService) versionCreated(ctx context.Context, doc *types.Document) {
	if doc == nil {
		return
	}
	s.events.emit(ctx, realtime.NewEvent(realtime.EventVersionCreated, doc.ID, doc.RootID(), map[string]any{
		"version_number": doc.VersionNumber,
		"version_type":   doc.VersionType,
	}))
	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.SyncFamily(ctx, doc.RootID()); err != nil {
			s.log.Warn("provenance mirror sync failed", "root_id", doc.RootID(), "error", err)
		}
	}
}
