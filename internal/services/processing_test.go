package services

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/aggregates"
	"github.com/yungbote/docprov-backend/internal/data/repos"
	repotest "github.com/yungbote/docprov-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/realtime"
	"github.com/yungbote/docprov-backend/internal/realtime/bus"
)

type serviceHarness struct {
	ctx   context.Context
	db    *gorm.DB
	repos repos.Set

	versioning domainagg.Versioning
	composite  domainagg.CompositeAggregator
	svc        ProcessingService
	docs       DocumentService
	mirror     *recordingMirror

	mu     sync.Mutex
	events []realtime.Event
}

// newServiceHarness commits for real, so it needs the private SQLite store.
func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	if repotest.IsPostgres() {
		t.Skip("service tests commit; run against the private SQLite store")
	}
	db := repotest.DB(t)
	log := logger.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	set := repos.NewSet(db, log)
	base := aggregates.BaseDeps{DB: db, Log: log}
	prov := aggregates.NewProvenanceTracker(aggregates.ProvenanceDeps{
		Base: base, Documents: set.Documents, Entities: set.ProvenanceEntities, Activities: set.ProvenanceActivity,
	})
	versioning := aggregates.NewVersioningAggregate(aggregates.VersioningDeps{
		Base: base, Documents: set.Documents, Changelog: set.Changelog, Temporal: set.TemporalMetadata,
		Experiments: set.Experiments, ExperimentDocs: set.ExperimentDocs, Provenance: prov,
	})
	registry := aggregates.NewRegistryAggregate(aggregates.RegistryDeps{
		Base: base, Documents: set.Documents, Groups: set.Groups, Artifacts: set.Artifacts,
	})
	comp := aggregates.NewCompositeAggregate(aggregates.CompositeDeps{
		Base: base, Versioning: versioning, Provenance: prov, Documents: set.Documents, Changelog: set.Changelog,
		Sources: set.CompositeSources, Summaries: set.ProcessingSummary, Operations: set.Operations, Groups: set.Groups,
	})

	purger := aggregates.NewFamilyPurger(aggregates.PurgeDeps{Base: base, Repos: set})

	h := &serviceHarness{ctx: ctx, db: db, repos: set, versioning: versioning, composite: comp, mirror: &recordingMirror{}}
	b := bus.NewMemoryBus(log)
	t.Cleanup(func() { _ = b.Close() })
	if err := b.StartForwarder(ctx, func(ev realtime.Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	h.svc = NewProcessingService(ProcessingServiceDeps{
		DB: db, Log: log, Repos: set,
		Versioning: versioning, Registry: registry, Composite: comp, Provenance: prov,
		Bus: b, Mirror: h.mirror, AutoRefreshComposites: true,
	})
	h.docs = NewDocumentService(DocumentServiceDeps{
		Log: log, Repos: set,
		Versioning: versioning, Registry: registry, Composite: comp, Provenance: prov, Purger: purger,
		Bus: b, Mirror: h.mirror,
	})
	return h
}

type recordingMirror struct {
	mu      sync.Mutex
	synced  []uuid.UUID
	dropped []uuid.UUID
}

func (m *recordingMirror) SyncFamily(_ context.Context, rootID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, rootID)
	return nil
}

func (m *recordingMirror) DropFamily(_ context.Context, rootID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, rootID)
	return nil
}

func (h *serviceHarness) original(t *testing.T) *types.Document {
	t.Helper()
	doc, err := h.versioning.CreateOriginal(dbctx.Context{Ctx: h.ctx}, domainagg.CreateOriginalInput{
		Title: "Tale", Content: "It was the best of times.", OwnerID: "owner-1",
	})
	if err != nil {
		t.Fatalf("CreateOriginal: %v", err)
	}
	return doc
}

// waitForEvents blocks until n events of typ arrived.
func (h *serviceHarness) waitForEvents(t *testing.T, typ string, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		got := 0
		for _, ev := range h.events {
			if ev.Type == typ {
				got++
			}
		}
		h.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events", n, typ)
}

func TestRunWritesIntoFreshVersionAndRefreshesComposites(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)

	seg, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID, NewVersion: true},
		ProcessingType: "Segmentation",
		MethodKey:      "paragraph",
		Artifacts:      []domainagg.ArtifactInput{{Content: "p1"}, {Content: "p2"}},
		Actor:          "segmenter",
	})
	if err != nil {
		t.Fatalf("Run segmentation: %v", err)
	}
	if !seg.VersionCreated || seg.Document.VersionNumber != 2 || seg.Document.Content != d1.Content {
		t.Fatalf("segmentation target: created=%v number=%d", seg.VersionCreated, seg.Document.VersionNumber)
	}
	if seg.Group.Status != processing.StatusCompleted || seg.Group.ArtifactType != processing.ArtifactSegmentation {
		t.Fatalf("group: %+v", seg.Group)
	}
	if seg.Operation == nil || seg.Operation.Status != processing.StatusCompleted || seg.Operation.CompletedAt == nil {
		t.Fatalf("operation: %+v", seg.Operation)
	}
	if len(seg.Artifacts) != 2 {
		t.Fatalf("artifacts: want=2 got=%d", len(seg.Artifacts))
	}

	ent, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID, NewVersion: true},
		ProcessingType: processing.ArtifactEntities,
		MethodKey:      "tagger",
		Artifacts:      []domainagg.ArtifactInput{{Content: map[string]any{"name": "Paris"}}},
	})
	if err != nil {
		t.Fatalf("Run entities: %v", err)
	}

	dbc := dbctx.Context{Ctx: h.ctx}
	comp, err := h.composite.CreateComposite(dbc, domainagg.CreateCompositeInput{
		Title: "Tale composite", SourceDocumentIDs: []uuid.UUID{seg.Document.ID, ent.Document.ID},
	})
	if err != nil {
		t.Fatalf("CreateComposite: %v", err)
	}

	// A new result on an existing source version must show up without an explicit UpdateComposite.
	if _, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target:         ProcessingTarget{DocumentID: ent.Document.ID},
		ProcessingType: processing.ArtifactEmbeddings,
		MethodKey:      "minilm",
		Artifacts:      []domainagg.ArtifactInput{{Content: []float64{0.1, 0.2}}},
	}); err != nil {
		t.Fatalf("Run embeddings: %v", err)
	}
	view, err := h.composite.GetAvailableProcessing(dbc, comp.ID)
	if err != nil {
		t.Fatalf("GetAvailableProcessing: %v", err)
	}
	got := view.Types()
	sort.Strings(got)
	want := []string{processing.ArtifactEmbeddings, processing.ArtifactEntities, processing.ArtifactSegmentation}
	if len(got) != len(want) {
		t.Fatalf("composite types: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("composite types: want=%v got=%v", want, got)
		}
	}

	h.waitForEvents(t, realtime.EventVersionCreated, 2)
	h.waitForEvents(t, realtime.EventGroupCompleted, 3)
	h.waitForEvents(t, realtime.EventCompositeRefreshed, 1)
}

func TestRunReplayDoesNotDuplicateArtifacts(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)
	in := RunProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID},
		ProcessingType: processing.ArtifactSegmentation,
		MethodKey:      "sentence",
		Artifacts:      []domainagg.ArtifactInput{{Content: "s1"}},
	}
	first, err := h.svc.Run(h.ctx, in)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := h.svc.Run(h.ctx, in)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Replayed || second.Group.ID != first.Group.ID {
		t.Fatalf("replay: replayed=%v group=%s first=%s", second.Replayed, second.Group.ID, first.Group.ID)
	}
	var n int64
	if err := h.db.Model(&types.ProcessingArtifact{}).Where("processing_id = ?", first.Group.ID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("artifacts after replay: want=1 got=%d", n)
	}
}

func TestAsyncLifecycle(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)
	exp := repotest.SeedExperiment(t, h.ctx, h.db, "expA")

	started, err := h.svc.Start(h.ctx, StartProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID, ExperimentID: &exp.ID},
		ProcessingType: processing.ArtifactEmbeddings,
		MethodKey:      "minilm",
		JobID:          "job-1",
		Parameters:     map[string]any{"dims": 384},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Document.ExperimentID == nil || *started.Document.ExperimentID != exp.ID {
		t.Fatalf("async target should be the experiment version")
	}
	if started.Group.Status != processing.StatusPending || started.Operation.Status != processing.StatusPending {
		t.Fatalf("start status: group=%s op=%s", started.Group.Status, started.Operation.Status)
	}

	again, err := h.svc.Start(h.ctx, StartProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID, ExperimentID: &exp.ID},
		ProcessingType: processing.ArtifactEmbeddings,
		MethodKey:      "minilm",
		JobID:          "job-1",
	})
	if err != nil {
		t.Fatalf("retried Start: %v", err)
	}
	if !again.Replayed || again.Group.ID != started.Group.ID || again.Operation.ID != started.Operation.ID {
		t.Fatalf("retried start should converge on the first run")
	}

	if g, err := h.svc.MarkRunning(h.ctx, started.Group.ID); err != nil || g.Status != processing.StatusRunning {
		t.Fatalf("MarkRunning: %v %v", g, err)
	}
	done, err := h.svc.Complete(h.ctx, CompleteProcessingInput{
		GroupID:   started.Group.ID,
		Artifacts: []domainagg.ArtifactInput{{Content: []float64{1, 2}}, {Content: []float64{3, 4}}},
		Summary:   map[string]any{"model": "minilm"},
		Agent:     domainagg.Agent{ID: "embedder", Kind: "software"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Group.Status != processing.StatusCompleted || len(done.Artifacts) != 2 {
		t.Fatalf("complete: status=%s artifacts=%d", done.Group.Status, len(done.Artifacts))
	}
	op, err := h.repos.Operations.GetByID(dbctx.Context{Ctx: h.ctx}, started.Operation.ID)
	if err != nil || op == nil || op.Status != processing.StatusCompleted || op.CompletedAt == nil {
		t.Fatalf("operation after complete: %+v %v", op, err)
	}
	idx, err := h.repos.ProcessingIndex.ListByDocumentIDs(dbctx.Context{Ctx: h.ctx}, []uuid.UUID{started.Document.ID})
	if err != nil || len(idx) != 1 || idx[0].Status != processing.StatusCompleted {
		t.Fatalf("index: %+v %v", idx, err)
	}

	replay, err := h.svc.Complete(h.ctx, CompleteProcessingInput{GroupID: started.Group.ID})
	if err != nil || !replay.Replayed {
		t.Fatalf("completing twice should be a replay: %v %v", replay, err)
	}
}

func TestFailIsTerminal(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)
	started, err := h.svc.Start(h.ctx, StartProcessingInput{
		Target:         ProcessingTarget{DocumentID: d1.ID},
		ProcessingType: processing.ArtifactDefinitions,
		MethodKey:      "llm",
		JobID:          "job-2",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	g, err := h.svc.Fail(h.ctx, started.Group.ID, "model timeout")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if g.Status != processing.StatusFailed || g.ErrorMessage != "model timeout" {
		t.Fatalf("failed group: %+v", g)
	}
	op, _ := h.repos.Operations.GetByID(dbctx.Context{Ctx: h.ctx}, started.Operation.ID)
	if op.Status != processing.StatusFailed || op.ErrorMessage != "model timeout" {
		t.Fatalf("failed operation: %+v", op)
	}

	_, err = h.svc.Complete(h.ctx, CompleteProcessingInput{GroupID: started.Group.ID, Artifacts: []domainagg.ArtifactInput{{Content: "late"}}})
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("completing a failed group: expected integrity_violation, got %v", err)
	}
	h.waitForEvents(t, realtime.EventGroupFailed, 1)
}

func TestProcessingValidation(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)

	if _, err := h.svc.Start(h.ctx, StartProcessingInput{
		Target: ProcessingTarget{DocumentID: d1.ID}, ProcessingType: "entities", MethodKey: "tagger",
	}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("start without job id: expected validation, got %v", err)
	}
	if _, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target: ProcessingTarget{DocumentID: uuid.New()}, ProcessingType: "entities", MethodKey: "tagger",
	}); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown document: expected not_found, got %v", err)
	}
	if _, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target: ProcessingTarget{DocumentID: d1.ID}, ProcessingType: "entities", MethodKey: "tagger",
		Artifacts: []domainagg.ArtifactInput{{Content: func() {}}},
	}); !domainagg.IsCode(err, domainagg.CodeSerializationFailure) {
		t.Fatalf("unencodable artifact: expected serialization_failure, got %v", err)
	}
}

func TestUnencodableParametersReportKeyPath(t *testing.T) {
	h := newServiceHarness(t)
	d1 := h.original(t)

	_, err := h.svc.Run(h.ctx, RunProcessingInput{
		Target: ProcessingTarget{DocumentID: d1.ID}, ProcessingType: "entities", MethodKey: "tagger",
		Parameters: map[string]any{"x": math.NaN()},
	})
	if !domainagg.IsCode(err, domainagg.CodeSerializationFailure) {
		t.Fatalf("NaN parameter: expected serialization_failure, got %v", err)
	}
	details := domainagg.DetailsOf(err)
	if details["key"] != "parameters.x" || details["type"] != "float64" {
		t.Fatalf("details: %+v", details)
	}
	var n int64
	if err := h.db.Model(&types.ProcessingOperation{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("operations after rejected run: want=0 got=%d", n)
	}
}
