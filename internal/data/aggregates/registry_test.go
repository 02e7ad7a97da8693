package aggregates

import (
	"math"
	"testing"

	"github.com/google/uuid"

	repotest "github.com/yungbote/docprov-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
)

func TestCreateOrGetGroupIsIdempotentPerMethod(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")

	paragraph, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "segmentation", MethodKey: "paragraph",
	})
	if err != nil {
		t.Fatalf("paragraph: %v", err)
	}
	sentence, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "segmentation", MethodKey: "sentence",
	})
	if err != nil {
		t.Fatalf("sentence: %v", err)
	}
	if paragraph.ID == sentence.ID {
		t.Fatalf("distinct methods must produce distinct groups")
	}

	again, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "Segmentation ", MethodKey: "paragraph",
	})
	if err != nil {
		t.Fatalf("paragraph again: %v", err)
	}
	if again.ID != paragraph.ID {
		t.Fatalf("re-registration returned a new group: %s vs %s", again.ID, paragraph.ID)
	}

	groups, err := h.registry.ListGroups(h.dbc, domainagg.ListGroupsInput{DocumentID: d1.ID, ArtifactType: "segmentation"})
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups: want=2 got=%d", len(groups))
	}
	ids := map[uuid.UUID]bool{groups[0].ID: true, groups[1].ID: true}
	if !ids[paragraph.ID] || !ids[sentence.ID] {
		t.Fatalf("ListGroups returned unexpected groups: %+v", groups)
	}
}

func TestCreateOrGetGroupInitialStatus(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")

	sync, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "segmentation", MethodKey: "heuristic",
	})
	if err != nil {
		t.Fatalf("sync group: %v", err)
	}
	if sync.Status != processing.StatusCompleted || sync.CompletedAt == nil {
		t.Fatalf("group without job id should be completed, got %s", sync.Status)
	}

	async, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID:       d1.ID,
		ArtifactType:     "embeddings",
		MethodKey:        "minilm",
		JobID:            "job-42",
		ParentMethodKeys: []string{"heuristic", "heuristic", " "},
	})
	if err != nil {
		t.Fatalf("async group: %v", err)
	}
	if async.Status != processing.StatusPending {
		t.Fatalf("group with job id should be pending, got %s", async.Status)
	}
	if len(async.ParentMethodKeys) != 1 || async.ParentMethodKeys[0] != "heuristic" {
		t.Fatalf("parent method keys: %+v", async.ParentMethodKeys)
	}
}

func TestCreateOrGetGroupMissingDocument(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: uuid.New(), ArtifactType: "segmentation", MethodKey: "paragraph",
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestListGroupsHidesExcludedUnlessAsked(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	if _, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "entities", MethodKey: "spacy",
	}); err != nil {
		t.Fatalf("spacy: %v", err)
	}
	if _, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "entities", MethodKey: "draft-llm", ExcludeFromComposite: true,
	}); err != nil {
		t.Fatalf("draft-llm: %v", err)
	}

	visible, err := h.registry.ListGroups(h.dbc, domainagg.ListGroupsInput{DocumentID: d1.ID})
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(visible) != 1 || visible[0].MethodKey != "spacy" {
		t.Fatalf("visible groups: %+v", visible)
	}
	all, err := h.registry.ListGroups(h.dbc, domainagg.ListGroupsInput{DocumentID: d1.ID, IncludeDisabled: true})
	if err != nil {
		t.Fatalf("ListGroups all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all groups: want=2 got=%d", len(all))
	}
}

func TestSummarizeCountsSegmentationArtifacts(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	seg, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: processing.ArtifactSegmentation, MethodKey: "paragraph",
	})
	if err != nil {
		t.Fatalf("seg group: %v", err)
	}
	emb, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: processing.ArtifactEmbeddings, MethodKey: "minilm",
	})
	if err != nil {
		t.Fatalf("emb group: %v", err)
	}
	if _, err := h.registry.AddArtifacts(h.dbc, seg.ID, []domainagg.ArtifactInput{
		{Content: map[string]any{"text": "It was the best of times,"}},
		{Content: map[string]any{"text": "it was the worst of times."}},
		{Content: map[string]any{"text": "."}},
	}); err != nil {
		t.Fatalf("AddArtifacts: %v", err)
	}

	summaries, err := h.registry.Summarize(h.dbc, []*types.ProcessingArtifactGroup{seg, emb})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries: want=2 got=%d", len(summaries))
	}
	if summaries[0].ArtifactCount == nil || *summaries[0].ArtifactCount != 3 {
		t.Fatalf("segmentation count: %+v", summaries[0].ArtifactCount)
	}
	if summaries[1].ArtifactCount != nil {
		t.Fatalf("non-segmentation groups carry no count")
	}
}

func TestAddArtifactsContinuesIndex(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	g, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "segmentation", MethodKey: "sentence",
	})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	first, err := h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: "a"}, {Content: "b"}})
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	second, err := h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: "c"}})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if first[0].ArtifactIndex != 0 || first[1].ArtifactIndex != 1 || second[0].ArtifactIndex != 2 {
		t.Fatalf("indexes: %d %d %d", first[0].ArtifactIndex, first[1].ArtifactIndex, second[0].ArtifactIndex)
	}
	if second[0].MethodKey != "sentence" || second[0].DocumentID != d1.ID {
		t.Fatalf("artifact inherits group identity, got %+v", second[0])
	}
}

func TestAddArtifactsRejectsUnencodableContent(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	g, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "embeddings", MethodKey: "minilm",
	})
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	_, err = h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{
		{Content: map[string]any{"vector": []float64{0.1, 0.2}}},
		{Content: map[string]any{"vector": []float64{0.3, math.NaN()}}},
	})
	if !domainagg.IsCode(err, domainagg.CodeSerializationFailure) {
		t.Fatalf("expected serialization_failure, got %v", err)
	}
	details := domainagg.DetailsOf(err)
	if details["key"] != "artifacts[1].content.vector[1]" || details["type"] != "float64" {
		t.Fatalf("details should name key and type, got %+v", details)
	}
	if got := h.count(t, &types.ProcessingArtifact{}, "processing_id = ?", g.ID); got != 0 {
		t.Fatalf("nothing may be stored on failure, found %d artifacts", got)
	}

	_, err = h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: map[string]any{"callback": func() {}}}})
	if !domainagg.IsCode(err, domainagg.CodeSerializationFailure) {
		t.Fatalf("expected serialization_failure for func value, got %v", err)
	}

	cyclic := map[string]any{}
	cyclic["self"] = cyclic
	_, err = h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: cyclic}})
	if details := domainagg.DetailsOf(err); details["key"] != "artifacts[0].content.self" || details["type"] != "cycle" {
		t.Fatalf("cyclic content: err=%v details=%+v", err, details)
	}

	_, err = h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: map[string]any{"text": "a\xffb"}}})
	if details := domainagg.DetailsOf(err); details["key"] != "artifacts[0].content.text" || details["type"] != "string" {
		t.Fatalf("invalid utf-8 content: err=%v details=%+v", err, details)
	}
	if got := h.count(t, &types.ProcessingArtifact{}, "processing_id = ?", g.ID); got != 0 {
		t.Fatalf("rejected payloads must not be stored, found %d artifacts", got)
	}
}

func TestMarkGroupStatusTransitions(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	g, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: d1.ID, ArtifactType: "definitions", MethodKey: "llm", JobID: "job-7",
	})
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	running, err := h.registry.MarkGroupStatus(h.dbc, domainagg.MarkGroupStatusInput{GroupID: g.ID, ToStatus: processing.StatusRunning})
	if err != nil {
		t.Fatalf("to running: %v", err)
	}
	if running.Status != processing.StatusRunning {
		t.Fatalf("status: want=running got=%s", running.Status)
	}

	_, err = h.registry.MarkGroupStatus(h.dbc, domainagg.MarkGroupStatusInput{
		GroupID: g.ID, FromStatus: processing.StatusPending, ToStatus: processing.StatusCompleted,
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("stale from-status should conflict, got %v", err)
	}

	failed, err := h.registry.MarkGroupStatus(h.dbc, domainagg.MarkGroupStatusInput{
		GroupID: g.ID, ToStatus: processing.StatusFailed, ErrorMessage: "provider timeout",
	})
	if err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if failed.Status != processing.StatusFailed || failed.ErrorMessage != "provider timeout" || failed.CompletedAt == nil {
		t.Fatalf("failed group: %+v", failed)
	}

	_, err = h.registry.MarkGroupStatus(h.dbc, domainagg.MarkGroupStatusInput{GroupID: g.ID, ToStatus: processing.StatusCompleted})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("terminal status must be immutable, got %v", err)
	}
	if _, err := h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: "late"}}); !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("failed group must reject artifacts, got %v", err)
	}

	_, err = h.registry.MarkGroupStatus(h.dbc, domainagg.MarkGroupStatusInput{GroupID: g.ID, ToStatus: "paused"})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("unknown status should be a validation error, got %v", err)
	}
}

func TestBackfillLegacyGroupLinksUngroupedArtifacts(t *testing.T) {
	h := newHarness(t)
	d1 := h.original(t, "D1")
	a0 := repotest.SeedArtifact(t, h.ctx, h.tx, d1.ID, nil, "segmentation", "paragraph", 0)
	repotest.SeedArtifact(t, h.ctx, h.tx, d1.ID, nil, "segmentation", "paragraph", 1)
	other := repotest.SeedArtifact(t, h.ctx, h.tx, d1.ID, nil, "segmentation", "sentence", 0)

	g, err := h.registry.BackfillLegacyGroup(h.dbc, a0)
	if err != nil {
		t.Fatalf("BackfillLegacyGroup: %v", err)
	}
	if g.MethodKey != "paragraph" || g.ArtifactType != "segmentation" {
		t.Fatalf("group key: %s/%s", g.ArtifactType, g.MethodKey)
	}
	if a0.GroupID == nil || *a0.GroupID != g.ID {
		t.Fatalf("artifact not linked in memory")
	}
	if got := h.count(t, &types.ProcessingArtifact{}, "processing_id = ?", g.ID); got != 2 {
		t.Fatalf("linked artifacts: want=2 got=%d", got)
	}
	if got := h.count(t, &types.ProcessingArtifact{}, "id = ? AND processing_id IS NULL", other.ID); got != 1 {
		t.Fatalf("a different method's artifact must stay ungrouped")
	}

	again, err := h.registry.BackfillLegacyGroup(h.dbc, a0)
	if err != nil || again.ID != g.ID {
		t.Fatalf("second backfill: got=%v err=%v", again, err)
	}
}
