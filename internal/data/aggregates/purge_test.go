package aggregates

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	repotest "github.com/yungbote/docprov-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
)

// purgeFixture is a family touching every table the purge walks.
type purgeFixture struct {
	root, processed, experimental, composite *types.Document
	experiment                               *types.Experiment
}

func seedPurgeFixture(t *testing.T, h *harness) purgeFixture {
	t.Helper()
	var f purgeFixture
	f.root = h.original(t, "Tale")
	f.processed = h.isolated(t, f.root.ID, "segmentation")
	f.experiment = repotest.SeedExperiment(t, h.ctx, h.tx, "expA")

	var err error
	f.experimental, _, err = h.versioning.GetOrCreateExperimentVersion(h.dbc, domainagg.ExperimentVersionInput{
		DocumentID: f.root.ID, ExperimentID: f.experiment.ID, Actor: "user-1",
	})
	if err != nil {
		t.Fatalf("experiment version: %v", err)
	}

	op := repotest.SeedOperation(t, h.ctx, h.tx, f.processed.ID, processing.ArtifactSegmentation, processing.StatusCompleted, repotest.PtrTime(time.Now().UTC()))
	g, err := h.registry.CreateOrGetGroup(h.dbc, domainagg.CreateGroupInput{
		DocumentID: f.processed.ID, ArtifactType: processing.ArtifactSegmentation, MethodKey: "paragraph", OperationID: &op.ID,
	})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	arts, err := h.registry.AddArtifacts(h.dbc, g.ID, []domainagg.ArtifactInput{{Content: "p1"}, {Content: "p2"}})
	if err != nil {
		t.Fatalf("AddArtifacts: %v", err)
	}
	if _, err := h.provenance.RecordProcessingActivity(h.dbc, domainagg.RecordProcessingInput{Group: g, Operation: op, Outputs: arts}); err != nil {
		t.Fatalf("RecordProcessingActivity: %v", err)
	}
	f.composite, err = h.composite.CreateComposite(h.dbc, domainagg.CreateCompositeInput{
		Title: "Tale composite", SourceDocumentIDs: []uuid.UUID{f.processed.ID, f.experimental.ID},
	})
	if err != nil {
		t.Fatalf("CreateComposite: %v", err)
	}
	return f
}

// familyRows counts what the family owns across tables.
func familyRows(t *testing.T, h *harness, rootID uuid.UUID) map[string]int64 {
	t.Helper()
	ids, err := h.repos.Documents.FamilyIDs(h.dbc, rootID)
	if err != nil {
		t.Fatalf("FamilyIDs: %v", err)
	}
	if len(ids) == 0 {
		ids = []uuid.UUID{rootID}
	}
	return map[string]int64{
		"documents":   h.count(t, &types.Document{}, "id IN ?", ids),
		"changelogs":  h.count(t, &types.VersionChangelog{}, "document_id IN ?", ids),
		"operations":  h.count(t, &types.ProcessingOperation{}, "document_id IN ?", ids),
		"groups":      h.count(t, &types.ProcessingArtifactGroup{}, "document_id IN ?", ids),
		"artifacts":   h.count(t, &types.ProcessingArtifact{}, "document_id IN ?", ids),
		"sources":     h.count(t, &types.CompositeSource{}, "composite_document_id IN ? OR source_version_id IN ?", ids, ids),
		"summaries":   h.count(t, &types.DocumentProcessingSummary{}, "document_id IN ?", ids),
		"entities":    h.count(t, &types.ProvenanceEntity{}, "root_document_id = ?", rootID),
		"activities":  h.count(t, &types.ProvenanceActivity{}, "root_document_id = ?", rootID),
		"experiments": h.count(t, &types.ExperimentDocument{}, "document_id IN ?", ids),
	}
}

func TestDeleteFamilyBlockedByExperimentLinkage(t *testing.T) {
	h := newHarness(t)
	f := seedPurgeFixture(t, h)
	before := familyRows(t, h, f.root.ID)

	_, err := h.purger.DeleteFamily(h.dbc, f.root.ID)
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("expected integrity_violation, got %v", err)
	}
	details := domainagg.DetailsOf(err)
	if got, ok := details["blocking_experiments"].([]string); !ok || !reflect.DeepEqual(got, []string{f.experiment.ID.String()}) {
		t.Fatalf("blocking_experiments: %#v", details["blocking_experiments"])
	}
	if got, ok := details["linked_documents"].([]string); !ok || !reflect.DeepEqual(got, []string{f.experimental.ID.String()}) {
		t.Fatalf("linked_documents: %#v", details["linked_documents"])
	}
	if after := familyRows(t, h, f.root.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed by a rejected purge:\nbefore=%v\nafter=%v", before, after)
	}
}

func TestDeleteFamilyAfterUnlinkRemovesEverything(t *testing.T) {
	h := newHarness(t)
	f := seedPurgeFixture(t, h)
	if before := familyRows(t, h, f.root.ID); before["documents"] != 4 || before["artifacts"] != 2 || before["entities"] == 0 {
		t.Fatalf("fixture incomplete: %v", before)
	}

	if _, err := h.repos.ExperimentDocs.Unlink(h.dbc, f.experiment.ID, f.experimental.ID); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	report, err := h.purger.DeleteFamily(h.dbc, f.root.ID)
	if err != nil {
		t.Fatalf("DeleteFamily: %v", err)
	}
	if report.RootDocumentID != f.root.ID {
		t.Fatalf("report root: %s", report.RootDocumentID)
	}
	var names []string
	deleted := map[string]int64{}
	for _, st := range report.Stages {
		names = append(names, st.Name)
		deleted[st.Name] = st.Deleted
	}
	var want []string
	for _, st := range h.purger.stages {
		want = append(want, st.name)
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("stage order: want=%v got=%v", want, names)
	}
	if deleted["documents"] != 4 || deleted["artifacts"] != 2 || deleted["artifact_groups"] != 1 || deleted["composite_sources"] != 2 {
		t.Fatalf("stage counts: %v", deleted)
	}

	for table, n := range familyRows(t, h, f.root.ID) {
		if n != 0 {
			t.Fatalf("%s still has %d rows", table, n)
		}
	}
	if n := h.count(t, &types.Experiment{}, "id = ?", f.experiment.ID); n != 1 {
		t.Fatalf("the experiment itself must survive a purge")
	}
}

func TestDeleteFamilyStageOrderIsLoadBearing(t *testing.T) {
	h := newHarness(t)
	f := seedPurgeFixture(t, h)
	if _, err := h.repos.ExperimentDocs.Unlink(h.dbc, f.experiment.ID, f.experimental.ID); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	before := familyRows(t, h, f.root.ID)

	reversed := make([]purgeStage, len(h.purger.stages))
	for i, st := range h.purger.stages {
		reversed[len(reversed)-1-i] = st
	}
	_, err := h.purger.deleteFamily(h.dbc, f.root.ID, reversed)
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("expected integrity_violation from a dependency-violating order, got %v", err)
	}
	if after := familyRows(t, h, f.root.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed purge left partial deletes:\nbefore=%v\nafter=%v", before, after)
	}
}

func TestDeleteFamilyKeepsForeignCompositeUsable(t *testing.T) {
	h := newHarness(t)
	rootA := h.original(t, "A")
	a2 := h.isolated(t, rootA.ID, "segmentation")
	rootB := h.original(t, "B")
	b2 := h.isolated(t, rootB.ID, "entities")
	repotest.SeedOperation(t, h.ctx, h.tx, a2.ID, processing.ArtifactSegmentation, processing.StatusCompleted, repotest.PtrTime(time.Now().UTC()))
	repotest.SeedOperation(t, h.ctx, h.tx, b2.ID, processing.ArtifactEntities, processing.StatusCompleted, repotest.PtrTime(time.Now().UTC()))

	c, err := h.composite.CreateComposite(h.dbc, domainagg.CreateCompositeInput{
		Title: "B composite", SourceDocumentIDs: []uuid.UUID{b2.ID, a2.ID},
	})
	if err != nil {
		t.Fatalf("CreateComposite: %v", err)
	}
	if c.RootID() != rootB.ID {
		t.Fatalf("composite should belong to the first source's family")
	}

	if _, err := h.purger.DeleteFamily(h.dbc, rootA.ID); err != nil {
		t.Fatalf("DeleteFamily(A): %v", err)
	}
	if n := h.count(t, &types.CompositeSource{}, "composite_document_id = ?", c.ID); n != 1 {
		t.Fatalf("composite sources after purge: want=1 got=%d", n)
	}
	rows, err := h.composite.UpdateComposite(h.dbc, c.ID)
	if err != nil {
		t.Fatalf("UpdateComposite after purge: %v", err)
	}
	if len(rows) != 1 || rows[0].ProcessingType != processing.ArtifactEntities || rows[0].SourceVersionID != b2.ID {
		t.Fatalf("summary after purge: %+v", rows)
	}
	reloaded, err := h.repos.Documents.GetByID(h.dbc, c.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload composite: %v", err)
	}
	if ids := reloaded.Metadata().CompositeSourceIDs; len(ids) != 1 || ids[0] != b2.ID {
		t.Fatalf("composite_source_ids after purge: %v", ids)
	}
}

func TestDeleteFamilyRejectsNonRootAndUnknown(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	v2 := h.isolated(t, root.ID, "segmentation")

	_, err := h.purger.DeleteFamily(h.dbc, v2.ID)
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation for a non-root, got %v", err)
	}
	if _, err := h.purger.DeleteFamily(h.dbc, uuid.New()); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := h.purger.DeleteFamily(h.dbc, uuid.Nil); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation for nil id, got %v", err)
	}
}
