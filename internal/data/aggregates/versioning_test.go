package aggregates

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	repotest "github.com/yungbote/docprov-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

func TestCreateIsolatedVersionCopiesRootAndNumbersSequentially(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")

	v2 := h.isolated(t, root.ID, "segmentation")
	v3 := h.isolated(t, root.ID, "segmentation")

	for i, v := range []*types.Document{v2, v3} {
		want := i + 2
		if v.VersionNumber != want {
			t.Fatalf("version number: want=%d got=%d", want, v.VersionNumber)
		}
		if v.VersionType != documents.VersionTypeProcessed {
			t.Fatalf("version type: want=processed got=%s", v.VersionType)
		}
		if v.Content != root.Content || v.WordCount != root.WordCount {
			t.Fatalf("content/counts not copied from root")
		}
		if v.SourceDocumentID == nil || *v.SourceDocumentID != root.ID {
			t.Fatalf("source: want=%s got=%v", root.ID, v.SourceDocumentID)
		}
		meta := v.Metadata()
		if meta.DerivedFrom == nil || meta.DerivedFrom.DocumentID != root.ID || meta.DerivedFrom.VersionNumber != 1 {
			t.Fatalf("derived_from: %+v", meta.DerivedFrom)
		}
		if meta.ProcessingType != "segmentation" {
			t.Fatalf("processing type: got=%q", meta.ProcessingType)
		}
	}
	if got := h.count(t, &types.VersionChangelog{}, "document_id IN ?", []uuid.UUID{v2.ID, v3.ID}); got != 2 {
		t.Fatalf("changelog rows: want=2 got=%d", got)
	}
	if got := h.count(t, &types.ProcessingArtifactGroup{}, "document_id IN ?", []uuid.UUID{v2.ID, v3.ID}); got != 0 {
		t.Fatalf("new versions must start without artifacts, got %d groups", got)
	}
}

func TestCreateIsolatedVersionFromVersionUsesRoot(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	v2 := h.isolated(t, root.ID, "segmentation")

	v3 := h.isolated(t, v2.ID, "embeddings")
	if v3.SourceDocumentID == nil || *v3.SourceDocumentID != root.ID {
		t.Fatalf("expected flat family pointing at root, got source=%v", v3.SourceDocumentID)
	}
	if v3.VersionNumber != 3 {
		t.Fatalf("version number: want=3 got=%d", v3.VersionNumber)
	}
}

func TestCreateIsolatedVersionMissingDocument(t *testing.T) {
	h := newHarness(t)
	_, err := h.versioning.CreateIsolatedVersion(h.dbc, domainagg.CreateIsolatedVersionInput{
		DocumentID:     uuid.New(),
		ProcessingType: "segmentation",
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCreateIsolatedVersionRequiresProcessingType(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	_, err := h.versioning.CreateIsolatedVersion(h.dbc, domainagg.CreateIsolatedVersionInput{DocumentID: root.ID})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestGetOrCreateExperimentVersionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	root, err := h.versioning.CreateOriginal(h.dbc, domainagg.CreateOriginalInput{
		Title:   "Dated",
		Content: "one two three",
		Temporal: &documents.DocumentTemporalMetadata{
			Era:            "victorian",
			SourceCitation: "Chapman & Hall, 1859",
		},
	})
	if err != nil {
		t.Fatalf("CreateOriginal: %v", err)
	}
	exp := repotest.SeedExperiment(t, h.ctx, h.tx, "expA")

	first, created, err := h.versioning.GetOrCreateExperimentVersion(h.dbc, domainagg.ExperimentVersionInput{
		DocumentID: root.ID, ExperimentID: exp.ID, Actor: "user-1",
	})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !created {
		t.Fatalf("first call should create")
	}
	if first.VersionType != documents.VersionTypeExperimental || first.ExperimentID == nil || *first.ExperimentID != exp.ID {
		t.Fatalf("unexpected experiment version: type=%s exp=%v", first.VersionType, first.ExperimentID)
	}

	second, created, err := h.versioning.GetOrCreateExperimentVersion(h.dbc, domainagg.ExperimentVersionInput{
		DocumentID: root.ID, ExperimentID: exp.ID, Actor: "user-1",
	})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if created {
		t.Fatalf("second call should reuse")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same version id: %s vs %s", first.ID, second.ID)
	}

	tm, err := h.repos.TemporalMetadata.GetByDocumentID(h.dbc, first.ID)
	if err != nil {
		t.Fatalf("temporal lookup: %v", err)
	}
	if tm == nil || tm.Era != "victorian" {
		t.Fatalf("temporal metadata not copied: %+v", tm)
	}
	links, err := h.repos.ExperimentDocs.ListByDocumentIDs(h.dbc, []uuid.UUID{first.ID})
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if len(links) != 1 || links[0].ExperimentID != exp.ID {
		t.Fatalf("expected one experiment linkage, got %+v", links)
	}
	if got := h.count(t, &types.Document{}, "source_document_id = ? AND version_type = ?", root.ID, documents.VersionTypeExperimental); got != 1 {
		t.Fatalf("experimental versions: want=1 got=%d", got)
	}
}

func TestGetOrCreateExperimentVersionUnknownExperiment(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	_, _, err := h.versioning.GetOrCreateExperimentVersion(h.dbc, domainagg.ExperimentVersionInput{
		DocumentID: root.ID, ExperimentID: uuid.New(),
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSecondExperimentalVersionIsRejectedByStore(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	exp := repotest.SeedExperiment(t, h.ctx, h.tx, "expA")
	if _, _, err := h.versioning.GetOrCreateExperimentVersion(h.dbc, domainagg.ExperimentVersionInput{
		DocumentID: root.ID, ExperimentID: exp.ID,
	}); err != nil {
		t.Fatalf("GetOrCreateExperimentVersion: %v", err)
	}

	rootID, expID := root.ID, exp.ID
	err := executeWrite(h.dbc, BaseDeps{DB: h.tx}, "test.duplicate_experimental", func(dbc dbctx.Context) error {
		_, err := h.repos.Documents.Create(dbc, []*types.Document{{
			Title:            root.Title,
			VersionNumber:    50,
			VersionType:      documents.VersionTypeExperimental,
			SourceDocumentID: &rootID,
			ExperimentID:     &expID,
		}})
		return err
	})
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
	if got := domainagg.DetailsOf(err)["constraint"]; got != ExperimentVersionConstraint {
		t.Fatalf("constraint detail: got=%v", got)
	}
}

func TestExperimentIDOnProcessedVersionIsIntegrityViolation(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	exp := repotest.SeedExperiment(t, h.ctx, h.tx, "expA")

	rootID, expID := root.ID, exp.ID
	err := executeWrite(h.dbc, BaseDeps{DB: h.tx}, "test.experiment_scope", func(dbc dbctx.Context) error {
		_, err := h.repos.Documents.Create(dbc, []*types.Document{{
			Title:            root.Title,
			VersionNumber:    2,
			VersionType:      documents.VersionTypeProcessed,
			SourceDocumentID: &rootID,
			ExperimentID:     &expID,
		}})
		return err
	})
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
}

func TestResolveRootRejectsChainedVersion(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")
	v2 := h.isolated(t, root.ID, "segmentation")
	chained := repotest.SeedVersion(t, h.ctx, h.tx, v2, 1, documents.VersionTypeCleaned)

	_, err := h.versioning.ResolveRoot(h.dbc, chained.ID)
	if !domainagg.IsCode(err, domainagg.CodeIntegrityViolation) {
		t.Fatalf("expected integrity violation for a multi-hop chain, got %v", err)
	}
	got, err := h.versioning.ResolveRoot(h.dbc, v2.ID)
	if err != nil || got.ID != root.ID {
		t.Fatalf("ResolveRoot(v2): got=%v err=%v", got, err)
	}
}

func TestLatestVersionListFamilyAndHistory(t *testing.T) {
	h := newHarness(t)
	root := h.original(t, "Tale")

	latest, err := h.versioning.LatestVersion(h.dbc, root.ID)
	if err != nil || latest.ID != root.ID {
		t.Fatalf("latest of a lone original: got=%v err=%v", latest, err)
	}

	h.isolated(t, root.ID, "segmentation")
	v3 := h.isolated(t, root.ID, "embeddings")

	latest, err = h.versioning.LatestVersion(h.dbc, root.ID)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest.ID != v3.ID {
		t.Fatalf("latest: want=%s got=%s", v3.ID, latest.ID)
	}

	family, err := h.versioning.ListFamily(h.dbc, v3.ID)
	if err != nil {
		t.Fatalf("ListFamily: %v", err)
	}
	seen := map[int]bool{}
	for i, d := range family {
		if d.VersionNumber != i+1 {
			t.Fatalf("family order: position %d has version %d", i, d.VersionNumber)
		}
		if seen[d.VersionNumber] {
			t.Fatalf("duplicate version number %d", d.VersionNumber)
		}
		seen[d.VersionNumber] = true
	}
	if len(family) != 3 {
		t.Fatalf("family size: want=3 got=%d", len(family))
	}

	history, err := h.versioning.VersionHistory(h.dbc, root.ID)
	if err != nil {
		t.Fatalf("VersionHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows: want=2 got=%d", len(history))
	}
}

// staleMaxDocuments reports max(version_number)-1 for the first n reads that see a
// processed version, as if another writer inserted between the read and the insert.
type staleMaxDocuments struct {
	repos.DocumentRepo
	stale int
}

func (d *staleMaxDocuments) MaxVersionNumber(dbc dbctx.Context, rootID uuid.UUID) (int, error) {
	n, err := d.DocumentRepo.MaxVersionNumber(dbc, rootID)
	if err == nil && d.stale > 0 && n > 1 {
		d.stale--
		return n - 1, nil
	}
	return n, err
}

func withStaleMax(n, retries int) harnessOption {
	return func(v *VersioningDeps) {
		v.Documents = &staleMaxDocuments{DocumentRepo: v.Documents, stale: n}
		v.MaxNumberRetries = retries
	}
}

func TestVersionNumberRaceRetriesWithFreshNumber(t *testing.T) {
	h := newHarness(t, withStaleMax(1, 5))
	root := h.original(t, "Tale")
	h.isolated(t, root.ID, "segmentation")

	v3 := h.isolated(t, root.ID, "segmentation")
	if v3.VersionNumber != 3 {
		t.Fatalf("version number after retry: want=3 got=%d", v3.VersionNumber)
	}
	const op = "Documents.Versioning.CreateIsolatedVersion"
	if len(h.hooks.Retries) != 1 || h.hooks.Retries[0] != op {
		t.Fatalf("retry hooks: %+v", h.hooks.Retries)
	}
	if len(h.hooks.Conflicts) == 0 {
		t.Fatalf("expected the losing insert to count as a conflict")
	}
}

func TestVersionNumberRaceGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t, withStaleMax(100, 3))
	root := h.original(t, "Tale")
	h.isolated(t, root.ID, "segmentation")

	_, err := h.versioning.CreateIsolatedVersion(h.dbc, domainagg.CreateIsolatedVersionInput{
		DocumentID: root.ID, ProcessingType: "segmentation",
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict after exhausting retries, got %v", err)
	}
	if got := len(h.hooks.Retries); got != 3 {
		t.Fatalf("retries: want=3 got=%d", got)
	}
	if got := h.count(t, &types.Document{}, "id = ? OR source_document_id = ?", root.ID, root.ID); got != 2 {
		t.Fatalf("failed attempts must not leave rows, family size=%d", got)
	}
}
