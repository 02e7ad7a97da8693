package aggregates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	repotest "github.com/yungbote/docprov-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

// harness wires every aggregate over one rolled-back test transaction.
type harness struct {
	ctx   context.Context
	tx    *gorm.DB
	dbc   dbctx.Context
	repos repos.Set
	hooks *spyHooks

	versioning domainagg.Versioning
	registry   domainagg.Registry
	composite  domainagg.CompositeAggregator
	provenance domainagg.ProvenanceTracker
	purger     *familyPurger
}

type harnessOption func(*VersioningDeps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	db := repotest.DB(t)
	tx := repotest.Tx(t, db)
	log := repotest.Logger(t)
	ctx := context.Background()

	h := &harness{
		ctx:   ctx,
		tx:    tx,
		dbc:   dbctx.Context{Ctx: ctx, Tx: tx},
		repos: repos.NewSet(tx, log),
		hooks: &spyHooks{},
	}
	base := BaseDeps{
		DB:       tx,
		Log:      log,
		Runner:   NewGormTxRunner(tx),
		Hooks:    h.hooks,
		CASGuard: NewCASGuard(tx),
	}
	h.provenance = NewProvenanceTracker(ProvenanceDeps{
		Base:       base,
		Documents:  h.repos.Documents,
		Entities:   h.repos.ProvenanceEntities,
		Activities: h.repos.ProvenanceActivity,
	})
	vdeps := VersioningDeps{
		Base:           base,
		Documents:      h.repos.Documents,
		Changelog:      h.repos.Changelog,
		Temporal:       h.repos.TemporalMetadata,
		Experiments:    h.repos.Experiments,
		ExperimentDocs: h.repos.ExperimentDocs,
		Provenance:     h.provenance,
	}
	for _, opt := range opts {
		opt(&vdeps)
	}
	h.versioning = NewVersioningAggregate(vdeps)
	h.registry = NewRegistryAggregate(RegistryDeps{
		Base:      base,
		Documents: h.repos.Documents,
		Groups:    h.repos.Groups,
		Artifacts: h.repos.Artifacts,
	})
	h.composite = NewCompositeAggregate(CompositeDeps{
		Base:       base,
		Versioning: h.versioning,
		Provenance: h.provenance,
		Documents:  h.repos.Documents,
		Changelog:  h.repos.Changelog,
		Sources:    h.repos.CompositeSources,
		Summaries:  h.repos.ProcessingSummary,
		Operations: h.repos.Operations,
		Groups:     h.repos.Groups,
	})
	h.purger = NewFamilyPurger(PurgeDeps{Base: base, Repos: h.repos}).(*familyPurger)
	return h
}

func (h *harness) original(t *testing.T, title string) *types.Document {
	t.Helper()
	doc, err := h.versioning.CreateOriginal(h.dbc, domainagg.CreateOriginalInput{
		Title:       title,
		Content:     "It was the best of times, it was the worst of times.",
		ContentType: "text/plain",
		OwnerID:     "owner-1",
	})
	if err != nil {
		t.Fatalf("CreateOriginal: %v", err)
	}
	return doc
}

func (h *harness) isolated(t *testing.T, docID uuid.UUID, processingType string) *types.Document {
	t.Helper()
	doc, err := h.versioning.CreateIsolatedVersion(h.dbc, domainagg.CreateIsolatedVersionInput{
		DocumentID:     docID,
		ProcessingType: processingType,
		Actor:          "tester",
	})
	if err != nil {
		t.Fatalf("CreateIsolatedVersion: %v", err)
	}
	return doc
}

func (h *harness) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.tx.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
