package aggregates

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

type PurgeDeps struct {
	Base  BaseDeps
	Repos repos.Set
}

type familyPurger struct {
	deps   PurgeDeps
	stages []purgeStage
}

// familyScope is what every stage deletes against.
type familyScope struct {
	RootID      uuid.UUID
	DocumentIDs []uuid.UUID
}

type purgeStage struct {
	name string
	run  func(dbc dbctx.Context, s familyScope) (int64, error)
}

func NewFamilyPurger(deps PurgeDeps) domainagg.FamilyPurger {
	deps.Base = deps.Base.withDefaults()
	deps.Base.Log = deps.Base.Log.With("aggregate", "FamilyPurge")
	p := &familyPurger{deps: deps}
	p.stages = p.orderedStages()
	return p
}

func (a *familyPurger) Contract() domainagg.Contract {
	return domainagg.FamilyPurgeContract
}

// orderedStages is the deletion order: every row goes before the rows it references.
func (a *familyPurger) orderedStages() []purgeStage {
	r := a.deps.Repos
	byDocs := func(fn func(dbctx.Context, []uuid.UUID) (int64, error)) func(dbctx.Context, familyScope) (int64, error) {
		return func(dbc dbctx.Context, s familyScope) (int64, error) { return fn(dbc, s.DocumentIDs) }
	}
	return []purgeStage{
		{"processing_index", byDocs(r.ProcessingIndex.DeleteByDocumentIDs)},
		{"processing_summaries", byDocs(r.ProcessingSummary.DeleteByDocumentIDs)},
		{"composite_sources", byDocs(r.CompositeSources.DeleteByDocumentIDs)},
		{"provenance_entities", func(dbc dbctx.Context, s familyScope) (int64, error) {
			return r.ProvenanceEntities.DeleteByRoot(dbc, s.RootID, s.DocumentIDs)
		}},
		{"provenance_activities", func(dbc dbctx.Context, s familyScope) (int64, error) {
			return r.ProvenanceActivity.DeleteByRoot(dbc, s.RootID)
		}},
		{"artifacts", byDocs(r.Artifacts.DeleteByDocumentIDs)},
		{"artifact_groups", byDocs(r.Groups.DeleteByDocumentIDs)},
		{"processing_operations", byDocs(r.Operations.DeleteByDocumentIDs)},
		{"version_changelogs", byDocs(r.Changelog.DeleteByDocumentIDs)},
		{"temporal_metadata", byDocs(r.TemporalMetadata.DeleteByDocumentIDs)},
		{"documents", func(dbc dbctx.Context, s familyScope) (int64, error) {
			return r.Documents.DeleteVersions(dbc, s.RootID)
		}},
	}
}

func (a *familyPurger) DeleteFamily(dbc dbctx.Context, rootID uuid.UUID) (domainagg.PurgeReport, error) {
	return a.deleteFamily(dbc, rootID, a.stages)
}

func (a *familyPurger) deleteFamily(dbc dbctx.Context, rootID uuid.UUID, stages []purgeStage) (domainagg.PurgeReport, error) {
	const op = "Documents.FamilyPurge.DeleteFamily"
	report := domainagg.PurgeReport{RootDocumentID: rootID}
	if rootID == uuid.Nil {
		return report, domainagg.NewError(domainagg.CodeValidation, op, "missing root document id", nil)
	}
	r := a.deps.Repos

	var done []domainagg.PurgeStage
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		done = done[:0]
		root, err := r.Documents.GetByID(dbc, rootID)
		if err != nil {
			return err
		}
		if root == nil {
			return notFound(op, "root document", rootID)
		}
		if !root.IsRoot() {
			return domainagg.NewErrorWithDetails(domainagg.CodeValidation, op,
				"document is not a family root", map[string]any{"document_id": rootID, "root_id": root.RootID()})
		}
		ids, err := r.Documents.FamilyIDs(dbc, rootID)
		if err != nil {
			return err
		}

		links, err := r.ExperimentDocs.ListByDocumentIDs(dbc, ids)
		if err != nil {
			return err
		}
		if len(links) > 0 {
			return blockingLinkageError(op, links)
		}

		scope := familyScope{RootID: rootID, DocumentIDs: ids}
		for _, st := range stages {
			n, err := st.run(dbc, scope)
			if err != nil {
				return fmt.Errorf("purge stage %s: %w", st.name, err)
			}
			done = append(done, domainagg.PurgeStage{Name: st.name, Deleted: n})
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	report.Stages = done
	a.deps.Base.Log.Info("family purged", "root_id", rootID, "stages", len(done))
	return report, nil
}

func blockingLinkageError(op string, links []*types.ExperimentDocument) error {
	seen := map[string]bool{}
	var exps []string
	var docs []string
	for _, l := range links {
		if id := l.ExperimentID.String(); !seen[id] {
			seen[id] = true
			exps = append(exps, id)
		}
		docs = append(docs, l.DocumentID.String())
	}
	sort.Strings(exps)
	sort.Strings(docs)
	return domainagg.NewErrorWithDetails(domainagg.CodeIntegrityViolation, op,
		fmt.Sprintf("family is still linked to %d experiment(s); unlink before deleting", len(exps)),
		map[string]any{"blocking_experiments": exps, "linked_documents": docs})
}
