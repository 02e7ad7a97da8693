package aggregates

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/composite"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

const (
	defaultRecommendMinProcessed = 2
	refreshParallelism           = 4
)

type CompositeDeps struct {
	Base BaseDeps

	Versioning domainagg.Versioning
	Provenance domainagg.ProvenanceTracker

	Documents  repos.DocumentRepo
	Changelog  repos.ChangelogRepo
	Sources    repos.CompositeSourceRepo
	Summaries  repos.ProcessingSummaryRepo
	Operations repos.OperationRepo
	Groups     repos.GroupRepo

	MaxNumberRetries int
	// RecommendMinProcessed is how many processed versions with distinct types suggest a composite.
	RecommendMinProcessed int
}

type compositeAggregate struct {
	deps CompositeDeps
}

func NewCompositeAggregate(deps CompositeDeps) domainagg.CompositeAggregator {
	deps.Base = deps.Base.withDefaults()
	if deps.MaxNumberRetries <= 0 {
		deps.MaxNumberRetries = defaultVersionNumberRetries
	}
	if deps.RecommendMinProcessed <= 0 {
		deps.RecommendMinProcessed = defaultRecommendMinProcessed
	}
	deps.Base.Log = deps.Base.Log.With("aggregate", "Composite")
	return &compositeAggregate{deps: deps}
}

func (a *compositeAggregate) Contract() domainagg.Contract {
	return domainagg.CompositeContract
}

func (a *compositeAggregate) CreateComposite(dbc dbctx.Context, in domainagg.CreateCompositeInput) (*types.Document, error) {
	const op = "Documents.Composite.CreateComposite"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	strategy := normalizeKey(in.Strategy)
	if strategy == "" {
		strategy = composite.StrategyAllProcessing
	}
	if !composite.IsKnownStrategy(strategy) {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeValidation, op,
			fmt.Sprintf("unknown composite strategy %q", in.Strategy), map[string]any{"strategy": in.Strategy})
	}

	sourceIDs := dedupeIDs(in.SourceDocumentIDs)
	found, err := a.deps.Documents.GetByIDs(dbc, sourceIDs)
	if err != nil {
		return nil, MapError(op, err)
	}
	byID := make(map[uuid.UUID]*types.Document, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	for _, id := range sourceIDs {
		d := byID[id]
		if d == nil {
			return nil, notFound(op, "source document", id)
		}
		if d.IsComposite() {
			return nil, domainagg.NewErrorWithDetails(domainagg.CodeValidation, op,
				"a composite cannot be a composite source", map[string]any{"document_id": id})
		}
	}
	root, err := a.deps.Versioning.ResolveRoot(dbc, sourceIDs[0])
	if err != nil {
		return nil, err
	}

	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		owner = root.OwnerID
	}
	var out *types.Document
	write := func(dbc dbctx.Context, number int) error {
		rootID := root.ID
		doc := &types.Document{
			Title:            strings.TrimSpace(in.Title),
			OwnerID:          owner,
			VersionNumber:    number,
			VersionType:      documents.VersionTypeComposite,
			SourceDocumentID: &rootID,
			ContentType:      root.ContentType,
			DetectedLanguage: root.DetectedLanguage,
			ProcessingMetadata: datatypes.NewJSONType(documents.ProcessingMetadata{
				Reason:             "composite of " + fmt.Sprint(len(sourceIDs)) + " versions",
				CreatedBy:          owner,
				CompositeStrategy:  strategy,
				CompositeSourceIDs: sourceIDs,
				DerivedFrom: &documents.DerivedFrom{
					DocumentID:    root.ID,
					VersionType:   root.VersionType,
					VersionNumber: root.VersionNumber,
				},
			}),
		}
		if _, err := a.deps.Documents.Create(dbc, []*types.Document{doc}); err != nil {
			return err
		}
		if _, err := a.deps.Changelog.Create(dbc, []*types.VersionChangelog{{
			DocumentID:    doc.ID,
			VersionNumber: doc.VersionNumber,
			ChangeType:    documents.ChangeTypeCompositeVersion,
			Description:   fmt.Sprintf("composite version over %d sources (%s)", len(sourceIDs), strategy),
			Actor:         owner,
		}}); err != nil {
			return err
		}
		// Later sources get higher priority so they win ties under all_processing.
		sources := make([]*types.CompositeSource, len(sourceIDs))
		for i, id := range sourceIDs {
			sources[i] = &types.CompositeSource{CompositeDocumentID: doc.ID, SourceVersionID: id, Priority: i + 1}
		}
		if _, err := a.deps.Sources.Create(dbc, sources); err != nil {
			return err
		}
		rows, err := a.buildSummary(dbc, doc.ID, sources)
		if err != nil {
			return err
		}
		if err := a.deps.Summaries.Replace(dbc, doc.ID, rows); err != nil {
			return err
		}
		if a.deps.Provenance != nil {
			ids := make([]string, len(sourceIDs))
			for i, id := range sourceIDs {
				ids[i] = id.String()
			}
			if _, err := a.deps.Provenance.RecordVersionCreation(dbc, domainagg.RecordVersionInput{
				NewVersion:    doc,
				SourceVersion: root,
				ActivityType:  provenance.ActivityCompositeCreation,
				Agent:         domainagg.Agent{ID: owner},
				Parameters: map[string]any{
					"strategy":            strategy,
					"source_document_ids": ids,
					"processing_types":    len(rows),
				},
			}); err != nil {
				return err
			}
		}
		out = doc
		return nil
	}
	if err := withNextVersionNumber(dbc, a.deps.Base, op, a.deps.Documents, root.ID, a.deps.MaxNumberRetries, write, nil); err != nil {
		return nil, err
	}
	a.deps.Base.Log.Info("composite created", "document_id", out.ID, "root_id", root.ID, "sources", len(sourceIDs))
	return out, nil
}

// UpdateComposite rewrites the composite's summary rows from current source state.
func (a *compositeAggregate) UpdateComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*types.DocumentProcessingSummary, error) {
	const op = "Documents.Composite.UpdateComposite"
	if compositeID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing composite id", nil)
	}
	var out []*types.DocumentProcessingSummary
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		doc, err := a.deps.Documents.GetByID(dbc, compositeID)
		if err != nil {
			return err
		}
		if doc == nil {
			return notFound(op, "composite document", compositeID)
		}
		if !doc.IsComposite() {
			return domainagg.NewErrorWithDetails(domainagg.CodeValidation, op,
				"document is not a composite", map[string]any{"document_id": compositeID, "version_type": doc.VersionType})
		}
		sources, err := a.deps.Sources.ListByComposite(dbc, doc.ID)
		if err != nil {
			return err
		}
		previous, err := a.deps.Summaries.ListByComposite(dbc, doc.ID)
		if err != nil {
			return err
		}
		rows, err := a.buildSummary(dbc, doc.ID, sources)
		if err != nil {
			return err
		}
		if err := a.deps.Summaries.Replace(dbc, doc.ID, rows); err != nil {
			return err
		}
		if err := a.syncSourceIDs(dbc, doc, sources); err != nil {
			return err
		}
		if !sameSummary(previous, rows) {
			if _, err := a.deps.Changelog.Create(dbc, []*types.VersionChangelog{{
				DocumentID:    doc.ID,
				VersionNumber: doc.VersionNumber,
				ChangeType:    documents.ChangeTypeCompositeRefresh,
				Description:   fmt.Sprintf("composite summary now exposes %d processing types", len(rows)),
			}}); err != nil {
				return err
			}
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// syncSourceIDs keeps processing_metadata.composite_source_ids equal to the surviving
// composite_sources rows, which a purge of a source's family removes.
func (a *compositeAggregate) syncSourceIDs(dbc dbctx.Context, doc *types.Document, sources []*types.CompositeSource) error {
	meta := doc.Metadata()
	ids := make([]uuid.UUID, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.SourceVersionID)
	}
	if slices.Equal(meta.CompositeSourceIDs, ids) {
		return nil
	}
	meta.CompositeSourceIDs = ids
	return a.deps.Documents.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"processing_metadata": datatypes.NewJSONType(meta),
	})
}

// RefreshFamily updates every composite in the family and every composite elsewhere that
// sources a family member. It returns how many composites were rewritten.
func (a *compositeAggregate) RefreshFamily(dbc dbctx.Context, rootID uuid.UUID) (int, error) {
	const op = "Documents.Composite.RefreshFamily"
	root, err := a.deps.Versioning.ResolveRoot(dbc, rootID)
	if err != nil {
		return 0, err
	}
	familyIDs, err := a.deps.Documents.FamilyIDs(dbc, root.ID)
	if err != nil {
		return 0, MapError(op, err)
	}
	owned, err := a.deps.Documents.ListFamilyByType(dbc, root.ID, documents.VersionTypeComposite)
	if err != nil {
		return 0, MapError(op, err)
	}
	external, err := a.deps.Sources.CompositeIDsForSources(dbc, familyIDs)
	if err != nil {
		return 0, MapError(op, err)
	}
	ids := make([]uuid.UUID, 0, len(owned)+len(external))
	for _, d := range owned {
		ids = append(ids, d.ID)
	}
	ids = dedupeIDs(append(ids, external...))
	if len(ids) == 0 {
		return 0, nil
	}

	// One transaction means one connection; fan out only when each refresh owns its own.
	if dbc.Tx != nil {
		for _, id := range ids {
			if _, err := a.UpdateComposite(dbc, id); err != nil {
				return 0, err
			}
		}
		return len(ids), nil
	}
	g, gctx := errgroup.WithContext(dbc.Context())
	g.SetLimit(refreshParallelism)
	for _, id := range ids {
		g.Go(func() error {
			_, err := a.UpdateComposite(dbctx.Context{Ctx: gctx}, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	a.deps.Base.Log.Debug("family composites refreshed", "root_id", root.ID, "count", len(ids))
	return len(ids), nil
}

func (a *compositeAggregate) GetAvailableProcessing(dbc dbctx.Context, documentID uuid.UUID) (*composite.View, error) {
	const op = "Documents.Composite.GetAvailableProcessing"
	doc, err := a.deps.Documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, MapError(op, err)
	}
	if doc == nil {
		return nil, notFound(op, "document", documentID)
	}
	view := &composite.View{Document: doc, Processing: []composite.AvailableProcessing{}}

	if doc.IsComposite() {
		rows, err := a.deps.Summaries.ListByComposite(dbc, doc.ID)
		if err != nil {
			return nil, MapError(op, err)
		}
		srcIDs := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			srcIDs = append(srcIDs, r.SourceVersionID)
		}
		srcs, err := a.deps.Documents.GetByIDs(dbc, dedupeIDs(srcIDs))
		if err != nil {
			return nil, MapError(op, err)
		}
		numbers := make(map[uuid.UUID]int, len(srcs))
		for _, s := range srcs {
			numbers[s.ID] = s.VersionNumber
		}
		for _, r := range rows {
			view.Processing = append(view.Processing, composite.AvailableProcessing{
				ProcessingType:        r.ProcessingType,
				SourceDocumentID:      r.SourceVersionID,
				SourceVersionNumber:   numbers[r.SourceVersionID],
				ProcessingOperationID: r.ProcessingOperationID,
				MethodKey:             r.MethodKey,
				Priority:              r.Priority,
				CompletedAt:           r.SourceCompletedAt,
			})
		}
		return view, nil
	}

	ops, err := a.eligibleOperations(dbc, []uuid.UUID{doc.ID})
	if err != nil {
		return nil, MapError(op, err)
	}
	latest := make(map[string]*types.ProcessingOperation)
	for _, o := range ops {
		if cur := latest[o.ProcessingType]; cur == nil || laterOperation(o, cur) {
			latest[o.ProcessingType] = o
		}
	}
	for _, t := range sortedKeys(latest) {
		o := latest[t]
		view.Processing = append(view.Processing, composite.AvailableProcessing{
			ProcessingType:        t,
			SourceDocumentID:      doc.ID,
			SourceVersionNumber:   doc.VersionNumber,
			ProcessingOperationID: o.ID,
			MethodKey:             o.MethodKey,
			Priority:              1,
			CompletedAt:           o.CompletedAt,
		})
	}
	return view, nil
}

// RecommendActions is read-only; nothing it suggests is performed.
func (a *compositeAggregate) RecommendActions(dbc dbctx.Context, documentID uuid.UUID) ([]composite.Recommendation, error) {
	const op = "Documents.Composite.RecommendActions"
	family, err := a.deps.Versioning.ListFamily(dbc, documentID)
	if err != nil {
		return nil, err
	}
	var (
		versionIDs []uuid.UUID
		composites []*types.Document
	)
	for _, d := range family {
		if d.IsComposite() {
			composites = append(composites, d)
			continue
		}
		versionIDs = append(versionIDs, d.ID)
	}
	all, err := a.deps.Operations.ListByDocumentIDs(dbc, versionIDs, "")
	if err != nil {
		return nil, MapError(op, err)
	}

	completedTypes := make(map[uuid.UUID]map[string]bool)
	failedTypes := make(map[uuid.UUID]map[string]bool)
	hasOps := make(map[uuid.UUID]bool)
	for _, o := range all {
		hasOps[o.DocumentID] = true
		switch o.Status {
		case processing.StatusCompleted:
			addType(completedTypes, o.DocumentID, o.ProcessingType)
		case processing.StatusFailed:
			addType(failedTypes, o.DocumentID, o.ProcessingType)
		}
	}

	out := []composite.Recommendation{}

	var processed []uuid.UUID
	typeSet := map[string]bool{}
	for _, d := range family {
		if d.IsComposite() || d.IsRoot() || len(completedTypes[d.ID]) == 0 {
			continue
		}
		processed = append(processed, d.ID)
		for t := range completedTypes[d.ID] {
			typeSet[t] = true
		}
	}
	if len(composites) == 0 && len(processed) >= a.deps.RecommendMinProcessed && len(typeSet) >= 2 {
		out = append(out, composite.Recommendation{
			Action:      composite.ActionCreateComposite,
			Reason:      fmt.Sprintf("%d processed versions expose %d distinct processing types", len(processed), len(typeSet)),
			DocumentIDs: processed,
			Types:       sortedKeys(typeSet),
		})
	}

	for _, c := range composites {
		sources, err := a.deps.Sources.ListByComposite(dbc, c.ID)
		if err != nil {
			return nil, MapError(op, err)
		}
		fresh, err := a.buildSummary(dbc, c.ID, sources)
		if err != nil {
			return nil, MapError(op, err)
		}
		stored, err := a.deps.Summaries.ListByComposite(dbc, c.ID)
		if err != nil {
			return nil, MapError(op, err)
		}
		if !sameSummary(stored, fresh) {
			out = append(out, composite.Recommendation{
				Action:      composite.ActionUpdateComposite,
				Reason:      "source processing changed since the composite summary was written",
				DocumentIDs: []uuid.UUID{c.ID},
			})
		}
	}

	for _, d := range family {
		if d.IsComposite() {
			continue
		}
		if !hasOps[d.ID] {
			out = append(out, composite.Recommendation{
				Action:      composite.ActionRunProcessing,
				Reason:      fmt.Sprintf("version %d has no processing results", d.VersionNumber),
				DocumentIDs: []uuid.UUID{d.ID},
			})
			continue
		}
		var retry []string
		for t := range failedTypes[d.ID] {
			if !completedTypes[d.ID][t] {
				retry = append(retry, t)
			}
		}
		if len(retry) > 0 {
			sort.Strings(retry)
			out = append(out, composite.Recommendation{
				Action:      composite.ActionRetryProcessing,
				Reason:      fmt.Sprintf("version %d has failed processing with no completed replacement", d.VersionNumber),
				DocumentIDs: []uuid.UUID{d.ID},
				Types:       retry,
			})
		}
	}
	return out, nil
}

// buildSummary picks one winning completed operation per processing type across the sources.
// Winner: highest source priority, then latest completed_at, then the greater source id.
func (a *compositeAggregate) buildSummary(dbc dbctx.Context, compositeID uuid.UUID, sources []*types.CompositeSource) ([]*types.DocumentProcessingSummary, error) {
	if len(sources) == 0 {
		return []*types.DocumentProcessingSummary{}, nil
	}
	priority := make(map[uuid.UUID]int, len(sources))
	ids := make([]uuid.UUID, 0, len(sources))
	for _, s := range sources {
		priority[s.SourceVersionID] = s.Priority
		ids = append(ids, s.SourceVersionID)
	}
	ops, err := a.eligibleOperations(dbc, ids)
	if err != nil {
		return nil, err
	}
	winners := make(map[string]*types.DocumentProcessingSummary)
	for _, o := range ops {
		cand := &types.DocumentProcessingSummary{
			DocumentID:            compositeID,
			ProcessingType:        o.ProcessingType,
			SourceVersionID:       o.DocumentID,
			ProcessingOperationID: o.ID,
			MethodKey:             o.MethodKey,
			Priority:              priority[o.DocumentID],
			SourceCompletedAt:     o.CompletedAt,
		}
		if cur := winners[o.ProcessingType]; cur == nil || beats(cand, cur) {
			winners[o.ProcessingType] = cand
		}
	}
	out := make([]*types.DocumentProcessingSummary, 0, len(winners))
	for _, t := range sortedKeys(winners) {
		out = append(out, winners[t])
	}
	return out, nil
}

// eligibleOperations lists completed operations, minus those whose artifact group opted out of composites.
func (a *compositeAggregate) eligibleOperations(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.ProcessingOperation, error) {
	ops, err := a.deps.Operations.ListByDocumentIDs(dbc, documentIDs, processing.StatusCompleted)
	if err != nil || len(ops) == 0 {
		return ops, err
	}
	groups, err := a.deps.Groups.List(dbc, repos.GroupFilter{DocumentIDs: documentIDs, IncludeDisabled: true})
	if err != nil {
		return nil, err
	}
	excluded := make(map[uuid.UUID]bool)
	for _, g := range groups {
		if !g.IncludeInComposite && g.ProcessingOperationID != nil {
			excluded[*g.ProcessingOperationID] = true
		}
	}
	out := ops[:0]
	for _, o := range ops {
		if !excluded[o.ID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func beats(cand, cur *types.DocumentProcessingSummary) bool {
	if cand.Priority != cur.Priority {
		return cand.Priority > cur.Priority
	}
	if c := compareTimes(cand.SourceCompletedAt, cur.SourceCompletedAt); c != 0 {
		return c > 0
	}
	if cand.SourceVersionID != cur.SourceVersionID {
		return cand.SourceVersionID.String() > cur.SourceVersionID.String()
	}
	return cand.ProcessingOperationID.String() > cur.ProcessingOperationID.String()
}

func laterOperation(a, b *types.ProcessingOperation) bool {
	if c := compareTimes(a.CompletedAt, b.CompletedAt); c != 0 {
		return c > 0
	}
	return a.ID.String() > b.ID.String()
}

// sameSummary compares by content; row ids and creation times are not part of the view.
func sameSummary(a, b []*types.DocumentProcessingSummary) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(r *types.DocumentProcessingSummary) string {
		return fmt.Sprintf("%s|%s|%s|%d", r.ProcessingType, r.SourceVersionID, r.ProcessingOperationID, r.Priority)
	}
	seen := make(map[string]int, len(a))
	for _, r := range a {
		seen[key(r)]++
	}
	for _, r := range b {
		k := key(r)
		if seen[k] == 0 {
			return false
		}
		seen[k]--
	}
	return true
}

func addType(m map[uuid.UUID]map[string]bool, id uuid.UUID, t string) {
	if m[id] == nil {
		m[id] = map[string]bool{}
	}
	m[id][t] = true
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
