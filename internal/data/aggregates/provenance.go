package aggregates

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

type ProvenanceDeps struct {
	Base BaseDeps

	Documents  repos.DocumentRepo
	Entities   repos.ProvenanceEntityRepo
	Activities repos.ProvenanceActivityRepo
}

type provenanceTracker struct {
	deps ProvenanceDeps
}

func NewProvenanceTracker(deps ProvenanceDeps) domainagg.ProvenanceTracker {
	deps.Base = deps.Base.withDefaults()
	deps.Base.Log = deps.Base.Log.With("aggregate", "Provenance")
	return &provenanceTracker{deps: deps}
}

func (a *provenanceTracker) Contract() domainagg.Contract {
	return domainagg.ProvenanceContract
}

func (a *provenanceTracker) RecordVersionCreation(dbc dbctx.Context, in domainagg.RecordVersionInput) (*types.ProvenanceEntity, error) {
	const op = "Provenance.RecordVersionCreation"
	if in.NewVersion == nil || in.NewVersion.ID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing new version", nil)
	}
	activityType := strings.TrimSpace(in.ActivityType)
	if activityType == "" {
		activityType = provenance.ActivityVersionCreation
	}
	agent := normalizeAgent(in.Agent)

	var out *types.ProvenanceEntity
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		existing, err := a.deps.Entities.GetForVersion(dbc, in.NewVersion.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}

		var source *types.ProvenanceEntity
		if in.SourceVersion != nil && in.SourceVersion.ID != in.NewVersion.ID {
			source, err = a.ensureVersionEntity(dbc, in.SourceVersion)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		meta := provenance.ActivityMetadata{Parameters: in.Parameters}
		if source != nil {
			meta.InputEntityIDs = []uuid.UUID{source.ID}
		}
		activity := &types.ProvenanceActivity{
			ActivityType:      activityType,
			RootDocumentID:    in.NewVersion.RootID(),
			WasAssociatedWith: agent.ID,
			AgentType:         agent.Kind,
			StartedAt:         now,
			EndedAt:           &now,
			Metadata:          datatypes.NewJSONType(meta),
		}
		if _, err := a.deps.Activities.Create(dbc, []*types.ProvenanceActivity{activity}); err != nil {
			return err
		}

		row := versionEntityRow(in.NewVersion)
		row.GeneratedByActivityID = &activity.ID
		row.AttributedTo = agent.ID
		if source != nil {
			row.DerivedFromEntityID = &source.ID
		}
		out, err = a.createOrGetEntity(dbc, row, func(dbc dbctx.Context) (*types.ProvenanceEntity, error) {
			return a.deps.Entities.GetForVersion(dbc, in.NewVersion.ID)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *provenanceTracker) RecordProcessingActivity(dbc dbctx.Context, in domainagg.RecordProcessingInput) (*types.ProvenanceActivity, error) {
	const op = "Provenance.RecordProcessingActivity"
	if in.Group == nil || in.Group.ID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing artifact group", nil)
	}
	agent := normalizeAgent(in.Agent)

	var out *types.ProvenanceActivity
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		doc, err := a.deps.Documents.GetByID(dbc, in.Group.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return notFound(op, "document", in.Group.DocumentID)
		}
		versionEntity, err := a.ensureVersionEntity(dbc, doc)
		if err != nil {
			return err
		}

		inputIDs := []uuid.UUID{versionEntity.ID}
		for _, parent := range in.Inputs {
			if parent == nil || parent.ID == in.Group.ID {
				continue
			}
			pe, err := a.ensureGroupEntity(dbc, parent, versionEntity)
			if err != nil {
				return err
			}
			inputIDs = append(inputIDs, pe.ID)
		}

		started := in.StartedAt.UTC()
		if started.IsZero() {
			started = time.Now().UTC()
		}
		ended := in.EndedAt.UTC()
		if in.EndedAt.IsZero() {
			ended = time.Now().UTC()
		}
		meta := provenance.ActivityMetadata{
			ProcessingType: in.Group.ArtifactType,
			MethodKey:      in.Group.MethodKey,
			ResultSummary:  in.Summary,
			InputEntityIDs: inputIDs,
		}
		activity := &types.ProvenanceActivity{
			ActivityType:      provenance.ActivityProcessing,
			RootDocumentID:    doc.RootID(),
			WasAssociatedWith: agent.ID,
			AgentType:         agent.Kind,
			StartedAt:         started,
			EndedAt:           &ended,
		}
		if in.Operation != nil {
			activity.ProcessingOperationID = &in.Operation.ID
			meta.Parameters = decodeObject(in.Operation.Parameters)
		}
		activity.Metadata = datatypes.NewJSONType(meta)
		if _, err := a.deps.Activities.Create(dbc, []*types.ProvenanceActivity{activity}); err != nil {
			return err
		}

		groupEntity, err := a.deps.Entities.GetForGroup(dbc, in.Group.ID)
		if err != nil {
			return err
		}
		if groupEntity == nil {
			row := groupEntityRow(in.Group, doc.RootID(), versionEntity)
			row.GeneratedByActivityID = &activity.ID
			row.AttributedTo = agent.ID
			groupEntity, err = a.createOrGetEntity(dbc, row, func(dbc dbctx.Context) (*types.ProvenanceEntity, error) {
				return a.deps.Entities.GetForGroup(dbc, in.Group.ID)
			})
			if err != nil {
				return err
			}
		} else if groupEntity.GeneratedByActivityID == nil {
			// Registered earlier only as someone's input.
			if err := a.deps.Entities.SetGeneratedBy(dbc, groupEntity.ID, activity.ID); err != nil {
				return err
			}
		}

		if len(in.Outputs) > 0 {
			rows := make([]*types.ProvenanceEntity, 0, len(in.Outputs))
			for _, art := range in.Outputs {
				if art == nil {
					continue
				}
				artID := art.ID
				rows = append(rows, &types.ProvenanceEntity{
					EntityType:            provenance.EntityArtifact,
					RootDocumentID:        doc.RootID(),
					Label:                 fmt.Sprintf("%s/%s#%d", art.ArtifactType, art.MethodKey, art.ArtifactIndex),
					DocumentID:            &doc.ID,
					ArtifactID:            &artID,
					DerivedFromEntityID:   &versionEntity.ID,
					GeneratedByActivityID: &activity.ID,
					AttributedTo:          agent.ID,
					GeneratedAt:           ended,
					Attributes:            datatypes.JSONMap{"group_entity_id": groupEntity.ID.String()},
				})
			}
			if _, err := a.deps.Entities.Create(dbc, rows); err != nil {
				return err
			}
		}
		out = activity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *provenanceTracker) ExportGraph(dbc dbctx.Context, rootDocumentID uuid.UUID) (*provenance.Graph, error) {
	const op = "Provenance.ExportGraph"
	if rootDocumentID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing root document id", nil)
	}
	doc, err := a.deps.Documents.GetByID(dbc, rootDocumentID)
	if err != nil {
		return nil, MapError(op, err)
	}
	if doc == nil {
		return nil, notFound(op, "document", rootDocumentID)
	}
	rootID := doc.RootID()

	entities, err := a.deps.Entities.ListByRoot(dbc, rootID)
	if err != nil {
		return nil, MapError(op, err)
	}
	activities, err := a.deps.Activities.ListByRoot(dbc, rootID)
	if err != nil {
		return nil, MapError(op, err)
	}
	w := newGraphWalk(entities, activities)
	if err := w.close(dbc, a.deps.Entities, a.deps.Activities); err != nil {
		return nil, MapError(op, err)
	}
	return w.graph(rootID), nil
}

// ensureVersionEntity returns the version's entity, creating a bare one (no activity) if missing.
// A missing source entity is derived from its root's entity when the source is not itself a root.
func (a *provenanceTracker) ensureVersionEntity(dbc dbctx.Context, doc *types.Document) (*types.ProvenanceEntity, error) {
	existing, err := a.deps.Entities.GetForVersion(dbc, doc.ID)
	if err != nil || existing != nil {
		return existing, err
	}
	row := versionEntityRow(doc)
	if !doc.IsRoot() {
		root, err := a.deps.Documents.GetByID(dbc, doc.RootID())
		if err != nil {
			return nil, err
		}
		if root != nil {
			rootEntity, err := a.ensureVersionEntity(dbc, root)
			if err != nil {
				return nil, err
			}
			row.DerivedFromEntityID = &rootEntity.ID
		}
	}
	return a.createOrGetEntity(dbc, row, func(dbc dbctx.Context) (*types.ProvenanceEntity, error) {
		return a.deps.Entities.GetForVersion(dbc, doc.ID)
	})
}

func (a *provenanceTracker) ensureGroupEntity(dbc dbctx.Context, g *types.ProcessingArtifactGroup, versionEntity *types.ProvenanceEntity) (*types.ProvenanceEntity, error) {
	existing, err := a.deps.Entities.GetForGroup(dbc, g.ID)
	if err != nil || existing != nil {
		return existing, err
	}
	derivedFrom := versionEntity
	if versionEntity.DocumentID == nil || *versionEntity.DocumentID != g.DocumentID {
		doc, err := a.deps.Documents.GetByID(dbc, g.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, notFound("Provenance.ensureGroupEntity", "document", g.DocumentID)
		}
		if derivedFrom, err = a.ensureVersionEntity(dbc, doc); err != nil {
			return nil, err
		}
	}
	row := groupEntityRow(g, derivedFrom.RootDocumentID, derivedFrom)
	return a.createOrGetEntity(dbc, row, func(dbc dbctx.Context) (*types.ProvenanceEntity, error) {
		return a.deps.Entities.GetForGroup(dbc, g.ID)
	})
}

// createOrGetEntity inserts row in a savepoint; a uniqueness race returns the winner.
func (a *provenanceTracker) createOrGetEntity(dbc dbctx.Context, row *types.ProvenanceEntity, refetch func(dbctx.Context) (*types.ProvenanceEntity, error)) (*types.ProvenanceEntity, error) {
	err := dbc.Tx.Transaction(func(tx *gorm.DB) error {
		_, err := a.deps.Entities.Create(dbc.WithTx(tx), []*types.ProvenanceEntity{row})
		return err
	})
	if err == nil {
		return row, nil
	}
	if !isUniqueViolation(err) {
		return nil, err
	}
	a.deps.Base.Hooks.IncConflict("Provenance.createEntity")
	winner, ferr := refetch(dbc)
	if ferr != nil {
		return nil, ferr
	}
	if winner == nil {
		return nil, err
	}
	a.deps.Base.Log.Debug("provenance entity race recovered", "entity_type", row.EntityType, "entity_id", winner.ID)
	return winner, nil
}

func versionEntityRow(doc *types.Document) *types.ProvenanceEntity {
	docID := doc.ID
	attrs := datatypes.JSONMap{
		"version_number": doc.VersionNumber,
		"version_type":   doc.VersionType,
		"external_id":    doc.ExternalID,
	}
	if doc.ExperimentID != nil {
		attrs["experiment_id"] = doc.ExperimentID.String()
	}
	generated := doc.CreatedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	return &types.ProvenanceEntity{
		EntityType:     provenance.EntityDocumentVersion,
		RootDocumentID: doc.RootID(),
		Label:          fmt.Sprintf("%s v%d (%s)", doc.Title, doc.VersionNumber, doc.VersionType),
		DocumentID:     &docID,
		AttributedTo:   doc.OwnerID,
		GeneratedAt:    generated,
		Attributes:     attrs,
	}
}

func groupEntityRow(g *types.ProcessingArtifactGroup, rootID uuid.UUID, derivedFrom *types.ProvenanceEntity) *types.ProvenanceEntity {
	groupID := g.ID
	docID := g.DocumentID
	row := &types.ProvenanceEntity{
		EntityType:      provenance.EntityArtifactGroup,
		RootDocumentID:  rootID,
		Label:           g.ArtifactType + "/" + g.MethodKey,
		DocumentID:      &docID,
		ArtifactGroupID: &groupID,
		GeneratedAt:     time.Now().UTC(),
		Attributes: datatypes.JSONMap{
			"artifact_type": g.ArtifactType,
			"method_key":    g.MethodKey,
			"status":        g.Status,
		},
	}
	if derivedFrom != nil {
		row.DerivedFromEntityID = &derivedFrom.ID
	}
	return row
}

func normalizeAgent(ag domainagg.Agent) domainagg.Agent {
	ag.ID = strings.TrimSpace(ag.ID)
	ag.Kind = strings.TrimSpace(ag.Kind)
	if ag.ID == "" {
		ag.ID = "system"
		if ag.Kind == "" {
			ag.Kind = provenance.AgentSoftware
		}
	}
	if ag.Kind == "" {
		ag.Kind = provenance.AgentPerson
	}
	return ag
}

// graphWalk closes a seed set of entities/activities over their references.
type graphWalk struct {
	entities   map[uuid.UUID]*types.ProvenanceEntity
	activities map[uuid.UUID]*types.ProvenanceActivity
}

func newGraphWalk(entities []*types.ProvenanceEntity, activities []*types.ProvenanceActivity) *graphWalk {
	w := &graphWalk{
		entities:   make(map[uuid.UUID]*types.ProvenanceEntity, len(entities)),
		activities: make(map[uuid.UUID]*types.ProvenanceActivity, len(activities)),
	}
	for _, e := range entities {
		w.entities[e.ID] = e
	}
	for _, act := range activities {
		w.activities[act.ID] = act
	}
	return w
}

// close follows derived-from, generated-by and used references until nothing new
// is found. Each id is loaded at most once, so it terminates even on a cyclic store.
func (w *graphWalk) close(dbc dbctx.Context, entities repos.ProvenanceEntityRepo, activities repos.ProvenanceActivityRepo) error {
	for {
		var missingE, missingA []uuid.UUID
		seenE := map[uuid.UUID]bool{}
		seenA := map[uuid.UUID]bool{}
		wantE := func(id *uuid.UUID) {
			if id != nil && *id != uuid.Nil && w.entities[*id] == nil && !seenE[*id] {
				seenE[*id] = true
				missingE = append(missingE, *id)
			}
		}
		for _, e := range w.entities {
			wantE(e.DerivedFromEntityID)
			if id := e.GeneratedByActivityID; id != nil && w.activities[*id] == nil && !seenA[*id] {
				seenA[*id] = true
				missingA = append(missingA, *id)
			}
		}
		for _, act := range w.activities {
			for _, id := range act.Metadata.Data().InputEntityIDs {
				id := id
				wantE(&id)
			}
		}
		if len(missingE) == 0 && len(missingA) == 0 {
			return nil
		}
		foundE, err := entities.GetByIDs(dbc, missingE)
		if err != nil {
			return err
		}
		foundA, err := activities.GetByIDs(dbc, missingA)
		if err != nil {
			return err
		}
		if len(foundE) == 0 && len(foundA) == 0 {
			// Dangling ids; nothing more is reachable.
			return nil
		}
		for _, e := range foundE {
			w.entities[e.ID] = e
		}
		for _, act := range foundA {
			w.activities[act.ID] = act
		}
	}
}

func (w *graphWalk) graph(rootID uuid.UUID) *provenance.Graph {
	g := &provenance.Graph{
		Context:        provenance.DefaultContext(),
		RootDocumentID: rootID,
		Entities:       []provenance.GraphEntity{},
		Activities:     []provenance.GraphActivity{},
		Agents:         []provenance.GraphAgent{},
		Edges:          []provenance.GraphEdge{},
		GeneratedAt:    time.Now().UTC(),
	}
	agents := map[string]string{}
	addAgent := func(id, kind string) string {
		id = strings.TrimSpace(id)
		if id == "" {
			return ""
		}
		if _, ok := agents[id]; !ok || agents[id] == "" {
			agents[id] = kind
		}
		return provenance.AgentIRI(id)
	}

	for _, e := range sortedEntities(w.entities) {
		ge := provenance.GraphEntity{
			ID:              provenance.EntityIRI(e.ID),
			Type:            "prov:Entity",
			Kind:            e.EntityType,
			Label:           e.Label,
			GeneratedAtTime: e.GeneratedAt.UTC(),
			Attributes:      map[string]any(e.Attributes),
		}
		if iri := addAgent(e.AttributedTo, ""); iri != "" {
			ge.WasAttributedTo = iri
			g.Edges = append(g.Edges, provenance.GraphEdge{Relation: provenance.RelWasAttributedTo, Subject: ge.ID, Object: iri})
		}
		if e.DerivedFromEntityID != nil && w.entities[*e.DerivedFromEntityID] != nil {
			ge.WasDerivedFrom = provenance.EntityIRI(*e.DerivedFromEntityID)
			g.Edges = append(g.Edges, provenance.GraphEdge{Relation: provenance.RelWasDerivedFrom, Subject: ge.ID, Object: ge.WasDerivedFrom})
		}
		if e.GeneratedByActivityID != nil && w.activities[*e.GeneratedByActivityID] != nil {
			ge.WasGeneratedBy = provenance.ActivityIRI(*e.GeneratedByActivityID)
			g.Edges = append(g.Edges, provenance.GraphEdge{Relation: provenance.RelWasGeneratedBy, Subject: ge.ID, Object: ge.WasGeneratedBy})
		}
		g.Entities = append(g.Entities, ge)
	}

	for _, act := range sortedActivities(w.activities) {
		meta := act.Metadata.Data()
		ga := provenance.GraphActivity{
			ID:            provenance.ActivityIRI(act.ID),
			Type:          "prov:Activity",
			Kind:          act.ActivityType,
			StartedAtTime: act.StartedAt.UTC(),
			EndedAtTime:   act.EndedAt,
			Metadata:      meta,
		}
		if iri := addAgent(act.WasAssociatedWith, act.AgentType); iri != "" {
			ga.WasAssociatedWith = iri
			g.Edges = append(g.Edges, provenance.GraphEdge{Relation: provenance.RelWasAssociatedWith, Subject: ga.ID, Object: iri})
		}
		for _, id := range meta.InputEntityIDs {
			if w.entities[id] == nil {
				continue
			}
			used := provenance.EntityIRI(id)
			ga.Used = append(ga.Used, used)
			g.Edges = append(g.Edges, provenance.GraphEdge{Relation: provenance.RelUsed, Subject: ga.ID, Object: used})
		}
		g.Activities = append(g.Activities, ga)
	}

	names := make([]string, 0, len(agents))
	for id := range agents {
		names = append(names, id)
	}
	sort.Strings(names)
	for _, id := range names {
		g.Agents = append(g.Agents, provenance.GraphAgent{ID: provenance.AgentIRI(id), Type: "prov:Agent", Kind: agents[id]})
	}
	return g
}

func sortedEntities(m map[uuid.UUID]*types.ProvenanceEntity) []*types.ProvenanceEntity {
	out := make([]*types.ProvenanceEntity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.Before(out[j].GeneratedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func sortedActivities(m map[uuid.UUID]*types.ProvenanceActivity) []*types.ProvenanceActivity {
	out := make([]*types.ProvenanceActivity, 0, len(m))
	for _, act := range m {
		out = append(out, act)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
