package aggregates

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/docprov-backend/internal/data/repos"
	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

type RegistryDeps struct {
	Base BaseDeps

	Documents repos.DocumentRepo
	Groups    repos.GroupRepo
	Artifacts repos.ArtifactRepo
}

type registryAggregate struct {
	deps RegistryDeps
}

func NewRegistryAggregate(deps RegistryDeps) domainagg.Registry {
	deps.Base = deps.Base.withDefaults()
	deps.Base.Log = deps.Base.Log.With("aggregate", "Registry")
	return &registryAggregate{deps: deps}
}

func (a *registryAggregate) Contract() domainagg.Contract {
	return domainagg.RegistryContract
}

func (a *registryAggregate) CreateOrGetGroup(dbc dbctx.Context, in domainagg.CreateGroupInput) (*types.ProcessingArtifactGroup, error) {
	const op = "Processing.Registry.CreateOrGetGroup"
	in.ArtifactType = normalizeKey(in.ArtifactType)
	in.MethodKey = strings.TrimSpace(in.MethodKey)
	if err := validateInput(op, in); err != nil {
		return nil, err
	}

	existing, err := a.deps.Groups.GetByKey(dbc, in.DocumentID, in.ArtifactType, in.MethodKey)
	if err != nil {
		return nil, MapError(op, err)
	}
	if existing != nil {
		return existing, nil
	}

	metadata, err := EncodePayload(op, "metadata", in.Metadata)
	if err != nil {
		return nil, err
	}
	status := processing.StatusCompleted
	var completedAt *time.Time
	if strings.TrimSpace(in.JobID) != "" {
		status = processing.StatusPending
	} else {
		now := time.Now().UTC()
		completedAt = &now
	}
	row := &types.ProcessingArtifactGroup{
		DocumentID:            in.DocumentID,
		ArtifactType:          in.ArtifactType,
		MethodKey:             in.MethodKey,
		ProcessingOperationID: in.OperationID,
		JobID:                 strings.TrimSpace(in.JobID),
		ParentMethodKeys:      datatypes.JSONSlice[string](dedupeKeys(in.ParentMethodKeys)),
		Status:                status,
		IncludeInComposite:    !in.ExcludeFromComposite,
		Metadata:              metadata,
		CreatedBy:             strings.TrimSpace(in.Actor),
		CompletedAt:           completedAt,
	}

	err = executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		doc, err := a.deps.Documents.GetByID(dbc, in.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return notFound(op, "document", in.DocumentID)
		}
		_, err = a.deps.Groups.Create(dbc, []*types.ProcessingArtifactGroup{row})
		return err
	})
	if err == nil {
		return row, nil
	}
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		return nil, err
	}
	winner, ferr := a.deps.Groups.GetByKey(dbc, in.DocumentID, in.ArtifactType, in.MethodKey)
	if ferr != nil {
		return nil, MapError(op, ferr)
	}
	if winner == nil {
		return nil, err
	}
	a.deps.Base.Log.Debug("artifact group race recovered", "group_id", winner.ID, "method_key", in.MethodKey)
	return winner, nil
}

func (a *registryAggregate) ListGroups(dbc dbctx.Context, in domainagg.ListGroupsInput) ([]*types.ProcessingArtifactGroup, error) {
	const op = "Processing.Registry.ListGroups"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	out, err := a.deps.Groups.List(dbc, repos.GroupFilter{
		DocumentIDs:     []uuid.UUID{in.DocumentID},
		ArtifactType:    normalizeKey(in.ArtifactType),
		IncludeDisabled: in.IncludeDisabled,
	})
	if err != nil {
		return nil, MapError(op, err)
	}
	return out, nil
}

// Summarize counts member artifacts for segmentation groups with one grouped COUNT.
func (a *registryAggregate) Summarize(dbc dbctx.Context, groups []*types.ProcessingArtifactGroup) ([]domainagg.GroupSummary, error) {
	const op = "Processing.Registry.Summarize"
	var segIDs []uuid.UUID
	for _, g := range groups {
		if g != nil && g.ArtifactType == processing.ArtifactSegmentation {
			segIDs = append(segIDs, g.ID)
		}
	}
	counts, err := a.deps.Artifacts.CountByGroupIDs(dbc, segIDs)
	if err != nil {
		return nil, MapError(op, err)
	}
	out := make([]domainagg.GroupSummary, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		s := domainagg.GroupSummary{
			GroupID:            g.ID,
			ArtifactType:       g.ArtifactType,
			MethodKey:          g.MethodKey,
			Status:             g.Status,
			ParentMethodKeys:   []string(g.ParentMethodKeys),
			IncludeInComposite: g.IncludeInComposite,
		}
		if g.ArtifactType == processing.ArtifactSegmentation {
			n := counts[g.ID]
			s.ArtifactCount = &n
		}
		out = append(out, s)
	}
	return out, nil
}

func (a *registryAggregate) AddArtifacts(dbc dbctx.Context, groupID uuid.UUID, artifacts []domainagg.ArtifactInput) ([]*types.ProcessingArtifact, error) {
	const op = "Processing.Registry.AddArtifacts"
	if groupID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing group id", nil)
	}
	if len(artifacts) == 0 {
		return []*types.ProcessingArtifact{}, nil
	}

	// Encode everything before touching the store so nothing is partially written.
	contents := make([]datatypes.JSON, len(artifacts))
	metas := make([]datatypes.JSON, len(artifacts))
	for i, in := range artifacts {
		c, err := EncodePayload(op, fmt.Sprintf("artifacts[%d].content", i), in.Content)
		if err != nil {
			return nil, err
		}
		m, err := EncodePayload(op, fmt.Sprintf("artifacts[%d].metadata", i), in.Metadata)
		if err != nil {
			return nil, err
		}
		contents[i], metas[i] = c, m
	}

	var out []*types.ProcessingArtifact
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		g, err := a.deps.Groups.GetByID(dbc, groupID)
		if err != nil {
			return err
		}
		if g == nil {
			return notFound(op, "artifact group", groupID)
		}
		if g.Status == processing.StatusFailed {
			return IntegrityError("cannot add artifacts to a failed group")
		}
		next, err := a.deps.Artifacts.MaxIndex(dbc, g.ID)
		if err != nil {
			return err
		}
		gid := g.ID
		rows := make([]*types.ProcessingArtifact, len(artifacts))
		for i := range artifacts {
			next++
			rows[i] = &types.ProcessingArtifact{
				GroupID:       &gid,
				DocumentID:    g.DocumentID,
				ArtifactType:  g.ArtifactType,
				MethodKey:     g.MethodKey,
				ArtifactIndex: next,
				Content:       contents[i],
				Metadata:      metas[i],
			}
		}
		out, err = a.deps.Artifacts.Create(dbc, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *registryAggregate) MarkGroupStatus(dbc dbctx.Context, in domainagg.MarkGroupStatusInput) (*types.ProcessingArtifactGroup, error) {
	const op = "Processing.Registry.MarkGroupStatus"
	if err := validateInput(op, in); err != nil {
		return nil, err
	}
	to := normalizeKey(in.ToStatus)
	if !processing.IsKnownStatus(to) {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown group status %q", in.ToStatus), nil)
	}

	var out *types.ProcessingArtifactGroup
	err := executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		g, err := a.deps.Groups.GetByID(dbc, in.GroupID)
		if err != nil {
			return err
		}
		if g == nil {
			return notFound(op, "artifact group", in.GroupID)
		}
		from := normalizeKey(in.FromStatus)
		if from == "" {
			from = g.Status
		}
		if g.Status == to && from == to {
			out = g
			return nil
		}
		if err := RequireStatusAllowed(g.Status, from); err != nil {
			return err
		}
		if !processing.AllowedTransition(from, to) {
			return domainagg.NewErrorWithDetails(domainagg.CodeConflict, op, "status transition not allowed",
				map[string]any{"from": from, "to": to})
		}
		updates := map[string]any{"status": to, "updated_at": time.Now().UTC()}
		if to == processing.StatusCompleted || to == processing.StatusFailed {
			updates["completed_at"] = time.Now().UTC()
		}
		if to == processing.StatusFailed {
			updates["error_message"] = strings.TrimSpace(in.ErrorMessage)
		}
		ok, err := a.deps.Base.CASGuard.UpdateByStatus(dbc, types.ProcessingArtifactGroup{}.TableName(), g.ID, []string{from}, updates)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "artifact group status changed concurrently"); err != nil {
			return err
		}
		out, err = a.deps.Groups.GetByID(dbc, g.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BackfillLegacyGroup links an ungrouped artifact (and its siblings with the same
// document/type/method) to a group created from the recorded method.
func (a *registryAggregate) BackfillLegacyGroup(dbc dbctx.Context, artifact *types.ProcessingArtifact) (*types.ProcessingArtifactGroup, error) {
	const op = "Processing.Registry.BackfillLegacyGroup"
	if artifact == nil || artifact.ID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing artifact", nil)
	}
	if artifact.GroupID != nil {
		g, err := a.deps.Groups.GetByID(dbc, *artifact.GroupID)
		if err != nil {
			return nil, MapError(op, err)
		}
		return g, nil
	}
	method := strings.TrimSpace(artifact.MethodKey)
	if method == "" {
		method = "legacy"
	}
	g, err := a.CreateOrGetGroup(dbc, domainagg.CreateGroupInput{
		DocumentID:   artifact.DocumentID,
		ArtifactType: artifact.ArtifactType,
		MethodKey:    method,
		Metadata:     map[string]any{"backfilled": true},
		Actor:        "backfill",
	})
	if err != nil {
		return nil, err
	}
	err = executeWrite(dbc, a.deps.Base, op, func(dbc dbctx.Context) error {
		siblings, err := a.deps.Artifacts.ListUngrouped(dbc, artifact.DocumentID, artifact.ArtifactType)
		if err != nil {
			return err
		}
		ids := []uuid.UUID{artifact.ID}
		for _, s := range siblings {
			if s.ID != artifact.ID && strings.TrimSpace(s.MethodKey) == strings.TrimSpace(artifact.MethodKey) {
				ids = append(ids, s.ID)
			}
		}
		_, err = a.deps.Artifacts.LinkGroup(dbc, ids, g.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	gid := g.ID
	artifact.GroupID = &gid
	return g, nil
}

func dedupeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
