package aggregates

import (
	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

var RegistryContract = Contract{
	Name:             "Processing.ArtifactRegistry",
	WriteTxOwnership: WriteTxNested,
	ReadPolicy:       ReadPolicyTableRepoQueries,
	Notes:            "Idempotent artifact-group registration keyed by (document, artifact type, method).",
}

// Registry registers method outputs per document without overwriting competing methods.
type Registry interface {
	Aggregate

	CreateOrGetGroup(dbc dbctx.Context, in CreateGroupInput) (*processing.ProcessingArtifactGroup, error)
	ListGroups(dbc dbctx.Context, in ListGroupsInput) ([]*processing.ProcessingArtifactGroup, error)
	Summarize(dbc dbctx.Context, groups []*processing.ProcessingArtifactGroup) ([]GroupSummary, error)
	AddArtifacts(dbc dbctx.Context, groupID uuid.UUID, artifacts []ArtifactInput) ([]*processing.ProcessingArtifact, error)
	MarkGroupStatus(dbc dbctx.Context, in MarkGroupStatusInput) (*processing.ProcessingArtifactGroup, error)
	BackfillLegacyGroup(dbc dbctx.Context, artifact *processing.ProcessingArtifact) (*processing.ProcessingArtifactGroup, error)
}

type CreateGroupInput struct {
	DocumentID       uuid.UUID `validate:"required"`
	ArtifactType     string    `validate:"required"`
	MethodKey        string    `validate:"required"`
	JobID            string
	OperationID      *uuid.UUID
	ParentMethodKeys []string
	Metadata         map[string]any
	Actor            string
	// ExcludeFromComposite registers the method without exposing it in aggregate views.
	ExcludeFromComposite bool
}

type ListGroupsInput struct {
	DocumentID      uuid.UUID `validate:"required"`
	ArtifactType    string
	IncludeDisabled bool
}

type GroupSummary struct {
	GroupID            uuid.UUID `json:"group_id"`
	ArtifactType       string    `json:"artifact_type"`
	MethodKey          string    `json:"method_key"`
	Status             string    `json:"status"`
	ParentMethodKeys   []string  `json:"parent_method_keys,omitempty"`
	IncludeInComposite bool      `json:"include_in_composite"`
	ArtifactCount      *int64    `json:"artifact_count,omitempty"`
}

type ArtifactInput struct {
	Content  any
	Metadata map[string]any
}

type MarkGroupStatusInput struct {
	GroupID      uuid.UUID `validate:"required"`
	FromStatus   string
	ToStatus     string `validate:"required"`
	ErrorMessage string
}
