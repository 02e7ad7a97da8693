package aggregates

import (
	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

var VersioningContract = Contract{
	Name:             "Documents.Versioning",
	WriteTxOwnership: WriteTxNested,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns version-number assignment, experiment version uniqueness and the changelog row per version.",
}

// Versioning creates and resolves versions within a family.
type Versioning interface {
	Aggregate

	CreateOriginal(dbc dbctx.Context, in CreateOriginalInput) (*documents.Document, error)

	// CreateIsolatedVersion creates a fresh processed version copied from the family root.
	CreateIsolatedVersion(dbc dbctx.Context, in CreateIsolatedVersionInput) (*documents.Document, error)

	// GetOrCreateExperimentVersion returns the single experimental version for (family, experiment).
	GetOrCreateExperimentVersion(dbc dbctx.Context, in ExperimentVersionInput) (*documents.Document, bool, error)

	ResolveRoot(dbc dbctx.Context, documentID uuid.UUID) (*documents.Document, error)
	LatestVersion(dbc dbctx.Context, rootID uuid.UUID) (*documents.Document, error)
	ListFamily(dbc dbctx.Context, documentID uuid.UUID) ([]*documents.Document, error)
	VersionHistory(dbc dbctx.Context, documentID uuid.UUID) ([]*documents.VersionChangelog, error)
}

type CreateOriginalInput struct {
	Title            string `validate:"required"`
	Content          string
	ContentType      string
	OwnerID          string
	DetectedLanguage string
	Temporal         *documents.DocumentTemporalMetadata
}

type CreateIsolatedVersionInput struct {
	DocumentID     uuid.UUID `validate:"required"`
	ProcessingType string    `validate:"required"`
	Actor          string
	Reason         string
	Extra          map[string]any
}

type ExperimentVersionInput struct {
	DocumentID   uuid.UUID `validate:"required"`
	ExperimentID uuid.UUID `validate:"required"`
	Actor        string
}
