package aggregates

import (
	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/domain/composite"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

var CompositeContract = Contract{
	Name:             "Documents.CompositeAggregator",
	WriteTxOwnership: WriteTxNested,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns composite versions and their summary rows; summaries are rewritten, never patched.",
}

// CompositeAggregator synthesizes a unified processing view across a family.
type CompositeAggregator interface {
	Aggregate

	CreateComposite(dbc dbctx.Context, in CreateCompositeInput) (*documents.Document, error)
	UpdateComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*composite.DocumentProcessingSummary, error)
	RefreshFamily(dbc dbctx.Context, rootID uuid.UUID) (int, error)
	GetAvailableProcessing(dbc dbctx.Context, documentID uuid.UUID) (*composite.View, error)
	RecommendActions(dbc dbctx.Context, documentID uuid.UUID) ([]composite.Recommendation, error)
}

type CreateCompositeInput struct {
	Title             string      `validate:"required"`
	SourceDocumentIDs []uuid.UUID `validate:"required,min=1,dive,required"`
	Strategy          string
	OwnerID           string
}
