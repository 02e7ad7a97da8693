package aggregates

import (
	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

var FamilyPurgeContract = Contract{
	Name:             "Documents.FamilyPurge",
	WriteTxOwnership: WriteTxNested,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Deletes a family in foreign-key dependency order inside one transaction.",
}

// FamilyPurger deletes a whole version family.
type FamilyPurger interface {
	Aggregate

	DeleteFamily(dbc dbctx.Context, rootID uuid.UUID) (PurgeReport, error)
}

// PurgeReport counts deleted rows per stage, in execution order.
type PurgeReport struct {
	RootDocumentID uuid.UUID    `json:"root_document_id"`
	Stages         []PurgeStage `json:"stages"`
}

type PurgeStage struct {
	Name    string `json:"name"`
	Deleted int64  `json:"deleted"`
}
