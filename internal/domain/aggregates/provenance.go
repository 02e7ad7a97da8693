package aggregates

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

var ProvenanceContract = Contract{
	Name:             "Provenance.Tracker",
	WriteTxOwnership: WriteTxNested,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Records PROV-O entities/activities inside the caller's transaction; export is read-only.",
}

// Agent is the actor an activity was associated with.
type Agent struct {
	ID   string
	Kind string
}

// ProvenanceTracker records and exports derivation history.
type ProvenanceTracker interface {
	Aggregate

	RecordVersionCreation(dbc dbctx.Context, in RecordVersionInput) (*provenance.ProvenanceEntity, error)
	RecordProcessingActivity(dbc dbctx.Context, in RecordProcessingInput) (*provenance.ProvenanceActivity, error)
	ExportGraph(dbc dbctx.Context, rootDocumentID uuid.UUID) (*provenance.Graph, error)
}

type RecordVersionInput struct {
	NewVersion    *documents.Document
	SourceVersion *documents.Document
	ActivityType  string
	Agent         Agent
	Parameters    map[string]any
}

type RecordProcessingInput struct {
	Group     *processing.ProcessingArtifactGroup
	Operation *processing.ProcessingOperation
	// Inputs are parent groups this group's output was computed from, in addition to the version.
	Inputs    []*processing.ProcessingArtifactGroup
	Outputs   []*processing.ProcessingArtifact
	Agent     Agent
	StartedAt time.Time
	EndedAt   time.Time
	Summary   map[string]any
}
