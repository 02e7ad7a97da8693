package documents

import "github.com/google/uuid"

// ProcessingMetadata records how a version was produced.
// Extra is the escape hatch for unschematized keys.
type ProcessingMetadata struct {
	ProcessingType string       `json:"processing_type,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	CreatedBy      string       `json:"created_by,omitempty"`
	ExperimentID   *uuid.UUID   `json:"experiment_id,omitempty"`
	DerivedFrom    *DerivedFrom `json:"derived_from,omitempty"`

	CompositeStrategy  string      `json:"composite_strategy,omitempty"`
	CompositeSourceIDs []uuid.UUID `json:"composite_source_ids,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// DerivedFrom pins the immediate source without walking the graph.
type DerivedFrom struct {
	DocumentID    uuid.UUID `json:"document_id"`
	VersionType   string    `json:"version_type"`
	VersionNumber int       `json:"version_number"`
}
