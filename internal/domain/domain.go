package domain

import (
	"github.com/yungbote/docprov-backend/internal/domain/composite"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/experiments"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
)

type Document = documents.Document
type ProcessingMetadata = documents.ProcessingMetadata
type DerivedFrom = documents.DerivedFrom
type VersionChangelog = documents.VersionChangelog
type DocumentTemporalMetadata = documents.DocumentTemporalMetadata

type Experiment = experiments.Experiment
type ExperimentDocument = experiments.ExperimentDocument

type ProcessingOperation = processing.ProcessingOperation
type ProcessingArtifactGroup = processing.ProcessingArtifactGroup
type ProcessingArtifact = processing.ProcessingArtifact
type DocumentProcessingIndex = processing.DocumentProcessingIndex

type CompositeSource = composite.CompositeSource
type DocumentProcessingSummary = composite.DocumentProcessingSummary

type ProvenanceEntity = provenance.ProvenanceEntity
type ProvenanceActivity = provenance.ProvenanceActivity

// Models lists every persisted model in foreign-key creation order.
func Models() []any {
	return []any{
		&Document{},
		&VersionChangelog{},
		&DocumentTemporalMetadata{},
		&Experiment{},
		&ExperimentDocument{},
		&ProcessingOperation{},
		&ProcessingArtifactGroup{},
		&ProcessingArtifact{},
		&DocumentProcessingIndex{},
		&CompositeSource{},
		&DocumentProcessingSummary{},
		&ProvenanceActivity{},
		&ProvenanceEntity{},
	}
}
