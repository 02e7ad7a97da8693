package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/data/repos/composite"
	"github.com/yungbote/docprov-backend/internal/data/repos/documents"
	"github.com/yungbote/docprov-backend/internal/data/repos/experiments"
	"github.com/yungbote/docprov-backend/internal/data/repos/processing"
	"github.com/yungbote/docprov-backend/internal/data/repos/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type DocumentRepo = documents.DocumentRepo
type ChangelogRepo = documents.ChangelogRepo
type TemporalMetadataRepo = documents.TemporalMetadataRepo

type ExperimentRepo = experiments.ExperimentRepo
type ExperimentDocumentRepo = experiments.ExperimentDocumentRepo

type OperationRepo = processing.OperationRepo
type GroupRepo = processing.GroupRepo
type GroupFilter = processing.GroupFilter
type ArtifactRepo = processing.ArtifactRepo
type IndexRepo = processing.IndexRepo

type CompositeSourceRepo = composite.SourceRepo
type ProcessingSummaryRepo = composite.SummaryRepo

type ProvenanceEntityRepo = provenance.EntityRepo
type ProvenanceActivityRepo = provenance.ActivityRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}
func NewChangelogRepo(db *gorm.DB, baseLog *logger.Logger) ChangelogRepo {
	return documents.NewChangelogRepo(db, baseLog)
}
func NewTemporalMetadataRepo(db *gorm.DB, baseLog *logger.Logger) TemporalMetadataRepo {
	return documents.NewTemporalMetadataRepo(db, baseLog)
}

func NewExperimentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentRepo {
	return experiments.NewExperimentRepo(db, baseLog)
}
func NewExperimentDocumentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentDocumentRepo {
	return experiments.NewExperimentDocumentRepo(db, baseLog)
}

func NewOperationRepo(db *gorm.DB, baseLog *logger.Logger) OperationRepo {
	return processing.NewOperationRepo(db, baseLog)
}
func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return processing.NewGroupRepo(db, baseLog)
}
func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return processing.NewArtifactRepo(db, baseLog)
}
func NewIndexRepo(db *gorm.DB, baseLog *logger.Logger) IndexRepo {
	return processing.NewIndexRepo(db, baseLog)
}

func NewCompositeSourceRepo(db *gorm.DB, baseLog *logger.Logger) CompositeSourceRepo {
	return composite.NewSourceRepo(db, baseLog)
}
func NewProcessingSummaryRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingSummaryRepo {
	return composite.NewSummaryRepo(db, baseLog)
}

func NewProvenanceEntityRepo(db *gorm.DB, baseLog *logger.Logger) ProvenanceEntityRepo {
	return provenance.NewEntityRepo(db, baseLog)
}
func NewProvenanceActivityRepo(db *gorm.DB, baseLog *logger.Logger) ProvenanceActivityRepo {
	return provenance.NewActivityRepo(db, baseLog)
}

// Set is every repo over one handle.
type Set struct {
	Documents          DocumentRepo
	Changelog          ChangelogRepo
	TemporalMetadata   TemporalMetadataRepo
	Experiments        ExperimentRepo
	ExperimentDocs     ExperimentDocumentRepo
	Operations         OperationRepo
	Groups             GroupRepo
	Artifacts          ArtifactRepo
	ProcessingIndex    IndexRepo
	CompositeSources   CompositeSourceRepo
	ProcessingSummary  ProcessingSummaryRepo
	ProvenanceEntities ProvenanceEntityRepo
	ProvenanceActivity ProvenanceActivityRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Documents:          NewDocumentRepo(db, baseLog),
		Changelog:          NewChangelogRepo(db, baseLog),
		TemporalMetadata:   NewTemporalMetadataRepo(db, baseLog),
		Experiments:        NewExperimentRepo(db, baseLog),
		ExperimentDocs:     NewExperimentDocumentRepo(db, baseLog),
		Operations:         NewOperationRepo(db, baseLog),
		Groups:             NewGroupRepo(db, baseLog),
		Artifacts:          NewArtifactRepo(db, baseLog),
		ProcessingIndex:    NewIndexRepo(db, baseLog),
		CompositeSources:   NewCompositeSourceRepo(db, baseLog),
		ProcessingSummary:  NewProcessingSummaryRepo(db, baseLog),
		ProvenanceEntities: NewProvenanceEntityRepo(db, baseLog),
		ProvenanceActivity: NewProvenanceActivityRepo(db, baseLog),
	}
}
