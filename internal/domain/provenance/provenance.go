package provenance

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
)

const (
	EntityDocumentVersion = "document_version"
	EntityArtifactGroup   = "artifact_group"
	EntityArtifact        = "artifact"
)

const (
	ActivityVersionCreation   = "version_creation"
	ActivityExperimentVersion = "experiment_version_creation"
	ActivityCompositeCreation = "composite_creation"
	ActivityProcessing        = "processing"
	ActivityCompositeRefresh  = "composite_refresh"
)

const (
	AgentPerson   = "person"
	AgentSoftware = "software"
)

// ProvenanceEntity is the prov:Entity projection of a version, group or artifact.
type ProvenanceEntity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType     string    `gorm:"column:entity_type;type:text;not null;index" json:"entity_type"`
	RootDocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"root_document_id"`
	Label          string    `gorm:"column:label;type:text" json:"label,omitempty"`

	DocumentID      *uuid.UUID                          `gorm:"type:uuid;column:document_id;index" json:"document_id,omitempty"`
	Document        *documents.Document                 `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ArtifactGroupID *uuid.UUID                          `gorm:"type:uuid;column:artifact_group_id;index" json:"artifact_group_id,omitempty"`
	ArtifactGroup   *processing.ProcessingArtifactGroup `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ArtifactGroupID;references:ID" json:"-"`
	ArtifactID      *uuid.UUID                          `gorm:"type:uuid;column:artifact_id;index" json:"artifact_id,omitempty"`

	DerivedFromEntityID   *uuid.UUID          `gorm:"type:uuid;column:derived_from_entity_id;index" json:"derived_from_entity_id,omitempty"`
	DerivedFromEntity     *ProvenanceEntity   `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DerivedFromEntityID;references:ID" json:"-"`
	GeneratedByActivityID *uuid.UUID          `gorm:"type:uuid;column:generated_by_activity_id;index" json:"generated_by_activity_id,omitempty"`
	GeneratedByActivity   *ProvenanceActivity `gorm:"constraint:OnDelete:RESTRICT;foreignKey:GeneratedByActivityID;references:ID" json:"-"`

	AttributedTo string            `gorm:"column:attributed_to;type:text" json:"attributed_to,omitempty"`
	GeneratedAt  time.Time         `gorm:"column:generated_at;not null" json:"generated_at"`
	Attributes   datatypes.JSONMap `gorm:"column:attributes" json:"attributes,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ProvenanceEntity) TableName() string { return "provenance_entities" }

func (e *ProvenanceEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = time.Now().UTC()
	}
	return nil
}

// ActivityMetadata is the structured parameter/result bag of an activity.
type ActivityMetadata struct {
	ProcessingType string         `json:"processing_type,omitempty"`
	MethodKey      string         `json:"method_key,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	ResultSummary  map[string]any `json:"result_summary,omitempty"`
	InputEntityIDs []uuid.UUID    `json:"input_entity_ids,omitempty"`
}

// ProvenanceActivity is the prov:Activity projection of one operation.
type ProvenanceActivity struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityType      string     `gorm:"column:activity_type;type:text;not null;index" json:"activity_type"`
	RootDocumentID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"root_document_id"`
	WasAssociatedWith string     `gorm:"column:was_associated_with;type:text" json:"was_associated_with,omitempty"`
	AgentType         string     `gorm:"column:agent_type;type:text" json:"agent_type,omitempty"`
	StartedAt         time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	EndedAt           *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`

	ProcessingOperationID *uuid.UUID `gorm:"type:uuid;column:processing_operation_id;index" json:"processing_operation_id,omitempty"`

	Metadata  datatypes.JSONType[ActivityMetadata] `gorm:"column:metadata" json:"metadata"`
	CreatedAt time.Time                            `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ProvenanceActivity) TableName() string { return "provenance_activities" }

func (a *ProvenanceActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	return nil
}
