package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

// ProcessingOperation is the record of one processing run against a version.
type ProcessingOperation struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID           `gorm:"type:uuid;not null;index" json:"document_id"`
	Document       *documents.Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ExperimentID   *uuid.UUID          `gorm:"type:uuid;column:experiment_id;index" json:"experiment_id,omitempty"`
	ProcessingType string              `gorm:"column:processing_type;type:text;not null;index" json:"processing_type"`
	MethodKey      string              `gorm:"column:method_key;type:text;not null" json:"method_key"`
	Status         string              `gorm:"column:status;type:text;not null;index" json:"status"`
	JobID          string              `gorm:"column:job_id;type:text;index" json:"job_id,omitempty"`
	Actor          string              `gorm:"column:actor;type:text" json:"actor,omitempty"`
	Parameters     datatypes.JSON      `gorm:"column:parameters" json:"parameters,omitempty"`
	ResultSummary  datatypes.JSON      `gorm:"column:result_summary" json:"result_summary,omitempty"`
	ErrorMessage   string              `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	StartedAt      time.Time           `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt    *time.Time          `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
	CreatedAt      time.Time           `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ProcessingOperation) TableName() string { return "processing_operations" }

func (o *ProcessingOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.StartedAt.IsZero() {
		o.StartedAt = time.Now().UTC()
	}
	return nil
}

// DocumentProcessingIndex points a document at an operation and the group it produced.
type DocumentProcessingIndex struct {
	ID                    uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID            uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:uq_processing_index_doc_op,priority:1" json:"document_id"`
	Document              *documents.Document      `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ProcessingOperationID uuid.UUID                `gorm:"type:uuid;not null;index;uniqueIndex:uq_processing_index_doc_op,priority:2" json:"processing_operation_id"`
	ProcessingOperation   *ProcessingOperation     `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ProcessingOperationID;references:ID" json:"-"`
	ArtifactGroupID       *uuid.UUID               `gorm:"type:uuid;column:artifact_group_id;index" json:"artifact_group_id,omitempty"`
	ArtifactGroup         *ProcessingArtifactGroup `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ArtifactGroupID;references:ID" json:"-"`
	ProcessingType        string                   `gorm:"column:processing_type;type:text;not null;index" json:"processing_type"`
	Status                string                   `gorm:"column:status;type:text;not null" json:"status"`
	CreatedAt             time.Time                `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time                `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (DocumentProcessingIndex) TableName() string { return "document_processing_index" }

func (i *DocumentProcessingIndex) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
