package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	ArtifactSegmentation = "segmentation"
	ArtifactEntities     = "entities"
	ArtifactEmbeddings   = "embeddings"
	ArtifactDefinitions  = "definitions"
	ArtifactTemporal     = "temporal_markers"
)

// ProcessingArtifactGroup is one method's output for one artifact type on one document.
// (document_id, artifact_type, method_key) is unique; a new method is a new group.
type ProcessingArtifactGroup struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_artifact_groups_key,priority:1" json:"document_id"`
	Document     *documents.Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ArtifactType string              `gorm:"column:artifact_type;type:text;not null;uniqueIndex:uq_artifact_groups_key,priority:2" json:"artifact_type"`
	MethodKey    string              `gorm:"column:method_key;type:text;not null;uniqueIndex:uq_artifact_groups_key,priority:3" json:"method_key"`

	ProcessingOperationID *uuid.UUID           `gorm:"type:uuid;column:processing_operation_id;index" json:"processing_operation_id,omitempty"`
	ProcessingOperation   *ProcessingOperation `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ProcessingOperationID;references:ID" json:"-"`
	JobID                 string               `gorm:"column:job_id;type:text;index" json:"job_id,omitempty"`

	ParentMethodKeys   datatypes.JSONSlice[string] `gorm:"column:parent_method_keys" json:"parent_method_keys"`
	Status             string                      `gorm:"column:status;type:text;not null;index" json:"status"`
	IncludeInComposite bool                        `gorm:"column:include_in_composite;not null" json:"include_in_composite"`
	Metadata           datatypes.JSON              `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedBy          string                      `gorm:"column:created_by;type:text" json:"created_by,omitempty"`
	ErrorMessage       string                      `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ProcessingArtifactGroup) TableName() string { return "processing_artifact_groups" }

func (g *ProcessingArtifactGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// AllowedTransition reports whether a group may move from -> to.
func AllowedTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCompleted || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

func IsKnownStatus(s string) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
