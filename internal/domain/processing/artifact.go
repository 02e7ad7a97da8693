package processing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

// ProcessingArtifact is one immutable piece of a group's output.
// GroupID is nil only for rows written before grouping existed.
type ProcessingArtifact struct {
	ID            uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID       *uuid.UUID               `gorm:"type:uuid;column:processing_id;index" json:"processing_id,omitempty"`
	Group         *ProcessingArtifactGroup `gorm:"constraint:OnDelete:RESTRICT;foreignKey:GroupID;references:ID" json:"-"`
	DocumentID    uuid.UUID                `gorm:"type:uuid;not null;index" json:"document_id"`
	Document      *documents.Document      `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ArtifactType  string                   `gorm:"column:artifact_type;type:text;not null;index" json:"artifact_type"`
	MethodKey     string                   `gorm:"column:method_key;type:text" json:"method_key,omitempty"`
	ArtifactIndex int                      `gorm:"column:artifact_index;not null" json:"artifact_index"`
	Content       datatypes.JSON           `gorm:"column:content" json:"content"`
	Metadata      datatypes.JSON           `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time                `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ProcessingArtifact) TableName() string { return "processing_artifacts" }

func (a *ProcessingArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects in-place edits; corrections go into a new group.
// Linking a legacy row to a group is the one allowed write.
func (a *ProcessingArtifact) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Content", "Metadata", "ArtifactIndex", "DocumentID") {
		return ErrArtifactImmutable
	}
	return nil
}
