package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ChangeTypeProcessingVersion = "processing_version"
	ChangeTypeExperimentVersion = "experiment_version"
	ChangeTypeCompositeVersion  = "composite_version"
	ChangeTypeCompositeRefresh  = "composite_refresh"
)

// VersionChangelog is the human-readable audit trail for version creation.
type VersionChangelog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document      *Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	VersionNumber int       `gorm:"column:version_number;not null" json:"version_number"`
	ChangeType    string    `gorm:"column:change_type;type:text;not null;index" json:"change_type"`
	Description   string    `gorm:"column:description;type:text" json:"description"`
	Actor         string    `gorm:"column:actor;type:text" json:"actor,omitempty"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (VersionChangelog) TableName() string { return "version_changelogs" }

func (c *VersionChangelog) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
