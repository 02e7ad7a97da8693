package experiments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

type Experiment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string         `gorm:"column:name;type:text;not null" json:"name"`
	Description    string         `gorm:"column:description;type:text" json:"description,omitempty"`
	ExperimentType string         `gorm:"column:experiment_type;type:text;index" json:"experiment_type,omitempty"`
	Status         string         `gorm:"column:status;type:text;not null;default:'draft'" json:"status"`
	OwnerID        string         `gorm:"column:owner_id;type:text;index" json:"owner_id,omitempty"`
	Configuration  datatypes.JSON `gorm:"column:configuration" json:"configuration,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Experiment) TableName() string { return "experiments" }

func (e *Experiment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ExperimentDocument links an experiment to a document version. While any row
// references a family member, the family cannot be deleted.
type ExperimentDocument struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	ExperimentID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_experiment_documents_pair,priority:1" json:"experiment_id"`
	Experiment   *Experiment         `gorm:"constraint:OnDelete:CASCADE;foreignKey:ExperimentID;references:ID" json:"-"`
	DocumentID   uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:uq_experiment_documents_pair,priority:2" json:"document_id"`
	Document     *documents.Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	AddedAt      time.Time           `gorm:"not null;autoCreateTime" json:"added_at"`
}

func (ExperimentDocument) TableName() string { return "experiment_documents" }

func (e *ExperimentDocument) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
