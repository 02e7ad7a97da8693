package composite

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
)

const (
	// StrategyAllProcessing exposes every completed processing type; the
	// highest-priority (latest added) source wins each type.
	StrategyAllProcessing = "all_processing"
)

func IsKnownStrategy(s string) bool { return s == StrategyAllProcessing }

// CompositeSource is one contributing version of a composite, with its priority.
type CompositeSource struct {
	ID                  uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	CompositeDocumentID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_composite_sources_pair,priority:1" json:"composite_document_id"`
	CompositeDocument   *documents.Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:CompositeDocumentID;references:ID" json:"-"`
	SourceVersionID     uuid.UUID           `gorm:"type:uuid;column:source_version_id;not null;index;uniqueIndex:uq_composite_sources_pair,priority:2" json:"source_version_id"`
	SourceVersion       *documents.Document `gorm:"constraint:OnDelete:RESTRICT;foreignKey:SourceVersionID;references:ID" json:"-"`
	Priority            int                 `gorm:"column:priority;not null" json:"priority"`
	AddedAt             time.Time           `gorm:"not null;autoCreateTime" json:"added_at"`
}

func (CompositeSource) TableName() string { return "composite_sources" }

func (s *CompositeSource) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// DocumentProcessingSummary names the winning source for one processing type of a composite.
type DocumentProcessingSummary struct {
	ID                    uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID            uuid.UUID                       `gorm:"type:uuid;not null;uniqueIndex:uq_processing_summary_type,priority:1" json:"document_id"`
	Document              *documents.Document             `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	ProcessingType        string                          `gorm:"column:processing_type;type:text;not null;uniqueIndex:uq_processing_summary_type,priority:2" json:"processing_type"`
	SourceVersionID       uuid.UUID                       `gorm:"type:uuid;column:source_version_id;not null;index" json:"source_version_id"`
	SourceVersion         *documents.Document             `gorm:"constraint:OnDelete:RESTRICT;foreignKey:SourceVersionID;references:ID" json:"-"`
	ProcessingOperationID uuid.UUID                       `gorm:"type:uuid;not null;index" json:"processing_operation_id"`
	ProcessingOperation   *processing.ProcessingOperation `gorm:"constraint:OnDelete:RESTRICT;foreignKey:ProcessingOperationID;references:ID" json:"-"`
	MethodKey             string                          `gorm:"column:method_key;type:text" json:"method_key,omitempty"`
	Priority              int                             `gorm:"column:priority;not null" json:"priority"`
	SourceCompletedAt     *time.Time                      `gorm:"column:source_completed_at" json:"source_completed_at,omitempty"`
	CreatedAt             time.Time                       `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (DocumentProcessingSummary) TableName() string { return "document_processing_summary" }

func (s *DocumentProcessingSummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
