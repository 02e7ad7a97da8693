package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentTemporalMetadata holds bibliographic side data copied into experiment versions.
type DocumentTemporalMetadata struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID      uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	Document        *Document                   `gorm:"constraint:OnDelete:RESTRICT;foreignKey:DocumentID;references:ID" json:"-"`
	PublicationDate *time.Time                  `gorm:"column:publication_date" json:"publication_date,omitempty"`
	Era             string                      `gorm:"column:era;type:text" json:"era,omitempty"`
	Authors         datatypes.JSONSlice[string] `gorm:"column:authors" json:"authors,omitempty"`
	SourceCitation  string                      `gorm:"column:source_citation;type:text" json:"source_citation,omitempty"`
	Publisher       string                      `gorm:"column:publisher;type:text" json:"publisher,omitempty"`
	CreatedAt       time.Time                   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (DocumentTemporalMetadata) TableName() string { return "document_temporal_metadata" }

func (m *DocumentTemporalMetadata) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// CloneFor copies the bibliographic fields onto a new row for documentID.
func (m *DocumentTemporalMetadata) CloneFor(documentID uuid.UUID) *DocumentTemporalMetadata {
	if m == nil {
		return nil
	}
	out := &DocumentTemporalMetadata{
		DocumentID:     documentID,
		Era:            m.Era,
		SourceCitation: m.SourceCitation,
		Publisher:      m.Publisher,
	}
	if m.PublicationDate != nil {
		t := *m.PublicationDate
		out.PublicationDate = &t
	}
	if len(m.Authors) > 0 {
		out.Authors = append(datatypes.JSONSlice[string]{}, m.Authors...)
	}
	return out
}
