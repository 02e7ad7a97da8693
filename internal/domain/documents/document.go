package documents

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VersionTypeOriginal     = "original"
	VersionTypeProcessed    = "processed"
	VersionTypeExperimental = "experimental"
	VersionTypeCleaned      = "cleaned"
	VersionTypeComposite    = "composite"
)

// Document is one version of a text in a family rooted at an original.
// Non-original versions always point directly at the root (the graph is flat).
type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"column:external_id;type:text;not null;uniqueIndex" json:"external_id"`
	Title      string    `gorm:"column:title;type:text;not null" json:"title"`
	OwnerID    string    `gorm:"column:owner_id;type:text;index" json:"owner_id,omitempty"`

	VersionNumber    int        `gorm:"column:version_number;not null;uniqueIndex:uq_documents_source_version,priority:2" json:"version_number"`
	VersionType      string     `gorm:"column:version_type;type:text;not null;index" json:"version_type"`
	SourceDocumentID *uuid.UUID `gorm:"type:uuid;column:source_document_id;index;uniqueIndex:uq_documents_source_version,priority:1" json:"source_document_id,omitempty"`
	SourceDocument   *Document  `gorm:"constraint:OnDelete:RESTRICT;foreignKey:SourceDocumentID;references:ID" json:"-"`
	ExperimentID     *uuid.UUID `gorm:"type:uuid;column:experiment_id;index;check:chk_documents_experiment_scope,experiment_id IS NULL OR version_type = 'experimental'" json:"experiment_id,omitempty"`

	Content            string  `gorm:"column:content;type:text" json:"content"`
	ContentType        string  `gorm:"column:content_type;type:text" json:"content_type,omitempty"`
	WordCount          int     `gorm:"column:word_count;not null;default:0" json:"word_count"`
	CharacterCount     int     `gorm:"column:character_count;not null;default:0" json:"character_count"`
	DetectedLanguage   string  `gorm:"column:detected_language;type:text" json:"detected_language,omitempty"`
	LanguageConfidence float64 `gorm:"column:language_confidence" json:"language_confidence,omitempty"`

	ProcessingMetadata datatypes.JSONType[ProcessingMetadata] `gorm:"column:processing_metadata" json:"processing_metadata"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if strings.TrimSpace(d.ExternalID) == "" {
		d.ExternalID = NewExternalID()
	}
	return nil
}

// NewExternalID returns an opaque URL-safe token.
func NewExternalID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (d *Document) IsRoot() bool { return d != nil && d.SourceDocumentID == nil }

func (d *Document) IsComposite() bool {
	return d != nil && d.VersionType == VersionTypeComposite
}

// RootID is the family root: the document itself for originals, the source otherwise.
func (d *Document) RootID() uuid.UUID {
	if d == nil {
		return uuid.Nil
	}
	if d.SourceDocumentID == nil {
		return d.ID
	}
	return *d.SourceDocumentID
}

// Metadata returns the decoded processing metadata.
func (d *Document) Metadata() ProcessingMetadata {
	if d == nil {
		return ProcessingMetadata{}
	}
	return d.ProcessingMetadata.Data()
}

// CountWords is the whitespace word count stored on versions.
func CountWords(content string) int {
	return len(strings.Fields(content))
}
