package composite

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

// AvailableProcessing is one processing type a document exposes, and where it comes from.
type AvailableProcessing struct {
	ProcessingType        string     `json:"processing_type"`
	SourceDocumentID      uuid.UUID  `json:"source_document_id"`
	SourceVersionNumber   int        `json:"source_version_number,omitempty"`
	ProcessingOperationID uuid.UUID  `json:"processing_operation_id"`
	MethodKey             string     `json:"method_key,omitempty"`
	Priority              int        `json:"priority"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// Capable is implemented by anything that can answer "what processing does this expose".
type Capable interface {
	IsComposite() bool
	AvailableProcessing() []AvailableProcessing
}

// View wraps a document with its resolved processing list.
type View struct {
	Document   *documents.Document
	Processing []AvailableProcessing
}

var _ Capable = (*View)(nil)

func (v *View) IsComposite() bool { return v != nil && v.Document.IsComposite() }

func (v *View) AvailableProcessing() []AvailableProcessing {
	if v == nil {
		return nil
	}
	return v.Processing
}

// Types returns the exposed processing types in list order.
func (v *View) Types() []string {
	out := make([]string, 0, len(v.AvailableProcessing()))
	for _, p := range v.AvailableProcessing() {
		out = append(out, p.ProcessingType)
	}
	return out
}

// Recommendation is a read-side suggestion; it never mutates anything.
type Recommendation struct {
	Action      string      `json:"action"`
	Reason      string      `json:"reason"`
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	Types       []string    `json:"processing_types,omitempty"`
}

const (
	ActionCreateComposite = "create_composite"
	ActionUpdateComposite = "update_composite"
	ActionRunProcessing   = "run_processing"
	ActionRetryProcessing = "retry_failed_processing"
)
