package realtime

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventVersionCreated     = "version.created"
	EventGroupStarted       = "group.started"
	EventGroupCompleted     = "group.completed"
	EventGroupFailed        = "group.failed"
	EventCompositeRefreshed = "composite.refreshed"
	EventFamilyPurged       = "family.purged"
)

// Event is one processing notification fanned out to subscribers.
type Event struct {
	Type           string         `json:"type"`
	DocumentID     uuid.UUID      `json:"document_id"`
	RootDocumentID uuid.UUID      `json:"root_document_id"`
	GroupID        *uuid.UUID     `json:"group_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	At             time.Time      `json:"at"`
}

func NewEvent(typ string, documentID, rootID uuid.UUID, data map[string]any) Event {
	return Event{
		Type:           typ,
		DocumentID:     documentID,
		RootDocumentID: rootID,
		Data:           data,
		At:             time.Now().UTC(),
	}
}
