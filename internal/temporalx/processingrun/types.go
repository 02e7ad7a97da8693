package processingrun

import "fmt"

const (
	WorkflowName        = "processing_group"
	ActivityMarkRunning = "processing_group_mark_running"
	ActivityComplete    = "processing_group_complete"
	ActivityFail        = "processing_group_fail"
	SignalGroupResult   = "group_result"
)

type WorkflowInput struct {
	GroupID        string `json:"group_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type ArtifactPayload struct {
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GroupResult is the signal an external runner sends when it finishes. A
// non-empty Error fails the group.
type GroupResult struct {
	Artifacts []ArtifactPayload `json:"artifacts,omitempty"`
	Summary   map[string]any    `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	AgentKind string            `json:"agent_kind,omitempty"`
}

type CompleteInput struct {
	GroupID string      `json:"group_id"`
	Result  GroupResult `json:"result"`
}

type FailInput struct {
	GroupID string `json:"group_id"`
	Message string `json:"message"`
}

type Outcome struct {
	GroupID   string `json:"group_id"`
	Status    string `json:"status"`
	Artifacts int    `json:"artifacts"`
	Replayed  bool   `json:"replayed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WorkflowID is deterministic so a retried start lands on the running execution.
func WorkflowID(groupID string) string {
	return fmt.Sprintf("processing-group-%s", groupID)
}
