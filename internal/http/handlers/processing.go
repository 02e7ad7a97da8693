package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/http/response"
	"github.com/yungbote/docprov-backend/internal/pkg/pointers"
	"github.com/yungbote/docprov-backend/internal/services"
	"github.com/yungbote/docprov-backend/internal/temporalx/processingrun"
)

// ProcessingDispatcher hands asynchronous groups to the workflow engine.
type ProcessingDispatcher interface {
	Enabled() bool
	Start(ctx context.Context, groupID uuid.UUID) (string, error)
	Signal(ctx context.Context, groupID uuid.UUID, result processingrun.GroupResult) error
}

type ProcessingHandler struct {
	svc        services.ProcessingService
	dispatcher ProcessingDispatcher
}

// NewProcessingHandler accepts a nil dispatcher; groups are then completed synchronously.
func NewProcessingHandler(svc services.ProcessingService, dispatcher ProcessingDispatcher) *ProcessingHandler {
	return &ProcessingHandler{svc: svc, dispatcher: dispatcher}
}

func (h *ProcessingHandler) async() bool {
	return h.dispatcher != nil && h.dispatcher.Enabled()
}

type targetRequest struct {
	DocumentID   uuid.UUID `json:"document_id" binding:"required"`
	ExperimentID uuid.UUID `json:"experiment_id"`
	NewVersion   bool      `json:"new_version"`
}

func (t targetRequest) target() services.ProcessingTarget {
	return services.ProcessingTarget{
		DocumentID:   t.DocumentID,
		ExperimentID: pointers.UUID(t.ExperimentID),
		NewVersion:   t.NewVersion,
	}
}

type artifactRequest struct {
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func toArtifactInputs(in []artifactRequest) []domainagg.ArtifactInput {
	out := make([]domainagg.ArtifactInput, 0, len(in))
	for _, a := range in {
		out = append(out, domainagg.ArtifactInput{Content: a.Content, Metadata: a.Metadata})
	}
	return out
}

type runRequest struct {
	targetRequest
	ProcessingType       string            `json:"processing_type" binding:"required"`
	MethodKey            string            `json:"method_key" binding:"required"`
	ParentMethodKeys     []string          `json:"parent_method_keys"`
	Parameters           map[string]any    `json:"parameters"`
	Metadata             map[string]any    `json:"metadata"`
	Artifacts            []artifactRequest `json:"artifacts"`
	Summary              map[string]any    `json:"summary"`
	Actor                string            `json:"actor"`
	AgentKind            string            `json:"agent_kind"`
	ExcludeFromComposite bool              `json:"exclude_from_composite"`
}

// POST /api/processing/run
func (h *ProcessingHandler) Run(c *gin.Context) {
	var req runRequest
	if !bindJSON(c, &req) {
		return
	}
	run, err := h.svc.Run(c.Request.Context(), services.RunProcessingInput{
		Target:               req.target(),
		ProcessingType:       req.ProcessingType,
		MethodKey:            req.MethodKey,
		ParentMethodKeys:     req.ParentMethodKeys,
		Parameters:           req.Parameters,
		Metadata:             req.Metadata,
		Artifacts:            toArtifactInputs(req.Artifacts),
		Summary:              req.Summary,
		Actor:                req.Actor,
		AgentKind:            req.AgentKind,
		ExcludeFromComposite: req.ExcludeFromComposite,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	status := http.StatusCreated
	if run.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"run": run})
}

type startRequest struct {
	targetRequest
	ProcessingType       string         `json:"processing_type" binding:"required"`
	MethodKey            string         `json:"method_key" binding:"required"`
	JobID                string         `json:"job_id" binding:"required"`
	ParentMethodKeys     []string       `json:"parent_method_keys"`
	Parameters           map[string]any `json:"parameters"`
	Metadata             map[string]any `json:"metadata"`
	Actor                string         `json:"actor"`
	ExcludeFromComposite bool           `json:"exclude_from_composite"`
}

// POST /api/processing/start
func (h *ProcessingHandler) Start(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req) {
		return
	}
	run, err := h.svc.Start(c.Request.Context(), services.StartProcessingInput{
		Target:               req.target(),
		ProcessingType:       req.ProcessingType,
		MethodKey:            req.MethodKey,
		JobID:                req.JobID,
		ParentMethodKeys:     req.ParentMethodKeys,
		Parameters:           req.Parameters,
		Metadata:             req.Metadata,
		Actor:                req.Actor,
		ExcludeFromComposite: req.ExcludeFromComposite,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	out := gin.H{"run": run}
	if h.async() {
		runID, err := h.dispatcher.Start(c.Request.Context(), run.Group.ID)
		if err != nil {
			response.RespondError(c, http.StatusServiceUnavailable, "workflow_start_failed", err)
			return
		}
		out["workflow_id"] = processingrun.WorkflowID(run.Group.ID.String())
		out["workflow_run_id"] = runID
	}
	c.JSON(http.StatusAccepted, out)
}

// POST /api/groups/:id/running
func (h *ProcessingHandler) MarkRunning(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	g, err := h.svc.MarkRunning(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"group": g})
}

type completeRequest struct {
	Artifacts []artifactRequest `json:"artifacts"`
	Summary   map[string]any    `json:"summary"`
	Agent     string            `json:"agent"`
	AgentKind string            `json:"agent_kind"`
}

// POST /api/groups/:id/complete
func (h *ProcessingHandler) Complete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req completeRequest
	if !bindJSON(c, &req) {
		return
	}
	if h.async() {
		payload := make([]processingrun.ArtifactPayload, 0, len(req.Artifacts))
		for _, a := range req.Artifacts {
			payload = append(payload, processingrun.ArtifactPayload{Content: a.Content, Metadata: a.Metadata})
		}
		h.signal(c, id, processingrun.GroupResult{Artifacts: payload, Summary: req.Summary, Agent: req.Agent, AgentKind: req.AgentKind})
		return
	}
	run, err := h.svc.Complete(c.Request.Context(), services.CompleteProcessingInput{
		GroupID:   id,
		Artifacts: toArtifactInputs(req.Artifacts),
		Summary:   req.Summary,
		Agent:     domainagg.Agent{ID: req.Agent, Kind: req.AgentKind},
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

type failRequest struct {
	Error string `json:"error" binding:"required"`
}

// POST /api/groups/:id/fail
func (h *ProcessingHandler) Fail(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req failRequest
	if !bindJSON(c, &req) {
		return
	}
	if h.async() {
		h.signal(c, id, processingrun.GroupResult{Error: req.Error})
		return
	}
	g, err := h.svc.Fail(c.Request.Context(), id, req.Error)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"group": g})
}

func (h *ProcessingHandler) signal(c *gin.Context, groupID uuid.UUID, result processingrun.GroupResult) {
	if err := h.dispatcher.Signal(c.Request.Context(), groupID, result); err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "workflow_signal_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"group_id": groupID, "workflow_id": processingrun.WorkflowID(groupID.String())})
}
