package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/http/response"
	"github.com/yungbote/docprov-backend/internal/services"
)

type DocumentHandler struct {
	docs services.DocumentService
}

func NewDocumentHandler(docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type createDocumentRequest struct {
	Title            string            `json:"title" binding:"required"`
	Content          string            `json:"content"`
	ContentType      string            `json:"content_type"`
	OwnerID          string            `json:"owner_id"`
	DetectedLanguage string            `json:"detected_language"`
	Temporal         *temporalMetadata `json:"temporal,omitempty"`
}

type temporalMetadata struct {
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Era             string     `json:"era,omitempty"`
	Authors         []string   `json:"authors,omitempty"`
	SourceCitation  string     `json:"source_citation,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
}

// POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	in := domainagg.CreateOriginalInput{
		Title:            req.Title,
		Content:          req.Content,
		ContentType:      req.ContentType,
		OwnerID:          req.OwnerID,
		DetectedLanguage: req.DetectedLanguage,
	}
	if t := req.Temporal; t != nil {
		in.Temporal = &documents.DocumentTemporalMetadata{
			PublicationDate: t.PublicationDate,
			Era:             t.Era,
			Authors:         datatypes.JSONSlice[string](t.Authors),
			SourceCitation:  t.SourceCitation,
			Publisher:       t.Publisher,
		}
	}
	doc, err := h.docs.CreateOriginal(c.Request.Context(), in)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// GET /api/documents/:id/family
func (h *DocumentHandler) ListFamily(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	docs, err := h.docs.Family(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// GET /api/documents/:id/latest
func (h *DocumentHandler) LatestVersion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	doc, err := h.docs.Latest(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// GET /api/documents/:id/history
func (h *DocumentHandler) VersionHistory(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.docs.History(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"changelog": rows})
}

type createVersionRequest struct {
	ProcessingType string         `json:"processing_type" binding:"required"`
	Actor          string         `json:"actor"`
	Reason         string         `json:"reason"`
	Extra          map[string]any `json:"extra"`
}

// POST /api/documents/:id/versions
func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req createVersionRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.docs.CreateVersion(c.Request.Context(), domainagg.CreateIsolatedVersionInput{
		DocumentID:     id,
		ProcessingType: req.ProcessingType,
		Actor:          req.Actor,
		Reason:         req.Reason,
		Extra:          req.Extra,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

type experimentVersionRequest struct {
	ExperimentID uuid.UUID `json:"experiment_id" binding:"required"`
	Actor        string    `json:"actor"`
}

// POST /api/documents/:id/experiment-version
func (h *DocumentHandler) ExperimentVersion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req experimentVersionRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, created, err := h.docs.ExperimentVersion(c.Request.Context(), domainagg.ExperimentVersionInput{
		DocumentID:   id,
		ExperimentID: req.ExperimentID,
		Actor:        req.Actor,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	if created {
		response.RespondCreated(c, gin.H{"document": doc, "created": true})
		return
	}
	response.RespondOK(c, gin.H{"document": doc, "created": false})
}

// GET /api/documents/:id/groups
func (h *DocumentHandler) ListGroups(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	groups, err := h.docs.ListGroups(c.Request.Context(), domainagg.ListGroupsInput{
		DocumentID:      id,
		ArtifactType:    strings.TrimSpace(c.Query("artifact_type")),
		IncludeDisabled: queryBool(c, "include_disabled"),
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"groups": groups})
}

// GET /api/groups/:id/artifacts
func (h *DocumentHandler) ListArtifacts(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	arts, err := h.docs.ListArtifacts(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"artifacts": arts})
}

// GET /api/documents/:id/processing
func (h *DocumentHandler) AvailableProcessing(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	view, err := h.docs.AvailableProcessing(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"view": view})
}

// GET /api/documents/:id/recommendations
func (h *DocumentHandler) Recommendations(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	recs, err := h.docs.Recommend(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": recs})
}

// GET /api/documents/:id/provenance
func (h *DocumentHandler) ExportProvenance(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	g, err := h.docs.ExportProvenance(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, g)
}

// DELETE /api/documents/:id/family
func (h *DocumentHandler) PurgeFamily(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	report, err := h.docs.PurgeFamily(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

type createCompositeRequest struct {
	Title             string      `json:"title" binding:"required"`
	SourceDocumentIDs []uuid.UUID `json:"source_document_ids" binding:"required,min=1"`
	Strategy          string      `json:"strategy"`
	OwnerID           string      `json:"owner_id"`
}

// POST /api/composites
func (h *DocumentHandler) CreateComposite(c *gin.Context) {
	var req createCompositeRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.docs.CreateComposite(c.Request.Context(), domainagg.CreateCompositeInput{
		Title:             req.Title,
		SourceDocumentIDs: req.SourceDocumentIDs,
		Strategy:          req.Strategy,
		OwnerID:           req.OwnerID,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

// POST /api/composites/:id/refresh
func (h *DocumentHandler) RefreshComposite(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.docs.UpdateComposite(c.Request.Context(), id)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summaries": rows})
}

type createExperimentRequest struct {
	Name           string         `json:"name" binding:"required"`
	Description    string         `json:"description"`
	ExperimentType string         `json:"experiment_type"`
	OwnerID        string         `json:"owner_id"`
	Configuration  map[string]any `json:"configuration"`
}

// POST /api/experiments
func (h *DocumentHandler) CreateExperiment(c *gin.Context) {
	var req createExperimentRequest
	if !bindJSON(c, &req) {
		return
	}
	exp, err := h.docs.CreateExperiment(c.Request.Context(), services.CreateExperimentInput{
		Name:           req.Name,
		Description:    req.Description,
		ExperimentType: req.ExperimentType,
		OwnerID:        req.OwnerID,
		Configuration:  req.Configuration,
	})
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"experiment": exp})
}

// DELETE /api/experiments/:id/documents/:document_id
func (h *DocumentHandler) UnlinkExperiment(c *gin.Context) {
	expID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	docID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	n, err := h.docs.UnlinkExperiment(c.Request.Context(), expID, docID)
	if err != nil {
		response.RespondAggregateError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"unlinked": n})
}
