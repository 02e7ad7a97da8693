package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/docprov-backend/internal/domain"
	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
	"github.com/yungbote/docprov-backend/internal/services"
	"github.com/yungbote/docprov-backend/internal/temporalx/processingrun"
)

// fakeDocs implements only what the tests call; anything else panics on the nil embed.
type fakeDocs struct {
	services.DocumentService
	created  domainagg.CreateOriginalInput
	getErr   error
	purgeErr error
}

func (f *fakeDocs) CreateOriginal(_ context.Context, in domainagg.CreateOriginalInput) (*types.Document, error) {
	f.created = in
	return &types.Document{ID: uuid.New(), Title: in.Title, VersionNumber: 1}, nil
}

func (f *fakeDocs) Get(_ context.Context, id uuid.UUID) (*types.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &types.Document{ID: id}, nil
}

func (f *fakeDocs) PurgeFamily(_ context.Context, rootID uuid.UUID) (domainagg.PurgeReport, error) {
	if f.purgeErr != nil {
		return domainagg.PurgeReport{}, f.purgeErr
	}
	return domainagg.PurgeReport{RootDocumentID: rootID}, nil
}

type fakeProcessing struct {
	services.ProcessingService
	replay    bool
	completed []uuid.UUID
	groupID   uuid.UUID
}

func (f *fakeProcessing) Run(_ context.Context, in services.RunProcessingInput) (*services.ProcessingRun, error) {
	return &services.ProcessingRun{
		Document: &types.Document{ID: in.Target.DocumentID},
		Group:    &processing.ProcessingArtifactGroup{ID: f.groupID, Status: processing.StatusCompleted},
		Replayed: f.replay,
	}, nil
}

func (f *fakeProcessing) Start(_ context.Context, in services.StartProcessingInput) (*services.ProcessingRun, error) {
	return &services.ProcessingRun{
		Document: &types.Document{ID: in.Target.DocumentID},
		Group:    &processing.ProcessingArtifactGroup{ID: f.groupID, Status: processing.StatusPending},
	}, nil
}

func (f *fakeProcessing) Complete(_ context.Context, in services.CompleteProcessingInput) (*services.ProcessingRun, error) {
	f.completed = append(f.completed, in.GroupID)
	return &services.ProcessingRun{Group: &processing.ProcessingArtifactGroup{ID: in.GroupID, Status: processing.StatusCompleted}}, nil
}

type fakeDispatcher struct {
	started  []uuid.UUID
	signaled map[uuid.UUID]processingrun.GroupResult
}

func (d *fakeDispatcher) Enabled() bool { return d != nil }

func (d *fakeDispatcher) Start(_ context.Context, groupID uuid.UUID) (string, error) {
	d.started = append(d.started, groupID)
	return "run-1", nil
}

func (d *fakeDispatcher) Signal(_ context.Context, groupID uuid.UUID, result processingrun.GroupResult) error {
	if d.signaled == nil {
		d.signaled = map[uuid.UUID]processingrun.GroupResult{}
	}
	d.signaled[groupID] = result
	return nil
}

func newTestRouter(docs *fakeDocs, proc *fakeProcessing, dispatcher ProcessingDispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	dh := NewDocumentHandler(docs)
	ph := NewProcessingHandler(proc, dispatcher)
	r.POST("/api/documents", dh.CreateDocument)
	r.GET("/api/documents/:id", dh.GetDocument)
	r.DELETE("/api/documents/:id/family", dh.PurgeFamily)
	r.POST("/api/processing/run", ph.Run)
	r.POST("/api/processing/start", ph.Start)
	r.POST("/api/groups/:id/complete", ph.Complete)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCreateDocumentValidatesBody(t *testing.T) {
	docs := &fakeDocs{}
	r := newTestRouter(docs, &fakeProcessing{}, nil)

	rec, body := do(t, r, http.MethodPost, "/api/documents", map[string]any{"content": "no title"})
	if rec.Code != http.StatusBadRequest || errorCode(body) != "invalid_request" {
		t.Fatalf("missing title: status=%d body=%v", rec.Code, body)
	}

	rec, _ = do(t, r, http.MethodPost, "/api/documents", map[string]any{
		"title": "Tale", "content": "words",
		"temporal": map[string]any{"era": "victorian", "authors": []string{"Dickens"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status=%d", rec.Code)
	}
	if docs.created.Title != "Tale" || docs.created.Temporal == nil || docs.created.Temporal.Era != "victorian" {
		t.Fatalf("input: %+v", docs.created)
	}
}

func TestGetDocumentMapsErrors(t *testing.T) {
	r := newTestRouter(&fakeDocs{getErr: domainagg.NewError(domainagg.CodeNotFound, "Get", "document not found", nil)}, &fakeProcessing{}, nil)

	rec, body := do(t, r, http.MethodGet, "/api/documents/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest || errorCode(body) != "invalid_id" {
		t.Fatalf("bad id: status=%d body=%v", rec.Code, body)
	}
	rec, body = do(t, r, http.MethodGet, "/api/documents/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound || errorCode(body) != "not_found" {
		t.Fatalf("missing: status=%d body=%v", rec.Code, body)
	}
}

func TestPurgeBlockedReturnsConflictWithDetails(t *testing.T) {
	blocked := domainagg.NewErrorWithDetails(domainagg.CodeIntegrityViolation, "Purge", "family is linked to experiments",
		map[string]any{"blocking_experiments": []string{"exp-1"}})
	r := newTestRouter(&fakeDocs{purgeErr: blocked}, &fakeProcessing{}, nil)

	rec, body := do(t, r, http.MethodDelete, "/api/documents/"+uuid.NewString()+"/family", nil)
	if rec.Code != http.StatusConflict || errorCode(body) != "integrity_violation" {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
	details, _ := body["error"].(map[string]any)["details"].(map[string]any)
	if details["blocking_experiments"] == nil {
		t.Fatalf("details: %v", body)
	}
}

func TestRunStatusReflectsReplay(t *testing.T) {
	proc := &fakeProcessing{groupID: uuid.New()}
	r := newTestRouter(&fakeDocs{}, proc, nil)
	req := map[string]any{"document_id": uuid.NewString(), "processing_type": "segmentation", "method_key": "paragraph"}

	if rec, _ := do(t, r, http.MethodPost, "/api/processing/run", req); rec.Code != http.StatusCreated {
		t.Fatalf("first run: %d", rec.Code)
	}
	proc.replay = true
	if rec, _ := do(t, r, http.MethodPost, "/api/processing/run", req); rec.Code != http.StatusOK {
		t.Fatalf("replayed run: %d", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodPost, "/api/processing/run", map[string]any{"processing_type": "segmentation"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing document id: %d", rec.Code)
	}
}

func TestAsyncGroupGoesThroughDispatcher(t *testing.T) {
	proc := &fakeProcessing{groupID: uuid.New()}
	disp := &fakeDispatcher{}
	r := newTestRouter(&fakeDocs{}, proc, disp)

	rec, body := do(t, r, http.MethodPost, "/api/processing/start", map[string]any{
		"document_id": uuid.NewString(), "processing_type": "embeddings", "method_key": "minilm", "job_id": "job-1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status=%d body=%v", rec.Code, body)
	}
	if len(disp.started) != 1 || disp.started[0] != proc.groupID {
		t.Fatalf("dispatcher starts: %v", disp.started)
	}
	if body["workflow_id"] != processingrun.WorkflowID(proc.groupID.String()) {
		t.Fatalf("workflow id: %v", body["workflow_id"])
	}

	rec, _ = do(t, r, http.MethodPost, "/api/groups/"+proc.groupID.String()+"/complete", map[string]any{
		"artifacts": []map[string]any{{"content": []float64{0.1}}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("complete: %d", rec.Code)
	}
	if got := disp.signaled[proc.groupID]; len(got.Artifacts) != 1 {
		t.Fatalf("signal payload: %+v", got)
	}
	if len(proc.completed) != 0 {
		t.Fatalf("async completion must not call the service directly")
	}
}

func TestSyncCompleteWithoutDispatcher(t *testing.T) {
	proc := &fakeProcessing{}
	r := newTestRouter(&fakeDocs{}, proc, nil)
	gid := uuid.New()

	rec, _ := do(t, r, http.MethodPost, "/api/groups/"+gid.String()+"/complete", map[string]any{"summary": map[string]any{"n": 1}})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: %d", rec.Code)
	}
	if len(proc.completed) != 1 || proc.completed[0] != gid {
		t.Fatalf("service calls: %v", proc.completed)
	}
}
