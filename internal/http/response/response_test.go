package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
)

func TestStatusFor(t *testing.T) {
	cases := map[domainagg.ErrorCode]int{
		domainagg.CodeValidation:           http.StatusBadRequest,
		domainagg.CodeNotFound:             http.StatusNotFound,
		domainagg.CodeConflict:             http.StatusConflict,
		domainagg.CodeIntegrityViolation:   http.StatusConflict,
		domainagg.CodeSerializationFailure: http.StatusUnprocessableEntity,
		domainagg.CodeRetryable:            http.StatusServiceUnavailable,
		domainagg.CodeInternal:             http.StatusInternalServerError,
		"":                                 http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Fatalf("%q: want=%d got=%d", code, want, got)
		}
	}
}

func TestRespondAggregateErrorCarriesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	err := fmt.Errorf("purge: %w", domainagg.NewErrorWithDetails(domainagg.CodeIntegrityViolation, "Purge", "family is linked to experiments",
		map[string]any{"blocking_experiments": []string{"exp-1"}}))
	RespondAggregateError(c, err)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: %d", rec.Code)
	}
	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "integrity_violation" || body.Error.Message != "family is linked to experiments" {
		t.Fatalf("body: %+v", body)
	}
	if _, ok := body.Error.Details["blocking_experiments"]; !ok {
		t.Fatalf("details missing: %+v", body.Error.Details)
	}
}
