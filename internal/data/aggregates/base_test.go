package aggregates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

func TestExecuteWriteReportsOutcomeToHooks(t *testing.T) {
	cases := []struct {
		name      string
		body      error
		code      domainagg.ErrorCode
		status    string
		conflicts int
		retries   int
	}{
		{name: "success", status: "success"},
		{name: "integrity", body: IntegrityError("linkage still present"), code: domainagg.CodeIntegrityViolation, status: string(domainagg.CodeIntegrityViolation)},
		{name: "conflict", body: ConflictError("stale version"), code: domainagg.CodeConflict, status: string(domainagg.CodeConflict), conflicts: 1},
		{name: "retryable", body: RetryableError("lock timeout"), code: domainagg.CodeRetryable, status: string(domainagg.CodeRetryable), retries: 1},
		{name: "raw fk", body: errors.New("FOREIGN KEY constraint failed"), code: domainagg.CodeIntegrityViolation, status: string(domainagg.CodeIntegrityViolation)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			op := "aggregate.test." + tc.name
			err := executeWrite(dbctx.Context{}, BaseDeps{Runner: passThroughRunner{}, Hooks: hooks}, op, func(dbctx.Context) error {
				return tc.body
			})
			if tc.body == nil && err != nil {
				t.Fatalf("executeWrite: %v", err)
			}
			if tc.body != nil && !domainagg.IsCode(err, tc.code) {
				t.Fatalf("want code %s, got %v", tc.code, err)
			}
			if len(hooks.Operations) != 1 || hooks.Operations[0].Name != op || hooks.Operations[0].Status != tc.status {
				t.Fatalf("operations: %+v", hooks.Operations)
			}
			if len(hooks.Conflicts) != tc.conflicts || len(hooks.Retries) != tc.retries {
				t.Fatalf("counters: conflicts=%v retries=%v", hooks.Conflicts, hooks.Retries)
			}
		})
	}
}

func TestAggregateErrorStatus(t *testing.T) {
	cases := map[string]error{
		"success":                                nil,
		string(domainagg.CodeIntegrityViolation): IntegrityError("x"),
		string(domainagg.CodeConflict):           errors.New("UNIQUE constraint failed: documents.source_document_id"),
		string(domainagg.CodeRetryable):          context.DeadlineExceeded,
	}
	for want, err := range cases {
		if got := aggregateErrorStatus(err); got != want {
			t.Fatalf("%v: want=%s got=%s", err, want, got)
		}
	}
}

type passThroughRunner struct{}

func (passThroughRunner) InTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(dbc)
}

type spyHooks struct {
	mu         sync.Mutex
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *spyHooks) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}
