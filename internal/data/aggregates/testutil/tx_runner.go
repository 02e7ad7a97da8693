package testutil

import (
	"sync"

	"github.com/yungbote/docprov-backend/internal/data/aggregates"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

// InjectedTxRunner is a test helper for aggregate integration tests.
// It supports rollback/failure injection, and with Inner set it delegates to a real
// runner. BeforeBegin runs ahead of the transaction, which is where a concurrent writer
// that committed first would have landed.
type InjectedTxRunner struct {
	mu sync.Mutex

	Inner aggregates.TxRunner

	FailBegin      error
	FailBeforeBody error
	FailCommit     error
	// BeforeBegin runs on the first N calls (all calls when BeforeBeginCalls is 0).
	BeforeBegin      func(dbc dbctx.Context) error
	BeforeBeginCalls int

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	call := r.BeginCalls
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	failCommit := r.FailCommit
	before := r.BeforeBegin
	if r.BeforeBeginCalls > 0 && call > r.BeforeBeginCalls {
		before = nil
	}
	r.mu.Unlock()

	if before != nil {
		if err := before(dbc); err != nil {
			return err
		}
	}
	if failBegin != nil {
		return failBegin
	}
	if failBeforeBody != nil {
		r.rollback()
		return failBeforeBody
	}
	body := func(dbc dbctx.Context) error {
		if fn == nil {
			return nil
		}
		if err := fn(dbc); err != nil {
			return err
		}
		return failCommit
	}

	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(dbc, body)
	} else {
		err = body(dbc)
	}
	if err != nil {
		r.rollback()
		return err
	}
	r.mu.Lock()
	r.CommitCalls++
	r.mu.Unlock()
	return nil
}

func (r *InjectedTxRunner) rollback() {
	r.mu.Lock()
	r.RollbackCalls++
	r.mu.Unlock()
}
