package aggregates

import (
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("running", "pending", "running"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireStatusAllowed("failed", "pending", "running"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ok"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestCASGuardRejectsMissingArguments(t *testing.T) {
	g := NewCASGuard(nil)
	if _, err := g.UpdateByStatus(dbctx.Context{}, "processing_artifact_groups", uuid.New(), []string{"pending"}, nil); err == nil {
		t.Fatalf("expected error without db")
	}
}
