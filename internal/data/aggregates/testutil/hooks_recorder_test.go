package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestHooksRecorderCapturesSignalsPerOperation(t *testing.T) {
	h := &HooksRecorder{}
	h.ObserveOperation("Processing.Registry.CreateOrGetGroup", "success", 10*time.Millisecond)
	h.ObserveOperation("Documents.Versioning.GetOrCreateExperimentVersion", "integrity_violation", time.Millisecond)
	h.IncConflict("Processing.Registry.CreateOrGetGroup")
	h.IncRetry("Documents.Versioning.CreateIsolatedVersion")

	if len(h.Operations) != 2 {
		t.Fatalf("expected 2 op events, got %d", len(h.Operations))
	}
	if h.Operations[0].Name != "Processing.Registry.CreateOrGetGroup" || h.Operations[0].Status != "success" {
		t.Fatalf("unexpected first event: %+v", h.Operations[0])
	}
	if h.Operations[1].Status != "integrity_violation" || h.Operations[1].Duration != time.Millisecond {
		t.Fatalf("unexpected second event: %+v", h.Operations[1])
	}
	if len(h.Conflicts) != 1 || h.Conflicts[0] != "Processing.Registry.CreateOrGetGroup" {
		t.Fatalf("unexpected conflicts: %+v", h.Conflicts)
	}
	if len(h.Retries) != 1 || h.Retries[0] != "Documents.Versioning.CreateIsolatedVersion" {
		t.Fatalf("unexpected retries: %+v", h.Retries)
	}
}

func TestHooksRecorderIsSafeForConcurrentWriters(t *testing.T) {
	h := &HooksRecorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ObserveOperation("Documents.Composite.CreateComposite", "conflict", 0)
			h.IncConflict("Documents.Composite.CreateComposite")
		}()
	}
	wg.Wait()
	if len(h.Operations) != 8 || len(h.Conflicts) != 8 {
		t.Fatalf("lost signals: ops=%d conflicts=%d", len(h.Operations), len(h.Conflicts))
	}
}
