package main

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, err := parseID(" " + id.String() + " ")
	if err != nil || got != id {
		t.Fatalf("parseID: %v %v", got, err)
	}
	if _, err := parseID("doc-1"); err == nil {
		t.Fatalf("expected error for a non-uuid id")
	}
}

func TestPurgeRequiresConfirmation(t *testing.T) {
	cmd := newPurgeCmd()
	cmd.SetArgs([]string{uuid.NewString()})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected confirmation error, got %v", err)
	}
}

func TestExportRejectsBadID(t *testing.T) {
	cmd := newExportCmd()
	cmd.SetArgs([]string{"nope"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "invalid id") {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}
