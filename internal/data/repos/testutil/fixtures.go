package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
	"github.com/yungbote/docprov-backend/internal/domain/processing"
)

func SeedOriginal(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:            uuid.New(),
		Title:         title,
		VersionNumber: 1,
		VersionType:   documents.VersionTypeOriginal,
		Content:       "the quick brown fox",
		ContentType:   "text/plain",
		WordCount:     4,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed original: %v", err)
	}
	return d
}

func SeedVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, root *types.Document, number int, versionType string) *types.Document {
	tb.Helper()
	rootID := root.ID
	d := &types.Document{
		ID:               uuid.New(),
		Title:            root.Title,
		VersionNumber:    number,
		VersionType:      versionType,
		SourceDocumentID: &rootID,
		Content:          root.Content,
		ContentType:      root.ContentType,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed version: %v", err)
	}
	return d
}

func SeedExperiment(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.Experiment {
	tb.Helper()
	e := &types.Experiment{
		ID:             uuid.New(),
		Name:           name,
		ExperimentType: "segmentation",
		Status:         "draft",
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed experiment: %v", err)
	}
	return e
}

func SeedOperation(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, processingType, status string, completedAt *time.Time) *types.ProcessingOperation {
	tb.Helper()
	op := &types.ProcessingOperation{
		ID:             uuid.New(),
		DocumentID:     documentID,
		ProcessingType: processingType,
		MethodKey:      processingType + "_v1",
		Status:         status,
		StartedAt:      time.Now().UTC(),
		CompletedAt:    completedAt,
	}
	if err := tx.WithContext(ctx).Create(op).Error; err != nil {
		tb.Fatalf("seed operation: %v", err)
	}
	return op
}

func SeedGroup(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, artifactType, methodKey string) *types.ProcessingArtifactGroup {
	tb.Helper()
	g := &types.ProcessingArtifactGroup{
		ID:                 uuid.New(),
		DocumentID:         documentID,
		ArtifactType:       artifactType,
		MethodKey:          methodKey,
		Status:             processing.StatusCompleted,
		IncludeInComposite: true,
		ParentMethodKeys:   datatypes.JSONSlice[string]{},
	}
	if err := tx.WithContext(ctx).Create(g).Error; err != nil {
		tb.Fatalf("seed group: %v", err)
	}
	return g
}

func SeedArtifact(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, groupID *uuid.UUID, artifactType, methodKey string, index int) *types.ProcessingArtifact {
	tb.Helper()
	a := &types.ProcessingArtifact{
		ID:            uuid.New(),
		GroupID:       groupID,
		DocumentID:    documentID,
		ArtifactType:  artifactType,
		MethodKey:     methodKey,
		ArtifactIndex: index,
		Content:       datatypes.JSON([]byte(`{"text":"s"}`)),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed artifact: %v", err)
	}
	return a
}

func PtrTime(v time.Time) *time.Time { return &v }
