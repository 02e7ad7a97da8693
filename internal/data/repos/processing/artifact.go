package processing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type ArtifactRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProcessingArtifact) ([]*types.ProcessingArtifact, error)
	ListByGroupID(dbc dbctx.Context, groupID uuid.UUID) ([]*types.ProcessingArtifact, error)
	CountByGroupIDs(dbc dbctx.Context, groupIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	// MaxIndex returns -1 when the group has no artifacts.
	MaxIndex(dbc dbctx.Context, groupID uuid.UUID) (int, error)
	// ListUngrouped returns legacy rows with no group, keyed for backfill.
	ListUngrouped(dbc dbctx.Context, documentID uuid.UUID, artifactType string) ([]*types.ProcessingArtifact, error)
	LinkGroup(dbc dbctx.Context, artifactIDs []uuid.UUID, groupID uuid.UUID) (int64, error)
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: db, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) Create(dbc dbctx.Context, rows []*types.ProcessingArtifact) ([]*types.ProcessingArtifact, error) {
	if len(rows) == 0 {
		return []*types.ProcessingArtifact{}, nil
	}
	if err := dbc.DB(r.db).CreateInBatches(&rows, 200).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *artifactRepo) ListByGroupID(dbc dbctx.Context, groupID uuid.UUID) ([]*types.ProcessingArtifact, error) {
	var out []*types.ProcessingArtifact
	if groupID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("processing_id = ?", groupID).
		Order("artifact_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) CountByGroupIDs(dbc dbctx.Context, groupIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	type countRow struct {
		ProcessingID uuid.UUID
		N            int64
	}
	var rows []countRow
	if err := dbc.DB(r.db).
		Model(&types.ProcessingArtifact{}).
		Select("processing_id, COUNT(*) AS n").
		Where("processing_id IN ?", groupIDs).
		Group("processing_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProcessingID] = row.N
	}
	return out, nil
}

func (r *artifactRepo) MaxIndex(dbc dbctx.Context, groupID uuid.UUID) (int, error) {
	var max int
	if err := dbc.DB(r.db).
		Model(&types.ProcessingArtifact{}).
		Where("processing_id = ?", groupID).
		Select("COALESCE(MAX(artifact_index), -1)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

func (r *artifactRepo) ListUngrouped(dbc dbctx.Context, documentID uuid.UUID, artifactType string) ([]*types.ProcessingArtifact, error) {
	var out []*types.ProcessingArtifact
	q := dbc.DB(r.db).Where("processing_id IS NULL")
	if documentID != uuid.Nil {
		q = q.Where("document_id = ?", documentID)
	}
	if artifactType != "" {
		q = q.Where("artifact_type = ?", artifactType)
	}
	if err := q.Order("document_id ASC, artifact_type ASC, method_key ASC, artifact_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *artifactRepo) LinkGroup(dbc dbctx.Context, artifactIDs []uuid.UUID, groupID uuid.UUID) (int64, error) {
	if len(artifactIDs) == 0 || groupID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.ProcessingArtifact{}).
		Where("id IN ? AND processing_id IS NULL", artifactIDs).
		UpdateColumn("processing_id", groupID)
	return res.RowsAffected, res.Error
}

func (r *artifactRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.ProcessingArtifact{})
	return res.RowsAffected, res.Error
}
