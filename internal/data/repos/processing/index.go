package processing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type IndexRepo interface {
	// Upsert keys on (document_id, processing_operation_id).
	Upsert(dbc dbctx.Context, row *types.DocumentProcessingIndex) error
	ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentProcessingIndex, error)
	UpdateStatusByOperation(dbc dbctx.Context, operationID uuid.UUID, status string) error
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type indexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIndexRepo(db *gorm.DB, baseLog *logger.Logger) IndexRepo {
	return &indexRepo{db: db, log: baseLog.With("repo", "IndexRepo")}
}

func (r *indexRepo) Upsert(dbc dbctx.Context, row *types.DocumentProcessingIndex) error {
	if row == nil {
		return nil
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "processing_operation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"artifact_group_id", "status", "updated_at"}),
		}).
		Create(row).Error
}

func (r *indexRepo) ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentProcessingIndex, error) {
	var out []*types.DocumentProcessingIndex
	if len(documentIDs) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *indexRepo) UpdateStatusByOperation(dbc dbctx.Context, operationID uuid.UUID, status string) error {
	if operationID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.DocumentProcessingIndex{}).
		Where("processing_operation_id = ?", operationID).
		Update("status", status).Error
}

func (r *indexRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.DocumentProcessingIndex{})
	return res.RowsAffected, res.Error
}
