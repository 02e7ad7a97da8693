package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type TemporalMetadataRepo interface {
	Create(dbc dbctx.Context, row *types.DocumentTemporalMetadata) (*types.DocumentTemporalMetadata, error)
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.DocumentTemporalMetadata, error)
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type temporalMetadataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemporalMetadataRepo(db *gorm.DB, baseLog *logger.Logger) TemporalMetadataRepo {
	return &temporalMetadataRepo{db: db, log: baseLog.With("repo", "TemporalMetadataRepo")}
}

func (r *temporalMetadataRepo) Create(dbc dbctx.Context, row *types.DocumentTemporalMetadata) (*types.DocumentTemporalMetadata, error) {
	if row == nil {
		return nil, nil
	}
	if err := dbc.DB(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *temporalMetadataRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.DocumentTemporalMetadata, error) {
	if documentID == uuid.Nil {
		return nil, nil
	}
	var row types.DocumentTemporalMetadata
	if err := dbc.DB(r.db).Where("document_id = ?", documentID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *temporalMetadataRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.DocumentTemporalMetadata{})
	return res.RowsAffected, res.Error
}
