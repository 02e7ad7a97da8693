package composite

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type SourceRepo interface {
	Create(dbc dbctx.Context, rows []*types.CompositeSource) ([]*types.CompositeSource, error)
	// ListByComposite returns sources lowest priority first.
	ListByComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*types.CompositeSource, error)
	// CompositeIDsForSources returns every composite that draws on any of the given documents.
	CompositeIDsForSources(dbc dbctx.Context, sourceIDs []uuid.UUID) ([]uuid.UUID, error)
	// DeleteByDocumentIDs removes rows where the documents appear on either side.
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{db: db, log: baseLog.With("repo", "CompositeSourceRepo")}
}

func (r *sourceRepo) Create(dbc dbctx.Context, rows []*types.CompositeSource) ([]*types.CompositeSource, error) {
	if len(rows) == 0 {
		return []*types.CompositeSource{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sourceRepo) ListByComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*types.CompositeSource, error) {
	var out []*types.CompositeSource
	if compositeID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("composite_document_id = ?", compositeID).
		Order("priority ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceRepo) CompositeIDsForSources(dbc dbctx.Context, sourceIDs []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(sourceIDs) == 0 {
		return ids, nil
	}
	if err := dbc.DB(r.db).
		Model(&types.CompositeSource{}).
		Distinct("composite_document_id").
		Where("source_version_id IN ?", sourceIDs).
		Pluck("composite_document_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sourceRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Where("composite_document_id IN ? OR source_version_id IN ?", documentIDs, documentIDs).
		Delete(&types.CompositeSource{})
	return res.RowsAffected, res.Error
}
