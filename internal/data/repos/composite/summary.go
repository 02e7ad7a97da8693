package composite

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type SummaryRepo interface {
	// Replace swaps the full summary set of a composite.
	Replace(dbc dbctx.Context, compositeID uuid.UUID, rows []*types.DocumentProcessingSummary) error
	ListByComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*types.DocumentProcessingSummary, error)
	// DeleteByDocumentIDs removes rows owned by, or sourced from, the given documents.
	// Summaries pointing at operations of those documents go too.
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type summaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSummaryRepo(db *gorm.DB, baseLog *logger.Logger) SummaryRepo {
	return &summaryRepo{db: db, log: baseLog.With("repo", "ProcessingSummaryRepo")}
}

func (r *summaryRepo) Replace(dbc dbctx.Context, compositeID uuid.UUID, rows []*types.DocumentProcessingSummary) error {
	if compositeID == uuid.Nil {
		return nil
	}
	t := dbc.DB(r.db)
	if err := t.Where("document_id = ?", compositeID).Delete(&types.DocumentProcessingSummary{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		row.DocumentID = compositeID
	}
	return t.Create(&rows).Error
}

func (r *summaryRepo) ListByComposite(dbc dbctx.Context, compositeID uuid.UUID) ([]*types.DocumentProcessingSummary, error) {
	var out []*types.DocumentProcessingSummary
	if compositeID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("document_id = ?", compositeID).
		Order("processing_type ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *summaryRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	t := dbc.DB(r.db)
	ops := t.Session(&gorm.Session{NewDB: true}).
		Model(&types.ProcessingOperation{}).
		Select("id").
		Where("document_id IN ?", documentIDs)
	res := t.
		Where("document_id IN ? OR source_version_id IN ? OR processing_operation_id IN (?)", documentIDs, documentIDs, ops).
		Delete(&types.DocumentProcessingSummary{})
	return res.RowsAffected, res.Error
}
