package processing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type OperationRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProcessingOperation) ([]*types.ProcessingOperation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingOperation, error)
	GetByJobID(dbc dbctx.Context, jobID string) (*types.ProcessingOperation, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProcessingOperation, error)
	// ListByDocumentIDs filters on status when given; results are oldest-first by start time.
	ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID, status string) ([]*types.ProcessingOperation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type operationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOperationRepo(db *gorm.DB, baseLog *logger.Logger) OperationRepo {
	return &operationRepo{db: db, log: baseLog.With("repo", "OperationRepo")}
}

func (r *operationRepo) Create(dbc dbctx.Context, rows []*types.ProcessingOperation) ([]*types.ProcessingOperation, error) {
	if len(rows) == 0 {
		return []*types.ProcessingOperation{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *operationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingOperation, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ProcessingOperation
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *operationRepo) GetByJobID(dbc dbctx.Context, jobID string) (*types.ProcessingOperation, error) {
	if jobID == "" {
		return nil, nil
	}
	var row types.ProcessingOperation
	if err := dbc.DB(r.db).
		Where("job_id = ?", jobID).
		Order("started_at DESC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *operationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProcessingOperation, error) {
	var out []*types.ProcessingOperation
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *operationRepo) ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID, status string) ([]*types.ProcessingOperation, error) {
	var out []*types.ProcessingOperation
	if len(documentIDs) == 0 {
		return out, nil
	}
	q := dbc.DB(r.db).Where("document_id IN ?", documentIDs)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("started_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *operationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.ProcessingOperation{}).Where("id = ?", id).Updates(updates).Error
}

func (r *operationRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.ProcessingOperation{})
	return res.RowsAffected, res.Error
}
