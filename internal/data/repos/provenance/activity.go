package provenance

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type ActivityRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProvenanceActivity) ([]*types.ProvenanceActivity, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProvenanceActivity, error)
	ListByRoot(dbc dbctx.Context, rootID uuid.UUID) ([]*types.ProvenanceActivity, error)
	DeleteByRoot(dbc dbctx.Context, rootID uuid.UUID) (int64, error)
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{db: db, log: baseLog.With("repo", "ProvenanceActivityRepo")}
}

func (r *activityRepo) Create(dbc dbctx.Context, rows []*types.ProvenanceActivity) ([]*types.ProvenanceActivity, error) {
	if len(rows) == 0 {
		return []*types.ProvenanceActivity{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *activityRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProvenanceActivity, error) {
	var out []*types.ProvenanceActivity
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *activityRepo) ListByRoot(dbc dbctx.Context, rootID uuid.UUID) ([]*types.ProvenanceActivity, error) {
	var out []*types.ProvenanceActivity
	if rootID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("root_document_id = ?", rootID).
		Order("started_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *activityRepo) DeleteByRoot(dbc dbctx.Context, rootID uuid.UUID) (int64, error) {
	if rootID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("root_document_id = ?", rootID).Delete(&types.ProvenanceActivity{})
	return res.RowsAffected, res.Error
}
