package experiments

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type ExperimentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Experiment) ([]*types.Experiment, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Experiment, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Experiment, error)
}

type experimentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExperimentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentRepo {
	return &experimentRepo{db: db, log: baseLog.With("repo", "ExperimentRepo")}
}

func (r *experimentRepo) Create(dbc dbctx.Context, rows []*types.Experiment) ([]*types.Experiment, error) {
	if len(rows) == 0 {
		return []*types.Experiment{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *experimentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Experiment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *experimentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Experiment, error) {
	var out []*types.Experiment
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type ExperimentDocumentRepo interface {
	// Link is idempotent per (experiment, document).
	Link(dbc dbctx.Context, experimentID, documentID uuid.UUID) error
	Unlink(dbc dbctx.Context, experimentID, documentID uuid.UUID) (int64, error)
	ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.ExperimentDocument, error)
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type experimentDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExperimentDocumentRepo(db *gorm.DB, baseLog *logger.Logger) ExperimentDocumentRepo {
	return &experimentDocumentRepo{db: db, log: baseLog.With("repo", "ExperimentDocumentRepo")}
}

func (r *experimentDocumentRepo) Link(dbc dbctx.Context, experimentID, documentID uuid.UUID) error {
	if experimentID == uuid.Nil || documentID == uuid.Nil {
		return nil
	}
	row := &types.ExperimentDocument{ExperimentID: experimentID, DocumentID: documentID}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "experiment_id"}, {Name: "document_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *experimentDocumentRepo) Unlink(dbc dbctx.Context, experimentID, documentID uuid.UUID) (int64, error) {
	res := dbc.DB(r.db).
		Where("experiment_id = ? AND document_id = ?", experimentID, documentID).
		Delete(&types.ExperimentDocument{})
	return res.RowsAffected, res.Error
}

func (r *experimentDocumentRepo) ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.ExperimentDocument, error) {
	var out []*types.ExperimentDocument
	if len(documentIDs) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("document_id IN ?", documentIDs).
		Order("added_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *experimentDocumentRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.ExperimentDocument{})
	return res.RowsAffected, res.Error
}
