package processing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

// GroupFilter narrows ListGroups. Empty fields match everything.
type GroupFilter struct {
	DocumentIDs     []uuid.UUID
	ArtifactType    string
	Status          string
	IncludeDisabled bool
}

type GroupRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProcessingArtifactGroup) ([]*types.ProcessingArtifactGroup, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingArtifactGroup, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProcessingArtifactGroup, error)
	GetByKey(dbc dbctx.Context, documentID uuid.UUID, artifactType, methodKey string) (*types.ProcessingArtifactGroup, error)
	List(dbc dbctx.Context, f GroupFilter) ([]*types.ProcessingArtifactGroup, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{db: db, log: baseLog.With("repo", "GroupRepo")}
}

func (r *groupRepo) Create(dbc dbctx.Context, rows []*types.ProcessingArtifactGroup) ([]*types.ProcessingArtifactGroup, error) {
	if len(rows) == 0 {
		return []*types.ProcessingArtifactGroup{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *groupRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingArtifactGroup, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.ProcessingArtifactGroup
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *groupRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProcessingArtifactGroup, error) {
	var out []*types.ProcessingArtifactGroup
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *groupRepo) GetByKey(dbc dbctx.Context, documentID uuid.UUID, artifactType, methodKey string) (*types.ProcessingArtifactGroup, error) {
	var row types.ProcessingArtifactGroup
	if err := dbc.DB(r.db).
		Where("document_id = ? AND artifact_type = ? AND method_key = ?", documentID, artifactType, methodKey).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *groupRepo) List(dbc dbctx.Context, f GroupFilter) ([]*types.ProcessingArtifactGroup, error) {
	var out []*types.ProcessingArtifactGroup
	q := dbc.DB(r.db).Model(&types.ProcessingArtifactGroup{})
	if len(f.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", f.DocumentIDs)
	}
	if f.ArtifactType != "" {
		q = q.Where("artifact_type = ?", f.ArtifactType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.IncludeDisabled {
		q = q.Where("include_in_composite = ?", true)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *groupRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.ProcessingArtifactGroup{}).Where("id = ?", id).Updates(updates).Error
}

func (r *groupRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.ProcessingArtifactGroup{})
	return res.RowsAffected, res.Error
}
