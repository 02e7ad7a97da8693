package provenance

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type EntityRepo interface {
	Create(dbc dbctx.Context, rows []*types.ProvenanceEntity) ([]*types.ProvenanceEntity, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProvenanceEntity, error)
	GetForVersion(dbc dbctx.Context, documentID uuid.UUID) (*types.ProvenanceEntity, error)
	GetForGroup(dbc dbctx.Context, groupID uuid.UUID) (*types.ProvenanceEntity, error)
	ListByRoot(dbc dbctx.Context, rootID uuid.UUID) ([]*types.ProvenanceEntity, error)
	// SetGeneratedBy fills generated_by_activity_id only when it is still empty.
	SetGeneratedBy(dbc dbctx.Context, entityID, activityID uuid.UUID) error
	// DeleteByRoot also removes entities that reference the family's documents or groups.
	DeleteByRoot(dbc dbctx.Context, rootID uuid.UUID, documentIDs []uuid.UUID) (int64, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "ProvenanceEntityRepo")}
}

func (r *entityRepo) Create(dbc dbctx.Context, rows []*types.ProvenanceEntity) ([]*types.ProvenanceEntity, error) {
	if len(rows) == 0 {
		return []*types.ProvenanceEntity{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *entityRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ProvenanceEntity, error) {
	var out []*types.ProvenanceEntity
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) GetForVersion(dbc dbctx.Context, documentID uuid.UUID) (*types.ProvenanceEntity, error) {
	return r.first(dbc, "document_id = ? AND entity_type = ?", documentID, provenance.EntityDocumentVersion)
}

func (r *entityRepo) GetForGroup(dbc dbctx.Context, groupID uuid.UUID) (*types.ProvenanceEntity, error) {
	return r.first(dbc, "artifact_group_id = ? AND entity_type = ?", groupID, provenance.EntityArtifactGroup)
}

func (r *entityRepo) first(dbc dbctx.Context, where string, args ...interface{}) (*types.ProvenanceEntity, error) {
	var row types.ProvenanceEntity
	if err := dbc.DB(r.db).Where(where, args...).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *entityRepo) ListByRoot(dbc dbctx.Context, rootID uuid.UUID) ([]*types.ProvenanceEntity, error) {
	var out []*types.ProvenanceEntity
	if rootID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("root_document_id = ?", rootID).
		Order("generated_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) SetGeneratedBy(dbc dbctx.Context, entityID, activityID uuid.UUID) error {
	if entityID == uuid.Nil || activityID == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.ProvenanceEntity{}).
		Where("id = ? AND generated_by_activity_id IS NULL", entityID).
		UpdateColumn("generated_by_activity_id", activityID).Error
}

func (r *entityRepo) DeleteByRoot(dbc dbctx.Context, rootID uuid.UUID, documentIDs []uuid.UUID) (int64, error) {
	if rootID == uuid.Nil {
		return 0, nil
	}
	t := dbc.DB(r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		q = q.Where("root_document_id = ?", rootID)
		if len(documentIDs) > 0 {
			groups := t.Session(&gorm.Session{NewDB: true}).
				Model(&types.ProcessingArtifactGroup{}).
				Select("id").
				Where("document_id IN ?", documentIDs)
			q = q.Or("document_id IN ?", documentIDs).Or("artifact_group_id IN (?)", groups)
		}
		return q
	}
	// Self references are cleared first so row order inside the delete does not matter.
	ids := t.Session(&gorm.Session{NewDB: true}).Model(&types.ProvenanceEntity{}).Select("id").Scopes(scope)
	if err := t.Model(&types.ProvenanceEntity{}).
		Where("derived_from_entity_id IN (?)", ids).
		UpdateColumn("derived_from_entity_id", nil).Error; err != nil {
		return 0, err
	}
	res := t.Session(&gorm.Session{NewDB: true}).Scopes(scope).Delete(&types.ProvenanceEntity{})
	return res.RowsAffected, res.Error
}
