package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Document) ([]*types.Document, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.Document, error)

	// ListFamily returns the root and every version pointing at it, by version number.
	ListFamily(dbc dbctx.Context, rootID uuid.UUID) ([]*types.Document, error)
	FamilyIDs(dbc dbctx.Context, rootID uuid.UUID) ([]uuid.UUID, error)
	MaxVersionNumber(dbc dbctx.Context, rootID uuid.UUID) (int, error)
	LatestInFamily(dbc dbctx.Context, rootID uuid.UUID) (*types.Document, error)
	GetExperimentVersion(dbc dbctx.Context, rootID, experimentID uuid.UUID) (*types.Document, error)
	ListFamilyByType(dbc dbctx.Context, rootID uuid.UUID, versionType string) ([]*types.Document, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error

	// DeleteVersions removes non-root members first, then the root.
	DeleteVersions(dbc dbctx.Context, rootID uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, rows []*types.Document) ([]*types.Document, error) {
	if len(rows) == 0 {
		return []*types.Document{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Document
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.Document, error) {
	if externalID == "" {
		return nil, nil
	}
	var row types.Document
	if err := dbc.DB(r.db).Where("external_id = ?", externalID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) ListFamily(dbc dbctx.Context, rootID uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if rootID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("id = ? OR source_document_id = ?", rootID, rootID).
		Order("version_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) FamilyIDs(dbc dbctx.Context, rootID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if rootID == uuid.Nil {
		return ids, nil
	}
	if err := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ? OR source_document_id = ?", rootID, rootID).
		Order("version_number ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *documentRepo) MaxVersionNumber(dbc dbctx.Context, rootID uuid.UUID) (int, error) {
	var max int
	if err := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ? OR source_document_id = ?", rootID, rootID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

func (r *documentRepo) LatestInFamily(dbc dbctx.Context, rootID uuid.UUID) (*types.Document, error) {
	if rootID == uuid.Nil {
		return nil, nil
	}
	var row types.Document
	if err := dbc.DB(r.db).
		Where("id = ? OR source_document_id = ?", rootID, rootID).
		Order("version_number DESC").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) GetExperimentVersion(dbc dbctx.Context, rootID, experimentID uuid.UUID) (*types.Document, error) {
	if rootID == uuid.Nil || experimentID == uuid.Nil {
		return nil, nil
	}
	var row types.Document
	if err := dbc.DB(r.db).
		Where("source_document_id = ? AND experiment_id = ? AND version_type = ?", rootID, experimentID, "experimental").
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) ListFamilyByType(dbc dbctx.Context, rootID uuid.UUID, versionType string) ([]*types.Document, error) {
	var out []*types.Document
	if rootID == uuid.Nil {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("(id = ? OR source_document_id = ?) AND version_type = ?", rootID, rootID, versionType).
		Order("version_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Document{}).Where("id = ?", id).Updates(updates).Error
}

func (r *documentRepo) DeleteVersions(dbc dbctx.Context, rootID uuid.UUID) (int64, error) {
	if rootID == uuid.Nil {
		return 0, nil
	}
	t := dbc.DB(r.db)
	res := t.Where("source_document_id = ?", rootID).Delete(&types.Document{})
	if res.Error != nil {
		return 0, res.Error
	}
	n := res.RowsAffected
	res = t.Where("id = ?", rootID).Delete(&types.Document{})
	if res.Error != nil {
		return 0, res.Error
	}
	return n + res.RowsAffected, nil
}
