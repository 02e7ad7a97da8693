package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

type ChangelogRepo interface {
	Create(dbc dbctx.Context, rows []*types.VersionChangelog) ([]*types.VersionChangelog, error)
	ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.VersionChangelog, error)
	DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error)
}

type changelogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangelogRepo(db *gorm.DB, baseLog *logger.Logger) ChangelogRepo {
	return &changelogRepo{db: db, log: baseLog.With("repo", "ChangelogRepo")}
}

func (r *changelogRepo) Create(dbc dbctx.Context, rows []*types.VersionChangelog) ([]*types.VersionChangelog, error) {
	if len(rows) == 0 {
		return []*types.VersionChangelog{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *changelogRepo) ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.VersionChangelog, error) {
	var out []*types.VersionChangelog
	if len(documentIDs) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("document_id IN ?", documentIDs).
		Order("version_number ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changelogRepo) DeleteByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id IN ?", documentIDs).Delete(&types.VersionChangelog{})
	return res.RowsAffected, res.Error
}
