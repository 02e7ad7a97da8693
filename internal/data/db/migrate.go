package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/docprov-backend/internal/domain"
)

// Partial unique indexes the struct tags can't express portably.
// Both Postgres and SQLite accept this syntax.
var partialIndexes = []struct {
	name string
	ddl  string
}{
	{
		name: "uq_documents_experiment_version",
		ddl:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_experiment_version ON documents (source_document_id, experiment_id) WHERE version_type = 'experimental'`,
	},
	{
		name: "uq_provenance_entities_version",
		ddl:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_provenance_entities_version ON provenance_entities (document_id) WHERE entity_type = 'document_version'`,
	},
	{
		name: "uq_provenance_entities_group",
		ddl:  `CREATE UNIQUE INDEX IF NOT EXISTS uq_provenance_entities_group ON provenance_entities (artifact_group_id) WHERE entity_type = 'artifact_group'`,
	},
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return err
	}
	for _, idx := range partialIndexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
