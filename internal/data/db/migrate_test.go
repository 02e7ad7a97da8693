package db_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbpkg "github.com/yungbote/docprov-backend/internal/data/db"
	types "github.com/yungbote/docprov-backend/internal/domain"
	"github.com/yungbote/docprov-backend/internal/domain/documents"
)

type foreignKey struct {
	Table    string
	From     string
	To       string
	OnDelete string
}

func migratedSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dbpkg.SQLiteDSN(name)), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := dbpkg.AutoMigrateAll(db); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	return db
}

func foreignKeys(t *testing.T, db *gorm.DB, table string) []string {
	t.Helper()
	var rows []foreignKey
	if err := db.Raw("PRAGMA foreign_key_list(" + table + ")").Scan(&rows).Error; err != nil {
		t.Fatalf("foreign keys of %s: %v", table, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.From+"->"+r.Table+"."+r.To)
	}
	sort.Strings(out)
	return out
}

func TestAutoMigrateForeignKeysPointAtParents(t *testing.T) {
	db := migratedSQLite(t)

	cases := map[string][]string{
		"documents": {"source_document_id->documents.id"},
		"composite_sources": {
			"composite_document_id->documents.id",
			"source_version_id->documents.id",
		},
		"document_processing_summary": {
			"document_id->documents.id",
			"processing_operation_id->processing_operations.id",
			"source_version_id->documents.id",
		},
	}
	for table, want := range cases {
		got := foreignKeys(t, db, table)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("%s foreign keys: want=%v got=%v", table, want, got)
		}
	}
}

func TestProcessedVersionInsertsUnderRoot(t *testing.T) {
	db := migratedSQLite(t)

	root := &types.Document{Title: "Tale", VersionNumber: 1, VersionType: documents.VersionTypeOriginal, Content: "text"}
	if err := db.Create(root).Error; err != nil {
		t.Fatalf("insert root: %v", err)
	}
	rootID := root.ID
	v2 := &types.Document{Title: "Tale", VersionNumber: 2, VersionType: documents.VersionTypeProcessed, SourceDocumentID: &rootID}
	if err := db.Create(v2).Error; err != nil {
		t.Fatalf("insert processed version: %v", err)
	}

	src := &types.CompositeSource{CompositeDocumentID: v2.ID, SourceVersionID: root.ID, Priority: 1}
	if err := db.Create(src).Error; err != nil {
		t.Fatalf("insert composite source: %v", err)
	}
	dangling := &types.CompositeSource{CompositeDocumentID: v2.ID, SourceVersionID: uuid.New(), Priority: 2}
	if err := db.Create(dangling).Error; err == nil || !strings.Contains(strings.ToLower(err.Error()), "foreign key") {
		t.Fatalf("dangling source version: expected foreign key failure, got %v", err)
	}

	orphan := &types.Document{Title: "Tale", VersionNumber: 3, VersionType: documents.VersionTypeProcessed, SourceDocumentID: func() *uuid.UUID { id := uuid.New(); return &id }()}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("version under a missing root should be rejected")
	}
}
