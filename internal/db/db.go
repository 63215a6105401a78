// Package db owns the embedded SQLite store: connection, schema migration
// and the full-text index over chat turns.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pmerrell/ollamadesk/internal/history"
	"github.com/pmerrell/ollamadesk/internal/modelfile"
	"github.com/pmerrell/ollamadesk/internal/project"
	"github.com/pmerrell/ollamadesk/internal/tuning"
)

// Open creates or opens the database file at path and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// OpenMemory opens a throwaway in-memory database. Used by tests. The
// shared cache keeps every pooled connection on the same database.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate creates the relational tables and the FTS5 index.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&history.Session{},
		&history.Turn{},
		&modelfile.Modelfile{},
		&project.Project{},
		&project.File{},
		&tuning.Job{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// The FTS table is keyed by rowid = turns.id so lookups join in O(1).
	if err := gdb.Exec(
		"CREATE VIRTUAL TABLE IF NOT EXISTS turns_fts USING fts5(prompt, reply)",
	).Error; err != nil {
		return fmt.Errorf("creating fts index: %w", err)
	}
	return nil
}
