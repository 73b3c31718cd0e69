package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateUpCreatesSchema(t *testing.T) {
	database := openTestDB(t)

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	var name string
	err := database.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name = 'certificates'
	`).Scan(&name)
	if err != nil {
		t.Fatalf("certificates table missing after migration: %v", err)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if dirty {
		t.Error("migration state dirty after clean MigrateUp")
	}
	if version == 0 {
		t.Error("version = 0 after MigrateUp")
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	database := openTestDB(t)

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("first MigrateUp: %v", err)
	}
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}
}

func TestMigrateDownDropsSchema(t *testing.T) {
	database := openTestDB(t)

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if err := database.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}

	var count int
	err := database.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'certificates'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Error("certificates table still present after MigrateDown")
	}
}
