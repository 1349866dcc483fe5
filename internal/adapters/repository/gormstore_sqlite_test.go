//go:build cgo

package repository

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "questlog.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s, err := NewGormStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	return s
}

func TestGormStoreContract(t *testing.T) {
	storeContract(t, func() Store { return openSQLiteStore(t) })
}
