package tester

import (
	"os"
	"path/filepath"

	"github.com/emrgen/docview/internal/config"
	"github.com/emrgen/docview/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db       *gorm.DB
	testPath string
)

// Setup creates a fresh sqlite database in a temporary directory and migrates it.
func Setup() {
	RemoveDBFile()

	_ = os.Setenv("ENV", "test")

	var err error
	testPath, err = os.MkdirTemp("", "docview-test-")
	if err != nil {
		panic(err)
	}

	db, err = gorm.Open(sqlite.Open(config.SqliteDsn(filepath.Join(testPath, "docview.db"))), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = model.Migrate(db)
	if err != nil {
		panic(err)
	}
}

func TestDB() *gorm.DB {
	return db
}

func RemoveDBFile() {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		db = nil
	}

	if testPath == "" {
		return
	}

	err := os.RemoveAll(testPath)
	if err != nil {
		panic(err)
	}
	testPath = ""
}
