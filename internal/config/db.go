package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlite takes the write lock when a transaction begins so that concurrent
// folds on the same session serialize instead of failing on upgrade.
const sqliteParams = "_txlock=immediate&_busy_timeout=5000&_foreign_keys=1"

// GetDb opens the configured database. It exits the process when the database cannot be opened.
func GetDb(cfg *Config) *gorm.DB {
	db, err := OpenDb(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		logrus.Fatalf("error opening %s database: %v", cfg.DBDriver, err)
	}

	return db
}

func OpenDb(driver, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, err
			}
		}
		return gorm.Open(sqlite.Open(SqliteDsn(dsn)), gormConfig)
	}
}

// SqliteDsn appends the connection parameters the store relies on.
func SqliteDsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqliteParams
	}

	return "file:" + path + "?" + sqliteParams
}
