package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
)

const memoryPath = ":memory:"

// OpenSQLite opens the embedded SQLite store at path with foreign-key
// enforcement switched on for every connection. When migrate is set the
// product and storage tables are created if missing.
func OpenSQLite(path string, migrate bool, logger logrus.FieldLogger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists inside the connection that created it.
	sqlDB.SetMaxOpenConns(1)

	var fk int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("read foreign_keys pragma: %w", err)
	}
	if fk != 1 {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite foreign keys are not enforced")
	}

	if migrate {
		if err := db.AutoMigrate(&inventory.ProductModel{}, &inventory.StorageModel{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		logger.WithField("path", path).Info("sqlite schema ready")
	}

	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == memoryPath {
		return "file::memory:?_foreign_keys=on"
	}
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}
