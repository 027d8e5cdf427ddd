package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gluk-w/termhub/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Path returns the sqlite file location.
func Path() string {
	if config.Cfg.Database != "" {
		return config.Cfg.Database
	}
	return filepath.Join(config.Cfg.DataPath, "termhub.db")
}

func Init() error {
	dbPath := Path()
	if dbDir := filepath.Dir(dbPath); dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := Open(dbPath, logger.Warn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and migrates a database at dsn.
func Open(dsn string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if dsn != ":memory:" {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	} else {
		// every pooled connection would get its own empty in-memory database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSessionRecord inserts the row for a newly opened session.
func CreateSessionRecord(db *gorm.DB, rec *SessionRecord) error {
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("create session record %s: %w", rec.SessionID, err)
	}
	return nil
}

// UpdateSessionRecord applies column updates to the row for sessionID.
func UpdateSessionRecord(db *gorm.DB, sessionID string, updates map[string]interface{}) error {
	res := db.Model(&SessionRecord{}).Where("session_id = ?", sessionID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session record %s: %w", sessionID, res.Error)
	}
	return nil
}

// ListSessionHistory returns the newest records first. targetID filters
// when non-empty; limit <= 0 means 100.
func ListSessionHistory(db *gorm.DB, targetID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := db.Order("opened_at DESC, id DESC").Limit(limit)
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	var records []SessionRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list session history: %w", err)
	}
	return records, nil
}

// PruneSessionHistory deletes records closed before cutoff.
func PruneSessionHistory(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Where("closed_at IS NOT NULL AND closed_at < ?", cutoff).Delete(&SessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune session history: %w", res.Error)
	}
	return res.RowsAffected, nil
}
