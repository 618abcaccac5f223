package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/okayu/mangasync/internal/entities"
)

// Tables whose rows carry a last_modified_at column maintained by
// triggers. The timestamp is the sole merge tie-breaker, so it must be
// advanced by the storage layer itself rather than by application code.
var timestampedTables = []string{"manga", "chapters", "manga_categories"}

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate all entities
	err = db.AutoMigrate(
		&entities.Manga{},
		&entities.Chapter{},
		&entities.Category{},
		&entities.MangaCategory{},
		&entities.Track{},
		&entities.History{},
		&entities.Setting{},
		&entities.SnapshotRecord{},
		&entities.APIToken{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.installTriggers(); err != nil {
		return nil, fmt.Errorf("failed to install triggers: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// installTriggers creates the insert/update triggers that stamp
// last_modified_at with the current epoch millis. SQLite does not fire
// triggers recursively by default, so the self-update is safe.
func (d *Database) installTriggers() error {
	for _, table := range timestampedTables {
		for _, event := range []string{"INSERT", "UPDATE"} {
			stmt := fmt.Sprintf(`
				CREATE TRIGGER IF NOT EXISTS %s_touch_%s
				AFTER %s ON %s
				BEGIN
					UPDATE %s SET last_modified_at = CAST(strftime('%%s', 'now') AS INTEGER) * 1000
					WHERE id = NEW.id;
				END;`,
				table, event, event, table, table)
			if err := d.DB.Exec(stmt).Error; err != nil {
				return fmt.Errorf("create trigger on %s (%s): %w", table, event, err)
			}
		}
	}
	return nil
}

func (d *Database) GetSetting(key string) (*entities.Setting, error) {
	var setting entities.Setting
	err := d.DB.Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (d *Database) SetSetting(key, value string) error {
	var setting entities.Setting
	result := d.DB.Where("key = ?", key).First(&setting)
	if result.Error == gorm.ErrRecordNotFound {
		setting = entities.Setting{Key: key, Value: value, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		return d.DB.Create(&setting).Error
	} else if result.Error != nil {
		return result.Error
	}

	setting.Value = value
	setting.UpdatedAt = time.Now()
	return d.DB.Save(&setting).Error
}

func (d *Database) DeleteSetting(key string) error {
	result := d.DB.Where("key = ?", key).Delete(&entities.Setting{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
