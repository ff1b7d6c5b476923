package database

import (
	"errors"
	"time"

	"github.com/NNTin/d-cogs/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Older deployments stored "no pinned version" as an empty string; the
// selector now expects NULL.
const migrationNormalizeSelectedVersion = "2026-06-14_normalize_selected_version"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeSelectedVersion, apply: normalizeSelectedVersion},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func normalizeSelectedVersion(db *gorm.DB) error {
	return db.Model(&store.GuildConfig{}).
		Where("selected_version = ''").
		Update("selected_version", nil).Error
}
