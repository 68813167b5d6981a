package database

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationStripProviderPrefix = "2026-05-12_strip_provider_prefix_from_guest_ids"

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
		{name: migrationStripProviderPrefix, apply: stripProviderPrefixFromGuestIDs},
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

// Early builds keyed submissions by "google:<subject>". The canonical guest
// id is the bare subject, so strip the legacy prefix wherever it survives.
func stripProviderPrefixFromGuestIDs(db *gorm.DB) error {
	const prefix = "google:"
	start := len(prefix) + 1
	updateSubmissions := fmt.Sprintf("UPDATE rsvp_submissions SET user_id = substr(user_id, %d) WHERE user_id LIKE '%s%%';", start, prefix)
	if err := db.Exec(updateSubmissions).Error; err != nil {
		return err
	}
	updateChanges := fmt.Sprintf("UPDATE rsvp_submission_changes SET user_id = substr(user_id, %d) WHERE user_id LIKE '%s%%';", start, prefix)
	return db.Exec(updateChanges).Error
}
