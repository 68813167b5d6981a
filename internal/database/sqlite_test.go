package database

import (
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/marismas/boda/backend/internal/rsvp"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	db := openTestDatabase(t)

	for _, table := range []string{"rsvp_submissions", "rsvp_submission_changes", "guest_identities", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestOpenSQLiteRecordsMigrations(t *testing.T) {
	db := openTestDatabase(t)

	var record migrationRecord
	if err := db.Where("name = ?", migrationStripProviderPrefix).Take(&record).Error; err != nil {
		t.Fatalf("expected the migration to be recorded: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected an applied timestamp")
	}
}

func TestStripProviderPrefixMigrationRewritesLegacyKeys(t *testing.T) {
	db := openTestDatabase(t)

	legacy := rsvp.SubmissionRecord{
		UserID:               "google:subject-1",
		ResponsesJSON:        "{}",
		SubmittedAtSeconds:   1,
		LastUpdatedAtSeconds: 1,
		Version:              1,
	}
	modern := rsvp.SubmissionRecord{
		UserID:               "subject-2",
		ResponsesJSON:        "{}",
		SubmittedAtSeconds:   1,
		LastUpdatedAtSeconds: 1,
		Version:              1,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("failed to seed legacy row: %v", err)
	}
	if err := db.Create(&modern).Error; err != nil {
		t.Fatalf("failed to seed modern row: %v", err)
	}

	if err := stripProviderPrefixFromGuestIDs(db); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	var rewritten rsvp.SubmissionRecord
	if err := db.Where("user_id = ?", "subject-1").Take(&rewritten).Error; err != nil {
		t.Fatalf("expected the legacy key to be rewritten: %v", err)
	}
	var untouched rsvp.SubmissionRecord
	if err := db.Where("user_id = ?", "subject-2").Take(&untouched).Error; err != nil {
		t.Fatalf("expected the modern key to survive: %v", err)
	}
}

func TestMigrationsOnlyApplyOnce(t *testing.T) {
	db := openTestDatabase(t)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("unexpected re-run error: %v", err)
	}

	var count int64
	if err := db.Model(&migrationRecord{}).Where("name = ?", migrationStripProviderPrefix).Count(&count).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one migration record, got %d", count)
	}
}
