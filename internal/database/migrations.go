package database

import (
	"log"

	"gorm.io/gorm"
)

// cleanupDuplicateReportDumps removes duplicate report_dumps rows before the unique card_key index is added.
// This runs BEFORE AutoMigrate to prevent constraint violations.
func cleanupDuplicateReportDumps(db *gorm.DB) error {
	if !db.Migrator().HasTable("report_dumps") {
		return nil
	}
	if !db.Migrator().HasColumn("report_dumps", "card_key") {
		return nil
	}

	// Keep the most recently written row per card
	result := db.Exec(`
		DELETE FROM report_dumps
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM report_dumps
			GROUP BY card_key
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d duplicate report_dumps entries", result.RowsAffected)
	}
	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	return migrateDumpDefaults(db)
}

// migrateDumpDefaults backfills columns added after the first schema.
// Safe to run multiple times.
func migrateDumpDefaults(db *gorm.DB) error {
	if !db.Migrator().HasTable("report_dumps") {
		return nil
	}

	result := db.Exec(`UPDATE report_dumps SET category = 'pokemon' WHERE category IS NULL OR category = ''`)
	if result.Error != nil {
		log.Printf("Warning: failed to backfill report_dumps category: %v", result.Error)
	}

	result = db.Exec(`UPDATE report_dumps SET grade = 'Ungraded' WHERE grade IS NULL OR grade = ''`)
	if result.Error != nil {
		log.Printf("Warning: failed to backfill report_dumps grade: %v", result.Error)
	}
	return nil
}
