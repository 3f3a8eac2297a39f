package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds the PostgreSQL constraints AutoMigrate cannot express.
func MigrateConstraints(db *gorm.DB) error {
	statements := []string{
		// Status vocabularies
		`DO $$ BEGIN
			ALTER TABLE bookings ADD CONSTRAINT chk_bookings_status
			CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'EXPIRED'));
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
		`DO $$ BEGIN
			ALTER TABLE payment_attempts ADD CONSTRAINT chk_payment_attempts_status
			CHECK (status IN ('INITIATING', 'ACTIVE', 'SUPERSEDED', 'FAILED', 'VERIFIED'));
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,

		// Amount is fixed at creation and never negative
		`DO $$ BEGIN
			ALTER TABLE bookings ADD CONSTRAINT chk_bookings_amount CHECK (amount >= 0);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,

		// At most one open payment session per booking
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_attempts_one_open
			ON payment_attempts (booking_id)
			WHERE status IN ('INITIATING', 'ACTIVE');`,

		// Expiry sweep scans pending bookings by age
		`CREATE INDEX IF NOT EXISTS idx_bookings_pending_created
			ON bookings (created_at)
			WHERE status = 'PENDING';`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
