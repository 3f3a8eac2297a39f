package database

import (
	"cinereserve/internal/bookings"
	"cinereserve/internal/shows"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&shows.Show{},
		&bookings.Booking{},
		&bookings.SeatClaim{},
		&bookings.PaymentAttempt{},
	); err != nil {
		return err
	}
	if db.Dialector.Name() == "postgres" {
		return MigrateConstraints(db)
	}
	return nil
}
