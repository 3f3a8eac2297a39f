package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/database"
	"cinereserve/internal/shows"
	appLogger "cinereserve/pkg/logger"

	"github.com/joho/godotenv"
)

type Seeder struct {
	db    *database.DB
	shows shows.Service
	loc   *time.Location
}

func main() {
	days := flag.Int("days", 7, "number of days of showtimes to schedule, starting tomorrow")
	clean := flag.Bool("clean", true, "truncate booking tables before seeding")
	flag.Parse()

	fmt.Println("🌱 Starting CineReserve Database Seeder...")

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg, appLogger.NewWithWriter(log.Writer(), cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{
		db:    db,
		shows: shows.NewService(shows.NewRepository(db.PostgreSQL), cfg.ShowLocation(), cfg.SeatLayout()),
		loc:   cfg.ShowLocation(),
	}

	if *clean {
		fmt.Println("\n🧹 Cleaning database...")
		if err := seeder.CleanDatabase(); err != nil {
			log.Fatalf("Failed to clean database: %v", err)
		}
		fmt.Println("✅ Database cleaned successfully")
	}

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(*days); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Database is ready for testing.")
}

// CleanDatabase truncates all tables in the correct order (respecting foreign key constraints)
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"payment_attempts",
		"seat_claims",
		"bookings",
		"shows",
	}

	tx := s.db.PostgreSQL.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, table := range tables {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit().Error
}

// SeedAll schedules a small catalogue of movies over the next few days.
func (s *Seeder) SeedAll(days int) error {
	ctx := context.Background()

	if _, err := s.SeedShows(ctx, days); err != nil {
		return fmt.Errorf("failed to seed shows: %w", err)
	}

	// Occupied-seat snapshots are keyed by show, stale entries would point at truncated rows
	if s.db.Redis != nil {
		if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis cache: %v", err)
		}
	}

	return nil
}

// SeedShows creates one schedule per movie through the show service so the
// same validation and de-duplication applies as for the admin endpoint.
func (s *Seeder) SeedShows(ctx context.Context, days int) (int, error) {
	fmt.Println("  🎬 Seeding shows...")

	if days < 1 {
		days = 1
	}
	tomorrow := time.Now().In(s.loc).AddDate(0, 0, 1)

	movies := []struct {
		id    string
		title string
		price int64
		times []string
	}{
		{"tt15398776", "Oppenheimer", 400, []string{"11:00", "15:00", "19:30"}},
		{"tt1517268", "Barbie", 350, []string{"10:30", "14:00", "18:00"}},
		{"tt6263850", "Dune: Part Two", 450, []string{"12:00", "16:30", "21:00"}},
		{"tt27497448", "Kabaddi 4: The Final Match", 300, []string{"13:00", "17:00"}},
	}

	total := 0
	for _, movie := range movies {
		schedule := make([]shows.ScheduleInput, 0, days)
		for d := 0; d < days; d++ {
			schedule = append(schedule, shows.ScheduleInput{
				Date:  tomorrow.AddDate(0, 0, d).Format("2006-01-02"),
				Times: movie.times,
			})
		}

		created, err := s.shows.CreateShows(ctx, "seeder", shows.CreateShowsRequest{
			MovieID:    movie.id,
			MovieTitle: movie.title,
			Price:      movie.price,
			Currency:   "NPR",
			Schedule:   schedule,
		})
		if err != nil {
			return total, fmt.Errorf("failed to schedule %s: %w", movie.title, err)
		}

		fmt.Printf("    ✓ %s: %d shows\n", movie.title, created.Count)
		total += created.Count
	}

	fmt.Printf("  ✅ Seeded %d shows\n", total)
	return total, nil
}
