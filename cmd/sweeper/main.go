// Command sweeper runs one reconciliation pass and exits. It is meant for
// cron-style deployments where the API server runs with
// RECONCILIATION_JOBS_ENABLED=false.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"cinereserve/internal/app"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shared/constants"
	"cinereserve/internal/shared/database"
	"cinereserve/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	recheck := flag.Bool("recheck", false, "re-verify pending payments instead of expiring stale bookings")
	timeout := flag.Duration("timeout", 5*time.Minute, "upper bound for the whole pass")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewWithWriter(os.Stdout, cfg.LogLevel).WithComponent("sweeper")
	logger.SetDefault(log)

	db, err := database.InitDB(cfg, log)
	if err != nil {
		log.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	core, err := app.NewCore(cfg, db.PostgreSQL, db.CacheService(constants.CACHE_PREFIX), log)
	if err != nil {
		log.Error("failed to wire booking core", slog.Any("error", err))
		os.Exit(1)
	}
	defer core.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if *recheck {
		resolved, err := core.Reconciler.RecheckPending(ctx)
		if err != nil {
			log.Error("recheck failed", slog.Any("error", err), slog.Int("resolved", resolved))
			os.Exit(1)
		}
		log.Info("recheck finished", slog.Int("resolved", resolved), slog.Duration("took", time.Since(start)))
		return
	}

	expired, err := core.Reconciler.ExpireStalePendingBookings(ctx)
	if err != nil {
		log.Error("sweep failed", slog.Any("error", err), slog.Int("expired", expired))
		os.Exit(1)
	}
	log.Info("sweep finished", slog.Int("expired", expired), slog.Duration("took", time.Since(start)))
}
