package database

import (
	"context"
	"fmt"
	"time"

	"cinereserve/internal/shared/config"
	"cinereserve/pkg/cache"
	appLogger "cinereserve/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds database connections
type DB struct {
	PostgreSQL *gorm.DB
	Redis      *redis.Client
	log        *appLogger.Logger
}

// InitDB opens PostgreSQL, runs migrations and, when enabled, connects Redis.
// A Redis outage at startup degrades to in-process caching instead of failing.
func InitDB(cfg *config.Config, log *appLogger.Logger) (*DB, error) {
	if log == nil {
		log = appLogger.GetDefault()
	}

	pg, err := initPostgreSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := Migrate(pg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("PostgreSQL connected and migrated", "host", cfg.Database.Host, "database", cfg.Database.Name)

	db := &DB{PostgreSQL: pg, log: log}
	if !cfg.Redis.Enabled {
		log.Info("Redis disabled; using in-process cache")
		return db, nil
	}

	rdb, err := cache.NewClient(context.Background(), cache.DefaultConfig(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
	if err != nil {
		log.Warn("Redis unavailable; using in-process cache", "addr", cfg.Redis.Addr, "error", err.Error())
		return db, nil
	}
	log.Info("Redis connected", "addr", cfg.Redis.Addr)
	db.Redis = rdb
	return db, nil
}

// initPostgreSQL initializes PostgreSQL connection with GORM
func initPostgreSQL(cfg *config.Config) (*gorm.DB, error) {
	// Configure GORM logger
	var gormLogger logger.Interface
	if cfg.IsDevelopment() {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt:    true,
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close closes all database connections
func (db *DB) Close() error {
	var errs []error

	if db.PostgreSQL != nil {
		if sqlDB, err := db.PostgreSQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close PostgreSQL: %w", err))
			}
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing databases: %v", errs)
	}

	db.log.Info("All database connections closed")
	return nil
}

// HealthCheck performs health checks on all database connections
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.PostgreSQL != nil {
		sqlDB, err := db.PostgreSQL.DB()
		if err != nil {
			return fmt.Errorf("PostgreSQL health check failed: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("PostgreSQL ping failed: %w", err)
		}
	}

	if db.Redis != nil {
		if err := db.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}

	return nil
}

// CacheService returns the Redis-backed cache, or an in-process one when
// Redis is not connected.
func (db *DB) CacheService(prefix string) cache.Service {
	if db.Redis == nil {
		return cache.NewMemoryService()
	}
	return cache.NewService(db.Redis, prefix)
}
