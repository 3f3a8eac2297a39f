package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zoneinfo for SHOW_TIMEZONE

	"cinereserve/internal/seats"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Booking rules and background jobs
	Booking BookingConfig

	// Payment gateway
	Payment PaymentConfig

	// Booking lifecycle events
	Kafka KafkaConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled                 bool          `json:"enabled"`
	WindowDuration          time.Duration `json:"window_duration"`
	DefaultRequests         int           `json:"default_requests"`
	PublicRequests          int           `json:"public_requests"`
	BookingRequests         int           `json:"booking_requests"`
	BookingCriticalRequests int           `json:"booking_critical_requests"`
	AdminRequests           int           `json:"admin_requests"`
	HealthRequests          int           `json:"health_requests"`
	WhitelistedIPs          []string      `json:"whitelisted_ips"`
}

// BookingConfig holds reservation limits and reconciliation timings
type BookingConfig struct {
	MaxSeatsPerBooking int
	PendingTimeout     time.Duration
	RecheckDelay       time.Duration
	RecheckInterval    time.Duration
	SweepInterval      time.Duration
	SweepBatchSize     int
	OccupiedCacheTTL   time.Duration
	ShowTimezone       string
	LayoutRows         int
	LayoutSeatsPerRow  int
	JobsEnabled        bool
}

// PaymentConfig holds Khalti gateway configuration
type PaymentConfig struct {
	Provider        string
	KhaltiBaseURL   string
	KhaltiSecretKey string
	ReturnURL       string
	WebsiteURL      string
	InitiateTimeout time.Duration
	VerifyTimeout   time.Duration
}

// KafkaConfig holds producer configuration for booking events
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "cinereserve_db"),
			User:     getEnv("DB_USER", "cinereserve_user"),
			Password: getEnv("DB_PASSWORD", "cinereserve_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:                 getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:          getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:         getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:          getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			BookingRequests:         getIntEnv("RATE_LIMIT_BOOKING_REQUESTS", 20),
			BookingCriticalRequests: getIntEnv("RATE_LIMIT_BOOKING_CRITICAL_REQUESTS", 10),
			AdminRequests:           getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			HealthRequests:          getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:          getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Booking
		Booking: BookingConfig{
			MaxSeatsPerBooking: getIntEnv("BOOKING_MAX_SEATS", 5),
			PendingTimeout:     getDurationEnv("BOOKING_PENDING_TIMEOUT", 10*time.Minute),
			RecheckDelay:       getDurationEnv("BOOKING_RECHECK_DELAY", 2*time.Minute),
			RecheckInterval:    getDurationEnv("BOOKING_RECHECK_INTERVAL", 1*time.Minute),
			SweepInterval:      getDurationEnv("BOOKING_SWEEP_INTERVAL", 1*time.Minute),
			SweepBatchSize:     getIntEnv("BOOKING_SWEEP_BATCH_SIZE", 100),
			OccupiedCacheTTL:   getDurationEnv("BOOKING_OCCUPIED_CACHE_TTL", 5*time.Second),
			ShowTimezone:       getEnv("SHOW_TIMEZONE", "Asia/Kathmandu"),
			LayoutRows:         getIntEnv("BOOKING_LAYOUT_ROWS", 13),
			LayoutSeatsPerRow:  getIntEnv("BOOKING_LAYOUT_SEATS_PER_ROW", 12),
			JobsEnabled:        getBoolEnv("RECONCILIATION_JOBS_ENABLED", true),
		},

		// Payment
		Payment: PaymentConfig{
			Provider:        getEnv("PAYMENT_PROVIDER", "khalti"),
			KhaltiBaseURL:   getEnv("KHALTI_BASE_URL", "https://dev.khalti.com/api/v2"),
			KhaltiSecretKey: getEnv("KHALTI_SECRET_KEY", ""),
			ReturnURL:       getEnv("PAYMENT_RETURN_URL", "http://localhost:5173/bookings/verdict"),
			WebsiteURL:      getEnv("PAYMENT_WEBSITE_URL", "http://localhost:5173/"),
			InitiateTimeout: getDurationEnv("PAYMENT_INITIATE_TIMEOUT", 10*time.Second),
			VerifyTimeout:   getDurationEnv("PAYMENT_VERIFY_TIMEOUT", 10*time.Second),
		},

		// Kafka
		Kafka: KafkaConfig{
			Enabled:  getBoolEnv("KAFKA_ENABLED", false),
			Brokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:    getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "cinereserve"),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}

// SeatLayout is the auditorium layout new shows get unless the request overrides it.
func (c *Config) SeatLayout() seats.Layout {
	layout := seats.Layout{Rows: c.Booking.LayoutRows, SeatsPerRow: c.Booking.LayoutSeatsPerRow}
	if !layout.IsValid() {
		return seats.DefaultLayout()
	}
	return layout
}

// ShowLocation resolves the timezone admin schedules are entered in.
func (c *Config) ShowLocation() *time.Location {
	loc, err := time.LoadLocation(c.Booking.ShowTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
