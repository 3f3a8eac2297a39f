package app

import (
	"fmt"
	"strings"
	"time"

	"cinereserve/internal/bookings"
	"cinereserve/internal/notifications"
	"cinereserve/internal/payments"
	"cinereserve/internal/reconciliation"
	"cinereserve/internal/reservations"
	"cinereserve/internal/shared/config"
	"cinereserve/internal/shows"
	"cinereserve/pkg/cache"
	"cinereserve/pkg/logger"

	"gorm.io/gorm"
)

// Core is the booking domain wired against the configured backends. The
// API server and the sweeper share it.
type Core struct {
	Shows        shows.Repository
	Ledger       bookings.Ledger
	Gateway      payments.Gateway
	Publisher    notifications.Publisher
	Reconciler   reconciliation.Reconciler
	Reservations reservations.Service
}

func NewCore(cfg *config.Config, db *gorm.DB, cacheService cache.Service, log *logger.Logger) (*Core, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	gateway, err := NewGateway(cfg, log)
	if err != nil {
		return nil, err
	}
	publisher, err := NewPublisher(cfg, log)
	if err != nil {
		return nil, err
	}

	showRepo := shows.NewRepository(db)
	ledger := bookings.NewLedger(bookings.NewRepository(db), bookings.LedgerConfig{
		MaxSeatsPerBooking: cfg.Booking.MaxSeatsPerBooking,
		Logger:             log.WithComponent("ledger"),
	})
	reconciler := reconciliation.New(ledger, gateway, publisher, reconciliation.Config{
		PendingTimeout: cfg.Booking.PendingTimeout,
		RecheckDelay:   cfg.Booking.RecheckDelay,
		AmbiguousGrace: cfg.Booking.PendingTimeout,
		VerifyTimeout:  cfg.Payment.VerifyTimeout,
		BatchSize:      cfg.Booking.SweepBatchSize,
		Logger:         log,
		Cache:          cacheService,
	})
	service := reservations.NewService(reservations.Deps{
		Ledger:     ledger,
		Reconciler: reconciler,
		Gateway:    gateway,
		Shows:      showRepo,
		Cache:      cacheService,
		Publisher:  publisher,
	}, reservations.Config{
		MaxSeatsPerBooking: cfg.Booking.MaxSeatsPerBooking,
		PendingTimeout:     cfg.Booking.PendingTimeout,
		InitiateTimeout:    cfg.Payment.InitiateTimeout,
		OccupiedCacheTTL:   cfg.Booking.OccupiedCacheTTL,
		Logger:             log,
	})

	return &Core{
		Shows:        showRepo,
		Ledger:       ledger,
		Gateway:      gateway,
		Publisher:    publisher,
		Reconciler:   reconciler,
		Reservations: service,
	}, nil
}

// Close releases the event publisher.
func (c *Core) Close() error {
	return c.Publisher.Close()
}

// NewGateway selects the payment provider. "fake" is for local runs only.
func NewGateway(cfg *config.Config, log *logger.Logger) (payments.Gateway, error) {
	switch strings.ToLower(cfg.Payment.Provider) {
	case "khalti":
		if cfg.Payment.KhaltiSecretKey == "" {
			return nil, fmt.Errorf("KHALTI_SECRET_KEY is required for the khalti provider")
		}
		return payments.NewKhaltiGateway(payments.KhaltiConfig{
			BaseURL:    cfg.Payment.KhaltiBaseURL,
			SecretKey:  cfg.Payment.KhaltiSecretKey,
			ReturnURL:  cfg.Payment.ReturnURL,
			WebsiteURL: cfg.Payment.WebsiteURL,
			Timeout:    khaltiClientTimeout(cfg.Payment),
		}, log), nil
	case "fake":
		if cfg.IsProduction() {
			return nil, fmt.Errorf("the fake payment provider cannot run in release mode")
		}
		log.Warn("Using fake payment provider; no real payments are taken")
		return payments.NewFakeGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}

// khaltiClientTimeout bounds the shared HTTP client. Initiate and lookup
// carry their own context deadlines, so the client must not undercut either.
func khaltiClientTimeout(p config.PaymentConfig) time.Duration {
	return max(p.InitiateTimeout, p.VerifyTimeout)
}

// NewPublisher returns the Kafka publisher when enabled, else a log-only one.
func NewPublisher(cfg *config.Config, log *logger.Logger) (notifications.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return notifications.NewLogPublisher(log), nil
	}

	producerCfg := notifications.DefaultKafkaProducerConfig()
	producerCfg.Brokers = cfg.Kafka.Brokers
	producerCfg.Topic = cfg.Kafka.Topic
	producerCfg.ClientID = cfg.Kafka.ClientID

	publisher, err := notifications.NewKafkaPublisher(producerCfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("Kafka booking event publisher ready", "brokers", strings.Join(cfg.Kafka.Brokers, ","), "topic", cfg.Kafka.Topic)
	return publisher, nil
}
