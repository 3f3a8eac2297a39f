package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cinereserve/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher emits booking lifecycle events. Publishing is best effort:
// callers log failures and never roll back booking state because of them.
type Publisher interface {
	Publish(ctx context.Context, event *BookingEvent) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka event producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	Compression      sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "booking-events",
		ClientID:         "cinereserve",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		Compression:      sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// SaramaConfig translates the producer settings into a sarama config.
func (c *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = c.ClientID

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = c.RequiredAcks
	saramaConfig.Producer.Compression = c.Compression
	saramaConfig.Producer.Retry.Max = c.RetryMax
	saramaConfig.Producer.Timeout = c.Timeout
	saramaConfig.Producer.MaxMessageBytes = c.MaxMessageBytes

	// Idempotent producer needs a single in-flight request and a newer protocol version
	if c.IdempotentWrites {
		saramaConfig.Producer.Idempotent = true
		saramaConfig.Net.MaxOpenRequests = 1
		saramaConfig.Version = sarama.V2_1_0_0
	}

	// Hash partitioner keeps one booking's events ordered
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// KafkaPublisher publishes booking events to Kafka
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaPublisher dials the brokers and returns a publisher.
func NewKafkaPublisher(config *KafkaProducerConfig, log *logger.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, config.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.WithComponent("kafka-publisher"),
	}
}

// Publish sends one event keyed by booking id
func (p *KafkaPublisher) Publish(ctx context.Context, event *BookingEvent) error {
	messageBytes, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   createHeaders(event),
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send booking event to Kafka: %w", err)
	}

	p.log.DebugContext(ctx, "Booking event published",
		slog.String("topic", p.topic),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
		slog.String("type", string(event.Type)),
		slog.String("booking_id", event.BookingID.String()),
	)
	return nil
}

// createHeaders creates Kafka headers for booking events
func createHeaders(event *BookingEvent) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		{Key: []byte("event_type"), Value: []byte(event.Type)},
		{Key: []byte("priority"), Value: []byte(event.Priority)},
		{Key: []byte("booking_id"), Value: []byte(event.BookingID.String())},
		{Key: []byte("show_id"), Value: []byte(event.ShowID.String())},
		{Key: []byte("version"), Value: []byte("1.0")},
		{Key: []byte("producer"), Value: []byte("cinereserve-bookings")},
		{Key: []byte("occurred_at"), Value: []byte(event.OccurredAt.Format(time.RFC3339))},
	}
	if event.Reference != "" {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("payment_reference"),
			Value: []byte(event.Reference),
		})
	}
	return headers
}

// Close closes the Kafka producer
func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.log.Info("Kafka booking event producer closed")
	return nil
}

// LogPublisher writes events to the log instead of a broker. Used when
// Kafka is disabled.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogPublisher{log: log.WithComponent("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event *BookingEvent) error {
	level := slog.LevelInfo
	if event.Priority == PriorityCritical {
		level = slog.LevelError
	}
	p.log.Log(ctx, level, "Booking event",
		slog.String("type", string(event.Type)),
		slog.String("booking_id", event.BookingID.String()),
		slog.String("status", event.Status),
		slog.String("reference", event.Reference),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
