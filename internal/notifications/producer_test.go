package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"cinereserve/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := DefaultKafkaProducerConfig()
	producer := mocks.NewSyncProducer(t, cfg.SaramaConfig())
	bookingID := uuid.New()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event BookingEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.BookingID != bookingID || event.Type != EventBookingCompleted {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer, cfg.Topic, logger.Discard())
	event := NewEventBuilder(EventBookingCompleted).
		WithBooking(bookingID, uuid.New(), "user-1").
		WithSeats([]string{"C1", "C2"}).
		WithAmount(600, "NPR").
		WithStatus("COMPLETED").
		WithReference("pidx-1").
		Build()

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(producer, "booking-events", logger.Discard())
	err := publisher.Publish(context.Background(), NewEventBuilder(EventBookingExpired).Build())

	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, publisher.Close())
}

func TestCreateHeaders(t *testing.T) {
	event := NewEventBuilder(EventPaymentOrphaned).
		WithBooking(uuid.New(), uuid.New(), "u").
		WithReference("pidx-9").
		Build()

	headers := map[string]string{}
	for _, h := range createHeaders(event) {
		headers[string(h.Key)] = string(h.Value)
	}

	assert.Equal(t, "payment.orphaned", headers["event_type"])
	assert.Equal(t, string(PriorityCritical), headers["priority"])
	assert.Equal(t, "pidx-9", headers["payment_reference"])
	assert.Equal(t, event.BookingID.String(), headers["booking_id"])
}

func TestLogPublisher_NeverFails(t *testing.T) {
	publisher := NewLogPublisher(logger.Discard())
	assert.NoError(t, publisher.Publish(context.Background(), NewEventBuilder(EventBookingCreated).Build()))
	assert.NoError(t, publisher.Close())
}
