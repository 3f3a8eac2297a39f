package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a booking lifecycle event on the bus.
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventPaymentInitiated EventType = "payment.initiated"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingFailed    EventType = "booking.failed"
	EventBookingExpired   EventType = "booking.expired"
	EventPaymentOrphaned  EventType = "payment.orphaned"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// BookingEvent is the message published for downstream consumers
// (confirmation mails, operator alerts, analytics).
type BookingEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Priority  Priority  `json:"priority"`
	BookingID uuid.UUID `json:"booking_id"`
	ShowID    uuid.UUID `json:"show_id"`
	UserID    string    `json:"user_id"`
	Seats     []string  `json:"seats,omitempty"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	Status    string    `json:"status"`
	Reference string    `json:"reference,omitempty"`
	Reason    string    `json:"reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// EventBuilder assembles a BookingEvent.
type EventBuilder struct {
	event *BookingEvent
}

func NewEventBuilder(eventType EventType) *EventBuilder {
	return &EventBuilder{
		event: &BookingEvent{
			ID:         uuid.New(),
			Type:       eventType,
			Priority:   DefaultPriority(eventType),
			OccurredAt: time.Now().UTC(),
		},
	}
}

func (b *EventBuilder) WithBooking(bookingID, showID uuid.UUID, userID string) *EventBuilder {
	b.event.BookingID = bookingID
	b.event.ShowID = showID
	b.event.UserID = userID
	return b
}

func (b *EventBuilder) WithSeats(seats []string) *EventBuilder {
	b.event.Seats = append([]string(nil), seats...)
	return b
}

func (b *EventBuilder) WithAmount(amount int64, currency string) *EventBuilder {
	b.event.Amount = amount
	b.event.Currency = currency
	return b
}

func (b *EventBuilder) WithStatus(status string) *EventBuilder {
	b.event.Status = status
	return b
}

func (b *EventBuilder) WithReference(reference string) *EventBuilder {
	b.event.Reference = reference
	return b
}

func (b *EventBuilder) WithReason(reason string) *EventBuilder {
	b.event.Reason = reason
	return b
}

func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.event.OccurredAt = t.UTC()
	return b
}

func (b *EventBuilder) Build() *BookingEvent {
	return b.event
}

// DefaultPriority ranks events for consumers that triage by header.
func DefaultPriority(eventType EventType) Priority {
	switch eventType {
	case EventPaymentOrphaned:
		return PriorityCritical
	case EventBookingCompleted:
		return PriorityHigh
	case EventBookingFailed, EventBookingExpired:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// PartitionKey keeps every event of a booking on one partition, in order.
func (e *BookingEvent) PartitionKey() string {
	return e.BookingID.String()
}

func (e *BookingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
