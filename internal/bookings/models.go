package bookings

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeatList is the ordered seat selection of a booking, stored as a JSON array.
type SeatList []string

func (l SeatList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *SeatList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SeatList", value)
	}
	var seats []string
	if err := json.Unmarshal(raw, &seats); err != nil {
		return err
	}
	*l = seats
	return nil
}

// Booking is one reservation attempt. Seats and Amount are fixed at creation.
type Booking struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID           string     `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ShowID           uuid.UUID  `json:"show_id" gorm:"type:uuid;index;not null"`
	Seats            SeatList   `json:"seats" gorm:"type:text;not null"`
	Amount           int64      `json:"amount" gorm:"not null"`
	Currency         string     `json:"currency" gorm:"type:varchar(3);not null"`
	Status           Status     `json:"status" gorm:"type:varchar(16);index;not null"`
	PaymentReference *string    `json:"payment_reference,omitempty" gorm:"type:varchar(128);index"`
	RefundRequired   bool       `json:"refund_required" gorm:"not null;default:false"`
	CreatedAt        time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// HasReference reports whether a gateway session is currently attached.
func (b *Booking) HasReference() bool {
	return b.PaymentReference != nil && *b.PaymentReference != ""
}

// clone returns a copy that shares no mutable state with b.
func (b Booking) clone() Booking {
	b.Seats = append(SeatList(nil), b.Seats...)
	if b.PaymentReference != nil {
		ref := *b.PaymentReference
		b.PaymentReference = &ref
	}
	if b.ResolvedAt != nil {
		at := *b.ResolvedAt
		b.ResolvedAt = &at
	}
	return b
}

// SeatClaim is one SeatMap entry. The composite key forbids a second holder.
type SeatClaim struct {
	ShowID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	SeatID    string    `gorm:"type:varchar(8);primaryKey"`
	BookingID uuid.UUID `gorm:"type:uuid;index;not null"`
	CreatedAt time.Time
}

func (SeatClaim) TableName() string {
	return "seat_claims"
}

// PaymentAttempt is one external payment session. Its ID doubles as the
// idempotency key sent with the initiate call.
type PaymentAttempt struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID      uuid.UUID     `json:"booking_id" gorm:"type:uuid;index;not null"`
	Reference      *string       `json:"reference,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	PaymentURL     string        `json:"payment_url,omitempty" gorm:"type:text"`
	Status         AttemptStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	ProviderStatus string        `json:"provider_status,omitempty" gorm:"type:varchar(32)"`
	FailureReason  string        `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}

func (a *PaymentAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a PaymentAttempt) clone() PaymentAttempt {
	if a.Reference != nil {
		ref := *a.Reference
		a.Reference = &ref
	}
	return a
}

// ReferenceValue returns the gateway reference or "" when none was issued.
func (a *PaymentAttempt) ReferenceValue() string {
	if a.Reference == nil {
		return ""
	}
	return *a.Reference
}
