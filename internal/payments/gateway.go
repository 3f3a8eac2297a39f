package payments

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Status is the provider outcome normalized to the vocabulary the
// reconciler understands.
type Status string

const (
	StatusCompleted    Status = "Completed"
	StatusPending      Status = "Pending"
	StatusExpired      Status = "Expired"
	StatusUserCanceled Status = "UserCanceled"
	StatusRefunded     Status = "Refunded"
	StatusUnknown      Status = "Unknown"
)

// NormalizeStatus maps a raw provider status onto Status. Anything
// unrecognized is StatusUnknown and must be treated as ambiguous.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed":
		return StatusCompleted
	case "pending", "initiated":
		return StatusPending
	case "expired":
		return StatusExpired
	case "user canceled", "user cancelled", "canceled", "cancelled":
		return StatusUserCanceled
	case "refunded", "partially refunded":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

// IsFailure reports whether the payment definitively did not go through.
func (s Status) IsFailure() bool {
	return s == StatusExpired || s == StatusUserCanceled || s == StatusRefunded
}

type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LineItem amounts are in minor units.
type LineItem struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	TotalPrice int64  `json:"total_price"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

// InitiateRequest opens a payment session. Amount is in minor units.
// IdempotencyKey must be stable across retries of the same attempt.
type InitiateRequest struct {
	IdempotencyKey string
	OrderID        string
	OrderName      string
	Amount         int64
	Customer       Customer
	Items          []LineItem
}

type InitiateResponse struct {
	Reference  string
	PaymentURL string
	ExpiresAt  time.Time
}

type VerifyResult struct {
	Reference     string
	Status        Status
	RawStatus     string
	Amount        int64
	TransactionID string
	Raw           json.RawMessage
}

// Gateway is the external wallet provider.
//
// Initiate returns a GatewayError on network failure or a non-2xx answer.
// Verify returns GatewayAmbiguous when the outcome cannot be determined,
// including timeouts; callers must never release seats on it.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}
