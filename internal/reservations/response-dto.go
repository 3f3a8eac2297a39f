package reservations

import "time"

type ReserveResult struct {
	BookingID  string    `json:"booking_id"`
	ShowID     string    `json:"show_id"`
	Seats      []string  `json:"seats"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	PaymentURL string    `json:"payment_url"`
	Reference  string    `json:"pidx"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type ConfirmResult struct {
	BookingID      string `json:"booking_id"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	RefundRequired bool   `json:"refund_required,omitempty"`
}

type OccupiedSeatsResponse struct {
	ShowID        string    `json:"show_id"`
	Rows          int       `json:"rows"`
	SeatsPerRow   int       `json:"seats_per_row"`
	OccupiedSeats []string  `json:"occupied_seats"`
	Available     int       `json:"available"`
	AsOf          time.Time `json:"as_of"`
}

type ShowSummary struct {
	ID         string    `json:"id"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	StartsAt   time.Time `json:"starts_at"`
}

type BookingResponse struct {
	ID               string       `json:"id"`
	ShowID           string       `json:"show_id"`
	Show             *ShowSummary `json:"show,omitempty"`
	Seats            []string     `json:"seats"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	Status           string       `json:"status"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	RefundRequired   bool         `json:"refund_required"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}
