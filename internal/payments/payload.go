package payments

import (
	"fmt"
)

// MinorUnitsPerMajor converts whole NPR to paisa.
const MinorUnitsPerMajor = 100

// Order is what a booking contributes to a payment session.
type Order struct {
	AttemptID   string
	BookingID   string
	MovieTitle  string
	SeatCount   int
	UnitPrice   int64
	TotalAmount int64
	Customer    Customer
}

// BuildInitiateRequest derives the gateway payload for an order. Order id
// and line-item identity are the booking id; the name reads
// "Tickets for <movie> X <seats>".
func BuildInitiateRequest(order Order) InitiateRequest {
	name := fmt.Sprintf("Tickets for %s X %d", order.MovieTitle, order.SeatCount)
	total := order.TotalAmount * MinorUnitsPerMajor

	return InitiateRequest{
		IdempotencyKey: order.AttemptID,
		OrderID:        order.BookingID,
		OrderName:      name,
		Amount:         total,
		Customer:       order.Customer,
		Items: []LineItem{{
			Identity:   order.BookingID,
			Name:       name,
			TotalPrice: total,
			Quantity:   order.SeatCount,
			UnitPrice:  order.UnitPrice * MinorUnitsPerMajor,
		}},
	}
}
