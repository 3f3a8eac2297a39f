package reservations

// CreateBookingRequest reserves seats for one show.
type CreateBookingRequest struct {
	ShowID string   `json:"show_id" binding:"required,uuid"`
	Seats  []string `json:"seats" binding:"required,min=1,dive,seatid"`
}

// ConfirmPaymentRequest carries the gateway session id the user returned with.
type ConfirmPaymentRequest struct {
	Pidx string `json:"pidx" binding:"required,max=128"`
}

// KhaltiReturnQuery is what the provider appends to the return URL.
type KhaltiReturnQuery struct {
	Pidx            string `form:"pidx" binding:"required,max=128"`
	PurchaseOrderID string `form:"purchase_order_id" binding:"required,uuid"`
	Status          string `form:"status"`
	TransactionID   string `form:"transaction_id"`
}
