package shows

import "time"

type ShowResponse struct {
	ID          string    `json:"id"`
	MovieID     string    `json:"movie_id"`
	MovieTitle  string    `json:"movie_title"`
	StartsAt    time.Time `json:"starts_at"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	Rows        int       `json:"rows"`
	SeatsPerRow int       `json:"seats_per_row"`
	IsActive    bool      `json:"is_active"`
}

type CreateShowsResponse struct {
	Shows []ShowResponse `json:"shows"`
	Count int            `json:"count"`
}
