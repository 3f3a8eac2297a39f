package shows

// CreateShowsRequest schedules one movie at several dates and times with a single price.
type CreateShowsRequest struct {
	MovieID     string          `json:"movie_id" binding:"required,max=64"`
	MovieTitle  string          `json:"movie_title" binding:"required,min=1,max=255"`
	Price       int64           `json:"price" binding:"required,min=1"`
	Currency    string          `json:"currency" binding:"omitempty,len=3"`
	Rows        int             `json:"rows" binding:"omitempty,min=1,max=26"`
	SeatsPerRow int             `json:"seats_per_row" binding:"omitempty,min=1,max=100"`
	Schedule    []ScheduleInput `json:"schedule" binding:"required,min=1,dive"`
}

// ScheduleInput is a date ("2006-01-02") with one or more start times ("15:04").
type ScheduleInput struct {
	Date  string   `json:"date" binding:"required"`
	Times []string `json:"times" binding:"required,min=1"`
}
