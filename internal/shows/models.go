package shows

import (
	"time"

	"cinereserve/internal/seats"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Show is one screening of a movie. Price is per seat in whole currency units.
type Show struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	MovieID     string    `json:"movie_id" gorm:"type:varchar(64);index;not null"`
	MovieTitle  string    `json:"movie_title" gorm:"not null;size:255"`
	StartsAt    time.Time `json:"starts_at" gorm:"index;not null"`
	Price       int64     `json:"price" gorm:"not null;check:price >= 0"`
	Currency    string    `json:"currency" gorm:"type:varchar(3);default:'NPR'"`
	Rows        int       `json:"rows" gorm:"column:seat_rows;not null;check:seat_rows > 0"`
	SeatsPerRow int       `json:"seats_per_row" gorm:"not null;check:seats_per_row > 0"`
	Version     int64     `json:"version" gorm:"not null;default:0"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedBy   string    `json:"created_by" gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Show) TableName() string {
	return "shows"
}

func (s *Show) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Currency == "" {
		s.Currency = "NPR"
	}
	return nil
}

// Layout returns the seat grid the show is sold against.
func (s *Show) Layout() seats.Layout {
	if s.Rows <= 0 || s.SeatsPerRow <= 0 {
		return seats.DefaultLayout()
	}
	return seats.Layout{Rows: s.Rows, SeatsPerRow: s.SeatsPerRow}
}

func (s *Show) ToResponse() ShowResponse {
	return ShowResponse{
		ID:          s.ID.String(),
		MovieID:     s.MovieID,
		MovieTitle:  s.MovieTitle,
		StartsAt:    s.StartsAt,
		Price:       s.Price,
		Currency:    s.Currency,
		Rows:        s.Rows,
		SeatsPerRow: s.SeatsPerRow,
		IsActive:    s.IsActive,
	}
}
