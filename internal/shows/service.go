package shows

import (
	"context"
	"strings"
	"time"

	"cinereserve/internal/seats"
	pkgErrors "cinereserve/pkg/errors"

	"github.com/google/uuid"
)

type Service interface {
	CreateShows(ctx context.Context, adminID string, req CreateShowsRequest) (*CreateShowsResponse, error)
	GetShow(ctx context.Context, id uuid.UUID) (*ShowResponse, error)
	ListUpcomingByMovie(ctx context.Context, movieID string) ([]ShowResponse, error)
}

type service struct {
	repo     Repository
	location *time.Location
	layout   seats.Layout
	now      func() time.Time
}

// NewService builds the show service. Schedules are read in location and new
// shows get layout unless the request sets its own dimensions.
func NewService(repo Repository, location *time.Location, layout seats.Layout) Service {
	if location == nil {
		location = time.UTC
	}
	if !layout.IsValid() {
		layout = seats.DefaultLayout()
	}
	return &service{
		repo:     repo,
		location: location,
		layout:   layout,
		now:      time.Now,
	}
}

// CreateShows expands every date x time pair of the schedule into its own show.
func (s *service) CreateShows(ctx context.Context, adminID string, req CreateShowsRequest) (*CreateShowsResponse, error) {
	layout := s.layout
	if req.Rows > 0 {
		layout.Rows = req.Rows
	}
	if req.SeatsPerRow > 0 {
		layout.SeatsPerRow = req.SeatsPerRow
	}
	if !layout.IsValid() {
		return nil, pkgErrors.Validation("invalid theater layout %dx%d", layout.Rows, layout.SeatsPerRow)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "NPR"
	}

	var toCreate []Show
	seen := make(map[time.Time]struct{})
	for _, slot := range req.Schedule {
		for _, clock := range slot.Times {
			startsAt, err := time.ParseInLocation("2006-01-02 15:04", slot.Date+" "+clock, s.location)
			if err != nil {
				return nil, pkgErrors.Validation("invalid show date/time %s %s", slot.Date, clock)
			}
			if _, dup := seen[startsAt]; dup {
				continue
			}
			seen[startsAt] = struct{}{}

			toCreate = append(toCreate, Show{
				MovieID:     req.MovieID,
				MovieTitle:  req.MovieTitle,
				StartsAt:    startsAt.UTC(),
				Price:       req.Price,
				Currency:    currency,
				Rows:        layout.Rows,
				SeatsPerRow: layout.SeatsPerRow,
				IsActive:    true,
				CreatedBy:   adminID,
			})
		}
	}

	if err := s.repo.CreateMany(ctx, toCreate); err != nil {
		return nil, err
	}

	resp := &CreateShowsResponse{Shows: make([]ShowResponse, 0, len(toCreate)), Count: len(toCreate)}
	for i := range toCreate {
		resp.Shows = append(resp.Shows, toCreate[i].ToResponse())
	}
	return resp, nil
}

func (s *service) GetShow(ctx context.Context, id uuid.UUID) (*ShowResponse, error) {
	show, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := show.ToResponse()
	return &resp, nil
}

func (s *service) ListUpcomingByMovie(ctx context.Context, movieID string) ([]ShowResponse, error) {
	shows, err := s.repo.ListUpcomingByMovie(ctx, movieID, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]ShowResponse, 0, len(shows))
	for i := range shows {
		out = append(out, shows[i].ToResponse())
	}
	return out, nil
}
