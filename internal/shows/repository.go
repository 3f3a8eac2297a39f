package shows

import (
	"context"
	"errors"
	"time"

	pkgErrors "cinereserve/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateMany(ctx context.Context, shows []Show) error
	GetByID(ctx context.Context, id uuid.UUID) (*Show, error)
	ListUpcomingByMovie(ctx context.Context, movieID string, from time.Time) ([]Show, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateMany(ctx context.Context, shows []Show) error {
	if len(shows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&shows).Error; err != nil {
		return pkgErrors.Persistence("failed to create shows", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Show, error) {
	var show Show
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&show).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.NotFound("show")
		}
		return nil, pkgErrors.Persistence("failed to load show", err)
	}
	return &show, nil
}

func (r *repository) ListUpcomingByMovie(ctx context.Context, movieID string, from time.Time) ([]Show, error) {
	var shows []Show
	err := r.db.WithContext(ctx).
		Where("movie_id = ? AND starts_at >= ? AND is_active = ?", movieID, from, true).
		Order("starts_at ASC").
		Find(&shows).Error
	if err != nil {
		return nil, pkgErrors.Persistence("failed to list shows", err)
	}
	return shows, nil
}
