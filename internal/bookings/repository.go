package bookings

import (
	"context"
	"errors"
	"time"

	"cinereserve/internal/seats"
	"cinereserve/internal/shows"
	pkgErrors "cinereserve/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShowTx is the write scope of a single show. Everything done through it
// commits or rolls back together, and no other ShowTx for the same show
// runs concurrently.
type ShowTx interface {
	Show() *shows.Show
	SeatMap() (seats.SeatMap, error)
	ClaimSeats(bookingID uuid.UUID, seatIDs []string) error
	ReleaseSeats(bookingID uuid.UUID) ([]string, error)
	BumpVersion() error

	CreateBooking(booking *Booking) error
	GetBooking(id uuid.UUID) (*Booking, error)
	SaveBooking(booking *Booking) error

	CreateAttempt(attempt *PaymentAttempt) error
	GetAttempt(id uuid.UUID) (*PaymentAttempt, error)
	OpenAttempts(bookingID uuid.UUID) ([]PaymentAttempt, error)
	SaveAttempt(attempt *PaymentAttempt) error
}

// Repository persists shows' seat claims, bookings and payment attempts.
// Reads outside WithShowLock are snapshots and never authoritative.
type Repository interface {
	WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx ShowTx) error) error

	GetShow(ctx context.Context, showID uuid.UUID) (*shows.Show, error)
	SeatMap(ctx context.Context, showID uuid.UUID) (seats.SeatMap, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]Booking, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Booking, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*PaymentAttempt, error)
	FindAttemptByReference(ctx context.Context, reference string) (*PaymentAttempt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed repository. The show row is locked
// with SELECT ... FOR UPDATE for the duration of each ShowTx.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx ShowTx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var show shows.Show
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", showID).
			First(&show).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgErrors.NotFound("show")
			}
			return pkgErrors.Persistence("failed to lock show", err)
		}
		return fn(&gormShowTx{db: tx, show: &show})
	})
	if err == nil {
		return nil
	}
	if _, ok := pkgErrors.As(err); ok {
		return err
	}
	return pkgErrors.Persistence("show transaction failed", err)
}

func (r *repository) GetShow(ctx context.Context, showID uuid.UUID) (*shows.Show, error) {
	var show shows.Show
	if err := r.db.WithContext(ctx).Where("id = ?", showID).First(&show).Error; err != nil {
		return nil, translateLookup(err, "show")
	}
	return &show, nil
}

func (r *repository) SeatMap(ctx context.Context, showID uuid.UUID) (seats.SeatMap, error) {
	return loadSeatMap(r.db.WithContext(ctx), showID)
}

func (r *repository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, translateLookup(err, "booking")
	}
	return &booking, nil
}

func (r *repository) ListBookingsByUser(ctx context.Context, userID string) ([]Booking, error) {
	var bookings []Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookings).Error
	if err != nil {
		return nil, pkgErrors.Persistence("failed to list bookings", err)
	}
	return bookings, nil
}

func (r *repository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Booking, error) {
	var bookings []Booking
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", StatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&bookings).Error; err != nil {
		return nil, pkgErrors.Persistence("failed to list pending bookings", err)
	}
	return bookings, nil
}

func (r *repository) GetAttempt(ctx context.Context, id uuid.UUID) (*PaymentAttempt, error) {
	var attempt PaymentAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, translateLookup(err, "payment attempt")
	}
	return &attempt, nil
}

func (r *repository) FindAttemptByReference(ctx context.Context, reference string) (*PaymentAttempt, error) {
	var attempt PaymentAttempt
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&attempt).Error; err != nil {
		return nil, translateLookup(err, "payment attempt")
	}
	return &attempt, nil
}

type gormShowTx struct {
	db   *gorm.DB
	show *shows.Show
}

func (t *gormShowTx) Show() *shows.Show {
	return t.show
}

func (t *gormShowTx) SeatMap() (seats.SeatMap, error) {
	return loadSeatMap(t.db, t.show.ID)
}

func (t *gormShowTx) ClaimSeats(bookingID uuid.UUID, seatIDs []string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	claims := make([]SeatClaim, 0, len(seatIDs))
	for _, seat := range seatIDs {
		claims = append(claims, SeatClaim{ShowID: t.show.ID, SeatID: seat, BookingID: bookingID})
	}
	if err := t.db.Create(&claims).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgErrors.SeatConflict(seatIDs)
		}
		return pkgErrors.Persistence("failed to claim seats", err)
	}
	return nil
}

func (t *gormShowTx) ReleaseSeats(bookingID uuid.UUID) ([]string, error) {
	var released []string
	err := t.db.Model(&SeatClaim{}).
		Where("show_id = ? AND booking_id = ?", t.show.ID, bookingID).
		Pluck("seat_id", &released).Error
	if err != nil {
		return nil, pkgErrors.Persistence("failed to load seat claims", err)
	}
	if len(released) == 0 {
		return nil, nil
	}
	err = t.db.Where("show_id = ? AND booking_id = ?", t.show.ID, bookingID).
		Delete(&SeatClaim{}).Error
	if err != nil {
		return nil, pkgErrors.Persistence("failed to release seats", err)
	}
	seats.SortSeatIDs(released)
	return released, nil
}

func (t *gormShowTx) BumpVersion() error {
	err := t.db.Model(&shows.Show{}).
		Where("id = ?", t.show.ID).
		UpdateColumn("version", gorm.Expr("version + 1")).Error
	if err != nil {
		return pkgErrors.Persistence("failed to bump show version", err)
	}
	t.show.Version++
	return nil
}

func (t *gormShowTx) CreateBooking(booking *Booking) error {
	if err := t.db.Create(booking).Error; err != nil {
		return pkgErrors.Persistence("failed to create booking", err)
	}
	return nil
}

func (t *gormShowTx) GetBooking(id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := t.db.Where("id = ? AND show_id = ?", id, t.show.ID).First(&booking).Error
	if err != nil {
		return nil, translateLookup(err, "booking")
	}
	return &booking, nil
}

func (t *gormShowTx) SaveBooking(booking *Booking) error {
	if err := t.db.Save(booking).Error; err != nil {
		return pkgErrors.Persistence("failed to update booking", err)
	}
	return nil
}

func (t *gormShowTx) CreateAttempt(attempt *PaymentAttempt) error {
	if err := t.db.Create(attempt).Error; err != nil {
		return pkgErrors.Persistence("failed to create payment attempt", err)
	}
	return nil
}

func (t *gormShowTx) GetAttempt(id uuid.UUID) (*PaymentAttempt, error) {
	var attempt PaymentAttempt
	if err := t.db.Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, translateLookup(err, "payment attempt")
	}
	return &attempt, nil
}

func (t *gormShowTx) OpenAttempts(bookingID uuid.UUID) ([]PaymentAttempt, error) {
	var attempts []PaymentAttempt
	err := t.db.Where("booking_id = ? AND status IN ?", bookingID,
		[]string{string(AttemptInitiating), string(AttemptActive)}).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, pkgErrors.Persistence("failed to load payment attempts", err)
	}
	return attempts, nil
}

func (t *gormShowTx) SaveAttempt(attempt *PaymentAttempt) error {
	if err := t.db.Save(attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgErrors.Validation("payment reference already belongs to another attempt")
		}
		return pkgErrors.Persistence("failed to update payment attempt", err)
	}
	return nil
}

func loadSeatMap(db *gorm.DB, showID uuid.UUID) (seats.SeatMap, error) {
	var claims []SeatClaim
	if err := db.Where("show_id = ?", showID).Find(&claims).Error; err != nil {
		return nil, pkgErrors.Persistence("failed to load seat map", err)
	}
	seatMap := make(seats.SeatMap, len(claims))
	for _, claim := range claims {
		seatMap[claim.SeatID] = claim.BookingID.String()
	}
	return seatMap, nil
}

func translateLookup(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgErrors.NotFound(resource)
	}
	return pkgErrors.Persistence("failed to load "+resource, err)
}
