package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"cinereserve/internal/seats"
	"cinereserve/internal/shows"
	pkgErrors "cinereserve/pkg/errors"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. Each ShowTx holds a
// per-show mutex and stages its writes, which are applied only when the
// callback returns nil.
type MemoryRepository struct {
	mu       sync.RWMutex
	shows    map[uuid.UUID]shows.Show
	claims   map[uuid.UUID]seats.SeatMap
	bookings map[uuid.UUID]Booking
	attempts map[uuid.UUID]PaymentAttempt

	showLocks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		shows:    make(map[uuid.UUID]shows.Show),
		claims:   make(map[uuid.UUID]seats.SeatMap),
		bookings: make(map[uuid.UUID]Booking),
		attempts: make(map[uuid.UUID]PaymentAttempt),
	}
}

// PutShow inserts or replaces a show.
func (r *MemoryRepository) PutShow(show shows.Show) {
	if show.ID == uuid.Nil {
		show.ID = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.shows[show.ID]; ok {
		show.Version = existing.Version
	}
	r.shows[show.ID] = show
}

func (r *MemoryRepository) lockShow(showID uuid.UUID) func() {
	value, _ := r.showLocks.LoadOrStore(showID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (r *MemoryRepository) WithShowLock(ctx context.Context, showID uuid.UUID, fn func(tx ShowTx) error) error {
	if err := ctx.Err(); err != nil {
		return pkgErrors.Persistence("show transaction aborted", err)
	}

	unlock := r.lockShow(showID)
	defer unlock()

	r.mu.RLock()
	show, ok := r.shows[showID]
	seatMap := r.claims[showID].Clone()
	r.mu.RUnlock()
	if !ok {
		return pkgErrors.NotFound("show")
	}

	tx := &memoryShowTx{
		repo:     r,
		show:     show,
		seatMap:  seatMap,
		bookings: make(map[uuid.UUID]Booking),
		attempts: make(map[uuid.UUID]PaymentAttempt),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return pkgErrors.Persistence("show transaction aborted", err)
	}

	r.commit(tx)
	return nil
}

func (r *MemoryRepository) commit(tx *memoryShowTx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	show := r.shows[tx.show.ID]
	show.Version = tx.show.Version
	r.shows[tx.show.ID] = show
	r.claims[tx.show.ID] = tx.seatMap
	for id, booking := range tx.bookings {
		r.bookings[id] = booking
	}
	for id, attempt := range tx.attempts {
		r.attempts[id] = attempt
	}
}

func (r *MemoryRepository) GetShow(ctx context.Context, showID uuid.UUID) (*shows.Show, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	show, ok := r.shows[showID]
	if !ok {
		return nil, pkgErrors.NotFound("show")
	}
	return &show, nil
}

func (r *MemoryRepository) SeatMap(ctx context.Context, showID uuid.UUID) (seats.SeatMap, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.shows[showID]; !ok {
		return nil, pkgErrors.NotFound("show")
	}
	return r.claims[showID].Clone(), nil
}

func (r *MemoryRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, pkgErrors.NotFound("booking")
	}
	booking = booking.clone()
	return &booking, nil
}

func (r *MemoryRepository) ListBookingsByUser(ctx context.Context, userID string) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Booking
	for _, booking := range r.bookings {
		if booking.UserID == userID {
			result = append(result, booking.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Booking
	for _, booking := range r.bookings {
		if booking.Status == StatusPending && !booking.CreatedAt.After(cutoff) {
			result = append(result, booking.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, pkgErrors.NotFound("payment attempt")
	}
	attempt = attempt.clone()
	return &attempt, nil
}

func (r *MemoryRepository) FindAttemptByReference(ctx context.Context, reference string) (*PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, attempt := range r.attempts {
		if attempt.ReferenceValue() == reference {
			found := attempt.clone()
			return &found, nil
		}
	}
	return nil, pkgErrors.NotFound("payment attempt")
}

type memoryShowTx struct {
	repo     *MemoryRepository
	show     shows.Show
	seatMap  seats.SeatMap
	bookings map[uuid.UUID]Booking
	attempts map[uuid.UUID]PaymentAttempt
}

func (t *memoryShowTx) Show() *shows.Show {
	return &t.show
}

func (t *memoryShowTx) SeatMap() (seats.SeatMap, error) {
	return t.seatMap.Clone(), nil
}

func (t *memoryShowTx) ClaimSeats(bookingID uuid.UUID, seatIDs []string) error {
	if err := t.seatMap.Claim(bookingID.String(), seatIDs); err != nil {
		return pkgErrors.SeatConflict(t.seatMap.Conflicts(seatIDs))
	}
	return nil
}

func (t *memoryShowTx) ReleaseSeats(bookingID uuid.UUID) ([]string, error) {
	released := t.seatMap.Release(bookingID.String())
	seats.SortSeatIDs(released)
	return released, nil
}

func (t *memoryShowTx) BumpVersion() error {
	t.show.Version++
	return nil
}

func (t *memoryShowTx) CreateBooking(booking *Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	if _, err := t.GetBooking(booking.ID); err == nil {
		return pkgErrors.Persistence("booking already exists", nil)
	}
	t.bookings[booking.ID] = booking.clone()
	return nil
}

func (t *memoryShowTx) GetBooking(id uuid.UUID) (*Booking, error) {
	booking, ok := t.bookings[id]
	if !ok {
		t.repo.mu.RLock()
		booking, ok = t.repo.bookings[id]
		t.repo.mu.RUnlock()
	}
	if !ok || booking.ShowID != t.show.ID {
		return nil, pkgErrors.NotFound("booking")
	}
	booking = booking.clone()
	return &booking, nil
}

func (t *memoryShowTx) SaveBooking(booking *Booking) error {
	if _, err := t.GetBooking(booking.ID); err != nil {
		return err
	}
	t.bookings[booking.ID] = booking.clone()
	return nil
}

func (t *memoryShowTx) CreateAttempt(attempt *PaymentAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	t.attempts[attempt.ID] = attempt.clone()
	return nil
}

func (t *memoryShowTx) GetAttempt(id uuid.UUID) (*PaymentAttempt, error) {
	attempt, ok := t.attempts[id]
	if !ok {
		t.repo.mu.RLock()
		attempt, ok = t.repo.attempts[id]
		t.repo.mu.RUnlock()
	}
	if !ok {
		return nil, pkgErrors.NotFound("payment attempt")
	}
	attempt = attempt.clone()
	return &attempt, nil
}

func (t *memoryShowTx) OpenAttempts(bookingID uuid.UUID) ([]PaymentAttempt, error) {
	merged := make(map[uuid.UUID]PaymentAttempt)
	t.repo.mu.RLock()
	for id, attempt := range t.repo.attempts {
		if attempt.BookingID == bookingID {
			merged[id] = attempt
		}
	}
	t.repo.mu.RUnlock()
	for id, attempt := range t.attempts {
		if attempt.BookingID == bookingID {
			merged[id] = attempt
		}
	}

	var open []PaymentAttempt
	for _, attempt := range merged {
		if attempt.Status.IsOpen() {
			open = append(open, attempt.clone())
		}
	}
	sort.Slice(open, func(i, j int) bool {
		return open[i].CreatedAt.Before(open[j].CreatedAt)
	})
	return open, nil
}

func (t *memoryShowTx) SaveAttempt(attempt *PaymentAttempt) error {
	if ref := attempt.ReferenceValue(); ref != "" {
		if existing, err := t.repo.FindAttemptByReference(context.Background(), ref); err == nil && existing.ID != attempt.ID {
			return pkgErrors.Validation("payment reference already belongs to another attempt")
		}
	}
	t.attempts[attempt.ID] = attempt.clone()
	return nil
}
