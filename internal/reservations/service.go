package reservations

import (
	"context"
	"errors"
	"strings"
	"time"

	"cinereserve/internal/bookings"
	"cinereserve/internal/notifications"
	"cinereserve/internal/payments"
	"cinereserve/internal/reconciliation"
	"cinereserve/internal/seats"
	"cinereserve/internal/shared/constants"
	"cinereserve/internal/shows"
	"cinereserve/pkg/cache"
	pkgErrors "cinereserve/pkg/errors"
	"cinereserve/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ShowLookup resolves the show a booking is made for.
type ShowLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*shows.Show, error)
}

// Buyer is the authenticated user making or paying for a booking.
type Buyer struct {
	UserID string
	Name   string
	Email  string
}

// Viewer is whoever reads a booking; admins can read any booking.
type Viewer struct {
	UserID string
	Admin  bool
}

type Service interface {
	Reserve(ctx context.Context, showID uuid.UUID, buyer Buyer, seatIDs []string) (*ReserveResult, error)
	RetryPayment(ctx context.Context, bookingID uuid.UUID, buyer Buyer) (*ReserveResult, error)
	ConfirmPayment(ctx context.Context, bookingID uuid.UUID, reference string) (*ConfirmResult, error)
	GetOccupiedSeats(ctx context.Context, showID uuid.UUID) (*OccupiedSeatsResponse, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID, viewer Viewer) (*BookingResponse, error)
	ListUserBookings(ctx context.Context, userID string) ([]BookingResponse, error)
	ExpireStale(ctx context.Context) (int, error)
}

type Config struct {
	MaxSeatsPerBooking int
	PendingTimeout     time.Duration
	InitiateTimeout    time.Duration
	OccupiedCacheTTL   time.Duration
	Now                func() time.Time
	Logger             *logger.Logger
}

type Deps struct {
	Ledger     bookings.Ledger
	Reconciler reconciliation.Reconciler
	Gateway    payments.Gateway
	Shows      ShowLookup
	Cache      cache.Service
	Publisher  notifications.Publisher
}

type service struct {
	ledger     bookings.Ledger
	reconciler reconciliation.Reconciler
	gateway    payments.Gateway
	shows      ShowLookup
	cache      cache.Service
	publisher  notifications.Publisher
	cfg        Config
	log        *logger.Logger
	fills      singleflight.Group
}

func NewService(deps Deps, cfg Config) Service {
	if cfg.MaxSeatsPerBooking <= 0 {
		cfg.MaxSeatsPerBooking = seats.DefaultMaxPerBooking
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 10 * time.Minute
	}
	if cfg.InitiateTimeout <= 0 {
		cfg.InitiateTimeout = 15 * time.Second
	}
	if cfg.OccupiedCacheTTL <= 0 {
		cfg.OccupiedCacheTTL = constants.TTL_REALTIME_SHORT
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefault()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryService()
	}
	if deps.Publisher == nil {
		deps.Publisher = notifications.NewLogPublisher(cfg.Logger)
	}
	return &service{
		ledger:     deps.Ledger,
		reconciler: deps.Reconciler,
		gateway:    deps.Gateway,
		shows:      deps.Shows,
		cache:      deps.Cache,
		publisher:  deps.Publisher,
		cfg:        cfg,
		log:        cfg.Logger.WithComponent("reservations"),
	}
}

// Reserve claims the seats and opens the first payment session. A failed
// initiation leaves the booking PENDING without a reference; the returned
// gateway error carries the booking id so the client can retry payment.
func (s *service) Reserve(ctx context.Context, showID uuid.UUID, buyer Buyer, seatIDs []string) (*ReserveResult, error) {
	if strings.TrimSpace(buyer.UserID) == "" {
		return nil, pkgErrors.Validation("user id is required")
	}
	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		return nil, err
	}
	if !show.IsActive {
		return nil, pkgErrors.Validation("show is not open for booking")
	}

	requested, err := seats.ValidateSelection(show.Layout(), seatIDs, s.cfg.MaxSeatsPerBooking)
	if err != nil {
		return nil, err
	}

	// Advisory pre-check; the ledger repeats it under the show lock.
	if occupied, err := s.ledger.OccupiedSeats(ctx, showID); err == nil {
		seatMap := make(seats.SeatMap, len(occupied))
		for _, seat := range occupied {
			seatMap[seat] = ""
		}
		if !seats.IsAvailable(seatMap, requested) {
			return nil, pkgErrors.SeatConflict(seatMap.Conflicts(requested))
		}
	}

	booking, err := s.ledger.Reserve(ctx, bookings.ReserveInput{
		ShowID:  showID,
		UserID:  buyer.UserID,
		SeatIDs: requested,
	})
	if err != nil {
		return nil, err
	}
	s.invalidateOccupied(ctx, showID)
	s.publish(ctx, notifications.EventBookingCreated, booking, "")

	return s.initiatePayment(ctx, booking, show, buyer)
}

// RetryPayment opens a new payment session for a PENDING booking. The
// previous session is superseded; seats are not touched.
func (s *service) RetryPayment(ctx context.Context, bookingID uuid.UUID, buyer Buyer) (*ReserveResult, error) {
	booking, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != buyer.UserID {
		return nil, pkgErrors.Forbidden("booking belongs to another user")
	}
	if booking.Status != bookings.StatusPending {
		return nil, pkgErrors.IllegalTransition(string(booking.Status), "payment").
			WithDetail("current_status", string(booking.Status))
	}
	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil {
		return nil, err
	}
	return s.initiatePayment(ctx, booking, show, buyer)
}

func (s *service) initiatePayment(ctx context.Context, booking *bookings.Booking, show *shows.Show, buyer Buyer) (*ReserveResult, error) {
	attempt, snapshot, err := s.ledger.StartPaymentAttempt(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	req := payments.BuildInitiateRequest(payments.Order{
		AttemptID:   attempt.ID.String(),
		BookingID:   snapshot.ID.String(),
		MovieTitle:  show.MovieTitle,
		SeatCount:   len(snapshot.Seats),
		UnitPrice:   show.Price,
		TotalAmount: snapshot.Amount,
		Customer:    payments.Customer{Name: buyer.Name, Email: buyer.Email},
	})

	initCtx, cancel := context.WithTimeout(ctx, s.cfg.InitiateTimeout)
	resp, err := s.gateway.Initiate(initCtx, req)
	cancel()
	if err != nil {
		if failErr := s.ledger.FailPaymentAttempt(ctx, attempt.ID, err.Error()); failErr != nil {
			s.log.ErrorWithContext(ctx, "failed to record initiate failure", failErr, map[string]interface{}{
				"attempt_id": attempt.ID.String(),
			})
		}
		return nil, pkgErrors.Gateway("payment initiation failed", err).
			WithDetail("booking_id", snapshot.ID.String())
	}

	if _, err := s.ledger.AttachPaymentReference(ctx, attempt.ID, resp.Reference, resp.PaymentURL); err != nil {
		if appErr, ok := pkgErrors.As(err); ok {
			return nil, appErr.WithDetail("booking_id", snapshot.ID.String())
		}
		return nil, err
	}
	s.publish(ctx, notifications.EventPaymentInitiated, snapshot, resp.Reference)

	return &ReserveResult{
		BookingID:  snapshot.ID.String(),
		ShowID:     snapshot.ShowID.String(),
		Seats:      []string(snapshot.Seats),
		Amount:     snapshot.Amount,
		Currency:   snapshot.Currency,
		Status:     string(snapshot.Status),
		PaymentURL: resp.PaymentURL,
		Reference:  resp.Reference,
		ExpiresAt:  snapshot.CreatedAt.Add(s.cfg.PendingTimeout),
	}, nil
}

// ConfirmPayment verifies reference with the gateway and applies the
// answer. Timeouts and unrecognized statuses are GatewayAmbiguous and
// change nothing.
func (s *service) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, reference string) (*ConfirmResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgErrors.Validation("payment reference is required")
	}
	attempt, err := s.ledger.FindAttemptByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrNotFound) {
			return nil, pkgErrors.Validation("payment reference does not belong to this booking")
		}
		return nil, err
	}
	if attempt.BookingID != bookingID {
		return nil, pkgErrors.Validation("payment reference does not belong to this booking")
	}

	verification, err := s.reconciler.Verify(ctx, reference)
	if err != nil {
		if appErr, ok := pkgErrors.As(err); ok {
			return nil, appErr.WithDetail("booking_id", bookingID.String())
		}
		return nil, err
	}

	out, err := s.reconciler.MarkVerified(ctx, bookingID, *verification)
	if err != nil {
		return nil, err
	}
	if len(out.Released) > 0 {
		s.invalidateOccupied(ctx, out.Booking.ShowID)
	}

	return &ConfirmResult{
		BookingID:      bookingID.String(),
		Status:         string(out.Booking.Status),
		PaymentStatus:  string(verification.Status),
		RefundRequired: out.Booking.RefundRequired,
	}, nil
}

// GetOccupiedSeats is an advisory snapshot served from a short-lived cache.
// Concurrent misses for one show share a single ledger read.
func (s *service) GetOccupiedSeats(ctx context.Context, showID uuid.UUID) (*OccupiedSeatsResponse, error) {
	key := occupiedKey(showID)

	var cached OccupiedSeatsResponse
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WarnWithContext(ctx, "occupied seats cache read failed", err, map[string]interface{}{
			"show_id": showID.String(),
		})
	}

	v, err, _ := s.fills.Do(key, func() (interface{}, error) {
		show, err := s.shows.GetByID(ctx, showID)
		if err != nil {
			return nil, err
		}
		occupied, err := s.ledger.OccupiedSeats(ctx, showID)
		if err != nil {
			return nil, err
		}
		resp := &OccupiedSeatsResponse{
			ShowID:        showID.String(),
			Rows:          show.Rows,
			SeatsPerRow:   show.SeatsPerRow,
			OccupiedSeats: occupied,
			Available:     show.Layout().Capacity() - len(occupied),
			AsOf:          s.cfg.Now().UTC(),
		}
		if err := s.cache.Set(ctx, key, resp, s.cfg.OccupiedCacheTTL); err != nil {
			s.log.WarnWithContext(ctx, "occupied seats cache write failed", err, map[string]interface{}{
				"show_id": showID.String(),
			})
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*OccupiedSeatsResponse), nil
}

func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID, viewer Viewer) (*BookingResponse, error) {
	booking, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && booking.UserID != viewer.UserID {
		return nil, pkgErrors.Forbidden("booking belongs to another user")
	}

	show, err := s.shows.GetByID(ctx, booking.ShowID)
	if err != nil && !errors.Is(err, pkgErrors.ErrNotFound) {
		return nil, err
	}
	resp := s.toResponse(booking, show)
	return &resp, nil
}

// ListUserBookings returns the user's bookings newest first, each with its show.
func (s *service) ListUserBookings(ctx context.Context, userID string) ([]BookingResponse, error) {
	list, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	showCache := make(map[uuid.UUID]*shows.Show)
	out := make([]BookingResponse, 0, len(list))
	for i := range list {
		show, seen := showCache[list[i].ShowID]
		if !seen {
			show, err = s.shows.GetByID(ctx, list[i].ShowID)
			if err != nil && !errors.Is(err, pkgErrors.ErrNotFound) {
				return nil, err
			}
			showCache[list[i].ShowID] = show
		}
		out = append(out, s.toResponse(&list[i], show))
	}
	return out, nil
}

func (s *service) ExpireStale(ctx context.Context) (int, error) {
	return s.reconciler.ExpireStalePendingBookings(ctx)
}

func (s *service) toResponse(booking *bookings.Booking, show *shows.Show) BookingResponse {
	resp := BookingResponse{
		ID:             booking.ID.String(),
		ShowID:         booking.ShowID.String(),
		Seats:          []string(booking.Seats),
		Amount:         booking.Amount,
		Currency:       booking.Currency,
		Status:         string(booking.Status),
		RefundRequired: booking.RefundRequired,
		CreatedAt:      booking.CreatedAt,
		ResolvedAt:     booking.ResolvedAt,
	}
	if booking.HasReference() {
		resp.PaymentReference = *booking.PaymentReference
	}
	if booking.Status == bookings.StatusPending {
		expiresAt := booking.CreatedAt.Add(s.cfg.PendingTimeout)
		resp.ExpiresAt = &expiresAt
	}
	if show != nil {
		resp.Show = &ShowSummary{
			ID:         show.ID.String(),
			MovieID:    show.MovieID,
			MovieTitle: show.MovieTitle,
			StartsAt:   show.StartsAt,
		}
	}
	return resp
}

func (s *service) invalidateOccupied(ctx context.Context, showID uuid.UUID) {
	if err := s.cache.Delete(ctx, occupiedKey(showID)); err != nil {
		s.log.WarnWithContext(ctx, "occupied seats cache invalidation failed", err, map[string]interface{}{
			"show_id": showID.String(),
		})
	}
}

func (s *service) publish(ctx context.Context, eventType notifications.EventType, booking *bookings.Booking, reference string) {
	event := notifications.NewEventBuilder(eventType).
		WithBooking(booking.ID, booking.ShowID, booking.UserID).
		WithSeats(booking.Seats).
		WithAmount(booking.Amount, booking.Currency).
		WithStatus(string(booking.Status)).
		WithReference(reference).
		At(s.cfg.Now()).
		Build()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WarnWithContext(ctx, "failed to publish booking event", err, map[string]interface{}{
			"booking_id": booking.ID.String(),
			"type":       string(eventType),
		})
	}
}

func occupiedKey(showID uuid.UUID) string {
	return constants.BuildOccupiedSeatsKey(showID)
}
