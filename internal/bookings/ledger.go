package bookings

import (
	"context"
	"strings"
	"time"

	"cinereserve/internal/seats"
	pkgErrors "cinereserve/pkg/errors"
	"cinereserve/pkg/logger"

	"github.com/google/uuid"
)

type ReserveInput struct {
	ShowID  uuid.UUID
	UserID  string
	SeatIDs []string
}

// TransitionRequest moves a booking to To. Guard, when set, runs inside
// the show lock against the current booking and can veto the change.
// Reference, when set on a move to COMPLETED, records the session that paid.
type TransitionRequest struct {
	BookingID uuid.UUID
	To        Status
	Reason    string
	Reference string
	Guard     func(current *Booking) error
}

type TransitionResult struct {
	Booking  *Booking
	From     Status
	Changed  bool
	Released []string
}

// Ledger owns bookings and their seat claims. Every mutation runs inside
// the owning show's lock.
type Ledger interface {
	Reserve(ctx context.Context, in ReserveInput) (*Booking, error)
	Release(ctx context.Context, bookingID uuid.UUID) ([]string, error)
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	StartPaymentAttempt(ctx context.Context, bookingID uuid.UUID) (*PaymentAttempt, *Booking, error)
	AttachPaymentReference(ctx context.Context, attemptID uuid.UUID, reference, paymentURL string) (*PaymentAttempt, error)
	FailPaymentAttempt(ctx context.Context, attemptID uuid.UUID, reason string) error
	RecordProviderStatus(ctx context.Context, attemptID uuid.UUID, providerStatus string) error
	FindAttemptByReference(ctx context.Context, reference string) (*PaymentAttempt, error)
	FlagRefundRequired(ctx context.Context, bookingID uuid.UUID) (bool, error)

	Get(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Booking, error)
	OccupiedSeats(ctx context.Context, showID uuid.UUID) ([]string, error)
}

type LedgerConfig struct {
	MaxSeatsPerBooking int
	Now                func() time.Time
	Logger             *logger.Logger
}

type ledger struct {
	repo     Repository
	maxSeats int
	now      func() time.Time
	log      *logger.Logger
}

func NewLedger(repo Repository, cfg LedgerConfig) Ledger {
	if cfg.MaxSeatsPerBooking <= 0 {
		cfg.MaxSeatsPerBooking = seats.DefaultMaxPerBooking
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefault()
	}
	return &ledger{
		repo:     repo,
		maxSeats: cfg.MaxSeatsPerBooking,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
}

func (l *ledger) clock() time.Time {
	return l.now().UTC()
}

// Reserve claims the seats and creates a PENDING booking in one show transaction.
func (l *ledger) Reserve(ctx context.Context, in ReserveInput) (*Booking, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, pkgErrors.Validation("user id is required")
	}

	var created *Booking
	err := l.repo.WithShowLock(ctx, in.ShowID, func(tx ShowTx) error {
		show := tx.Show()
		if !show.IsActive {
			return pkgErrors.Validation("show is not open for booking")
		}

		requested, err := seats.ValidateSelection(show.Layout(), in.SeatIDs, l.maxSeats)
		if err != nil {
			return err
		}

		seatMap, err := tx.SeatMap()
		if err != nil {
			return err
		}
		if conflicts := seatMap.Conflicts(requested); len(conflicts) > 0 {
			return pkgErrors.SeatConflict(conflicts)
		}

		now := l.clock()
		booking := &Booking{
			ID:        uuid.New(),
			UserID:    userID,
			ShowID:    show.ID,
			Seats:     SeatList(requested),
			Amount:    show.Price * int64(len(requested)),
			Currency:  show.Currency,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateBooking(booking); err != nil {
			return err
		}
		if err := tx.ClaimSeats(booking.ID, requested); err != nil {
			return err
		}
		if err := tx.BumpVersion(); err != nil {
			return err
		}
		created = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.LogBookingCreated(ctx, created.ID.String(), created.ShowID.String(), created.UserID, created.Seats)
	return created, nil
}

// Release frees the seats still held by a FAILED or EXPIRED booking.
// Calling it again, or on a booking holding nothing, is a no-op. PENDING and
// COMPLETED bookings keep their seats.
func (l *ledger) Release(ctx context.Context, bookingID uuid.UUID) ([]string, error) {
	booking, err := l.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var released []string
	err = l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if !current.Status.ReleasesSeats() {
			return nil
		}
		released, err = tx.ReleaseSeats(bookingID)
		if err != nil {
			return err
		}
		if len(released) > 0 {
			return tx.BumpVersion()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// Transition applies a forward state change. Re-applying the current
// status is reported as unchanged rather than as an error.
func (l *ledger) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if !req.To.IsValid() {
		return nil, pkgErrors.Validation("unknown booking status %q", req.To)
	}
	booking, err := l.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{}
	err = l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetBooking(req.BookingID)
		if err != nil {
			return err
		}
		result.From = current.Status
		result.Booking = current

		if current.Status == req.To {
			return nil
		}
		if req.Guard != nil {
			if err := req.Guard(current); err != nil {
				return err
			}
		}
		if !current.Status.CanTransitionTo(req.To) {
			return pkgErrors.IllegalTransition(string(current.Status), string(req.To)).
				WithDetail("current_status", string(current.Status))
		}

		now := l.clock()
		if req.To == StatusCompleted && req.Reference != "" {
			ref := req.Reference
			current.PaymentReference = &ref
		}
		current.Status = req.To
		current.UpdatedAt = now
		current.ResolvedAt = &now
		if err := l.settleAttempts(tx, current, req); err != nil {
			return err
		}
		if err := tx.SaveBooking(current); err != nil {
			return err
		}

		if req.To.ReleasesSeats() {
			released, err := tx.ReleaseSeats(current.ID)
			if err != nil {
				return err
			}
			result.Released = released
		}
		if err := tx.BumpVersion(); err != nil {
			return err
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		l.log.LogBookingTransition(ctx, req.BookingID.String(), string(result.From), string(req.To), result.Released)
	}
	return result, nil
}

// settleAttempts closes the booking's open payment sessions to match its new status.
func (l *ledger) settleAttempts(tx ShowTx, booking *Booking, req TransitionRequest) error {
	open, err := tx.OpenAttempts(booking.ID)
	if err != nil {
		return err
	}
	now := l.clock()
	for i := range open {
		attempt := &open[i]
		switch {
		case req.To == StatusCompleted && booking.HasReference() && attempt.ReferenceValue() == *booking.PaymentReference:
			attempt.Status = AttemptVerified
		case req.To == StatusCompleted:
			attempt.Status = AttemptSuperseded
		default:
			attempt.Status = AttemptFailed
			attempt.FailureReason = reasonOr(req.Reason, "booking "+strings.ToLower(string(req.To)))
		}
		attempt.UpdatedAt = now
		if err := tx.SaveAttempt(attempt); err != nil {
			return err
		}
	}
	return nil
}

// StartPaymentAttempt opens a fresh payment session for a PENDING booking.
// Any prior open session is superseded and the booking's reference cleared
// in the same transaction. Seats are never touched.
func (l *ledger) StartPaymentAttempt(ctx context.Context, bookingID uuid.UUID) (*PaymentAttempt, *Booking, error) {
	booking, err := l.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	var attempt *PaymentAttempt
	var snapshot *Booking
	err = l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return pkgErrors.IllegalTransition(string(current.Status), "payment").
				WithDetail("current_status", string(current.Status))
		}

		now := l.clock()
		open, err := tx.OpenAttempts(bookingID)
		if err != nil {
			return err
		}
		for i := range open {
			open[i].Status = AttemptSuperseded
			open[i].UpdatedAt = now
			if err := tx.SaveAttempt(&open[i]); err != nil {
				return err
			}
		}
		if current.PaymentReference != nil {
			current.PaymentReference = nil
			current.UpdatedAt = now
			if err := tx.SaveBooking(current); err != nil {
				return err
			}
		}

		next := &PaymentAttempt{
			ID:        uuid.New(),
			BookingID: bookingID,
			Status:    AttemptInitiating,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateAttempt(next); err != nil {
			return err
		}
		attempt = next
		snapshot = current
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return attempt, snapshot, nil
}

// AttachPaymentReference records the gateway's session reference. Only a
// still-initiating attempt of a PENDING booking becomes the active one; a
// late answer for a superseded attempt is kept for lookups but not attached.
func (l *ledger) AttachPaymentReference(ctx context.Context, attemptID uuid.UUID, reference, paymentURL string) (*PaymentAttempt, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgErrors.Validation("payment reference is required")
	}
	attempt, err := l.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	booking, err := l.repo.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}

	var stale bool
	var saved *PaymentAttempt
	err = l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetAttempt(attemptID)
		if err != nil {
			return err
		}
		owner, err := tx.GetBooking(current.BookingID)
		if err != nil {
			return err
		}

		now := l.clock()
		current.Reference = &reference
		current.PaymentURL = paymentURL
		current.UpdatedAt = now

		if current.Status == AttemptInitiating && owner.Status == StatusPending {
			current.Status = AttemptActive
			owner.PaymentReference = &reference
			owner.UpdatedAt = now
			if err := tx.SaveBooking(owner); err != nil {
				return err
			}
		} else {
			stale = true
			if current.Status.IsOpen() {
				current.Status = AttemptSuperseded
			}
		}
		if err := tx.SaveAttempt(current); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return saved, pkgErrors.New(pkgErrors.CodeIllegalTransition, "payment attempt is no longer current").
			WithDetail("attempt_id", attemptID.String())
	}

	l.log.LogPaymentInitiated(ctx, saved.BookingID.String(), saved.ID.String(), reference)
	return saved, nil
}

// FailPaymentAttempt marks an initiating attempt failed; the booking stays
// PENDING without a reference and can be retried.
func (l *ledger) FailPaymentAttempt(ctx context.Context, attemptID uuid.UUID, reason string) error {
	return l.updateAttempt(ctx, attemptID, func(attempt *PaymentAttempt) bool {
		if attempt.Status != AttemptInitiating {
			return false
		}
		attempt.Status = AttemptFailed
		attempt.FailureReason = reasonOr(reason, "initiate failed")
		return true
	})
}

// RecordProviderStatus stores the last provider-reported status on the attempt.
func (l *ledger) RecordProviderStatus(ctx context.Context, attemptID uuid.UUID, providerStatus string) error {
	return l.updateAttempt(ctx, attemptID, func(attempt *PaymentAttempt) bool {
		if attempt.ProviderStatus == providerStatus {
			return false
		}
		attempt.ProviderStatus = providerStatus
		return true
	})
}

func (l *ledger) updateAttempt(ctx context.Context, attemptID uuid.UUID, mutate func(*PaymentAttempt) bool) error {
	attempt, err := l.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	booking, err := l.repo.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return err
	}
	return l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetAttempt(attemptID)
		if err != nil {
			return err
		}
		if !mutate(current) {
			return nil
		}
		current.UpdatedAt = l.clock()
		return tx.SaveAttempt(current)
	})
}

func (l *ledger) FindAttemptByReference(ctx context.Context, reference string) (*PaymentAttempt, error) {
	return l.repo.FindAttemptByReference(ctx, reference)
}

// FlagRefundRequired marks a booking for operator follow-up. It reports
// whether the flag was newly set.
func (l *ledger) FlagRefundRequired(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	booking, err := l.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	var flagged bool
	err = l.repo.WithShowLock(ctx, booking.ShowID, func(tx ShowTx) error {
		current, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if current.RefundRequired {
			return nil
		}
		current.RefundRequired = true
		current.UpdatedAt = l.clock()
		flagged = true
		return tx.SaveBooking(current)
	})
	if err != nil {
		return false, err
	}
	return flagged, nil
}

func (l *ledger) Get(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return l.repo.GetBooking(ctx, bookingID)
}

func (l *ledger) ListByUser(ctx context.Context, userID string) ([]Booking, error) {
	return l.repo.ListBookingsByUser(ctx, userID)
}

func (l *ledger) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Booking, error) {
	return l.repo.ListPendingCreatedBefore(ctx, cutoff.UTC(), limit)
}

// OccupiedSeats is an advisory snapshot, never authoritative for claims.
func (l *ledger) OccupiedSeats(ctx context.Context, showID uuid.UUID) ([]string, error) {
	seatMap, err := l.repo.SeatMap(ctx, showID)
	if err != nil {
		return nil, err
	}
	return seatMap.Occupied(), nil
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
