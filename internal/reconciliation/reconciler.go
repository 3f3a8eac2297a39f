package reconciliation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"cinereserve/internal/bookings"
	"cinereserve/internal/notifications"
	"cinereserve/internal/payments"
	"cinereserve/internal/shared/constants"
	"cinereserve/pkg/cache"
	pkgErrors "cinereserve/pkg/errors"
	"cinereserve/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Verification is a normalized gateway answer for one payment session.
type Verification struct {
	Reference string
	Status    payments.Status
	RawStatus string
}

// Outcome reports what a reconciliation step did to a booking.
type Outcome struct {
	Booking  *bookings.Booking
	Changed  bool
	Orphaned bool
	Released []string
}

// Reconciler drives a booking's payment status from gateway answers and
// scheduled checks. Every operation is idempotent and safe to race.
type Reconciler interface {
	MarkVerified(ctx context.Context, bookingID uuid.UUID, v Verification) (*Outcome, error)
	Expire(ctx context.Context, bookingID uuid.UUID) (*Outcome, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
	ExpireStalePendingBookings(ctx context.Context) (int, error)
	RecheckPending(ctx context.Context) (int, error)
}

type Config struct {
	PendingTimeout time.Duration
	RecheckDelay   time.Duration
	// AmbiguousGrace is how long past PendingTimeout an expiry waits on a
	// gateway that cannot give an answer before expiring anyway.
	AmbiguousGrace time.Duration
	VerifyTimeout  time.Duration
	BatchSize      int
	Concurrency    int
	Now            func() time.Time
	Logger         *logger.Logger
	// Cache holds occupied-seat snapshots; entries for a show are dropped
	// whenever a transition here frees its seats. Optional.
	Cache          cache.Service
}

func DefaultConfig() Config {
	return Config{
		PendingTimeout: 10 * time.Minute,
		RecheckDelay:   2 * time.Minute,
		AmbiguousGrace: 10 * time.Minute,
		VerifyTimeout:  10 * time.Second,
		BatchSize:      100,
		Concurrency:    4,
	}
}

var (
	errNotDue         = errors.New("booking is not due for expiry")
	errOrphaned       = errors.New("payment arrived for a closed booking")
	errStaleReference = errors.New("reference is not the booking's active session")
)

type reconciler struct {
	ledger    bookings.Ledger
	gateway   payments.Gateway
	publisher notifications.Publisher
	cfg       Config
	log       *logger.Logger
}

func New(ledger bookings.Ledger, gateway payments.Gateway, publisher notifications.Publisher, cfg Config) Reconciler {
	defaults := DefaultConfig()
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = defaults.PendingTimeout
	}
	if cfg.RecheckDelay <= 0 {
		cfg.RecheckDelay = defaults.RecheckDelay
	}
	if cfg.AmbiguousGrace < 0 {
		cfg.AmbiguousGrace = 0
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = defaults.VerifyTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefault()
	}
	if publisher == nil {
		publisher = notifications.NewLogPublisher(cfg.Logger)
	}
	return &reconciler{
		ledger:    ledger,
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		log:       cfg.Logger.WithComponent("reconciler"),
	}
}

// Verify asks the gateway about reference under the verify timeout. A
// timeout or unrecognized answer is GatewayAmbiguous.
func (r *reconciler) Verify(ctx context.Context, reference string) (*Verification, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, r.cfg.VerifyTimeout)
	defer cancel()

	result, err := r.gateway.Verify(verifyCtx, reference)
	if err != nil {
		if _, ok := pkgErrors.As(err); ok {
			return nil, err
		}
		return nil, pkgErrors.GatewayAmbiguous("payment verification failed", err)
	}
	if result.Status == payments.StatusUnknown {
		return nil, pkgErrors.GatewayAmbiguous("unrecognized payment status", nil).
			WithDetail("provider_status", result.RawStatus)
	}
	return &Verification{Reference: reference, Status: result.Status, RawStatus: result.RawStatus}, nil
}

// MarkVerified applies a gateway answer.
//
// Completed moves a PENDING booking to COMPLETED. Completed for a booking
// already FAILED or EXPIRED, or paid through a different session, never
// reopens it: the booking is flagged for an operator refund instead.
// A failure answer fails the booking only when it concerns the active
// session. Pending changes nothing.
func (r *reconciler) MarkVerified(ctx context.Context, bookingID uuid.UUID, v Verification) (*Outcome, error) {
	reference := strings.TrimSpace(v.Reference)
	if reference == "" {
		return nil, pkgErrors.Validation("payment reference is required")
	}
	attempt, err := r.ledger.FindAttemptByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrNotFound) {
			return nil, pkgErrors.Validation("payment reference does not belong to this booking")
		}
		return nil, err
	}
	if attempt.BookingID != bookingID {
		return nil, pkgErrors.Validation("payment reference does not belong to this booking")
	}
	if v.RawStatus != "" {
		if err := r.ledger.RecordProviderStatus(ctx, attempt.ID, v.RawStatus); err != nil {
			r.log.WarnWithContext(ctx, "failed to record provider status", err, map[string]interface{}{
				"attempt_id": attempt.ID.String(),
			})
		}
	}

	switch {
	case v.Status == payments.StatusCompleted:
		return r.complete(ctx, bookingID, reference)
	case v.Status.IsFailure():
		return r.fail(ctx, bookingID, reference, v)
	case v.Status == payments.StatusPending:
		booking, err := r.ledger.Get(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return &Outcome{Booking: booking}, nil
	default:
		return nil, pkgErrors.GatewayAmbiguous("unrecognized payment status", nil).
			WithDetail("provider_status", v.RawStatus)
	}
}

func (r *reconciler) complete(ctx context.Context, bookingID uuid.UUID, reference string) (*Outcome, error) {
	var closed *bookings.Booking
	res, err := r.ledger.Transition(ctx, bookings.TransitionRequest{
		BookingID: bookingID,
		To:        bookings.StatusCompleted,
		Reference: reference,
		Guard: func(current *bookings.Booking) error {
			if current.Status.IsTerminal() {
				closed = current
				return errOrphaned
			}
			return nil
		},
	})
	if errors.Is(err, errOrphaned) {
		return r.orphan(ctx, closed, reference)
	}
	if err != nil {
		return nil, err
	}

	// A second session paid for a booking that is already COMPLETED.
	if !res.Changed && res.Booking.HasReference() && *res.Booking.PaymentReference != reference {
		return r.orphan(ctx, res.Booking, reference)
	}
	if res.Changed {
		r.publish(ctx, notifications.EventBookingCompleted, res.Booking, reference, "")
	}
	return &Outcome{Booking: res.Booking, Changed: res.Changed}, nil
}

func (r *reconciler) orphan(ctx context.Context, booking *bookings.Booking, reference string) (*Outcome, error) {
	flagged, err := r.ledger.FlagRefundRequired(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	current, err := r.ledger.Get(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if flagged {
		r.log.LogPaymentOrphaned(ctx, booking.ID.String(), string(current.Status), reference)
		r.publish(ctx, notifications.EventPaymentOrphaned, current, reference, "payment completed for a closed booking")
	}
	return &Outcome{Booking: current, Orphaned: true}, nil
}

func (r *reconciler) fail(ctx context.Context, bookingID uuid.UUID, reference string, v Verification) (*Outcome, error) {
	reason := v.RawStatus
	if reason == "" {
		reason = string(v.Status)
	}
	res, err := r.ledger.Transition(ctx, bookings.TransitionRequest{
		BookingID: bookingID,
		To:        bookings.StatusFailed,
		Reason:    reason,
		Guard: func(current *bookings.Booking) error {
			if current.Status != bookings.StatusPending {
				return pkgErrors.IllegalTransition(string(current.Status), string(bookings.StatusFailed))
			}
			if !current.HasReference() || *current.PaymentReference != reference {
				return errStaleReference
			}
			return nil
		},
	})
	switch {
	case errors.Is(err, errStaleReference), errors.Is(err, pkgErrors.ErrIllegalTransition):
		// Closed bookings and superseded sessions are left alone.
		booking, getErr := r.ledger.Get(ctx, bookingID)
		if getErr != nil {
			return nil, getErr
		}
		return &Outcome{Booking: booking}, nil
	case err != nil:
		return nil, err
	}

	if res.Changed {
		r.invalidateOccupied(ctx, res.Booking.ShowID, res.Released)
		r.publish(ctx, notifications.EventBookingFailed, res.Booking, reference, reason)
	}
	return &Outcome{Booking: res.Booking, Changed: res.Changed, Released: res.Released}, nil
}

// Expire moves a PENDING booking past its timeout to EXPIRED and frees
// its seats. Anything else is a no-op.
func (r *reconciler) Expire(ctx context.Context, bookingID uuid.UUID) (*Outcome, error) {
	now := r.cfg.Now().UTC()
	res, err := r.ledger.Transition(ctx, bookings.TransitionRequest{
		BookingID: bookingID,
		To:        bookings.StatusExpired,
		Reason:    "payment window elapsed",
		Guard: func(current *bookings.Booking) error {
			if current.Status != bookings.StatusPending {
				return errNotDue
			}
			if current.CreatedAt.Add(r.cfg.PendingTimeout).After(now) {
				return errNotDue
			}
			return nil
		},
	})
	if errors.Is(err, errNotDue) {
		booking, getErr := r.ledger.Get(ctx, bookingID)
		if getErr != nil {
			return nil, getErr
		}
		return &Outcome{Booking: booking}, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Changed {
		r.invalidateOccupied(ctx, res.Booking.ShowID, res.Released)
		r.publish(ctx, notifications.EventBookingExpired, res.Booking, "", "payment window elapsed")
	}
	return &Outcome{Booking: res.Booking, Changed: res.Changed, Released: res.Released}, nil
}

// ExpireStalePendingBookings expires PENDING bookings older than the
// timeout. A booking with an attached session gets one last gateway check
// first so a completed payment still wins. It returns how many bookings
// this call expired.
func (r *reconciler) ExpireStalePendingBookings(ctx context.Context) (int, error) {
	now := r.cfg.Now().UTC()
	stale, err := r.ledger.ListPendingCreatedBefore(ctx, now.Add(-r.cfg.PendingTimeout), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var expired atomic.Int64
	err = r.forEach(ctx, stale, func(ctx context.Context, booking bookings.Booking) error {
		if booking.HasReference() {
			settled, err := r.lastCheck(ctx, booking, now)
			if err != nil || settled {
				return err
			}
		}
		out, err := r.Expire(ctx, booking.ID)
		if err != nil {
			return err
		}
		if out.Changed {
			expired.Add(1)
		}
		return nil
	})
	return int(expired.Load()), err
}

// lastCheck verifies the booking's session before expiry. It reports true
// when the booking must not be expired in this pass.
func (r *reconciler) lastCheck(ctx context.Context, booking bookings.Booking, now time.Time) (bool, error) {
	reference := *booking.PaymentReference
	v, err := r.Verify(ctx, reference)
	if err != nil {
		if !errors.Is(err, pkgErrors.ErrGatewayAmbiguous) {
			return true, err
		}
		// Unknown outcome: hold the seats until the grace period runs out too.
		hardDeadline := booking.CreatedAt.Add(r.cfg.PendingTimeout + r.cfg.AmbiguousGrace)
		if hardDeadline.After(now) {
			r.log.WarnWithContext(ctx, "expiry postponed: payment outcome unknown", err, map[string]interface{}{
				"booking_id": booking.ID.String(),
				"reference":  reference,
			})
			return true, nil
		}
		return false, nil
	}

	switch {
	case v.Status == payments.StatusCompleted, v.Status.IsFailure():
		_, err := r.MarkVerified(ctx, booking.ID, *v)
		return true, err
	default:
		return false, nil
	}
}

// RecheckPending verifies PENDING bookings whose session has been open
// longer than the recheck delay, for users who never came back from the
// gateway. Ambiguous answers are skipped. It returns how many bookings
// changed status.
func (r *reconciler) RecheckPending(ctx context.Context) (int, error) {
	now := r.cfg.Now().UTC()
	candidates, err := r.ledger.ListPendingCreatedBefore(ctx, now.Add(-r.cfg.RecheckDelay), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var changed atomic.Int64
	err = r.forEach(ctx, candidates, func(ctx context.Context, booking bookings.Booking) error {
		if !booking.HasReference() {
			return nil
		}
		v, err := r.Verify(ctx, *booking.PaymentReference)
		if err != nil {
			if errors.Is(err, pkgErrors.ErrGatewayAmbiguous) {
				return nil
			}
			return err
		}
		out, err := r.MarkVerified(ctx, booking.ID, *v)
		if err != nil {
			return err
		}
		if out.Changed {
			changed.Add(1)
		}
		return nil
	})
	return int(changed.Load()), err
}

// forEach runs fn over the batch with bounded concurrency. One booking's
// failure is logged and does not stop the others; the first error is returned.
func (r *reconciler) forEach(ctx context.Context, batch []bookings.Booking, fn func(context.Context, bookings.Booking) error) error {
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for _, booking := range batch {
		booking := booking
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, booking); err != nil {
				r.log.ErrorWithContext(ctx, "reconciliation step failed", err, map[string]interface{}{
					"booking_id": booking.ID.String(),
				})
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *reconciler) invalidateOccupied(ctx context.Context, showID uuid.UUID, released []string) {
	if r.cfg.Cache == nil || len(released) == 0 {
		return
	}
	if err := r.cfg.Cache.Delete(ctx, constants.BuildOccupiedSeatsKey(showID)); err != nil {
		r.log.WarnWithContext(ctx, "failed to invalidate occupied seats cache", err, map[string]interface{}{
			"show_id": showID.String(),
		})
	}
}

func (r *reconciler) publish(ctx context.Context, eventType notifications.EventType, booking *bookings.Booking, reference, reason string) {
	event := notifications.NewEventBuilder(eventType).
		WithBooking(booking.ID, booking.ShowID, booking.UserID).
		WithSeats(booking.Seats).
		WithAmount(booking.Amount, booking.Currency).
		WithStatus(string(booking.Status)).
		WithReference(reference).
		WithReason(reason).
		At(r.cfg.Now()).
		Build()

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.log.WarnWithContext(ctx, "failed to publish booking event", err, map[string]interface{}{
			"booking_id": booking.ID.String(),
			"type":       string(eventType),
		})
	}
}
