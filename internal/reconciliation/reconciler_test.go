package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cinereserve/internal/bookings"
	"cinereserve/internal/notifications"
	"cinereserve/internal/payments"
	"cinereserve/internal/shared/constants"
	"cinereserve/internal/shows"
	"cinereserve/pkg/cache"
	pkgErrors "cinereserve/pkg/errors"
	"cinereserve/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*notifications.BookingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *notifications.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType notifications.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	ledger     bookings.Ledger
	gateway    *payments.FakeGateway
	publisher  *recordingPublisher
	reconciler Reconciler
	clock      *testClock
	show       shows.Show
	cache      *cache.MemoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := bookings.NewMemoryRepository()
	show := shows.Show{
		ID:          uuid.New(),
		MovieID:     "tt0111161",
		MovieTitle:  "The Shawshank Redemption",
		StartsAt:    time.Date(2026, 11, 1, 18, 30, 0, 0, time.UTC),
		Price:       300,
		Currency:    "NPR",
		Rows:        13,
		SeatsPerRow: 12,
		IsActive:    true,
	}
	repo.PutShow(show)

	clock := &testClock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	ledger := bookings.NewLedger(repo, bookings.LedgerConfig{Now: clock.Now, Logger: logger.Discard()})
	gateway := payments.NewFakeGateway()
	publisher := &recordingPublisher{}

	cfg := DefaultConfig()
	cfg.Now = clock.Now
	cfg.Logger = logger.Discard()
	snapshots := cache.NewMemoryService()
	cfg.Cache = snapshots
	return &fixture{
		ledger:     ledger,
		gateway:    gateway,
		publisher:  publisher,
		reconciler: New(ledger, gateway, publisher, cfg),
		clock:      clock,
		show:       show,
		cache:      snapshots,
	}
}

func (f *fixture) reserve(t *testing.T, seatIDs ...string) *bookings.Booking {
	t.Helper()
	booking, err := f.ledger.Reserve(context.Background(), bookings.ReserveInput{
		ShowID:  f.show.ID,
		UserID:  "user-1",
		SeatIDs: seatIDs,
	})
	require.NoError(t, err)
	return booking
}

// startPayment opens a session at the fake gateway and attaches it.
func (f *fixture) startPayment(t *testing.T, bookingID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()
	attempt, _, err := f.ledger.StartPaymentAttempt(ctx, bookingID)
	require.NoError(t, err)
	resp, err := f.gateway.Initiate(ctx, payments.InitiateRequest{IdempotencyKey: attempt.ID.String()})
	require.NoError(t, err)
	_, err = f.ledger.AttachPaymentReference(ctx, attempt.ID, resp.Reference, resp.PaymentURL)
	require.NoError(t, err)
	return resp.Reference
}

func (f *fixture) occupied(t *testing.T) []string {
	t.Helper()
	seatIDs, err := f.ledger.OccupiedSeats(context.Background(), f.show.ID)
	require.NoError(t, err)
	return seatIDs
}

func TestMarkVerified_CompletesPendingBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking := f.reserve(t, "C1", "C2")
	assert.Equal(t, int64(600), booking.Amount)
	ref := f.startPayment(t, booking.ID)

	out, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: ref, Status: payments.StatusCompleted, RawStatus: "Completed"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, bookings.StatusCompleted, out.Booking.Status)
	assert.Equal(t, ref, *out.Booking.PaymentReference)
	assert.Equal(t, int64(600), out.Booking.Amount)
	assert.Equal(t, []string{"C1", "C2"}, f.occupied(t))

	attempt, err := f.ledger.FindAttemptByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, bookings.AttemptVerified, attempt.Status)
	assert.Equal(t, "Completed", attempt.ProviderStatus)

	again, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: ref, Status: payments.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.False(t, again.Orphaned)
	assert.Equal(t, bookings.StatusCompleted, again.Booking.Status)
	assert.Equal(t, 1, f.publisher.count(notifications.EventBookingCompleted))
}

func TestMarkVerified_PendingChangesNothing(t *testing.T) {
	f := newFixture(t)
	booking := f.reserve(t, "A1")
	ref := f.startPayment(t, booking.ID)

	out, err := f.reconciler.MarkVerified(context.Background(), booking.ID, Verification{Reference: ref, Status: payments.StatusPending})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, bookings.StatusPending, out.Booking.Status)
	assert.Equal(t, []string{"A1"}, f.occupied(t))
}

func TestMarkVerified_FailureOnActiveSessionReleasesSeats(t *testing.T) {
	for _, status := range []payments.Status{payments.StatusExpired, payments.StatusUserCanceled, payments.StatusRefunded} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			booking := f.reserve(t, "D4", "D5")
			ref := f.startPayment(t, booking.ID)

			out, err := f.reconciler.MarkVerified(context.Background(), booking.ID, Verification{Reference: ref, Status: status})
			require.NoError(t, err)
			assert.True(t, out.Changed)
			assert.Equal(t, bookings.StatusFailed, out.Booking.Status)
			assert.ElementsMatch(t, []string{"D4", "D5"}, out.Released)
			assert.Empty(t, f.occupied(t))
			assert.Equal(t, 1, f.publisher.count(notifications.EventBookingFailed))
		})
	}
}

func TestMarkVerified_FailureOnSupersededSessionIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "B1")
	oldRef := f.startPayment(t, booking.ID)
	newRef := f.startPayment(t, booking.ID)
	require.NotEqual(t, oldRef, newRef)

	out, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: oldRef, Status: payments.StatusUserCanceled})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, bookings.StatusPending, out.Booking.Status)
	assert.Equal(t, newRef, *out.Booking.PaymentReference)
	assert.Equal(t, []string{"B1"}, f.occupied(t))
}

func TestMarkVerified_CompletedSupersededSessionStillWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "E1")
	oldRef := f.startPayment(t, booking.ID)
	newRef := f.startPayment(t, booking.ID)

	out, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: oldRef, Status: payments.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, bookings.StatusCompleted, out.Booking.Status)
	assert.Equal(t, oldRef, *out.Booking.PaymentReference)

	active, err := f.ledger.FindAttemptByReference(ctx, newRef)
	require.NoError(t, err)
	assert.Equal(t, bookings.AttemptSuperseded, active.Status)
}

func TestMarkVerified_CompletedAfterExpiryFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "C1", "C2")
	ref := f.startPayment(t, booking.ID)

	// The user abandoned the gateway; the sweep finds nothing paid yet.
	f.clock.Advance(11 * time.Minute)
	f.gateway.SetStatus(ref, payments.StatusPending)
	expired, err := f.reconciler.ExpireStalePendingBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Empty(t, f.occupied(t))

	for i := 0; i < 2; i++ {
		out, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: ref, Status: payments.StatusCompleted})
		require.NoError(t, err)
		assert.True(t, out.Orphaned)
		assert.Equal(t, bookings.StatusExpired, out.Booking.Status)
		assert.True(t, out.Booking.RefundRequired)
	}
	assert.Equal(t, 1, f.publisher.count(notifications.EventPaymentOrphaned))
	assert.Empty(t, f.occupied(t))
}

func TestMarkVerified_SecondPaymentOnCompletedBookingIsOrphaned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "F1")
	oldRef := f.startPayment(t, booking.ID)
	newRef := f.startPayment(t, booking.ID)

	_, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: newRef, Status: payments.StatusCompleted})
	require.NoError(t, err)

	out, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: oldRef, Status: payments.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, out.Orphaned)
	assert.Equal(t, bookings.StatusCompleted, out.Booking.Status)
	assert.Equal(t, newRef, *out.Booking.PaymentReference)
	assert.True(t, out.Booking.RefundRequired)
}

func TestMarkVerified_RejectsForeignReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.reserve(t, "G1")
	other := f.reserve(t, "G2")
	otherRef := f.startPayment(t, other.ID)

	_, err := f.reconciler.MarkVerified(ctx, mine.ID, Verification{Reference: otherRef, Status: payments.StatusCompleted})
	assert.True(t, errors.Is(err, pkgErrors.ErrValidation))

	_, err = f.reconciler.MarkVerified(ctx, mine.ID, Verification{Reference: "no-such-pidx", Status: payments.StatusCompleted})
	assert.True(t, errors.Is(err, pkgErrors.ErrValidation))

	_, err = f.reconciler.MarkVerified(ctx, mine.ID, Verification{Reference: "  ", Status: payments.StatusCompleted})
	assert.True(t, errors.Is(err, pkgErrors.ErrValidation))

	got, err := f.ledger.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPending, got.Status)
}

func TestMarkVerified_UnknownStatusIsAmbiguous(t *testing.T) {
	f := newFixture(t)
	booking := f.reserve(t, "H1")
	ref := f.startPayment(t, booking.ID)

	_, err := f.reconciler.MarkVerified(context.Background(), booking.ID, Verification{Reference: ref, Status: payments.StatusUnknown, RawStatus: "Mystery"})
	assert.True(t, errors.Is(err, pkgErrors.ErrGatewayAmbiguous))
	assert.Equal(t, []string{"H1"}, f.occupied(t))
}

func TestExpire_OnlyAfterTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "C1", "C2")

	f.clock.Advance(9 * time.Minute)
	out, err := f.reconciler.Expire(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, bookings.StatusPending, out.Booking.Status)

	f.clock.Advance(time.Minute)
	out, err = f.reconciler.Expire(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, bookings.StatusExpired, out.Booking.Status)
	assert.ElementsMatch(t, []string{"C1", "C2"}, out.Released)
	assert.Empty(t, f.occupied(t))

	again, err := f.reconciler.Expire(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, 1, f.publisher.count(notifications.EventBookingExpired))

	// Freed seats can be booked again.
	next := f.reserve(t, "C1", "C2")
	assert.Equal(t, bookings.StatusPending, next.Status)
}

func TestExpire_LeavesCompletedBookingAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "J1")
	ref := f.startPayment(t, booking.ID)
	_, err := f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: ref, Status: payments.StatusCompleted})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	out, err := f.reconciler.Expire(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, bookings.StatusCompleted, out.Booking.Status)
	assert.Equal(t, []string{"J1"}, f.occupied(t))
}

func TestExpireStale_CompletedAtGatewayWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "K1")
	ref := f.startPayment(t, booking.ID)
	f.gateway.SetStatus(ref, payments.StatusCompleted)

	f.clock.Advance(15 * time.Minute)
	expired, err := f.reconciler.ExpireStalePendingBookings(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	got, err := f.ledger.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, got.Status)
	assert.Equal(t, []string{"K1"}, f.occupied(t))
}

func TestExpireStale_AmbiguousGatewayWaitsForGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "L1")
	ref := f.startPayment(t, booking.ID)
	f.gateway.FailVerify(ref, pkgErrors.GatewayAmbiguous("lookup timed out", context.DeadlineExceeded))

	f.clock.Advance(11 * time.Minute)
	expired, err := f.reconciler.ExpireStalePendingBookings(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, []string{"L1"}, f.occupied(t))

	f.clock.Advance(10 * time.Minute)
	expired, err = f.reconciler.ExpireStalePendingBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Empty(t, f.occupied(t))
}

func TestExpireStale_ExpiresBookingWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.reserve(t, "M1")
	f.clock.Advance(11 * time.Minute)
	newer := f.reserve(t, "M2")

	expired, err := f.reconciler.ExpireStalePendingBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, []string{"M2"}, f.occupied(t))

	got, err := f.ledger.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusExpired, got.Status)
	got, err = f.ledger.Get(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPending, got.Status)
}

func TestRecheckPending_ResolvesAbandonedReturns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := f.reserve(t, "N1")
	paidRef := f.startPayment(t, paid.ID)
	canceled := f.reserve(t, "N2")
	canceledRef := f.startPayment(t, canceled.ID)
	waiting := f.reserve(t, "N3")
	f.startPayment(t, waiting.ID)

	f.gateway.SetStatus(paidRef, payments.StatusCompleted)
	f.gateway.SetStatus(canceledRef, payments.StatusUserCanceled)

	// Too early: nothing is looked at.
	changed, err := f.reconciler.RecheckPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Zero(t, f.gateway.VerifyCalls(paidRef))

	f.clock.Advance(3 * time.Minute)
	changed, err = f.reconciler.RecheckPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	got, err := f.ledger.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusCompleted, got.Status)
	got, err = f.ledger.Get(ctx, canceled.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusFailed, got.Status)
	got, err = f.ledger.Get(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, bookings.StatusPending, got.Status)
	assert.ElementsMatch(t, []string{"N1", "N3"}, f.occupied(t))
}

func TestVerify_WrapsUnknownStatusAsAmbiguous(t *testing.T) {
	f := newFixture(t)
	booking := f.reserve(t, "P1")
	ref := f.startPayment(t, booking.ID)
	f.gateway.SetStatus(ref, payments.StatusUnknown)

	_, err := f.reconciler.Verify(context.Background(), ref)
	assert.True(t, errors.Is(err, pkgErrors.ErrGatewayAmbiguous))

	f.gateway.SetStatus(ref, payments.StatusCompleted)
	v, err := f.reconciler.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusCompleted, v.Status)
}

func TestMarkVerified_ConcurrentCompletedAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.reserve(t, "Q1", "Q2")
	ref := f.startPayment(t, booking.ID)
	f.clock.Advance(11 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.reconciler.MarkVerified(ctx, booking.ID, Verification{Reference: ref, Status: payments.StatusCompleted})
	}()
	go func() {
		defer wg.Done()
		_, _ = f.reconciler.Expire(ctx, booking.ID)
	}()
	wg.Wait()

	got, err := f.ledger.Get(ctx, booking.ID)
	require.NoError(t, err)
	switch got.Status {
	case bookings.StatusCompleted:
		assert.Equal(t, []string{"Q1", "Q2"}, f.occupied(t))
		assert.False(t, got.RefundRequired)
	case bookings.StatusExpired:
		assert.Empty(t, f.occupied(t))
		assert.True(t, got.RefundRequired)
	default:
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestReleasingTransitionsDropOccupiedSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := constants.BuildOccupiedSeatsKey(f.show.ID)
	var snapshot []string

	canceled := f.reserve(t, "A1")
	ref := f.startPayment(t, canceled.ID)
	require.NoError(t, f.cache.Set(ctx, key, []string{"A1"}, time.Minute))

	f.gateway.SetStatus(ref, payments.StatusUserCanceled)
	f.clock.Advance(3 * time.Minute)
	resolved, err := f.reconciler.RecheckPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Empty(t, f.occupied(t))
	assert.ErrorIs(t, f.cache.Get(ctx, key, &snapshot), cache.ErrCacheMiss)

	stale := f.reserve(t, "B1")
	require.NoError(t, f.cache.Set(ctx, key, []string{"B1"}, time.Minute))
	f.clock.Advance(11 * time.Minute)
	out, err := f.reconciler.Expire(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.ErrorIs(t, f.cache.Get(ctx, key, &snapshot), cache.ErrCacheMiss)
}
