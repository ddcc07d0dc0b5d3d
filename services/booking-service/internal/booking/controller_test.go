package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store/memstore"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func span(sh, sm, eh, em int) interval.Interval {
	return interval.Interval{Start: at(sh, sm), End: at(eh, em)}
}

type fixture struct {
	ctrl     *Controller
	holds    *hold.Manager
	waitlist *waitlist.Manager
	store    *memstore.Store
	clock    *fakeClock
	payments *payment.StaticChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: at(8, 0)}
	s := memstore.New(memstore.WithClock(clock.Now))
	wl := waitlist.NewManager(s, time.Second, waitlist.WithClock(clock.Now))
	payments := &payment.StaticChecker{}
	return &fixture{
		ctrl:     NewController(s, wl, payments, Config{PaymentTTL: 20 * time.Minute}, WithClock(clock.Now)),
		holds:    hold.NewManager(s, hold.Config{}, hold.WithClock(clock.Now)),
		waitlist: wl,
		store:    s,
		clock:    clock,
		payments: payments,
	}
}

func create(clientID string, iv interval.Interval) CreateRequest {
	return CreateRequest{
		ClientGeneratedID: clientID,
		ResourceID:        "R1",
		CustomerID:        "c1",
		Interval:          iv,
		Service:           model.ServiceSnapshot{ServiceID: "haircut", Duration: iv.Duration()},
	}
}

func (f *fixture) occupancy(t *testing.T) []model.Commitment {
	t.Helper()
	var out []model.Commitment
	require.NoError(t, f.store.Read(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Commitments().QueryOccupancy(ctx, "A", "R1", span(0, 0, 23, 59), f.clock.Now())
		return err
	}))
	return out
}

func (f *fixture) eventCount(eventType string) int {
	n := 0
	for _, rec := range f.store.Events() {
		if rec.EventType == eventType {
			n++
		}
	}
	return n
}

func (f *fixture) confirmed(t *testing.T, clientID string, iv interval.Interval) model.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := f.ctrl.CreateBooking(ctx, "A", create(clientID, iv))
	require.NoError(t, err)
	b, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, false, "staff-1")
	require.NoError(t, err)
	require.Equal(t, model.BookingConfirmed, b.Status)
	return b
}

func TestCreateBooking_IdempotentOnClientID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ctrl.CreateBooking(ctx, "A", create("abc", span(10, 0, 11, 0)))
	require.NoError(t, err)
	second, err := f.ctrl.CreateBooking(ctx, "A", create("abc", span(10, 0, 11, 0)))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.occupancy(t), 1)
	assert.Equal(t, 1, f.eventCount(model.EventBookingCreated), "a replay has no side effects")

	other, err := f.ctrl.CreateBooking(ctx, "B", CreateRequest{
		ClientGeneratedID: "abc",
		ResourceID:        "R1",
		Interval:          span(10, 0, 11, 0),
	})
	require.NoError(t, err, "client ids are scoped by tenant")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateBooking_ConcurrentSameClientIDYieldsOneBooking(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := f.ctrl.CreateBooking(context.Background(), "A", create("retry", span(10, 0, 11, 0)))
			if assert.NoError(t, err) {
				ids[i] = b.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.occupancy(t), 1)
}

func TestCreateBooking_ConcurrentOverlapsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ctrl.CreateBooking(context.Background(), "A", create(fmt.Sprintf("c-%d", i), span(10, i, 11, i)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrConflict)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Len(t, f.occupancy(t), 1)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.CreateBooking(ctx, "A", create("", span(10, 0, 11, 0)))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.ctrl.CreateBooking(ctx, "A", create("x", span(11, 0, 10, 0)))
	assert.ErrorIs(t, err, model.ErrInvalidInterval)

	wide := create("y", span(10, 0, 11, 0))
	wide.Service.BufferBefore = 3 * time.Hour
	_, err = f.ctrl.CreateBooking(ctx, "A", wide)
	assert.ErrorIs(t, err, model.ErrValidation, "buffers wider than the slot window are rejected")
	assert.Empty(t, f.store.Events())
}

func TestCreateBooking_FromHoldKeepsTheCommitment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.holds.CreateHold(ctx, hold.CreateRequest{
		TenantID: "A", ResourceID: "R1", CustomerID: "c1",
		Interval: span(10, 0, 11, 0), TTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	mismatch := create("m", span(10, 30, 11, 30))
	mismatch.HoldKey = h.HoldKey
	_, err = f.ctrl.CreateBooking(ctx, "A", mismatch)
	require.ErrorIs(t, err, model.ErrValidation)

	req := create("abc", span(10, 0, 11, 0))
	req.HoldKey = h.HoldKey
	req.RequiresPayment = true
	b, err := f.ctrl.CreateBooking(ctx, "A", req)
	require.NoError(t, err)
	assert.Equal(t, h.HoldKey, b.CommitmentID)

	occ := f.occupancy(t)
	require.Len(t, occ, 1)
	assert.Equal(t, model.KindBooking, occ[0].Kind)
	assert.Equal(t, model.CommitmentPending, occ[0].Status)
	require.NotNil(t, occ[0].ExpiresAt)
	assert.True(t, occ[0].ExpiresAt.Equal(at(8, 20)), "payment window replaces the hold ttl")

	_, err = f.holds.GetHold(ctx, "A", h.HoldKey)
	assert.ErrorIs(t, err, model.ErrNotFound, "a converted hold is no longer a hold")
}

func TestCreateBooking_ExpiredOrReleasedHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.holds.CreateHold(ctx, hold.CreateRequest{
		TenantID: "A", ResourceID: "R1", Interval: span(10, 0, 11, 0), TTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	f.clock.Set(at(8, 15))
	req := create("late", span(10, 0, 11, 0))
	req.HoldKey = h.HoldKey
	_, err = f.ctrl.CreateBooking(ctx, "A", req)
	require.ErrorIs(t, err, model.ErrExpired)

	h2, err := f.holds.CreateHold(ctx, hold.CreateRequest{
		TenantID: "A", ResourceID: "R1", Interval: span(12, 0, 13, 0), TTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, f.holds.ReleaseHold(ctx, "A", h2.HoldKey))
	req = create("released", span(12, 0, 13, 0))
	req.HoldKey = h2.HoldKey
	_, err = f.ctrl.CreateBooking(ctx, "A", req)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancel_NotifiesWaitlistAndFreesInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(14, 0, 15, 0))
	entry, err := f.waitlist.Join(ctx, waitlist.JoinRequest{
		TenantID: "A", ResourceID: "R1", CustomerID: "c2", PreferredInterval: span(13, 0, 16, 0),
	})
	require.NoError(t, err)

	canceled, err := f.ctrl.CancelBooking(ctx, "A", b.ID, "customer request", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCanceled, canceled.Status)
	assert.Equal(t, "customer request", canceled.CancelReason)
	assert.Equal(t, "staff-1", canceled.LastActorID)

	got, err := f.waitlist.Get(ctx, "A", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistNotified, got.Status)
	assert.Equal(t, 1, f.eventCount(model.EventWaitlistSlotAvailable))
	assert.Equal(t, 1, f.eventCount(model.EventBookingCanceled))

	again, err := f.ctrl.CancelBooking(ctx, "A", b.ID, "", "staff-2")
	require.NoError(t, err, "canceling twice succeeds")
	assert.Equal(t, "staff-1", again.LastActorID)
	assert.Equal(t, 1, f.eventCount(model.EventBookingCanceled))

	_, err = f.ctrl.CreateBooking(ctx, "A", create("def", span(14, 0, 15, 0)))
	require.NoError(t, err, "the canceled interval is fully free")
}

func TestCreateBooking_FulfillsNotifiedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(14, 0, 15, 0))
	entry, err := f.waitlist.Join(ctx, waitlist.JoinRequest{
		TenantID: "A", ResourceID: "R1", CustomerID: "c1", PreferredInterval: span(14, 0, 15, 0),
	})
	require.NoError(t, err)
	_, err = f.ctrl.CancelBooking(ctx, "A", b.ID, "", "")
	require.NoError(t, err)

	_, err = f.ctrl.CreateBooking(ctx, "A", create("def", span(14, 0, 15, 0)))
	require.NoError(t, err)

	got, err := f.waitlist.Get(ctx, "A", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistFulfilled, got.Status)
}

func TestReschedule_NoOpMoveLeavesOneCommitment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	moved, err := f.ctrl.RescheduleBooking(ctx, "A", b.ID, span(9, 0, 10, 0), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, moved.Status)
	assert.NotEqual(t, b.CommitmentID, moved.CommitmentID)

	occ := f.occupancy(t)
	require.Len(t, occ, 1)
	assert.Equal(t, moved.CommitmentID, occ[0].ID)
	assert.Equal(t, model.CommitmentConfirmed, occ[0].Status)
}

func TestReschedule_ConflictLeavesOriginalUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	f.confirmed(t, "def", span(11, 0, 12, 0))

	_, err := f.ctrl.RescheduleBooking(ctx, "A", b.ID, span(11, 30, 12, 30), "")
	require.ErrorIs(t, err, model.ErrConflict)

	got, err := f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.CommitmentID, got.CommitmentID)
	assert.True(t, got.Interval.Equal(span(9, 0, 10, 0)))
	assert.Len(t, f.occupancy(t), 2)
}

func TestReschedule_OverlappingMoveOffersOnlyTheFreedPart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	early, err := f.waitlist.Join(ctx, waitlist.JoinRequest{
		TenantID: "A", ResourceID: "R1", CustomerID: "c2", PreferredInterval: span(9, 0, 9, 30),
	})
	require.NoError(t, err)
	late, err := f.waitlist.Join(ctx, waitlist.JoinRequest{
		TenantID: "A", ResourceID: "R1", CustomerID: "c3", PreferredInterval: span(10, 0, 10, 30),
	})
	require.NoError(t, err)

	moved, err := f.ctrl.RescheduleBooking(ctx, "A", b.ID, span(9, 30, 10, 30), "")
	require.NoError(t, err)
	assert.True(t, moved.Interval.Equal(span(9, 30, 10, 30)))

	got, err := f.waitlist.Get(ctx, "A", early.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistNotified, got.Status)
	got, err = f.waitlist.Get(ctx, "A", late.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistWaiting, got.Status)

	occ := f.occupancy(t)
	require.Len(t, occ, 1)
	assert.True(t, occ[0].Interval.Equal(span(9, 30, 10, 30)))
}

func TestMarkNoShow_OnlyAfterScheduledEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	f.clock.Set(at(9, 59))
	_, err := f.ctrl.MarkNoShow(ctx, "A", b.ID, "staff-1")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	f.clock.Set(at(10, 0))
	got, err := f.ctrl.MarkNoShow(ctx, "A", b.ID, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingNoShow, got.Status)
	assert.Empty(t, f.occupancy(t), "no-shows do not block the interval")
}

func TestConfirm_PaymentRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := create("abc", span(10, 0, 11, 0))
	req.RequiresPayment = true
	b, err := f.ctrl.CreateBooking(ctx, "A", req)
	require.NoError(t, err)

	_, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, true, "")
	require.ErrorIs(t, err, model.ErrPaymentRequired)
	got, err := f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, got.Status, "no mutation without payment")

	f.payments.MarkPaid("A", b.ID)
	got, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)

	occ := f.occupancy(t)
	require.Len(t, occ, 1)
	assert.Nil(t, occ[0].ExpiresAt, "confirmed bookings never expire")

	_, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, false, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestConfirm_AfterPaymentWindowFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := create("abc", span(10, 0, 11, 0))
	req.RequiresPayment = true
	b, err := f.ctrl.CreateBooking(ctx, "A", req)
	require.NoError(t, err)

	f.clock.Set(at(8, 20))
	_, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, false, "")
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestConfirm_UnpaidDirectBookingGetsPaymentDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.ctrl.CreateBooking(ctx, "A", create("p1", span(10, 0, 11, 0)))
	require.NoError(t, err)
	occ := f.occupancy(t)
	require.Len(t, occ, 1)
	require.Nil(t, occ[0].ExpiresAt)

	_, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, true, "")
	require.ErrorIs(t, err, model.ErrPaymentRequired)

	occ = f.occupancy(t)
	require.Len(t, occ, 1)
	require.NotNil(t, occ[0].ExpiresAt)
	assert.Equal(t, at(8, 20), *occ[0].ExpiresAt)
	got, err := f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresPayment)
	assert.Equal(t, model.BookingPending, got.Status)

	f.clock.Set(at(8, 5))
	_, err = f.ctrl.ConfirmBooking(ctx, "A", b.ID, true, "")
	require.ErrorIs(t, err, model.ErrPaymentRequired)
	occ = f.occupancy(t)
	require.Len(t, occ, 1)
	assert.Equal(t, at(8, 20), *occ[0].ExpiresAt, "a refused retry keeps the first deadline")

	f.clock.Set(day.Add(32 * time.Hour))
	n, err := f.ctrl.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingFailed, got.Status)
	assert.Empty(t, f.occupancy(t))
}

func TestLifecycle_CheckInAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	_, err := f.ctrl.Complete(ctx, "A", b.ID, "")
	require.ErrorIs(t, err, model.ErrInvalidTransition, "complete requires check-in")

	b, err = f.ctrl.CheckIn(ctx, "A", b.ID, "desk")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCheckedIn, b.Status)
	assert.Len(t, f.occupancy(t), 1, "checked-in bookings still occupy")

	b, err = f.ctrl.Complete(ctx, "A", b.ID, "desk")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, b.Status)
	assert.Empty(t, f.occupancy(t))

	_, err = f.ctrl.CancelBooking(ctx, "A", b.ID, "", "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "terminal bookings cannot be canceled")
}

func TestApplyStatus_Precedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.ctrl.CreateBooking(ctx, "A", create("abc", span(9, 0, 10, 0)))
	require.NoError(t, err)

	b, err = f.ctrl.ApplyStatus(ctx, "A", b.ID, model.BookingConfirmed, "webhook")
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)

	_, err = f.ctrl.ApplyStatus(ctx, "A", b.ID, model.BookingConfirmed, "webhook")
	require.NoError(t, err, "same status is a no-op")

	_, err = f.ctrl.ApplyStatus(ctx, "A", b.ID, model.BookingPending, "webhook")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.ctrl.ApplyStatus(ctx, "A", b.ID, model.BookingCanceled, "admin")
	require.NoError(t, err)

	_, err = f.ctrl.ApplyStatus(ctx, "A", b.ID, model.BookingConfirmed, "late-webhook")
	require.ErrorIs(t, err, model.ErrInvalidTransition, "confirmed after canceled is rejected")

	got, err := f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCanceled, got.Status)
}

func TestExpireDue_FailsUnpaidAndExpiresHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := create("abc", span(10, 0, 11, 0))
	req.RequiresPayment = true
	b, err := f.ctrl.CreateBooking(ctx, "A", req)
	require.NoError(t, err)
	_, err = f.holds.CreateHold(ctx, hold.CreateRequest{
		TenantID: "A", ResourceID: "R1", Interval: span(12, 0, 13, 0), TTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	f.confirmed(t, "def", span(14, 0, 15, 0))

	n, err := f.ctrl.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Set(at(8, 30))
	n, err = f.ctrl.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.ctrl.GetBooking(ctx, "A", b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingFailed, got.Status)
	assert.Equal(t, 1, f.eventCount(model.EventBookingFailed))
	assert.Equal(t, 1, f.eventCount(model.EventHoldExpired))
	assert.Len(t, f.occupancy(t), 1)

	n, err = f.ctrl.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the sweep is idempotent")
}

func TestBookings_AreTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.confirmed(t, "abc", span(9, 0, 10, 0))
	_, err := f.ctrl.GetBooking(ctx, "B", b.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.ctrl.CancelBooking(ctx, "B", b.ID, "", "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := f.ctrl.ListBookings(ctx, "A", model.BookingFilter{Statuses: []model.BookingStatus{model.BookingConfirmed}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = f.ctrl.ListBookings(ctx, "B", model.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
