package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func span(startMin, endMin int) interval.Interval {
	return interval.Interval{
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}
}

func booking(iv interval.Interval) model.Commitment {
	return model.Commitment{
		TenantID:   "t1",
		ResourceID: "r1",
		Interval:   iv,
		Kind:       model.KindBooking,
		Status:     model.CommitmentConfirmed,
	}
}

func insert(t *testing.T, s *Store, c model.Commitment, now time.Time, opts ...store.InsertOption) (model.Commitment, error) {
	t.Helper()
	var out model.Commitment
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Commitments().TryInsert(ctx, c, now, opts...)
		return err
	})
	return out, err
}

func TestTryInsert_RejectsOverlapAllowsBackToBack(t *testing.T) {
	s := New()
	now := base

	first, err := insert(t, s, booking(span(600, 660)), now)
	require.NoError(t, err)

	_, err = insert(t, s, booking(span(630, 690)), now)
	require.ErrorIs(t, err, model.ErrConflict)
	var ce *model.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, first.ID, ce.With.ID)

	_, err = insert(t, s, booking(span(660, 720)), now)
	require.NoError(t, err, "back-to-back commitments must not conflict")

	other := booking(span(600, 660))
	other.ResourceID = "r2"
	_, err = insert(t, s, other, now)
	require.NoError(t, err, "other resources are independent")

	otherTenant := booking(span(600, 660))
	otherTenant.TenantID = "t2"
	_, err = insert(t, s, otherTenant, now)
	require.NoError(t, err, "other tenants are independent")
}

func TestTryInsert_ConcurrentOverlapsOnlyOneWins(t *testing.T) {
	s := New()
	const callers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every candidate overlaps [600, 660).
			_, err := insert(t, s, booking(span(590+i%20, 650+i%20)), base)
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

	var occ []model.Commitment
	require.NoError(t, s.Read(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		occ, err = tx.Commitments().QueryOccupancy(ctx, "t1", "r1", span(0, 1440), base)
		return err
	}))
	assert.Len(t, occ, 1)
}

func TestTryInsert_OverdueHoldDoesNotBlock(t *testing.T) {
	s := New()
	expires := base.Add(15 * time.Minute)
	hold := booking(span(600, 660))
	hold.Kind = model.KindHold
	hold.Status = model.CommitmentHeld
	hold.ExpiresAt = &expires

	_, err := insert(t, s, hold, base)
	require.NoError(t, err)

	_, err = insert(t, s, booking(span(600, 660)), expires.Add(-time.Second))
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = insert(t, s, booking(span(600, 660)), expires)
	require.NoError(t, err, "a hold at its expiry instant no longer occupies")
}

func TestTryInsert_Superseding(t *testing.T) {
	s := New()
	old, err := insert(t, s, booking(span(540, 600)), base)
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Commitments().TryInsert(ctx, booking(span(540, 600)), base, store.Superseding(old.ID)); err != nil {
			return err
		}
		_, err := tx.Commitments().Transition(ctx, "t1", old.ID, model.CommitmentCanceled, nil)
		return err
	})
	require.NoError(t, err)

	var occ []model.Commitment
	require.NoError(t, s.Read(context.Background(), func(ctx context.Context, tx store.Tx) error {
		occ, err = tx.Commitments().QueryOccupancy(ctx, "t1", "r1", span(0, 1440), base)
		return err
	}))
	require.Len(t, occ, 1)
	assert.NotEqual(t, old.ID, occ[0].ID)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := tx.Commitments().TryInsert(ctx, booking(span(600, 660)), base)
		if err != nil {
			return err
		}
		if _, err := tx.Bookings().Insert(ctx, model.Booking{TenantID: "t1", ClientGeneratedID: "abc", CommitmentID: c.ID}); err != nil {
			return err
		}
		if err := tx.Outbox().Append(ctx, outbox.Event{EventType: model.EventBookingCreated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = insert(t, s, booking(span(600, 660)), base)
	require.NoError(t, err, "rolled back commitment must not occupy")
	assert.Empty(t, s.Events())

	err = s.Read(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Bookings().GetByClientID(ctx, "t1", "abc")
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRead_RejectsWrites(t *testing.T) {
	s := New()
	err := s.Read(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Commitments().TryInsert(ctx, booking(span(600, 660)), base)
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestExpireDue(t *testing.T) {
	s := New()
	holdExp := base.Add(10 * time.Minute)
	payExp := base.Add(20 * time.Minute)

	hold := booking(span(600, 660))
	hold.Kind, hold.Status, hold.ExpiresAt = model.KindHold, model.CommitmentHeld, &holdExp
	pending := booking(span(700, 760))
	pending.Status, pending.ExpiresAt = model.CommitmentPending, &payExp

	_, err := insert(t, s, hold, base)
	require.NoError(t, err)
	_, err = insert(t, s, pending, base)
	require.NoError(t, err)
	_, err = insert(t, s, booking(span(800, 860)), base)
	require.NoError(t, err)

	var expired []model.Commitment
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		expired, err = tx.Commitments().ExpireDue(ctx, base.Add(15*time.Minute), 0)
		return err
	}))
	require.Len(t, expired, 1)
	assert.Equal(t, model.CommitmentExpired, expired[0].Status)

	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		expired, err = tx.Commitments().ExpireDue(ctx, base.Add(time.Hour), 0)
		return err
	}))
	require.Len(t, expired, 1)
	assert.Equal(t, model.CommitmentFailed, expired[0].Status)
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	s := New()
	c, err := insert(t, s, booking(span(600, 660)), base)
	require.NoError(t, err)

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Commitments().Transition(ctx, "t1", c.ID, model.CommitmentPending, nil)
		return err
	})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Commitments().Transition(ctx, "t2", c.ID, model.CommitmentCanceled, nil)
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound, "commitments of other tenants are invisible")
}

func TestClaim_MarksPublished(t *testing.T) {
	s := New()
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.Outbox().Append(ctx, outbox.Event{EventType: model.EventHoldCreated}); err != nil {
				return err
			}
		}
		return nil
	}))

	var seen int
	n, err := s.Claim(context.Background(), 2, func(_ context.Context, recs []outbox.Record) error {
		seen += len(recs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Claim(context.Background(), 2, func(_ context.Context, recs []outbox.Record) error {
		seen += len(recs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, seen)
}
