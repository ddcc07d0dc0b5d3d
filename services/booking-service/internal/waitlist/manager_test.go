package waitlist

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func span(sh, eh int) interval.Interval {
	return interval.Interval{Start: day.Add(time.Duration(sh) * time.Hour), End: day.Add(time.Duration(eh) * time.Hour)}
}

func newManager() (*Manager, *memstore.Store, *time.Time) {
	now := day.Add(7 * time.Hour)
	clock := func() time.Time { return now }
	s := memstore.New(memstore.WithClock(clock))
	return NewManager(s, time.Second, WithClock(clock)), s, &now
}

func join(t *testing.T, m *Manager, customer string, iv interval.Interval, priority int) model.WaitlistEntry {
	t.Helper()
	e, err := m.Join(context.Background(), JoinRequest{
		TenantID: "t1", ResourceID: "r1", ServiceID: "s1", CustomerID: customer,
		PreferredInterval: iv, Priority: priority,
	})
	require.NoError(t, err)
	return e
}

func freed(t *testing.T, m *Manager, s *memstore.Store, iv interval.Interval) *model.WaitlistEntry {
	t.Helper()
	var notified *model.WaitlistEntry
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		notified, err = m.OnIntervalFreed(ctx, tx, "t1", "r1", iv)
		return err
	}))
	return notified
}

func TestOnIntervalFreed_PicksPriorityThenAge(t *testing.T) {
	m, s, now := newManager()

	join(t, m, "low", span(13, 16), 0)
	*now = now.Add(time.Minute)
	first := join(t, m, "early", span(13, 16), 5)
	*now = now.Add(time.Minute)
	join(t, m, "late", span(13, 16), 5)
	join(t, m, "elsewhere", span(8, 9), 10)

	notified := freed(t, m, s, span(14, 15))
	require.NotNil(t, notified)
	assert.Equal(t, first.ID, notified.ID)

	got, err := m.Get(context.Background(), "t1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistNotified, got.Status)

	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWaitlistSlotAvailable, events[0].EventType)
	var body SlotAvailable
	require.NoError(t, json.Unmarshal(events[0].Payload, &body))
	assert.Equal(t, "early", body.CustomerID)
	assert.True(t, body.Start.Equal(span(14, 15).Start))

	notified = freed(t, m, s, span(14, 15))
	require.NotNil(t, notified)
	assert.Equal(t, "late", notified.CustomerID, "a notified entry is not picked twice")
}

func TestOnIntervalFreed_NoMatch(t *testing.T) {
	m, s, _ := newManager()
	join(t, m, "c1", span(8, 9), 0)
	assert.Nil(t, freed(t, m, s, span(9, 10)), "back-to-back windows do not overlap")
	assert.Empty(t, s.Events())
}

func TestJoinLeaveJoin_FreshEntry(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	first := join(t, m, "c1", span(13, 16), 1)
	require.NoError(t, m.Leave(ctx, "t1", first.ID))
	require.NoError(t, m.Leave(ctx, "t1", first.ID), "leaving twice succeeds")

	second := join(t, m, "c1", span(13, 16), 1)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.WaitlistWaiting, second.Status)

	old, err := m.Get(ctx, "t1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistRemoved, old.Status)

	assert.ErrorIs(t, m.Leave(ctx, "t1", "missing"), model.ErrNotFound)
	assert.ErrorIs(t, m.Leave(ctx, "t2", second.ID), model.ErrNotFound)
}

func TestJoin_Validates(t *testing.T) {
	m, _, _ := newManager()
	_, err := m.Join(context.Background(), JoinRequest{TenantID: "t1", ResourceID: "r1", CustomerID: "c1", PreferredInterval: span(16, 13)})
	assert.ErrorIs(t, err, model.ErrInvalidInterval)
	_, err = m.Join(context.Background(), JoinRequest{TenantID: "t1", ResourceID: "r1", PreferredInterval: span(13, 16)})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestFulfillAndExpireStale(t *testing.T) {
	m, s, now := newManager()
	ctx := context.Background()

	notifiedEntry := join(t, m, "c1", span(13, 16), 0)
	stale := join(t, m, "c2", span(8, 9), 0)
	require.NotNil(t, freed(t, m, s, span(14, 15)))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return m.Fulfill(ctx, tx, "t1", "r1", "c1", span(14, 15))
	}))
	got, err := m.Get(ctx, "t1", notifiedEntry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistFulfilled, got.Status)

	*now = day.Add(10 * time.Hour)
	n, err := m.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = m.Get(ctx, "t1", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistExpired, got.Status)
}
