// Package waitlist records interest in an unavailable window and picks who
// hears about it first when the window frees up.
package waitlist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

type Manager struct {
	store   store.Store
	timeout time.Duration
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Engine
}

type Option func(*Manager)

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(e *metrics.Engine) Option {
	return func(m *Manager) {
		m.metrics = e
	}
}

func NewManager(s store.Store, storeTimeout time.Duration, opts ...Option) *Manager {
	m := &Manager{store: s, timeout: storeTimeout, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type JoinRequest struct {
	TenantID          string
	ResourceID        string
	ServiceID         string
	CustomerID        string
	PreferredInterval interval.Interval
	Priority          int
}

// Join always creates a new entry, even when the customer already waits for
// the same window.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (model.WaitlistEntry, error) {
	if err := req.PreferredInterval.Validate(); err != nil {
		return model.WaitlistEntry{}, err
	}
	if req.TenantID == "" || req.ResourceID == "" || req.CustomerID == "" {
		return model.WaitlistEntry{}, fmt.Errorf("%w: tenant, resource and customer are required", model.ErrValidation)
	}

	var entry model.WaitlistEntry
	err := store.Atomic(ctx, m.store, m.timeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		entry, err = tx.Waitlist().Insert(ctx, model.WaitlistEntry{
			TenantID:          req.TenantID,
			ResourceID:        req.ResourceID,
			ServiceID:         req.ServiceID,
			CustomerID:        req.CustomerID,
			PreferredInterval: req.PreferredInterval,
			Priority:          req.Priority,
			Status:            model.WaitlistWaiting,
			CreatedAt:         m.clock(),
		})
		return err
	})
	if err != nil {
		return model.WaitlistEntry{}, err
	}
	m.metrics.Waitlist("joined")
	return entry, nil
}

// Leave soft-removes an entry. Leaving twice succeeds; entries that already
// ran their course keep their final status.
func (m *Manager) Leave(ctx context.Context, tenantID, entryID string) error {
	removed := false
	err := store.Atomic(ctx, m.store, m.timeout, func(ctx context.Context, tx store.Tx) error {
		e, err := tx.Waitlist().Get(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if e.Status != model.WaitlistWaiting && e.Status != model.WaitlistNotified {
			return nil
		}
		removed = true
		return tx.Waitlist().SetStatus(ctx, tenantID, entryID, model.WaitlistRemoved, m.clock())
	})
	if err == nil && removed {
		m.metrics.Waitlist("removed")
	}
	return err
}

func (m *Manager) Get(ctx context.Context, tenantID, entryID string) (model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := store.View(ctx, m.store, m.timeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		e, err = tx.Waitlist().Get(ctx, tenantID, entryID)
		return err
	})
	return e, err
}

// SlotAvailable is the body of waitlist.slot_available events.
type SlotAvailable struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	ResourceID string    `json:"resource_id"`
	ServiceID  string    `json:"service_id,omitempty"`
	CustomerID string    `json:"customer_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
}

// OnIntervalFreed runs inside the transaction that freed the interval. The
// highest-priority waiting entry overlapping freed, oldest first on ties, is
// marked notified and announced. No hold is taken on the customer's behalf.
func (m *Manager) OnIntervalFreed(ctx context.Context, tx store.Tx, tenantID, resourceID string, freed interval.Interval) (*model.WaitlistEntry, error) {
	waiting, err := tx.Waitlist().Waiting(ctx, tenantID, resourceID, freed)
	if err != nil {
		return nil, err
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	top := waiting[0]
	now := m.clock()
	if err := tx.Waitlist().SetStatus(ctx, tenantID, top.ID, model.WaitlistNotified, now); err != nil {
		return nil, err
	}
	evt, err := outbox.NewEvent(model.AggregateWaitlist, top.ID, model.EventWaitlistSlotAvailable, SlotAvailable{
		EntryID:    top.ID,
		TenantID:   tenantID,
		ResourceID: resourceID,
		ServiceID:  top.ServiceID,
		CustomerID: top.CustomerID,
		Start:      freed.Start,
		End:        freed.End,
		Timezone:   freed.TZ(),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Outbox().Append(ctx, evt); err != nil {
		return nil, err
	}
	m.metrics.Waitlist("notified")
	top.Status = model.WaitlistNotified
	top.UpdatedAt = now
	return &top, nil
}

// Fulfill closes the customer's notified entries that a new booking satisfies.
func (m *Manager) Fulfill(ctx context.Context, tx store.Tx, tenantID, resourceID, customerID string, booked interval.Interval) error {
	if customerID == "" {
		return nil
	}
	entries, err := tx.Waitlist().Notified(ctx, tenantID, resourceID, customerID, booked)
	if err != nil {
		return err
	}
	now := m.clock()
	for _, e := range entries {
		if err := tx.Waitlist().SetStatus(ctx, tenantID, e.ID, model.WaitlistFulfilled, now); err != nil {
			return err
		}
		m.metrics.Waitlist("fulfilled")
	}
	return nil
}

// ExpireStale marks waiting entries whose preferred window has passed.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	var n int
	err := store.Atomic(ctx, m.store, m.timeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.Waitlist().ExpireEnded(ctx, m.clock())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("waitlist entries expired", "count", n)
	}
	return n, nil
}
