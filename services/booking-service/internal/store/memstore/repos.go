package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

type commitments struct{ *tx }

func (r commitments) QueryOccupancy(_ context.Context, tenantID, resourceID string, window interval.Interval, now time.Time) ([]model.Commitment, error) {
	var out []model.Commitment
	for _, id := range r.s.byResource[resourceKey(tenantID, resourceID)] {
		c := r.s.commitments[id]
		if !c.OccupiesAt(now) || !interval.Overlaps(c.Interval, window) {
			continue
		}
		out = append(out, c)
	}
	sortByStart(out)
	return out, nil
}

func (r commitments) TryInsert(ctx context.Context, c model.Commitment, now time.Time, opts ...store.InsertOption) (model.Commitment, error) {
	if err := r.write(); err != nil {
		return model.Commitment{}, err
	}
	if err := store.ValidateCommitment(c); err != nil {
		return model.Commitment{}, err
	}
	o := store.ApplyInsertOptions(opts)

	occupied, err := r.QueryOccupancy(ctx, c.TenantID, c.ResourceID, c.Interval, now)
	if err != nil {
		return model.Commitment{}, err
	}
	for _, existing := range occupied {
		if existing.ID == o.Supersedes {
			continue
		}
		return model.Commitment{}, &model.ConflictError{With: existing}
	}

	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.clock()
	}
	c.UpdatedAt = c.CreatedAt
	r.putCommitment(c)
	return c, nil
}

func (r commitments) Get(_ context.Context, tenantID, id string) (model.Commitment, error) {
	c, ok := r.s.commitments[id]
	if !ok || c.TenantID != tenantID {
		return model.Commitment{}, fmt.Errorf("%w: commitment %s", model.ErrNotFound, id)
	}
	return c, nil
}

func (r commitments) Transition(ctx context.Context, tenantID, id string, to model.CommitmentStatus, expiresAt *time.Time) (model.Commitment, error) {
	if err := r.write(); err != nil {
		return model.Commitment{}, err
	}
	c, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return model.Commitment{}, err
	}
	if err := c.Status.CheckTransition(to); err != nil {
		return model.Commitment{}, err
	}
	if c.Kind == model.KindHold && to == model.CommitmentPending {
		c.Kind = model.KindBooking
	}
	c.Status = to
	c.ExpiresAt = expiresAt
	c.UpdatedAt = r.s.clock()
	r.putCommitment(c)
	return c, nil
}

func (r commitments) ExpireDue(_ context.Context, now time.Time, limit int) ([]model.Commitment, error) {
	if err := r.write(); err != nil {
		return nil, err
	}
	var due []model.Commitment
	for _, c := range r.s.commitments {
		if c.Status != model.CommitmentHeld && c.Status != model.CommitmentPending {
			continue
		}
		if c.OverdueAt(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ExpiresAt.Equal(*due[j].ExpiresAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for i, c := range due {
		if c.Status == model.CommitmentHeld {
			c.Status = model.CommitmentExpired
		} else {
			c.Status = model.CommitmentFailed
		}
		c.UpdatedAt = now
		r.putCommitment(c)
		due[i] = c
	}
	return due, nil
}

type bookings struct{ *tx }

func (r bookings) LockClientID(context.Context, string, string) error {
	return nil
}

func (r bookings) Insert(_ context.Context, b model.Booking) (model.Booking, error) {
	if err := r.write(); err != nil {
		return model.Booking{}, err
	}
	if _, taken := r.s.byClientID[resourceKey(b.TenantID, b.ClientGeneratedID)]; taken {
		return model.Booking{}, fmt.Errorf("%w: %s", model.ErrDuplicate, b.ClientGeneratedID)
	}
	if b.ID == "" {
		b.ID = newID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.s.clock()
	}
	b.UpdatedAt = b.CreatedAt
	r.putBooking(b)
	return b, nil
}

func (r bookings) Get(_ context.Context, tenantID, id string) (model.Booking, error) {
	b, ok := r.s.bookings[id]
	if !ok || b.TenantID != tenantID {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	return b, nil
}

func (r bookings) GetByClientID(ctx context.Context, tenantID, clientGeneratedID string) (model.Booking, error) {
	id, ok := r.s.byClientID[resourceKey(tenantID, clientGeneratedID)]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking with client id %s", model.ErrNotFound, clientGeneratedID)
	}
	return r.Get(ctx, tenantID, id)
}

func (r bookings) GetByCommitment(ctx context.Context, tenantID, commitmentID string) (model.Booking, error) {
	id, ok := r.s.byCommitment[commitmentID]
	if ok {
		if b, err := r.Get(ctx, tenantID, id); err == nil && b.CommitmentID == commitmentID {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("%w: booking for commitment %s", model.ErrNotFound, commitmentID)
}

func (r bookings) Update(ctx context.Context, b model.Booking) error {
	if err := r.write(); err != nil {
		return err
	}
	if _, err := r.Get(ctx, b.TenantID, b.ID); err != nil {
		return err
	}
	b.UpdatedAt = r.s.clock()
	r.putBooking(b)
	return nil
}

func (r bookings) List(_ context.Context, tenantID string, f model.BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range r.s.bookings {
		if b.TenantID != tenantID {
			continue
		}
		if f.ResourceID != "" && b.ResourceID != f.ResourceID {
			continue
		}
		if f.CustomerID != "" && b.CustomerID != f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.Status) {
			continue
		}
		if !f.From.IsZero() && !b.Interval.End.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !b.Interval.Start.Before(f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(list []model.BookingStatus, s model.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type waitlist struct{ *tx }

func (r waitlist) Insert(_ context.Context, e model.WaitlistEntry) (model.WaitlistEntry, error) {
	if err := r.write(); err != nil {
		return model.WaitlistEntry{}, err
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.s.clock()
	}
	e.UpdatedAt = e.CreatedAt
	r.putWaitlist(e)
	return e, nil
}

func (r waitlist) Get(_ context.Context, tenantID, id string) (model.WaitlistEntry, error) {
	e, ok := r.s.waitlist[id]
	if !ok || e.TenantID != tenantID {
		return model.WaitlistEntry{}, fmt.Errorf("%w: waitlist entry %s", model.ErrNotFound, id)
	}
	return e, nil
}

func (r waitlist) Waiting(_ context.Context, tenantID, resourceID string, iv interval.Interval) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range r.s.waitlist {
		if e.TenantID != tenantID || e.ResourceID != resourceID || e.Status != model.WaitlistWaiting {
			continue
		}
		if interval.Overlaps(e.PreferredInterval, iv) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.s.waitlistSeq[out[i].ID] < r.s.waitlistSeq[out[j].ID]
	})
	return out, nil
}

func (r waitlist) Notified(_ context.Context, tenantID, resourceID, customerID string, iv interval.Interval) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, e := range r.s.waitlist {
		if e.TenantID != tenantID || e.ResourceID != resourceID || e.CustomerID != customerID {
			continue
		}
		if e.Status == model.WaitlistNotified && interval.Overlaps(e.PreferredInterval, iv) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.waitlistSeq[out[i].ID] < r.s.waitlistSeq[out[j].ID] })
	return out, nil
}

func (r waitlist) SetStatus(ctx context.Context, tenantID, id string, status model.WaitlistStatus, now time.Time) error {
	if err := r.write(); err != nil {
		return err
	}
	e, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	e.Status = status
	e.UpdatedAt = now
	r.putWaitlist(e)
	return nil
}

func (r waitlist) ExpireEnded(_ context.Context, now time.Time) (int, error) {
	if err := r.write(); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range r.s.waitlist {
		if e.Status != model.WaitlistWaiting || e.PreferredInterval.End.After(now) {
			continue
		}
		e.Status = model.WaitlistExpired
		e.UpdatedAt = now
		r.putWaitlist(e)
		n++
	}
	return n, nil
}

type outboxWriter struct{ *tx }

func (r outboxWriter) Append(_ context.Context, evt outbox.Event) error {
	if err := r.write(); err != nil {
		return err
	}
	s := r.s
	rec := outbox.Record{
		ID:            int64(len(s.events) + 1),
		EventID:       newID(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		CreatedAt:     s.clock(),
	}
	s.events = append(s.events, eventRow{record: rec})
	t := r.tx
	t.onRollback(func() {
		s.events = s.events[:len(s.events)-1]
	})
	return nil
}

type schedules struct{ s *Store }

func (r schedules) Resource(_ context.Context, tenantID, resourceID string) (model.Resource, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.resources[resourceKey(tenantID, resourceID)]
	if !ok {
		return model.Resource{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, resourceID)
	}
	return res, nil
}

func (r schedules) Rules(_ context.Context, tenantID, resourceID string, weekday time.Weekday) ([]model.WorkingHoursRule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.WorkingHoursRule
	for _, rule := range r.s.rules[resourceKey(tenantID, resourceID)] {
		if rule.Weekday == weekday {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out, nil
}

func (r schedules) Exception(_ context.Context, tenantID, resourceID, date string) (model.AvailabilityException, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	exc, ok := r.s.exceptions[resourceKey(tenantID, resourceID)][date]
	return exc, ok, nil
}
