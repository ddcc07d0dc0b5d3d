// Package memstore is an in-process store.Store used for tests and for local
// runs without Postgres. A single lock serializes writers, which makes every
// TryInsert trivially atomic; readers share the lock.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

var errReadOnly = errors.New("memstore: write in read-only transaction")

type Store struct {
	mu    sync.RWMutex
	clock func() time.Time

	commitments  map[string]model.Commitment
	byResource   map[string][]string
	bookings     map[string]model.Booking
	byClientID   map[string]string
	byCommitment map[string]string
	waitlist     map[string]model.WaitlistEntry
	waitlistSeq  map[string]int64
	seq          int64
	events       []eventRow

	resources  map[string]model.Resource
	rules      map[string][]model.WorkingHoursRule
	exceptions map[string]map[string]model.AvailabilityException
}

type eventRow struct {
	record    outbox.Record
	published bool
}

type Option func(*Store)

// WithClock sets the clock used for updated_at stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:        time.Now,
		commitments:  map[string]model.Commitment{},
		byResource:   map[string][]string{},
		bookings:     map[string]model.Booking{},
		byClientID:   map[string]string{},
		byCommitment: map[string]string{},
		waitlist:     map[string]model.WaitlistEntry{},
		waitlistSeq:  map[string]int64{},
		resources:    map[string]model.Resource{},
		rules:        map[string][]model.WorkingHoursRule{},
		exceptions:   map[string]map[string]model.AvailabilityException{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s, writable: true}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{s: s})
}

func (s *Store) Schedules() store.ScheduleReader {
	return schedules{s: s}
}

// Events returns every outbox record appended so far, published or not.
func (s *Store) Events() []outbox.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Record, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.record)
	}
	return out
}

// Claim implements outbox.Source. Delivery is at-least-once: the lock is not
// held while publish runs.
func (s *Store) Claim(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	s.mu.RLock()
	var batch []outbox.Record
	var idx []int
	for i, e := range s.events {
		if e.published {
			continue
		}
		batch = append(batch, e.record)
		idx = append(idx, i)
		if len(batch) == limit {
			break
		}
	}
	s.mu.RUnlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	for _, i := range idx {
		s.events[i].published = true
	}
	s.mu.Unlock()
	return len(batch), nil
}

var _ outbox.Source = (*Store)(nil)

// PutResource registers a resource and replaces its weekly rules.
func (s *Store) PutResource(res model.Resource, rules ...model.WorkingHoursRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey(res.TenantID, res.ID)
	if res.Location == nil {
		res.Location = time.UTC
	}
	s.resources[key] = res
	s.rules[key] = append([]model.WorkingHoursRule(nil), rules...)
}

func (s *Store) PutException(tenantID, resourceID string, exc model.AvailabilityException) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey(tenantID, resourceID)
	if s.exceptions[key] == nil {
		s.exceptions[key] = map[string]model.AvailabilityException{}
	}
	s.exceptions[key][exc.Date] = exc
}

func resourceKey(tenantID, resourceID string) string {
	return tenantID + "\x00" + resourceID
}

func newID() string {
	return uuid.NewString()
}

type tx struct {
	s        *Store
	writable bool
	undo     []func()
}

func (t *tx) Commitments() store.Commitments { return commitments{t} }
func (t *tx) Bookings() store.Bookings       { return bookings{t} }
func (t *tx) Waitlist() store.Waitlist       { return waitlist{t} }
func (t *tx) Outbox() store.Outbox           { return outboxWriter{t} }

func (t *tx) write() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

func (t *tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) putCommitment(c model.Commitment) {
	s := t.s
	prev, existed := s.commitments[c.ID]
	s.commitments[c.ID] = c
	if !existed {
		key := resourceKey(c.TenantID, c.ResourceID)
		s.byResource[key] = append(s.byResource[key], c.ID)
	}
	t.onRollback(func() {
		if existed {
			s.commitments[c.ID] = prev
			return
		}
		delete(s.commitments, c.ID)
		key := resourceKey(c.TenantID, c.ResourceID)
		ids := s.byResource[key]
		for i, id := range ids {
			if id == c.ID {
				s.byResource[key] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
	})
}

func (t *tx) putBooking(b model.Booking) {
	s := t.s
	prev, existed := s.bookings[b.ID]
	s.bookings[b.ID] = b
	clientKey := resourceKey(b.TenantID, b.ClientGeneratedID)
	prevCommitmentBooking, hadCommitment := s.byCommitment[b.CommitmentID]
	s.byClientID[clientKey] = b.ID
	s.byCommitment[b.CommitmentID] = b.ID
	t.onRollback(func() {
		if hadCommitment {
			s.byCommitment[b.CommitmentID] = prevCommitmentBooking
		} else {
			delete(s.byCommitment, b.CommitmentID)
		}
		if existed {
			s.bookings[b.ID] = prev
			return
		}
		delete(s.bookings, b.ID)
		delete(s.byClientID, clientKey)
	})
}

func (t *tx) putWaitlist(e model.WaitlistEntry) {
	s := t.s
	prev, existed := s.waitlist[e.ID]
	s.waitlist[e.ID] = e
	if !existed {
		s.seq++
		s.waitlistSeq[e.ID] = s.seq
	}
	t.onRollback(func() {
		if existed {
			s.waitlist[e.ID] = prev
			return
		}
		delete(s.waitlist, e.ID)
		delete(s.waitlistSeq, e.ID)
	})
}

func sortByStart(cs []model.Commitment) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Interval.Start.Equal(cs[j].Interval.Start) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].Interval.Start.Before(cs[j].Interval.Start)
	})
}
