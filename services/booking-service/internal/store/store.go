// Package store defines the persistence contracts of the reservation engine.
//
// The commitment set is the single source of truth for overlap: every hold and
// booking owns exactly one occupying commitment, created through TryInsert.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
)

// Store opens transactions. Implementations must make TryInsert atomic per
// (tenant, resource): two overlapping inserts never both commit.
type Store interface {
	// InTx runs fn in a read-write transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Read runs fn in a read-only transaction. Mutations inside fn fail.
	Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Schedules() ScheduleReader
}

type Tx interface {
	Commitments() Commitments
	Bookings() Bookings
	Waitlist() Waitlist
	Outbox() Outbox
}

type Commitments interface {
	// QueryOccupancy returns commitments of (tenant, resource) intersecting
	// window that still occupy their interval at now, ordered by start.
	QueryOccupancy(ctx context.Context, tenantID, resourceID string, window interval.Interval, now time.Time) ([]model.Commitment, error)
	// TryInsert inserts c unless an occupying commitment overlaps it, in which
	// case it returns *model.ConflictError and changes nothing. Commitments
	// whose expires_at is at or before now do not block.
	TryInsert(ctx context.Context, c model.Commitment, now time.Time, opts ...InsertOption) (model.Commitment, error)
	// Get locks and returns a commitment of the tenant.
	Get(ctx context.Context, tenantID, id string) (model.Commitment, error)
	// Transition changes status and expires_at; the interval never moves.
	Transition(ctx context.Context, tenantID, id string, to model.CommitmentStatus, expiresAt *time.Time) (model.Commitment, error)
	// ExpireDue moves overdue holds to expired and overdue pending bookings
	// to failed, returning the updated commitments.
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]model.Commitment, error)
}

type Bookings interface {
	// LockClientID serializes creation attempts sharing an idempotency key.
	LockClientID(ctx context.Context, tenantID, clientGeneratedID string) error
	// Insert fails with model.ErrDuplicate when the client id is taken.
	Insert(ctx context.Context, b model.Booking) (model.Booking, error)
	Get(ctx context.Context, tenantID, id string) (model.Booking, error)
	GetByClientID(ctx context.Context, tenantID, clientGeneratedID string) (model.Booking, error)
	GetByCommitment(ctx context.Context, tenantID, commitmentID string) (model.Booking, error)
	Update(ctx context.Context, b model.Booking) error
	List(ctx context.Context, tenantID string, filter model.BookingFilter) ([]model.Booking, error)
}

type Waitlist interface {
	Insert(ctx context.Context, e model.WaitlistEntry) (model.WaitlistEntry, error)
	Get(ctx context.Context, tenantID, id string) (model.WaitlistEntry, error)
	// Waiting returns waiting entries of the resource whose preferred interval
	// overlaps iv, ordered by priority desc then created_at asc.
	Waiting(ctx context.Context, tenantID, resourceID string, iv interval.Interval) ([]model.WaitlistEntry, error)
	// Notified returns the customer's notified entries of the resource whose
	// preferred interval overlaps iv.
	Notified(ctx context.Context, tenantID, resourceID, customerID string, iv interval.Interval) ([]model.WaitlistEntry, error)
	SetStatus(ctx context.Context, tenantID, id string, status model.WaitlistStatus, now time.Time) error
	// ExpireEnded marks waiting entries whose preferred interval ended before
	// now as expired and returns how many changed.
	ExpireEnded(ctx context.Context, now time.Time) (int, error)
}

type Outbox interface {
	Append(ctx context.Context, evt outbox.Event) error
}

type ScheduleReader interface {
	Resource(ctx context.Context, tenantID, resourceID string) (model.Resource, error)
	Rules(ctx context.Context, tenantID, resourceID string, weekday time.Weekday) ([]model.WorkingHoursRule, error)
	// Exception returns ok=false when no exception exists for date.
	Exception(ctx context.Context, tenantID, resourceID, date string) (model.AvailabilityException, bool, error)
}

type InsertOptions struct {
	Supersedes string
}

type InsertOption func(*InsertOptions)

// Superseding ignores commitment id during the overlap check. The caller must
// release that commitment in the same transaction.
func Superseding(id string) InsertOption {
	return func(o *InsertOptions) {
		o.Supersedes = id
	}
}

func ApplyInsertOptions(opts []InsertOption) InsertOptions {
	var o InsertOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Atomic runs fn in a transaction bounded by timeout. Deadline failures are
// reported as model.ErrUnavailable so callers retry instead of treating them
// as conflicts.
func Atomic(ctx context.Context, s Store, timeout time.Duration, fn func(ctx context.Context, tx Tx) error) error {
	return bounded(ctx, timeout, func(ctx context.Context) error { return s.InTx(ctx, fn) })
}

// View is Atomic for read-only work.
func View(ctx context.Context, s Store, timeout time.Duration, fn func(ctx context.Context, tx Tx) error) error {
	return bounded(ctx, timeout, func(ctx context.Context) error { return s.Read(ctx, fn) })
}

func bounded(ctx context.Context, timeout time.Duration, run func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := run(ctx)
	if err == nil || model.IsExpected(err) || errors.Is(err, model.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	return err
}

// ValidateCommitment checks the fields every insert requires.
func ValidateCommitment(c model.Commitment) error {
	if err := c.Interval.Validate(); err != nil {
		return err
	}
	if c.TenantID == "" || c.ResourceID == "" {
		return fmt.Errorf("%w: tenant and resource are required", model.ErrValidation)
	}
	if !c.Status.Occupies() {
		return fmt.Errorf("%w: cannot insert commitment in status %s", model.ErrValidation, c.Status)
	}
	if c.Kind == model.KindHold && c.ExpiresAt == nil {
		return fmt.Errorf("%w: hold requires expires_at", model.ErrValidation)
	}
	return nil
}
