package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

// Commitment is the authoritative occupied-interval record behind a hold or a
// booking. Bookings and holds reference it by ID only.
type Commitment struct {
	ID           string
	TenantID     string
	ResourceID   string
	Interval     interval.Interval
	Kind         Kind
	Status       CommitmentStatus
	CustomerID   string
	BufferBefore time.Duration
	BufferAfter  time.Duration
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OccupiesAt reports whether c blocks its interval at instant now. Holds and
// unpaid bookings past expires_at stop occupying before the sweep runs.
func (c Commitment) OccupiesAt(now time.Time) bool {
	if !c.Status.Occupies() {
		return false
	}
	return !c.OverdueAt(now)
}

// OverdueAt reports whether c carries an expiry that has already passed.
func (c Commitment) OverdueAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Footprint is the interval widened by the commitment's own buffers.
func (c Commitment) Footprint() interval.Interval {
	return c.Interval.Expand(c.BufferBefore, c.BufferAfter)
}

// Hold is the customer-facing view of a commitment of kind hold.
type Hold struct {
	HoldKey    string
	TenantID   string
	ResourceID string
	Interval   interval.Interval
	CustomerID string
	Status     CommitmentStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func HoldFromCommitment(c Commitment) Hold {
	h := Hold{
		HoldKey:    c.ID,
		TenantID:   c.TenantID,
		ResourceID: c.ResourceID,
		Interval:   c.Interval,
		CustomerID: c.CustomerID,
		Status:     c.Status,
		CreatedAt:  c.CreatedAt,
	}
	if c.ExpiresAt != nil {
		h.ExpiresAt = *c.ExpiresAt
	}
	return h
}

func TimePtr(t time.Time) *time.Time {
	return &t
}

// DefaultMaxBuffer bounds a commitment's buffers when no limit is configured.
// Slot generation widens its occupancy window by the same bound, so a larger
// buffer could reach into working hours unseen.
const DefaultMaxBuffer = 2 * time.Hour

// ValidateBuffers rejects negative buffers and buffers above limit.
func ValidateBuffers(before, after, limit time.Duration) error {
	if before < 0 || after < 0 {
		return fmt.Errorf("%w: buffers must not be negative", ErrValidation)
	}
	if before > limit || after > limit {
		return fmt.Errorf("%w: buffers must not exceed %s", ErrValidation, limit)
	}
	return nil
}
