package model

import (
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

// ServiceSnapshot freezes the service terms at booking time.
type ServiceSnapshot struct {
	ServiceID    string        `json:"service_id"`
	Name         string        `json:"name,omitempty"`
	Duration     time.Duration `json:"duration"`
	BufferBefore time.Duration `json:"buffer_before"`
	BufferAfter  time.Duration `json:"buffer_after"`
	PriceCents   int64         `json:"price_cents,omitempty"`
	Currency     string        `json:"currency,omitempty"`
}

type Booking struct {
	ID                string
	TenantID          string
	CustomerID        string
	ResourceID        string
	CommitmentID      string
	Service           ServiceSnapshot
	Interval          interval.Interval
	Status            BookingStatus
	ClientGeneratedID string
	RequiresPayment   bool
	CancelReason      string
	LastActorID       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BookingFilter narrows ListBookings. Zero values are ignored.
type BookingFilter struct {
	ResourceID string
	CustomerID string
	Statuses   []BookingStatus
	From       time.Time
	To         time.Time
	Limit      int
}
