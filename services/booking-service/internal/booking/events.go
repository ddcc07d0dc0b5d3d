package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

// Payload is the body of booking.* events.
type Payload struct {
	BookingID         string     `json:"booking_id"`
	TenantID          string     `json:"tenant_id"`
	ResourceID        string     `json:"resource_id"`
	CustomerID        string     `json:"customer_id,omitempty"`
	ServiceID         string     `json:"service_id,omitempty"`
	CommitmentID      string     `json:"commitment_id"`
	ClientGeneratedID string     `json:"client_generated_id"`
	Status            string     `json:"status"`
	Start             time.Time  `json:"start"`
	End               time.Time  `json:"end"`
	Timezone          string     `json:"timezone"`
	ActorID           string     `json:"actor_id,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	PreviousStart     *time.Time `json:"previous_start,omitempty"`
	PreviousEnd       *time.Time `json:"previous_end,omitempty"`
}

func newPayload(b model.Booking) Payload {
	return Payload{
		BookingID:         b.ID,
		TenantID:          b.TenantID,
		ResourceID:        b.ResourceID,
		CustomerID:        b.CustomerID,
		ServiceID:         b.Service.ServiceID,
		CommitmentID:      b.CommitmentID,
		ClientGeneratedID: b.ClientGeneratedID,
		Status:            b.Status.String(),
		Start:             b.Interval.Start,
		End:               b.Interval.End,
		Timezone:          b.Interval.TZ(),
		ActorID:           b.LastActorID,
		Reason:            b.CancelReason,
	}
}

// Transition is the body of audit.transition events.
type Transition struct {
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	TenantID      string    `json:"tenant_id"`
	Before        string    `json:"before,omitempty"`
	After         string    `json:"after"`
	ActorID       string    `json:"actor_id,omitempty"`
	Cause         string    `json:"cause"`
	At            time.Time `json:"at"`
}

func appendBookingEvent(ctx context.Context, tx store.Tx, eventType string, b model.Booking, previous *interval.Interval) error {
	p := newPayload(b)
	if previous != nil {
		p.PreviousStart = model.TimePtr(previous.Start)
		p.PreviousEnd = model.TimePtr(previous.End)
	}
	evt, err := outbox.NewEvent(model.AggregateBooking, b.ID, eventType, p)
	if err != nil {
		return err
	}
	return tx.Outbox().Append(ctx, evt)
}

// appendAudit records before/after for a booking status change. before is
// empty for a newly created booking.
func appendAudit(ctx context.Context, tx store.Tx, b model.Booking, before string, cause string, at time.Time) error {
	evt, err := outbox.NewEvent(model.AggregateBooking, b.ID, model.EventAuditTransition, Transition{
		AggregateType: model.AggregateBooking,
		AggregateID:   b.ID,
		TenantID:      b.TenantID,
		Before:        before,
		After:         b.Status.String(),
		ActorID:       b.LastActorID,
		Cause:         cause,
		At:            at,
	})
	if err != nil {
		return err
	}
	return tx.Outbox().Append(ctx, evt)
}
