package model

// Event types emitted through the outbox. The Kafka topic equals the type.
const (
	EventBookingCreated        = "booking.created.v1"
	EventBookingConfirmed      = "booking.confirmed.v1"
	EventBookingCanceled       = "booking.canceled.v1"
	EventBookingRescheduled    = "booking.rescheduled.v1"
	EventBookingNoShow         = "booking.no_show.v1"
	EventBookingCheckedIn      = "booking.checked_in.v1"
	EventBookingCompleted      = "booking.completed.v1"
	EventBookingFailed         = "booking.failed.v1"
	EventHoldCreated           = "hold.created.v1"
	EventHoldReleased          = "hold.released.v1"
	EventHoldExpired           = "hold.expired.v1"
	EventWaitlistSlotAvailable = "waitlist.slot_available.v1"
	EventAuditTransition       = "audit.transition.v1"
)

const (
	AggregateBooking  = "booking"
	AggregateHold     = "hold"
	AggregateWaitlist = "waitlist_entry"
)
