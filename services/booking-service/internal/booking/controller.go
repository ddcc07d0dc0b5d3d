// Package booking drives the booking lifecycle on top of the commitment store.
//
// Every mutation runs in one store transaction together with its outbox
// events, so a booking never changes state without the matching fact being
// recorded for notification and audit consumers.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPaymentTTL  = 30 * time.Minute
	defaultExpireBatch = 500
)

var tracer = otel.Tracer("slotkeeper/booking")

type Config struct {
	// PaymentTTL bounds how long a payment-required booking may stay pending.
	PaymentTTL   time.Duration
	StoreTimeout time.Duration
	ExpireBatch  int
	// MaxBuffer must match the slot generator's occupancy widening.
	MaxBuffer time.Duration
}

type Controller struct {
	store    store.Store
	waitlist *waitlist.Manager
	payments payment.Checker
	cfg      Config
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Engine
}

type Option func(*Controller)

func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(e *metrics.Engine) Option {
	return func(c *Controller) {
		c.metrics = e
	}
}

func NewController(s store.Store, wl *waitlist.Manager, payments payment.Checker, cfg Config, opts ...Option) *Controller {
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = DefaultPaymentTTL
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = model.DefaultMaxBuffer
	}
	if cfg.ExpireBatch <= 0 {
		cfg.ExpireBatch = defaultExpireBatch
	}
	c := &Controller{
		store:    s,
		waitlist: wl,
		payments: payments,
		cfg:      cfg,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CreateRequest struct {
	ClientGeneratedID string
	// HoldKey converts an existing hold instead of inserting a new commitment.
	HoldKey         string
	ResourceID      string
	CustomerID      string
	Interval        interval.Interval
	Service         model.ServiceSnapshot
	RequiresPayment bool
	ActorID         string
}

func (r CreateRequest) validate(tenantID string, maxBuffer time.Duration) error {
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if tenantID == "" || r.ResourceID == "" {
		return fmt.Errorf("%w: tenant and resource are required", model.ErrValidation)
	}
	if r.ClientGeneratedID == "" {
		return fmt.Errorf("%w: client_generated_id is required", model.ErrValidation)
	}
	return model.ValidateBuffers(r.Service.BufferBefore, r.Service.BufferAfter, maxBuffer)
}

// CreateBooking is idempotent on (tenant, client_generated_id): a repeated
// request returns the stored booking unchanged and has no side effects.
func (c *Controller) CreateBooking(ctx context.Context, tenantID string, req CreateRequest) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.create", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("resource_id", req.ResourceID),
		attribute.Bool("from_hold", req.HoldKey != ""),
	))
	defer span.End()

	if err := req.validate(tenantID, c.cfg.MaxBuffer); err != nil {
		return model.Booking{}, err
	}

	now := c.clock()
	var created model.Booking
	replayed := false
	err := store.Atomic(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Bookings().LockClientID(ctx, tenantID, req.ClientGeneratedID); err != nil {
			return err
		}
		existing, err := tx.Bookings().GetByClientID(ctx, tenantID, req.ClientGeneratedID)
		if err == nil {
			created, replayed = existing, true
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		var expiresAt *time.Time
		if req.RequiresPayment {
			expiresAt = model.TimePtr(now.Add(c.cfg.PaymentTTL))
		}

		var com model.Commitment
		if req.HoldKey != "" {
			com, err = convertHold(ctx, tx, tenantID, req, now, expiresAt)
		} else {
			com, err = tx.Commitments().TryInsert(ctx, model.Commitment{
				TenantID:     tenantID,
				ResourceID:   req.ResourceID,
				Interval:     req.Interval,
				Kind:         model.KindBooking,
				Status:       model.CommitmentPending,
				CustomerID:   req.CustomerID,
				BufferBefore: req.Service.BufferBefore,
				BufferAfter:  req.Service.BufferAfter,
				ExpiresAt:    expiresAt,
				CreatedAt:    now,
			}, now)
		}
		if err != nil {
			return err
		}

		created, err = tx.Bookings().Insert(ctx, model.Booking{
			TenantID:          tenantID,
			CustomerID:        req.CustomerID,
			ResourceID:        req.ResourceID,
			CommitmentID:      com.ID,
			Service:           req.Service,
			Interval:          req.Interval,
			Status:            model.BookingPending,
			ClientGeneratedID: req.ClientGeneratedID,
			RequiresPayment:   req.RequiresPayment,
			LastActorID:       req.ActorID,
			CreatedAt:         now,
		})
		if err != nil {
			return err
		}
		if err := appendBookingEvent(ctx, tx, model.EventBookingCreated, created, nil); err != nil {
			return err
		}
		if err := appendAudit(ctx, tx, created, "", "create", now); err != nil {
			return err
		}
		return c.fulfill(ctx, tx, created)
	})

	if errors.Is(err, model.ErrDuplicate) {
		// A concurrent request with the same key won the unique index.
		created, err = c.GetByClientID(ctx, tenantID, req.ClientGeneratedID)
		replayed = err == nil
	}
	if err != nil {
		c.fail(span, "create_booking", tenantID, req.ResourceID, err)
		return model.Booking{}, err
	}
	if !replayed {
		c.metrics.Transition(created.Status.String())
	}
	span.SetAttributes(attribute.String("booking_id", created.ID), attribute.Bool("replayed", replayed))
	return created, nil
}

// convertHold turns a live hold into the booking's pending commitment in
// place, so the interval is never released in between.
func convertHold(ctx context.Context, tx store.Tx, tenantID string, req CreateRequest, now time.Time, expiresAt *time.Time) (model.Commitment, error) {
	h, err := tx.Commitments().Get(ctx, tenantID, req.HoldKey)
	if err != nil {
		return model.Commitment{}, err
	}
	switch {
	case h.Kind != model.KindHold:
		return model.Commitment{}, fmt.Errorf("%w: hold %s", model.ErrNotFound, req.HoldKey)
	case h.Status == model.CommitmentCanceled:
		return model.Commitment{}, fmt.Errorf("%w: hold %s was released", model.ErrNotFound, req.HoldKey)
	case h.Status != model.CommitmentHeld || h.OverdueAt(now):
		return model.Commitment{}, fmt.Errorf("%w: %s", model.ErrExpired, req.HoldKey)
	case h.ResourceID != req.ResourceID || !h.Interval.Equal(req.Interval):
		return model.Commitment{}, fmt.Errorf("%w: hold %s covers %s on %s", model.ErrValidation, req.HoldKey, h.Interval, h.ResourceID)
	}
	return tx.Commitments().Transition(ctx, tenantID, h.ID, model.CommitmentPending, expiresAt)
}

// ConfirmBooking moves a pending booking to confirmed. When requirePayment is
// set and the payment is not settled, nothing changes and ErrPaymentRequired
// is returned.
func (c *Controller) ConfirmBooking(ctx context.Context, tenantID, bookingID string, requirePayment bool, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.confirm", trace.WithAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Bool("require_payment", requirePayment),
	))
	defer span.End()

	if requirePayment {
		current, err := c.GetBooking(ctx, tenantID, bookingID)
		if err != nil {
			return model.Booking{}, err
		}
		if err := current.Status.CheckTransition(model.BookingConfirmed); err != nil {
			return model.Booking{}, err
		}
		paid, err := c.payments.IsPaymentSatisfied(ctx, tenantID, bookingID)
		if err != nil {
			c.fail(span, "confirm_booking", tenantID, current.ResourceID, err)
			return model.Booking{}, err
		}
		if !paid {
			if err := c.armPaymentTTL(ctx, tenantID, current); err != nil {
				c.fail(span, "confirm_booking", tenantID, current.ResourceID, err)
				return model.Booking{}, err
			}
			return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrPaymentRequired, bookingID)
		}
	}

	return c.move(ctx, span, tenantID, bookingID, change{
		to:      model.BookingConfirmed,
		event:   model.EventBookingConfirmed,
		actorID: actorID,
		cause:   "confirm",
	})
}

// armPaymentTTL gives a pending booking without a deadline the payment TTL
// once a confirmation has been refused for lack of payment, so ExpireDue
// releases the interval if the payment never arrives.
func (c *Controller) armPaymentTTL(ctx context.Context, tenantID string, b model.Booking) error {
	return store.Atomic(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		com, err := tx.Commitments().Get(ctx, tenantID, b.CommitmentID)
		if err != nil {
			return err
		}
		if com.Status != model.CommitmentPending || com.ExpiresAt != nil {
			return nil
		}
		deadline := c.clock().Add(c.cfg.PaymentTTL)
		if _, err := tx.Commitments().Transition(ctx, tenantID, com.ID, model.CommitmentPending, &deadline); err != nil {
			return err
		}
		current, err := tx.Bookings().Get(ctx, tenantID, b.ID)
		if err != nil {
			return err
		}
		if current.RequiresPayment {
			return nil
		}
		current.RequiresPayment = true
		return tx.Bookings().Update(ctx, current)
	})
}

// CancelBooking frees the interval and offers it to the waitlist. Canceling a
// canceled booking returns it unchanged.
func (c *Controller) CancelBooking(ctx context.Context, tenantID, bookingID, reason, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.cancel", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	return c.move(ctx, span, tenantID, bookingID, change{
		to:         model.BookingCanceled,
		event:      model.EventBookingCanceled,
		actorID:    actorID,
		reason:     reason,
		cause:      "cancel",
		frees:      true,
		idempotent: true,
	})
}

// MarkNoShow is only valid once the scheduled end has passed.
func (c *Controller) MarkNoShow(ctx context.Context, tenantID, bookingID, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.no_show", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	return c.move(ctx, span, tenantID, bookingID, change{
		to:      model.BookingNoShow,
		event:   model.EventBookingNoShow,
		actorID: actorID,
		cause:   "no_show",
		frees:   true,
		check:   endedBy,
	})
}

func (c *Controller) CheckIn(ctx context.Context, tenantID, bookingID, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.check_in", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	return c.move(ctx, span, tenantID, bookingID, change{
		to:      model.BookingCheckedIn,
		event:   model.EventBookingCheckedIn,
		actorID: actorID,
		cause:   "check_in",
	})
}

func (c *Controller) Complete(ctx context.Context, tenantID, bookingID, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.complete", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	return c.move(ctx, span, tenantID, bookingID, change{
		to:      model.BookingCompleted,
		event:   model.EventBookingCompleted,
		actorID: actorID,
		cause:   "complete",
	})
}

// ApplyStatus reconciles a status reported by an external system, such as a
// delayed webhook. A status of lower precedence than the stored one is
// rejected, the stored status is a no-op, and anything else must still be a
// legal lifecycle step.
func (c *Controller) ApplyStatus(ctx context.Context, tenantID, bookingID string, status model.BookingStatus, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.apply_status", trace.WithAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("status", status.String()),
	))
	defer span.End()

	if !status.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown booking status", model.ErrValidation)
	}
	ch := change{
		to:         status,
		actorID:    actorID,
		cause:      "reconcile",
		reconcile:  true,
		idempotent: true,
	}
	switch status {
	case model.BookingConfirmed:
		ch.event = model.EventBookingConfirmed
	case model.BookingCheckedIn:
		ch.event = model.EventBookingCheckedIn
	case model.BookingCompleted:
		ch.event = model.EventBookingCompleted
	case model.BookingCanceled:
		ch.event, ch.frees = model.EventBookingCanceled, true
	case model.BookingNoShow:
		ch.event, ch.frees, ch.check = model.EventBookingNoShow, true, endedBy
	case model.BookingFailed:
		ch.event, ch.frees = model.EventBookingFailed, true
	}
	return c.move(ctx, span, tenantID, bookingID, ch)
}

type change struct {
	to      model.BookingStatus
	event   string
	actorID string
	reason  string
	cause   string
	// frees hands the released interval to the waitlist.
	frees bool
	// idempotent makes a repeat of the stored status a no-op.
	idempotent bool
	// reconcile applies the precedence rule before the lifecycle check.
	reconcile bool
	check     func(b model.Booking, com model.Commitment, now time.Time) error
}

func endedBy(b model.Booking, _ model.Commitment, now time.Time) error {
	if now.Before(b.Interval.End) {
		return fmt.Errorf("%w: booking %s ends at %s", model.ErrInvalidTransition, b.ID, b.Interval.End.Format(time.RFC3339))
	}
	return nil
}

func (c *Controller) move(ctx context.Context, span trace.Span, tenantID, bookingID string, ch change) (model.Booking, error) {
	now := c.clock()
	var (
		out     model.Booking
		changed bool
	)
	err := store.Atomic(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().Get(ctx, tenantID, bookingID)
		if err != nil {
			return err
		}
		if ch.idempotent && b.Status == ch.to {
			out = b
			return nil
		}
		if ch.reconcile {
			if err := b.Status.CheckPrecedence(ch.to); err != nil {
				return err
			}
		}
		if err := b.Status.CheckTransition(ch.to); err != nil {
			return err
		}
		com, err := tx.Commitments().Get(ctx, tenantID, b.CommitmentID)
		if err != nil {
			return err
		}
		if ch.to == model.BookingConfirmed && com.OverdueAt(now) {
			return fmt.Errorf("%w: payment window of booking %s elapsed", model.ErrInvalidTransition, b.ID)
		}
		if ch.check != nil {
			if err := ch.check(b, com, now); err != nil {
				return err
			}
		}
		if _, err := tx.Commitments().Transition(ctx, tenantID, com.ID, ch.to.Commitment(), nil); err != nil {
			return err
		}

		before := b.Status
		b.Status = ch.to
		if ch.actorID != "" {
			b.LastActorID = ch.actorID
		}
		if ch.reason != "" {
			b.CancelReason = ch.reason
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if ch.event != "" {
			if err := appendBookingEvent(ctx, tx, ch.event, b, nil); err != nil {
				return err
			}
		}
		if err := appendAudit(ctx, tx, b, before.String(), ch.cause, now); err != nil {
			return err
		}
		if ch.frees {
			if err := c.offer(ctx, tx, tenantID, b.ResourceID, b.Interval); err != nil {
				return err
			}
		}
		out, changed = b, true
		return nil
	})
	if err != nil {
		c.fail(span, ch.cause, tenantID, "", err)
		return model.Booking{}, err
	}
	if changed {
		c.metrics.Transition(out.Status.String())
		c.logger.Info("booking transitioned", "tenant_id", tenantID, "booking_id", out.ID, "status", out.Status.String(), "cause", ch.cause)
	}
	return out, nil
}

// RescheduleBooking inserts the new commitment before releasing the old one,
// so the resource is never briefly free and the booking never loses its
// reservation. On conflict the booking is left untouched.
func (c *Controller) RescheduleBooking(ctx context.Context, tenantID, bookingID string, next interval.Interval, actorID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.reschedule", trace.WithAttributes(attribute.String("booking_id", bookingID)))
	defer span.End()

	if err := next.Validate(); err != nil {
		return model.Booking{}, err
	}

	now := c.clock()
	var out model.Booking
	err := store.Atomic(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().Get(ctx, tenantID, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingPending && b.Status != model.BookingConfirmed {
			return fmt.Errorf("%w: cannot reschedule a %s booking", model.ErrInvalidTransition, b.Status)
		}
		old, err := tx.Commitments().Get(ctx, tenantID, b.CommitmentID)
		if err != nil {
			return err
		}
		if old.OverdueAt(now) {
			return fmt.Errorf("%w: payment window of booking %s elapsed", model.ErrInvalidTransition, b.ID)
		}

		moved, err := tx.Commitments().TryInsert(ctx, model.Commitment{
			TenantID:     tenantID,
			ResourceID:   b.ResourceID,
			Interval:     next,
			Kind:         model.KindBooking,
			Status:       old.Status,
			CustomerID:   old.CustomerID,
			BufferBefore: old.BufferBefore,
			BufferAfter:  old.BufferAfter,
			ExpiresAt:    old.ExpiresAt,
			CreatedAt:    now,
		}, now, store.Superseding(old.ID))
		if err != nil {
			return err
		}
		if _, err := tx.Commitments().Transition(ctx, tenantID, old.ID, model.CommitmentCanceled, nil); err != nil {
			return err
		}

		previous := b.Interval
		b.Interval = next
		b.CommitmentID = moved.ID
		if actorID != "" {
			b.LastActorID = actorID
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := appendBookingEvent(ctx, tx, model.EventBookingRescheduled, b, &previous); err != nil {
			return err
		}
		for _, freed := range interval.Subtract(previous, []interval.Interval{next}) {
			if err := c.offer(ctx, tx, tenantID, b.ResourceID, freed); err != nil {
				return err
			}
		}
		out = b
		return nil
	})
	if err != nil {
		c.fail(span, "reschedule_booking", tenantID, "", err)
		return model.Booking{}, err
	}
	return out, nil
}

func (c *Controller) GetBooking(ctx context.Context, tenantID, bookingID string) (model.Booking, error) {
	var b model.Booking
	err := store.View(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.Bookings().Get(ctx, tenantID, bookingID)
		return err
	})
	return b, err
}

func (c *Controller) GetByClientID(ctx context.Context, tenantID, clientGeneratedID string) (model.Booking, error) {
	var b model.Booking
	err := store.View(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.Bookings().GetByClientID(ctx, tenantID, clientGeneratedID)
		return err
	})
	return b, err
}

func (c *Controller) ListBookings(ctx context.Context, tenantID string, filter model.BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	err := store.View(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Bookings().List(ctx, tenantID, filter)
		return err
	})
	return out, err
}

// ExpireDue is the periodic sweep: overdue holds become expired, overdue
// pending bookings become failed, and each freed interval is offered to the
// waitlist. It returns how many commitments changed.
func (c *Controller) ExpireDue(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "booking.expire_due")
	defer span.End()

	now := c.clock()
	var holds, failed, total int
	err := store.Atomic(ctx, c.store, c.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		holds, failed = 0, 0
		expired, err := tx.Commitments().ExpireDue(ctx, now, c.cfg.ExpireBatch)
		if err != nil {
			return err
		}
		total = len(expired)
		for _, com := range expired {
			if com.Kind == model.KindHold {
				evt, err := outbox.NewEvent(model.AggregateHold, com.ID, model.EventHoldExpired, hold.NewPayload(com))
				if err != nil {
					return err
				}
				if err := tx.Outbox().Append(ctx, evt); err != nil {
					return err
				}
				holds++
			} else {
				if err := c.failBooking(ctx, tx, com, now); err != nil {
					return err
				}
				failed++
			}
			if err := c.offer(ctx, tx, com.TenantID, com.ResourceID, com.Interval); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.fail(span, "expire_due", "", "", err)
		return 0, err
	}
	if total > 0 {
		c.metrics.HoldsExpired(holds)
		for i := 0; i < failed; i++ {
			c.metrics.Transition(model.BookingFailed.String())
		}
		c.logger.Info("expired overdue commitments", "holds", holds, "bookings", failed)
	}
	span.SetAttributes(attribute.Int("expired", total))
	return total, nil
}

func (c *Controller) failBooking(ctx context.Context, tx store.Tx, com model.Commitment, now time.Time) error {
	b, err := tx.Bookings().GetByCommitment(ctx, com.TenantID, com.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := b.Status.CheckTransition(model.BookingFailed); err != nil {
		return err
	}
	before := b.Status
	b.Status = model.BookingFailed
	b.LastActorID = ""
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return err
	}
	if err := appendBookingEvent(ctx, tx, model.EventBookingFailed, b, nil); err != nil {
		return err
	}
	return appendAudit(ctx, tx, b, before.String(), "payment_expired", now)
}

func (c *Controller) offer(ctx context.Context, tx store.Tx, tenantID, resourceID string, freed interval.Interval) error {
	if c.waitlist == nil {
		return nil
	}
	_, err := c.waitlist.OnIntervalFreed(ctx, tx, tenantID, resourceID, freed)
	return err
}

func (c *Controller) fulfill(ctx context.Context, tx store.Tx, b model.Booking) error {
	if c.waitlist == nil {
		return nil
	}
	return c.waitlist.Fulfill(ctx, tx, b.TenantID, b.ResourceID, b.CustomerID, b.Interval)
}

// fail records err on the span. Expected outcomes are logged at Info, since
// conflicts and invalid transitions are part of normal traffic.
func (c *Controller) fail(span trace.Span, operation, tenantID, resourceID string, err error) {
	span.RecordError(err)
	if errors.Is(err, model.ErrConflict) {
		c.metrics.Conflict(operation)
	}
	if model.IsExpected(err) {
		c.logger.Info("booking request rejected", "operation", operation, "tenant_id", tenantID, "resource_id", resourceID, "err", err)
		return
	}
	span.SetStatus(codes.Error, err.Error())
	c.logger.Error("booking operation failed", "operation", operation, "tenant_id", tenantID, "err", err)
}
