// Package hold manages short-lived reservations taken during checkout.
//
// A hold is a commitment of kind hold in status held. Its key is the
// commitment id, so a hold converted into a booking keeps the same row.
package hold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTTL = 15 * time.Minute
	DefaultMax = time.Hour
)

var tracer = otel.Tracer("slotkeeper/hold")

type Config struct {
	DefaultTTL   time.Duration
	MaxTTL       time.Duration
	StoreTimeout time.Duration
	// MaxBuffer must match the slot generator's occupancy widening.
	MaxBuffer time.Duration
}

type Manager struct {
	store   store.Store
	cfg     Config
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

func NewManager(s store.Store, cfg Config, opts ...Option) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultMax
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = model.DefaultMaxBuffer
	}
	if cfg.DefaultTTL > cfg.MaxTTL {
		cfg.DefaultTTL = cfg.MaxTTL
	}
	m := &Manager{store: s, cfg: cfg, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultTTL is the TTL callers should use when the client did not ask for one.
func (m *Manager) DefaultTTL() time.Duration {
	return m.cfg.DefaultTTL
}

type CreateRequest struct {
	TenantID     string
	ResourceID   string
	CustomerID   string
	Interval     interval.Interval
	TTL          time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
}

func (r CreateRequest) validate(maxTTL, maxBuffer time.Duration) error {
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if r.TenantID == "" || r.ResourceID == "" {
		return fmt.Errorf("%w: tenant and resource are required", model.ErrValidation)
	}
	if r.TTL <= 0 {
		return fmt.Errorf("%w: hold ttl must be positive, got %s", model.ErrValidation, r.TTL)
	}
	if r.TTL > maxTTL {
		return fmt.Errorf("%w: hold ttl %s exceeds maximum %s", model.ErrValidation, r.TTL, maxTTL)
	}
	return model.ValidateBuffers(r.BufferBefore, r.BufferAfter, maxBuffer)
}

func (m *Manager) CreateHold(ctx context.Context, req CreateRequest) (model.Hold, error) {
	ctx, span := tracer.Start(ctx, "hold.create", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("resource_id", req.ResourceID),
	))
	defer span.End()

	if err := req.validate(m.cfg.MaxTTL, m.cfg.MaxBuffer); err != nil {
		return model.Hold{}, err
	}

	now := m.clock()
	expiresAt := now.Add(req.TTL)
	var created model.Commitment
	err := store.Atomic(ctx, m.store, m.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		created, err = tx.Commitments().TryInsert(ctx, model.Commitment{
			TenantID:     req.TenantID,
			ResourceID:   req.ResourceID,
			Interval:     req.Interval,
			Kind:         model.KindHold,
			Status:       model.CommitmentHeld,
			CustomerID:   req.CustomerID,
			BufferBefore: req.BufferBefore,
			BufferAfter:  req.BufferAfter,
			ExpiresAt:    &expiresAt,
			CreatedAt:    now,
		}, now)
		if err != nil {
			return err
		}
		return appendEvent(ctx, tx, model.EventHoldCreated, created)
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			m.metrics.Conflict("create_hold")
			m.logger.Info("hold conflict", "tenant_id", req.TenantID, "resource_id", req.ResourceID, "interval", req.Interval.String())
		}
		return model.Hold{}, err
	}
	m.metrics.Hold("created")
	return model.HoldFromCommitment(created), nil
}

// ReleaseHold frees the interval. Releasing a hold that is already released
// or expired succeeds without side effects. A hold past its expiry is left
// for the sweep, which reports it as expired.
func (m *Manager) ReleaseHold(ctx context.Context, tenantID, holdKey string) error {
	ctx, span := tracer.Start(ctx, "hold.release", trace.WithAttributes(attribute.String("hold_key", holdKey)))
	defer span.End()

	now := m.clock()
	released := false
	err := store.Atomic(ctx, m.store, m.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		c, err := getHold(ctx, tx, tenantID, holdKey)
		if err != nil {
			return err
		}
		if c.Status != model.CommitmentHeld || c.OverdueAt(now) {
			return nil
		}
		c, err = tx.Commitments().Transition(ctx, tenantID, c.ID, model.CommitmentCanceled, nil)
		if err != nil {
			return err
		}
		released = true
		return appendEvent(ctx, tx, model.EventHoldReleased, c)
	})
	if err != nil {
		return err
	}
	if released {
		m.metrics.Hold("released")
	}
	return nil
}

// ExtendHold pushes expires_at out by additional, never beyond MaxTTL from now.
func (m *Manager) ExtendHold(ctx context.Context, tenantID, holdKey string, additional time.Duration) (model.Hold, error) {
	ctx, span := tracer.Start(ctx, "hold.extend", trace.WithAttributes(attribute.String("hold_key", holdKey)))
	defer span.End()

	if additional <= 0 {
		return model.Hold{}, fmt.Errorf("%w: extension must be positive, got %s", model.ErrValidation, additional)
	}

	now := m.clock()
	var extended model.Commitment
	err := store.Atomic(ctx, m.store, m.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		c, err := getHold(ctx, tx, tenantID, holdKey)
		if err != nil {
			return err
		}
		switch {
		case c.Status == model.CommitmentCanceled:
			return fmt.Errorf("%w: hold %s was released", model.ErrNotFound, holdKey)
		case c.Status != model.CommitmentHeld || c.OverdueAt(now):
			return fmt.Errorf("%w: %s", model.ErrExpired, holdKey)
		}

		next := c.ExpiresAt.Add(additional)
		if limit := now.Add(m.cfg.MaxTTL); next.After(limit) {
			next = limit
		}
		extended, err = tx.Commitments().Transition(ctx, tenantID, c.ID, model.CommitmentHeld, &next)
		return err
	})
	if err != nil {
		return model.Hold{}, err
	}
	m.metrics.Hold("extended")
	return model.HoldFromCommitment(extended), nil
}

func (m *Manager) GetHold(ctx context.Context, tenantID, holdKey string) (model.Hold, error) {
	var c model.Commitment
	err := store.View(ctx, m.store, m.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		var err error
		c, err = getHold(ctx, tx, tenantID, holdKey)
		return err
	})
	if err != nil {
		return model.Hold{}, err
	}
	h := model.HoldFromCommitment(c)
	if c.Status == model.CommitmentHeld && c.OverdueAt(m.clock()) {
		h.Status = model.CommitmentExpired
	}
	return h, nil
}

// getHold hides commitments that are not holds, including holds already
// converted into bookings.
func getHold(ctx context.Context, tx store.Tx, tenantID, holdKey string) (model.Commitment, error) {
	c, err := tx.Commitments().Get(ctx, tenantID, holdKey)
	if err != nil {
		return model.Commitment{}, err
	}
	if c.Kind != model.KindHold {
		return model.Commitment{}, fmt.Errorf("%w: hold %s", model.ErrNotFound, holdKey)
	}
	return c, nil
}

// Payload is the body of hold events.
type Payload struct {
	HoldKey    string    `json:"hold_key"`
	TenantID   string    `json:"tenant_id"`
	ResourceID string    `json:"resource_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Timezone   string    `json:"timezone"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func NewPayload(c model.Commitment) Payload {
	h := model.HoldFromCommitment(c)
	return Payload{
		HoldKey:    h.HoldKey,
		TenantID:   h.TenantID,
		ResourceID: h.ResourceID,
		CustomerID: h.CustomerID,
		Start:      h.Interval.Start,
		End:        h.Interval.End,
		Timezone:   h.Interval.TZ(),
		Status:     h.Status.String(),
		ExpiresAt:  h.ExpiresAt,
	}
}

func appendEvent(ctx context.Context, tx store.Tx, eventType string, c model.Commitment) error {
	evt, err := outbox.NewEvent(model.AggregateHold, c.ID, eventType, NewPayload(c))
	if err != nil {
		return err
	}
	return tx.Outbox().Append(ctx, evt)
}
