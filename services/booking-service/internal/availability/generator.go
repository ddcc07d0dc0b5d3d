// Package availability computes bookable slots from working hours and the
// current commitment set.
package availability

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/workinghours"
)

// Service describes the slot shape being searched for.
type Service struct {
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
}

type Query struct {
	TenantID   string
	ResourceID string
	Service    Service
	// Step defaults to Service.Duration.
	Step time.Duration
	// From and To are calendar dates, both inclusive. Only the date part is used.
	From time.Time
	To   time.Time
	// Slots starting before Now are skipped.
	Now time.Time
}

func (q Query) step() time.Duration {
	if q.Step > 0 {
		return q.Step
	}
	return q.Service.Duration
}

func (q Query) days() int {
	from := civil(q.From)
	to := civil(q.To)
	return int(to.Sub(from).Hours()/24) + 1
}

func (q Query) validate(maxDays int) error {
	if q.TenantID == "" || q.ResourceID == "" {
		return fmt.Errorf("%w: tenant and resource are required", model.ErrValidation)
	}
	if q.Service.Duration <= 0 {
		return fmt.Errorf("%w: service duration must be positive", model.ErrValidation)
	}
	if q.Step < 0 || q.Service.BufferBefore < 0 || q.Service.BufferAfter < 0 {
		return fmt.Errorf("%w: step and buffers must not be negative", model.ErrValidation)
	}
	if q.From.IsZero() || q.To.IsZero() {
		return fmt.Errorf("%w: date range is required", model.ErrValidation)
	}
	n := q.days()
	if n < 1 {
		return fmt.Errorf("%w: date range ends before it starts", model.ErrValidation)
	}
	if maxDays > 0 && n > maxDays {
		return fmt.Errorf("%w: date range spans %d days, at most %d allowed", model.ErrValidation, n, maxDays)
	}
	return nil
}

type Config struct {
	// StoreTimeout bounds each occupancy read.
	StoreTimeout time.Duration
	// MaxRangeDays caps a single query. Zero means unlimited.
	MaxRangeDays int
	// MaxBuffer widens the occupancy window so commitments just outside the
	// working day still contribute their buffers. Hold and booking creation
	// reject buffers above the same bound.
	MaxBuffer time.Duration
}

type Generator struct {
	store    store.Store
	resolver *workinghours.Resolver
	cfg      Config
}

func NewGenerator(s store.Store, resolver *workinghours.Resolver, cfg Config) *Generator {
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = model.DefaultMaxBuffer
	}
	return &Generator{store: s, resolver: resolver, cfg: cfg}
}

// Slots lazily yields bookable intervals in ascending start order, one day at
// a time. Each call recomputes from the store. Iteration stops at the first
// error, which is yielded with a zero interval.
func (g *Generator) Slots(ctx context.Context, q Query) iter.Seq2[interval.Interval, error] {
	return func(yield func(interval.Interval, error) bool) {
		if err := q.validate(g.cfg.MaxRangeDays); err != nil {
			yield(interval.Interval{}, err)
			return
		}
		first := civil(q.From)
		for i := 0; i < q.days(); i++ {
			date := first.AddDate(0, 0, i)
			slots, err := g.day(ctx, q, date)
			if err != nil {
				yield(interval.Interval{}, err)
				return
			}
			for _, s := range slots {
				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

// Day returns the slots of a single date.
func (g *Generator) Day(ctx context.Context, q Query, date time.Time) ([]interval.Interval, error) {
	q.From, q.To = date, date
	if err := q.validate(g.cfg.MaxRangeDays); err != nil {
		return nil, err
	}
	return g.day(ctx, q, civil(date))
}

func (g *Generator) day(ctx context.Context, q Query, date time.Time) ([]interval.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	open, err := g.resolver.Resolve(ctx, q.TenantID, q.ResourceID, date)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	window := span(open).Expand(g.cfg.MaxBuffer, g.cfg.MaxBuffer)
	var occupied []interval.Interval
	err = store.View(ctx, g.store, g.cfg.StoreTimeout, func(ctx context.Context, tx store.Tx) error {
		commitments, err := tx.Commitments().QueryOccupancy(ctx, q.TenantID, q.ResourceID, window, q.Now)
		if err != nil {
			return err
		}
		for _, c := range commitments {
			occupied = append(occupied, c.Footprint())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	step := q.step()
	var out []interval.Interval
	for _, o := range open {
		for _, free := range interval.Subtract(o, occupied) {
			for _, start := range fit(free, q.Service, step, q.Now) {
				slot := interval.Interval{Start: start, End: start.Add(q.Service.Duration)}
				out = append(out, slot.In(o.Start.Location()))
			}
		}
	}
	// Overlapping rules may interleave.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Collect drains a slot sequence.
func Collect(seq iter.Seq2[interval.Interval, error]) ([]interval.Interval, error) {
	var out []interval.Interval
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func span(ivs []interval.Interval) interval.Interval {
	out := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.Start.Before(out.Start) {
			out.Start = iv.Start
		}
		if iv.End.After(out.End) {
			out.End = iv.End
		}
	}
	return out
}

// civil strips t to a UTC-anchored date so day arithmetic never meets DST.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
