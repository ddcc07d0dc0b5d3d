// Package workinghours turns weekly rules and dated exceptions into the open
// intervals of one calendar day in the resource's own time zone.
package workinghours

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
)

type Resolver struct {
	schedules store.ScheduleReader
}

func NewResolver(schedules store.ScheduleReader) *Resolver {
	return &Resolver{schedules: schedules}
}

// Day is the resolved schedule of one date.
type Day struct {
	Resource model.Resource
	Date     time.Time // local midnight
	Open     []interval.Interval
}

// Resolve returns the open intervals of resourceID on the calendar date of
// date (year, month and day are read as given; the clock part is ignored).
// Overlapping rules are returned as authored.
func (r *Resolver) Resolve(ctx context.Context, tenantID, resourceID string, date time.Time) ([]interval.Interval, error) {
	day, err := r.ResolveDay(ctx, tenantID, resourceID, date)
	if err != nil {
		return nil, err
	}
	return day.Open, nil
}

func (r *Resolver) ResolveDay(ctx context.Context, tenantID, resourceID string, date time.Time) (Day, error) {
	res, err := r.schedules.Resource(ctx, tenantID, resourceID)
	if err != nil {
		return Day{}, err
	}
	loc := res.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	day := Day{Resource: res, Date: midnight}

	exc, ok, err := r.schedules.Exception(ctx, tenantID, resourceID, midnight.Format(model.DateLayout))
	if err != nil {
		return Day{}, err
	}
	if ok {
		if exc.IsBlocked {
			return day, nil
		}
		if exc.StartMinute != nil && exc.EndMinute != nil {
			iv, err := atOffsets(y, m, d, *exc.StartMinute, *exc.EndMinute, loc)
			if err != nil {
				return Day{}, fmt.Errorf("exception %s: %w", exc.Date, err)
			}
			day.Open = []interval.Interval{iv}
			return day, nil
		}
	}

	rules, err := r.schedules.Rules(ctx, tenantID, resourceID, midnight.Weekday())
	if err != nil {
		return Day{}, err
	}
	for _, rule := range rules {
		iv, err := atOffsets(y, m, d, rule.StartMinute, rule.EndMinute, loc)
		if err != nil {
			return Day{}, fmt.Errorf("rule %s %d-%d: %w", rule.Weekday, rule.StartMinute, rule.EndMinute, err)
		}
		day.Open = append(day.Open, iv)
	}
	return day, nil
}

// atOffsets builds minutes-after-midnight as local wall clock times, so a
// 09:00-17:00 rule stays 09:00-17:00 on daylight saving transition days.
func atOffsets(y int, m time.Month, d, startMinute, endMinute int, loc *time.Location) (interval.Interval, error) {
	return interval.New(
		time.Date(y, m, d, 0, startMinute, 0, 0, loc),
		time.Date(y, m, d, 0, endMinute, 0, 0, loc),
	)
}
