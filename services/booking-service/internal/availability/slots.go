package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []interval.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !interval.OverlapsAny(interval.Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// fit walks free in step increments and returns every start t for which the
// candidate plus its buffers, [t-before, t+duration+after), stays inside free.
func fit(free interval.Interval, svc Service, step time.Duration, now time.Time) []time.Time {
	return AvailableSlots(
		free.Start.Add(svc.BufferBefore),
		free.End.Add(-svc.BufferAfter),
		svc.Duration, step, nil, now,
	)
}
