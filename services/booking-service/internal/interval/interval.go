// Package interval implements half-open time ranges [Start, End) and the
// overlap arithmetic availability and reservation logic is built on.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open range: Start is inclusive, End is exclusive.
// Both ends carry the location of the resource they were computed for.
type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns an interval or ErrInvalidInterval if start is not before end.
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (i Interval) Validate() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidInterval)
	}
	if !i.Start.Before(i.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidInterval,
			i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
	}
	return nil
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// TZ is the IANA name of the location the interval was expressed in.
func (i Interval) TZ() string {
	return i.Start.Location().String()
}

func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

func (i Interval) UTC() Interval {
	return i.In(time.UTC)
}

// Expand widens the interval by before on the left and after on the right.
func (i Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// Equal compares instants, ignoring location.
func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

func (i Interval) String() string {
	return i.Start.Format(time.RFC3339) + "/" + i.End.Format(time.RFC3339)
}

// Overlaps reports whether a and b share at least one instant.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// OverlapsAny reports whether iv overlaps any element of set.
func OverlapsAny(iv Interval, set []Interval) bool {
	for _, o := range set {
		if Overlaps(iv, o) {
			return true
		}
	}
	return false
}

// Subtract returns the free sub-intervals of available once every occupied
// range is removed. The result is ordered and never contains empty intervals.
func Subtract(available Interval, occupied []Interval) []Interval {
	if !available.Start.Before(available.End) {
		return nil
	}

	var blocks []Interval
	for _, o := range occupied {
		// Clip to the available range.
		if !Overlaps(available, o) {
			continue
		}
		s, e := o.Start, o.End
		if s.Before(available.Start) {
			s = available.Start
		}
		if e.After(available.End) {
			e = available.End
		}
		blocks = append(blocks, Interval{Start: s, End: e})
	}
	if len(blocks) == 0 {
		return []Interval{available}
	}

	merged := Merge(blocks)
	free := make([]Interval, 0, len(merged)+1)
	cursor := available.Start
	for _, b := range merged {
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if available.End.After(cursor) {
		free = append(free, Interval{Start: cursor, End: available.End})
	}
	return free
}

// Merge sorts the intervals by start and coalesces overlapping or touching ones.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Interval, 0, len(sorted))
	for _, cur := range sorted {
		if len(out) == 0 {
			out = append(out, cur)
			continue
		}
		last := &out[len(out)-1]
		if cur.Start.After(last.End) {
			out = append(out, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return out
}
