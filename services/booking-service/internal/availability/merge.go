package availability

import (
	"sort"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

// StaffSlots is one resource's slot sequence, as produced by Generator.
type StaffSlots struct {
	ResourceID string
	Slots      []interval.Interval
}

type Assignment struct {
	ResourceID string
	Interval   interval.Interval
}

// MergeByStaff interleaves per-staff sequences by start time and drops
// repeated (start, end) pairs, keeping the staff that appears first in lists.
// The tie-break is a display convention, not a business rule.
func MergeByStaff(lists ...StaffSlots) []Assignment {
	type ranked struct {
		Assignment
		rank int
	}
	var all []ranked
	for rank, l := range lists {
		for _, s := range l.Slots {
			all = append(all, ranked{Assignment: Assignment{ResourceID: l.ResourceID, Interval: s}, rank: rank})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].Interval, all[j].Interval
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return all[i].rank < all[j].rank
	})

	out := make([]Assignment, 0, len(all))
	for _, r := range all {
		if n := len(out); n > 0 && out[n-1].Interval.Equal(r.Interval) {
			continue
		}
		out = append(out, r.Assignment)
	}
	return out
}
