package model

import "time"

// Resource is a bookable staff member with its recorded time zone.
type Resource struct {
	ID       string
	TenantID string
	Name     string
	Location *time.Location
}

// WorkingHoursRule opens [StartMinute, EndMinute) minutes after local
// midnight on Weekday. Several rules per weekday model split shifts.
type WorkingHoursRule struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// AvailabilityException overrides the weekly rules for one calendar date.
// A non-blocked exception without offsets leaves the rules in force.
type AvailabilityException struct {
	Date        string // YYYY-MM-DD in the resource's zone
	IsBlocked   bool
	StartMinute *int
	EndMinute   *int
}

const DateLayout = "2006-01-02"
