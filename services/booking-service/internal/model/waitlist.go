package model

import (
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

type WaitlistEntry struct {
	ID                string
	TenantID          string
	ResourceID        string
	ServiceID         string
	CustomerID        string
	PreferredInterval interval.Interval
	Priority          int
	Status            WaitlistStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
