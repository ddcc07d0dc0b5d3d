package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// schedules reads working-hours data authored elsewhere.
type schedules struct {
	pool *db.Pool
}

func (r schedules) Resource(ctx context.Context, tenantID, resourceID string) (model.Resource, error) {
	var (
		res model.Resource
		tz  string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, timezone
		FROM resources
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, resourceID).Scan(&res.ID, &res.TenantID, &res.Name, &tz)
	if err != nil {
		if IsNotFound(err) {
			return model.Resource{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, resourceID)
		}
		return model.Resource{}, classify(err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return model.Resource{}, fmt.Errorf("resource %s has invalid timezone %q: %w", resourceID, tz, err)
	}
	res.Location = loc
	return res, nil
}

func (r schedules) Rules(ctx context.Context, tenantID, resourceID string, weekday time.Weekday) ([]model.WorkingHoursRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM working_hours_rules
		WHERE tenant_id = $1 AND resource_id = $2 AND weekday = $3
		ORDER BY start_minute
	`, tenantID, resourceID, int(weekday))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var rules []model.WorkingHoursRule
	for rows.Next() {
		var (
			rule model.WorkingHoursRule
			wd   int
		)
		if err := rows.Scan(&wd, &rule.StartMinute, &rule.EndMinute); err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(wd)
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func (r schedules) Exception(ctx context.Context, tenantID, resourceID, date string) (model.AvailabilityException, bool, error) {
	exc := model.AvailabilityException{Date: date}
	err := r.pool.QueryRow(ctx, `
		SELECT is_blocked, start_minute, end_minute
		FROM availability_exceptions
		WHERE tenant_id = $1 AND resource_id = $2 AND date = $3::date
	`, tenantID, resourceID, date).Scan(&exc.IsBlocked, &exc.StartMinute, &exc.EndMinute)
	if err != nil {
		if IsNotFound(err) {
			return model.AvailabilityException{}, false, nil
		}
		return model.AvailabilityException{}, false, classify(err)
	}
	return exc, true, nil
}
