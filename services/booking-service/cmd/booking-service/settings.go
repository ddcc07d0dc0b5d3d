package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// settings is the engine policy. Values come from the TOML file named by
// SLOTKEEPER_CONFIG, then from individual environment variables.
type settings struct {
	Holds struct {
		DefaultTTL config.TOMLDuration `toml:"default_ttl"`
		MaxTTL     config.TOMLDuration `toml:"max_ttl"`
	} `toml:"holds"`
	Bookings struct {
		PaymentTTL config.TOMLDuration `toml:"payment_ttl"`
	} `toml:"bookings"`
	Availability struct {
		MaxRangeDays int                 `toml:"max_range_days"`
		MaxBuffer    config.TOMLDuration `toml:"max_buffer"`
	} `toml:"availability"`
	Store struct {
		Timeout config.TOMLDuration `toml:"timeout"`
	} `toml:"store"`
	Sweeper struct {
		Interval config.TOMLDuration `toml:"interval"`
		LockKey  int64               `toml:"lock_key"`
	} `toml:"sweeper"`
	Cache struct {
		TTL    config.TOMLDuration `toml:"ttl"`
		Prefix string              `toml:"prefix"`
	} `toml:"cache"`
	RateLimit struct {
		PerMinute int `toml:"per_minute"`
	} `toml:"rate_limit"`
	// Resources seed the in-memory store. Postgres deployments manage
	// schedules in their own tables.
	Resources []resourceSeed `toml:"resources"`
}

type resourceSeed struct {
	TenantID   string          `toml:"tenant_id"`
	ID         string          `toml:"id"`
	Name       string          `toml:"name"`
	Timezone   string          `toml:"timezone"`
	Hours      []hoursSeed     `toml:"hours"`
	Exceptions []exceptionSeed `toml:"exceptions"`
}

type hoursSeed struct {
	Weekday string `toml:"weekday"`
	Start   string `toml:"start"`
	End     string `toml:"end"`
}

type exceptionSeed struct {
	Date    string `toml:"date"`
	Blocked bool   `toml:"blocked"`
	Start   string `toml:"start"`
	End     string `toml:"end"`
}

func defaultSettings() settings {
	var s settings
	s.Holds.DefaultTTL.Duration = 15 * time.Minute
	s.Holds.MaxTTL.Duration = time.Hour
	s.Bookings.PaymentTTL.Duration = 30 * time.Minute
	s.Availability.MaxRangeDays = 31
	s.Availability.MaxBuffer.Duration = 2 * time.Hour
	s.Store.Timeout.Duration = 3 * time.Second
	s.Sweeper.Interval.Duration = 2 * time.Minute
	s.Sweeper.LockKey = 4242101
	s.Cache.TTL.Duration = 30 * time.Second
	s.Cache.Prefix = "slots"
	s.RateLimit.PerMinute = 600
	return s
}

func loadSettings() (settings, error) {
	s := defaultSettings()
	if err := config.LoadTOML(config.String("SLOTKEEPER_CONFIG", ""), &s); err != nil {
		return s, err
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HOLD_DEFAULT_TTL", &s.Holds.DefaultTTL.Duration},
		{"HOLD_MAX_TTL", &s.Holds.MaxTTL.Duration},
		{"PAYMENT_TTL", &s.Bookings.PaymentTTL.Duration},
		{"AVAILABILITY_MAX_BUFFER", &s.Availability.MaxBuffer.Duration},
		{"STORE_TIMEOUT", &s.Store.Timeout.Duration},
		{"SWEEP_INTERVAL", &s.Sweeper.Interval.Duration},
		{"SLOT_CACHE_TTL", &s.Cache.TTL.Duration},
	}
	for _, d := range durations {
		v, err := config.Duration(d.key, *d.dst)
		if err != nil {
			return s, err
		}
		*d.dst = v
	}

	var err error
	if s.Availability.MaxRangeDays, err = config.Int("AVAILABILITY_MAX_RANGE_DAYS", s.Availability.MaxRangeDays); err != nil {
		return s, err
	}
	if s.RateLimit.PerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", s.RateLimit.PerMinute); err != nil {
		return s, err
	}
	s.Cache.Prefix = config.String("SLOT_CACHE_PREFIX", s.Cache.Prefix)

	if s.Holds.DefaultTTL.Duration <= 0 || s.Holds.MaxTTL.Duration < s.Holds.DefaultTTL.Duration {
		return s, fmt.Errorf("holds: default_ttl must be positive and not exceed max_ttl")
	}
	return s, nil
}

// seed converts the configured resources into store rows.
func (rs resourceSeed) seed() (model.Resource, []model.WorkingHoursRule, []model.AvailabilityException, error) {
	if rs.TenantID == "" || rs.ID == "" {
		return model.Resource{}, nil, nil, fmt.Errorf("resource needs tenant_id and id")
	}
	tz := rs.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return model.Resource{}, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
	}
	res := model.Resource{ID: rs.ID, TenantID: rs.TenantID, Name: rs.Name, Location: loc}

	var rules []model.WorkingHoursRule
	for _, h := range rs.Hours {
		wd, err := parseWeekday(h.Weekday)
		if err != nil {
			return res, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
		}
		start, err := clockMinutes(h.Start)
		if err != nil {
			return res, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
		}
		end, err := clockMinutes(h.End)
		if err != nil {
			return res, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
		}
		rules = append(rules, model.WorkingHoursRule{Weekday: wd, StartMinute: start, EndMinute: end})
	}

	var excs []model.AvailabilityException
	for _, e := range rs.Exceptions {
		if _, err := time.Parse(model.DateLayout, e.Date); err != nil {
			return res, nil, nil, fmt.Errorf("resource %s: exception date %q", rs.ID, e.Date)
		}
		exc := model.AvailabilityException{Date: e.Date, IsBlocked: e.Blocked}
		if e.Start != "" || e.End != "" {
			start, err := clockMinutes(e.Start)
			if err != nil {
				return res, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
			}
			end, err := clockMinutes(e.End)
			if err != nil {
				return res, nil, nil, fmt.Errorf("resource %s: %w", rs.ID, err)
			}
			exc.StartMinute, exc.EndMinute = &start, &end
		}
		excs = append(excs, exc)
	}
	return res, rules, excs, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}

// clockMinutes parses "HH:MM" into minutes after midnight. "24:00" closes a day.
func clockMinutes(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("time of day %q must be HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
