package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[holds]
default_ttl = "10m"
max_ttl = "45m"

[availability]
max_range_days = 14

[[resources]]
tenant_id = "acme"
id = "chair-1"
timezone = "Europe/Berlin"

  [[resources.hours]]
  weekday = "mon"
  start = "09:00"
  end = "12:30"

  [[resources.hours]]
  weekday = "Monday"
  start = "13:30"
  end = "24:00"

  [[resources.exceptions]]
  date = "2026-12-24"
  blocked = true
`

func TestLoadSettings_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotkeeper.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv("SLOTKEEPER_CONFIG", path)
	t.Setenv("HOLD_MAX_TTL", "50m")

	s, err := loadSettings()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.Holds.DefaultTTL.Duration)
	assert.Equal(t, 50*time.Minute, s.Holds.MaxTTL.Duration)
	assert.Equal(t, 14, s.Availability.MaxRangeDays)
	assert.Equal(t, 30*time.Minute, s.Bookings.PaymentTTL.Duration)
	require.Len(t, s.Resources, 1)

	res, rules, excs, err := s.Resources[0].seed()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", res.Location.String())
	require.Len(t, rules, 2)
	assert.Equal(t, time.Monday, rules[0].Weekday)
	assert.Equal(t, 9*60, rules[0].StartMinute)
	assert.Equal(t, 12*60+30, rules[0].EndMinute)
	assert.Equal(t, 24*60, rules[1].EndMinute)
	require.Len(t, excs, 1)
	assert.True(t, excs[0].IsBlocked)
	assert.Nil(t, excs[0].StartMinute)
}

func TestLoadSettings_RejectsBadTTL(t *testing.T) {
	t.Setenv("SLOTKEEPER_CONFIG", "")
	t.Setenv("HOLD_DEFAULT_TTL", "2h")
	_, err := loadSettings()
	assert.Error(t, err)

	t.Setenv("HOLD_DEFAULT_TTL", "soon")
	_, err = loadSettings()
	assert.Error(t, err)
}

func TestResourceSeed_Invalid(t *testing.T) {
	_, _, _, err := resourceSeed{TenantID: "a", ID: "r", Hours: []hoursSeed{{Weekday: "funday", Start: "09:00", End: "10:00"}}}.seed()
	assert.Error(t, err)

	_, _, _, err = resourceSeed{TenantID: "a", ID: "r", Hours: []hoursSeed{{Weekday: "tue", Start: "9am", End: "10:00"}}}.seed()
	assert.Error(t, err)

	_, _, _, err = resourceSeed{ID: "r"}.seed()
	assert.Error(t, err)
}
