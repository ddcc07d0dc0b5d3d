package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvParsers(t *testing.T) {
	t.Setenv("SK_INT", "42")
	t.Setenv("SK_DUR", "90s")
	t.Setenv("SK_BOOL", "true")
	t.Setenv("SK_BAD", "nope")

	n, err := Int("SK_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = Int("SK_MISSING", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	d, err := Duration("SK_DUR", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	b, err := Bool("SK_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = Int("SK_BAD", 0)
	assert.Error(t, err)
	_, err = Duration("SK_BAD", 0)
	assert.Error(t, err)
	_, err = Bool("SK_BAD", false)
	assert.Error(t, err)
}

func TestPort(t *testing.T) {
	t.Setenv("SK_PORT", "70000")
	_, err := Port("SK_PORT", "8080")
	assert.Error(t, err)

	p, err := Port("SK_UNSET_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

type policy struct {
	HoldTTL   TOMLDuration `toml:"hold_ttl"`
	MaxDays   int          `toml:"max_range_days"`
	Untouched string       `toml:"untouched"`
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte("hold_ttl = \"20m\"\nmax_range_days = 14\n"), 0o600))

	p := policy{Untouched: "default"}
	require.NoError(t, LoadTOML(path, &p))
	assert.Equal(t, 20*time.Minute, p.HoldTTL.Duration)
	assert.Equal(t, 14, p.MaxDays)
	assert.Equal(t, "default", p.Untouched)

	require.NoError(t, LoadTOML("", &p))

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("hold_tll = \"20m\"\n"), 0o600))
	err := LoadTOML(bad, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hold_tll")
}
