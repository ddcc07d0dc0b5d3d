package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Lifecycle(t *testing.T) {
	cases := []struct {
		from, to BookingStatus
		ok       bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingConfirmed, BookingCheckedIn, true},
		{BookingCheckedIn, BookingCompleted, true},
		{BookingPending, BookingCanceled, true},
		{BookingConfirmed, BookingCanceled, true},
		{BookingCheckedIn, BookingCanceled, true},
		{BookingConfirmed, BookingNoShow, true},
		{BookingCheckedIn, BookingNoShow, true},
		{BookingPending, BookingFailed, true},
		{BookingPending, BookingNoShow, false},
		{BookingConfirmed, BookingFailed, false},
		{BookingConfirmed, BookingPending, false},
		{BookingCanceled, BookingConfirmed, false},
		{BookingCompleted, BookingCanceled, false},
	}
	for _, tc := range cases {
		err := tc.from.CheckTransition(tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestBookingStatus_Precedence(t *testing.T) {
	order := []BookingStatus{
		BookingFailed, BookingPending, BookingConfirmed, BookingCheckedIn,
		BookingCompleted, BookingNoShow, BookingCanceled,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Precedence(), order[i-1].Precedence(), "%s vs %s", order[i], order[i-1])
	}
	require.ErrorIs(t, BookingCanceled.CheckPrecedence(BookingConfirmed), ErrInvalidTransition)
	require.NoError(t, BookingConfirmed.CheckPrecedence(BookingCanceled))
}

func TestBookingStatus_TextRoundTrip(t *testing.T) {
	b, err := BookingCheckedIn.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "checked_in", string(b))

	var s BookingStatus
	require.NoError(t, s.UnmarshalText([]byte("no_show")))
	assert.Equal(t, BookingNoShow, s)

	_, err = ParseBookingStatus("booked")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCommitment_OccupiesAt(t *testing.T) {
	now := time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)
	c := Commitment{Status: CommitmentHeld, ExpiresAt: TimePtr(now)}
	assert.False(t, c.OccupiesAt(now), "hold expiring exactly now must not occupy")
	assert.True(t, c.OccupiesAt(now.Add(-time.Second)))

	c.Status = CommitmentCanceled
	c.ExpiresAt = nil
	assert.False(t, c.OccupiesAt(now))

	c.Status = CommitmentConfirmed
	assert.True(t, c.OccupiesAt(now))
}

func TestValidateBuffers(t *testing.T) {
	assert.NoError(t, ValidateBuffers(0, time.Hour, time.Hour))
	assert.ErrorIs(t, ValidateBuffers(-time.Minute, 0, time.Hour), ErrValidation)
	assert.ErrorIs(t, ValidateBuffers(0, time.Hour+time.Second, time.Hour), ErrValidation)
}

func TestConflictError_MatchesSentinel(t *testing.T) {
	var err error = &ConflictError{With: Commitment{ID: "c1", Kind: KindHold}}
	assert.True(t, errors.Is(err, ErrConflict))

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "c1", ce.With.ID)
	assert.True(t, IsExpected(err))
	assert.False(t, IsExpected(errors.New("boom")))
}
