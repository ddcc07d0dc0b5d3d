package model

import (
	"fmt"
	"strings"
)

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus uint8

const (
	BookingPending BookingStatus = iota + 1
	BookingConfirmed
	BookingCheckedIn
	BookingCompleted
	BookingCanceled
	BookingNoShow
	BookingFailed
)

var bookingStatusNames = map[BookingStatus]string{
	BookingPending:   "pending",
	BookingConfirmed: "confirmed",
	BookingCheckedIn: "checked_in",
	BookingCompleted: "completed",
	BookingCanceled:  "canceled",
	BookingNoShow:    "no_show",
	BookingFailed:    "failed",
}

// precedence orders statuses for reconciling out-of-order writes:
// canceled > no_show > completed > checked_in > confirmed > pending > failed.
var bookingPrecedence = map[BookingStatus]int{
	BookingFailed:    0,
	BookingPending:   1,
	BookingConfirmed: 2,
	BookingCheckedIn: 3,
	BookingCompleted: 4,
	BookingNoShow:    5,
	BookingCanceled:  6,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCanceled, BookingFailed},
	BookingConfirmed: {BookingCheckedIn, BookingCanceled, BookingNoShow},
	BookingCheckedIn: {BookingCompleted, BookingCanceled, BookingNoShow},
}

func (s BookingStatus) String() string {
	if name, ok := bookingStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BookingStatus(%d)", uint8(s))
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingStatusNames[s]
	return ok
}

func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCompleted, BookingCanceled, BookingNoShow, BookingFailed:
		return true
	}
	return false
}

func (s BookingStatus) Precedence() int {
	return bookingPrecedence[s]
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next
// in one step.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition unless s -> next is a legal step.
func (s BookingStatus) CheckTransition(next BookingStatus) error {
	if !s.CanTransitionTo(next) {
		return invalidTransition(s, next)
	}
	return nil
}

// CheckPrecedence rejects a write carrying a lower-precedence status than s.
func (s BookingStatus) CheckPrecedence(next BookingStatus) error {
	if next.Precedence() < s.Precedence() {
		return fmt.Errorf("%w: %s has lower precedence than %s", ErrInvalidTransition, next, s)
	}
	return nil
}

// Commitment mirrors the status a booking commitment should carry.
func (s BookingStatus) Commitment() CommitmentStatus {
	switch s {
	case BookingPending:
		return CommitmentPending
	case BookingConfirmed:
		return CommitmentConfirmed
	case BookingCheckedIn:
		return CommitmentCheckedIn
	case BookingCompleted:
		return CommitmentCompleted
	case BookingCanceled:
		return CommitmentCanceled
	case BookingNoShow:
		return CommitmentNoShow
	default:
		return CommitmentFailed
	}
}

func (s BookingStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid booking status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *BookingStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseBookingStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for s, name := range bookingStatusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown booking status %q", ErrValidation, raw)
}

// CommitmentStatus is the closed set of states of an occupied-interval record.
type CommitmentStatus uint8

const (
	CommitmentHeld CommitmentStatus = iota + 1
	CommitmentPending
	CommitmentConfirmed
	CommitmentCheckedIn
	CommitmentCompleted
	CommitmentCanceled
	CommitmentNoShow
	CommitmentExpired
	CommitmentFailed
)

var commitmentStatusNames = map[CommitmentStatus]string{
	CommitmentHeld:      "held",
	CommitmentPending:   "pending",
	CommitmentConfirmed: "confirmed",
	CommitmentCheckedIn: "checked_in",
	CommitmentCompleted: "completed",
	CommitmentCanceled:  "canceled",
	CommitmentNoShow:    "no_show",
	CommitmentExpired:   "expired",
	CommitmentFailed:    "failed",
}

// Same-status entries allow expires_at updates (hold extension).
var commitmentTransitions = map[CommitmentStatus][]CommitmentStatus{
	CommitmentHeld:      {CommitmentHeld, CommitmentPending, CommitmentCanceled, CommitmentExpired},
	CommitmentPending:   {CommitmentPending, CommitmentConfirmed, CommitmentCanceled, CommitmentFailed},
	CommitmentConfirmed: {CommitmentCheckedIn, CommitmentCanceled, CommitmentNoShow},
	CommitmentCheckedIn: {CommitmentCompleted, CommitmentCanceled, CommitmentNoShow},
}

func (s CommitmentStatus) String() string {
	if name, ok := commitmentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommitmentStatus(%d)", uint8(s))
}

func (s CommitmentStatus) Valid() bool {
	_, ok := commitmentStatusNames[s]
	return ok
}

// Occupies reports whether a commitment in this status blocks its interval.
func (s CommitmentStatus) Occupies() bool {
	switch s {
	case CommitmentHeld, CommitmentPending, CommitmentConfirmed, CommitmentCheckedIn:
		return true
	}
	return false
}

func (s CommitmentStatus) CheckTransition(next CommitmentStatus) error {
	for _, allowed := range commitmentTransitions[s] {
		if allowed == next {
			return nil
		}
	}
	return invalidTransition(s, next)
}

func ParseCommitmentStatus(raw string) (CommitmentStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for s, name := range commitmentStatusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown commitment status %q", raw)
}

// OccupyingStatuses lists the statuses that participate in overlap checks.
func OccupyingStatuses() []CommitmentStatus {
	return []CommitmentStatus{CommitmentHeld, CommitmentPending, CommitmentConfirmed, CommitmentCheckedIn}
}

type Kind uint8

const (
	KindHold Kind = iota + 1
	KindBooking
)

func (k Kind) String() string {
	switch k {
	case KindHold:
		return "hold"
	case KindBooking:
		return "booking"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hold":
		return KindHold, nil
	case "booking":
		return KindBooking, nil
	}
	return 0, fmt.Errorf("unknown commitment kind %q", raw)
}

type WaitlistStatus uint8

const (
	WaitlistWaiting WaitlistStatus = iota + 1
	WaitlistNotified
	WaitlistExpired
	WaitlistFulfilled
	WaitlistRemoved
)

var waitlistStatusNames = map[WaitlistStatus]string{
	WaitlistWaiting:   "waiting",
	WaitlistNotified:  "notified",
	WaitlistExpired:   "expired",
	WaitlistFulfilled: "fulfilled",
	WaitlistRemoved:   "removed",
}

func (s WaitlistStatus) String() string {
	if name, ok := waitlistStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("WaitlistStatus(%d)", uint8(s))
}

func (s WaitlistStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func ParseWaitlistStatus(raw string) (WaitlistStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for s, name := range waitlistStatusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown waitlist status %q", raw)
}
