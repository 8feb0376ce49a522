package domain

import (
	"fmt"
	"time"
)

// TripState represents the lifecycle state of a trip in the unified log.
type TripState string

const (
	TripStateOffered   TripState = "OFFERED"
	TripStateAccepted  TripState = "ACCEPTED"
	TripStateCompleted TripState = "COMPLETED"
	TripStateDeclined  TripState = "DECLINED"
)

// Terminal reports whether no further stamp may follow this state.
func (s TripState) Terminal() bool {
	return s == TripStateCompleted || s == TripStateDeclined
}

// CanTransitionTo reports whether next is a valid successor of s.
// The lifecycle is linear: OFFERED -> ACCEPTED -> COMPLETED, with
// OFFERED -> DECLINED for offers the driver dismisses.
func (s TripState) CanTransitionTo(next TripState) bool {
	switch s {
	case TripStateOffered:
		return next == TripStateAccepted || next == TripStateDeclined
	case TripStateAccepted:
		return next == TripStateCompleted
	default:
		return false
	}
}

// TripIDLayout is the timestamp layout trip IDs are derived from.
const TripIDLayout = "20060102-150405"

// TripIDFromTime derives a trip ID from the offer timestamp.
func TripIDFromTime(t time.Time) string {
	return "T" + t.Format(TripIDLayout)
}

// TripIDWithSuffix disambiguates a trip ID already used by another trip.
func TripIDWithSuffix(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// DayLayout is the calendar-day key used for partitioned logs.
const DayLayout = "2006-01-02"

// Trip is the unit of work flowing through the pipeline.
type Trip struct {
	ID          string    `json:"id"`
	Offer       Offer     `json:"offer"`
	Metrics     *Metrics  `json:"metrics,omitempty"` // nil when the offer was degenerate (unscored)
	State       TripState `json:"state"`
	OfferedAt   time.Time `json:"offered_at"`
	AcceptedAt  time.Time `json:"accepted_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	DeclinedAt  time.Time `json:"declined_at,omitempty"`
}

// Open reports whether the trip still occupies the single in-flight slot.
func (t *Trip) Open() bool {
	return !t.State.Terminal()
}

// Scored reports whether metrics could be computed for the trip.
func (t *Trip) Scored() bool {
	return t.Metrics != nil
}

// Day returns the calendar day the trip belongs to (the offer day).
func (t *Trip) Day() string {
	return t.OfferedAt.Format(DayLayout)
}

// Runtime returns the time between acceptance and completion.
func (t *Trip) Runtime() time.Duration {
	if t.AcceptedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	d := t.CompletedAt.Sub(t.AcceptedAt)
	if d < 0 {
		return 0
	}
	return d
}

// DayFromTripID recovers the offer day encoded in a trip ID.
func DayFromTripID(id string) (string, bool) {
	if len(id) < 9 || id[0] != 'T' {
		return "", false
	}
	t, err := time.Parse("20060102", id[1:9])
	if err != nil {
		return "", false
	}
	return t.Format(DayLayout), true
}
