package domain

import "time"

// GuardrailReason is the rule that caused a zone to be flagged.
type GuardrailReason string

const (
	GuardrailLowPerMile   GuardrailReason = "LOW_PER_MILE"
	GuardrailLowPerMinute GuardrailReason = "LOW_PER_MINUTE"
	GuardrailChronicDelay GuardrailReason = "CHRONIC_DELAY"
	// GuardrailSevereDelay is raised by a single trip that ran well over its
	// estimate in the heaviest traffic.
	GuardrailSevereDelay GuardrailReason = "SEVERE_DELAY"
)

// GuardrailAction distinguishes the kinds of guardrail log lines.
type GuardrailAction string

const (
	GuardrailFlagged GuardrailAction = "FLAGGED"
	GuardrailCleared GuardrailAction = "CLEARED"
	GuardrailLinked  GuardrailAction = "LINKED"
)

// GuardrailFlag marks a dropoff zone as economically poor.
type GuardrailFlag struct {
	Zone        string          `json:"zone"`
	Reason      GuardrailReason `json:"reason"`
	Value       float64         `json:"value"`
	Threshold   float64         `json:"threshold"`
	SampleCount int             `json:"sample_count"`
	TripID      string          `json:"trip_id"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	FlaggedAt   time.Time       `json:"flagged_at"`
}

// LinkOutcome says how a trip was tied to the next acceptance of its day.
type LinkOutcome string

const (
	LinkLinked  LinkOutcome = "LINKED"
	LinkBreak   LinkOutcome = "BREAK"
	LinkOverlap LinkOutcome = "OVERLAP"
)

// DeadTimeLink is the idle gap between a dropoff and the next acceptance.
type DeadTimeLink struct {
	TripID            string      `json:"trip_id"`
	NextTripID        string      `json:"next_trip_id"`
	DropoffZone       string      `json:"dropoff_zone"`
	CompletedAt       time.Time   `json:"completed_at"`
	NextAcceptedAt    time.Time   `json:"next_accepted_at"`
	GapMinutes        float64     `json:"gap_minutes"`
	DeadMinutes       float64     `json:"dead_minutes"`
	NextPickupMinutes float64     `json:"next_pickup_minutes"`
	Outcome           LinkOutcome `json:"outcome"`
}

// GuardrailEntry is one line of the guardrail log.
type GuardrailEntry struct {
	Action GuardrailAction
	Flag   GuardrailFlag // for CLEARED only Zone and FlaggedAt are set; for LINKED Zone, TripID and FlaggedAt
	Link   *DeadTimeLink // LINKED only
	Note   string
}

// BadDropoff collects the severe-delay trips of one zone since its last review.
type BadDropoff struct {
	Zone            string      `json:"zone"`
	MaxDelayMinutes float64     `json:"max_delay_minutes"`
	Trips           []string    `json:"trips"`
	CompletedTimes  []time.Time `json:"completed_times"`
}
