package domain

import "time"

// ArchiveLabel is the outcome recorded on a RAW line.
type ArchiveLabel string

const (
	ArchiveCompleted ArchiveLabel = "COMPLETED"
	ArchiveRejected  ArchiveLabel = "REJECTED"
)

// RawRecord preserves the unified log lines of one finished trip.
type RawRecord struct {
	TripID     string       `json:"trip_id"`
	Day        string       `json:"day"`
	Label      ArchiveLabel `json:"label"`
	Lines      []string     `json:"lines"`
	ArchivedAt time.Time    `json:"archived_at"`
}

// SummaryRecord is the derived economics of one completed trip.
type SummaryRecord struct {
	TripID         string    `json:"trip_id"`
	Day            string    `json:"day"`
	Offer          Offer     `json:"offer"`
	Metrics        *Metrics  `json:"metrics,omitempty"`
	Scored         bool      `json:"scored"`
	OfferedAt      time.Time `json:"offered_at"`
	AcceptedAt     time.Time `json:"accepted_at"`
	CompletedAt    time.Time `json:"completed_at"`
	RuntimeSeconds int64     `json:"runtime_seconds"`
	DelayMinutes   float64   `json:"delay_minutes"`
	DelayFlagged   bool      `json:"delay_flagged"`
	TrafficLevel   int       `json:"traffic_level"`
	PickupZone     string    `json:"pickup_zone"`
	DropoffZone    string    `json:"dropoff_zone"`
	SummarizedAt   time.Time `json:"summarized_at"`
}

// DayTotals aggregates the SUMMARY records of one day.
type DayTotals struct {
	Day            string        `json:"day"`
	Trips          int           `json:"trips"`
	Earnings       float64       `json:"earnings"`
	DriveMinutes   int           `json:"drive_minutes"`
	DriveLimit     time.Duration `json:"-"`
	RemainingLimit time.Duration `json:"-"`
}
