package domain

import "time"

// ZoneKind selects the pickup or dropoff side of the grid.
type ZoneKind string

const (
	ZoneKindPickup  ZoneKind = "pickup"
	ZoneKindDropoff ZoneKind = "dropoff"
)

// Valid reports whether k names a grid side.
func (k ZoneKind) Valid() bool {
	return k == ZoneKindPickup || k == ZoneKindDropoff
}

// ZoneSample is one trip's contribution to a grid cell.
type ZoneSample struct {
	Kind         ZoneKind
	Zone         string
	Group        string
	Scored       bool
	PerMile      float64
	PerMinute    float64
	Hourly       float64
	DelayMinutes float64
	Verdict      Verdict
	At           time.Time

	// Realised economics, independent of scoring.
	ActualHourly   float64
	RuntimeMinutes float64
	PickupMinutes  float64

	// Linked marks a dead-time sample: the idle gap after a dropoff until
	// the next acceptance, folded into an already observed trip.
	Linked            bool
	DeadMinutes       float64
	NextPickupMinutes float64
}

// VerdictCounts tallies verdicts observed in a zone.
type VerdictCounts struct {
	Good     int `json:"good"`
	Marginal int `json:"marginal"`
	Bad      int `json:"bad"`
}

// GridCell is the running aggregate for one zone on one side of the grid.
type GridCell struct {
	Zone          string        `json:"zone"`
	Kind          ZoneKind      `json:"kind"`
	Group         string        `json:"group"`
	TripCount     int           `json:"trip_count"`
	ScoredCount   int           `json:"scored_count"`
	UnscoredCount int           `json:"unscored_count"`
	SumPerMile    float64       `json:"sum_per_mile"`
	SumPerMinute  float64       `json:"sum_per_minute"`
	SumHourly     float64       `json:"sum_hourly"`
	MeanPerMile   float64       `json:"mean_per_mile"`
	MeanPerMinute float64       `json:"mean_per_minute"`
	MeanHourly    float64       `json:"mean_hourly"`
	MeanDelay     float64       `json:"mean_delay_minutes"`
	Verdicts      VerdictCounts `json:"verdicts"`
	FirstSeen     time.Time     `json:"first_seen"`
	LastUpdated   time.Time     `json:"last_updated"`

	// Effective earnings once idle time is charged to the zone: pickup
	// cells charge the drive to the rider, dropoff cells the dead time
	// until the next acceptance and, for InclNext, that trip's pickup drive.
	EffectiveCount              int     `json:"effective_count"`
	LinkedCount                 int     `json:"linked_count"`
	SumPickupMinutes            float64 `json:"sum_pickup_minutes"`
	SumDeadMinutes              float64 `json:"sum_dead_minutes"`
	SumNextPickupMinutes        float64 `json:"sum_next_pickup_minutes"`
	SumEffectiveHourly          float64 `json:"sum_effective_hourly"`
	SumEffectiveHourlyInclNext  float64 `json:"sum_effective_hourly_incl_next"`
	MeanPickupMinutes           float64 `json:"mean_pickup_minutes"`
	MeanDeadMinutes             float64 `json:"mean_dead_minutes"`
	MeanDeadWithNextMinutes     float64 `json:"mean_dead_with_next_minutes"`
	MeanEffectiveHourly         float64 `json:"mean_effective_hourly"`
	MeanEffectiveHourlyInclNext float64 `json:"mean_effective_hourly_incl_next"`
}

// NewGridCell creates an empty cell for a zone.
func NewGridCell(kind ZoneKind, zone, group string) *GridCell {
	return &GridCell{Zone: zone, Kind: kind, Group: group}
}

// Observe folds one sample into the cell. Means are updated incrementally
// over scored samples only; an unscored sample bumps the trip and unscored
// counts and its effective earnings. A linked sample only charges dead time
// to a trip the cell has already counted.
func (c *GridCell) Observe(s ZoneSample) {
	if c.FirstSeen.IsZero() {
		c.FirstSeen = s.At
	}
	c.LastUpdated = s.At
	if c.Group == "" {
		c.Group = s.Group
	}
	if s.Linked {
		c.observeLink(s)
		return
	}
	c.TripCount++
	c.observeEffective(s)

	if !s.Scored {
		c.UnscoredCount++
		return
	}

	c.ScoredCount++
	n := float64(c.ScoredCount)
	c.SumPerMile += s.PerMile
	c.SumPerMinute += s.PerMinute
	c.SumHourly += s.Hourly
	c.MeanPerMile += (s.PerMile - c.MeanPerMile) / n
	c.MeanPerMinute += (s.PerMinute - c.MeanPerMinute) / n
	c.MeanHourly += (s.Hourly - c.MeanHourly) / n
	c.MeanDelay += (s.DelayMinutes - c.MeanDelay) / n

	switch s.Verdict {
	case VerdictGood:
		c.Verdicts.Good++
	case VerdictMarginal:
		c.Verdicts.Marginal++
	case VerdictBad:
		c.Verdicts.Bad++
	}
}

// observeEffective counts a trip at idle time zero: a pickup cell charges
// the pickup drive, a dropoff cell waits for a link to charge dead time.
func (c *GridCell) observeEffective(s ZoneSample) {
	if s.RuntimeMinutes <= 0 {
		return
	}
	c.EffectiveCount++
	if c.Kind == ZoneKindPickup {
		c.SumPickupMinutes += s.PickupMinutes
		c.SumEffectiveHourly += EffectiveHourly(s.ActualHourly, s.RuntimeMinutes, s.PickupMinutes)
	} else {
		c.SumEffectiveHourly += s.ActualHourly
		c.SumEffectiveHourlyInclNext += s.ActualHourly
	}
	c.RecomputeEffective()
}

// observeLink replaces the zero idle time a dropoff trip was counted with.
func (c *GridCell) observeLink(s ZoneSample) {
	if c.Kind != ZoneKindDropoff || s.RuntimeMinutes <= 0 {
		return
	}
	c.LinkedCount++
	c.SumDeadMinutes += s.DeadMinutes
	c.SumNextPickupMinutes += s.NextPickupMinutes
	c.SumEffectiveHourly += EffectiveHourly(s.ActualHourly, s.RuntimeMinutes, s.DeadMinutes) - s.ActualHourly
	c.SumEffectiveHourlyInclNext += EffectiveHourly(s.ActualHourly, s.RuntimeMinutes, s.DeadMinutes+s.NextPickupMinutes) - s.ActualHourly
	c.RecomputeEffective()
}

// RecomputeEffective derives the effective means from their sums.
func (c *GridCell) RecomputeEffective() {
	if c.EffectiveCount == 0 {
		return
	}
	n := float64(c.EffectiveCount)
	c.MeanPickupMinutes = c.SumPickupMinutes / n
	c.MeanDeadMinutes = c.SumDeadMinutes / n
	c.MeanDeadWithNextMinutes = (c.SumDeadMinutes + c.SumNextPickupMinutes) / n
	c.MeanEffectiveHourly = c.SumEffectiveHourly / n
	c.MeanEffectiveHourlyInclNext = c.SumEffectiveHourlyInclNext / n
}

// EffectiveHourly scales an hourly rate by the share of time spent driving
// the fare when idle minutes are added to the runtime.
func EffectiveHourly(hourly, runtimeMinutes, idleMinutes float64) float64 {
	total := runtimeMinutes + idleMinutes
	if total <= 0 {
		return 0
	}
	return hourly * runtimeMinutes / total
}
