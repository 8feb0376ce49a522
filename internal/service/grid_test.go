package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onisai/internal/config"
	"onisai/internal/domain"
)

func summaryAt(id string, accepted time.Time, runtime time.Duration, fare float64, pickupMinutes int) *domain.SummaryRecord {
	return &domain.SummaryRecord{
		TripID:         id,
		Day:            "2025-03-14",
		Offer:          domain.Offer{Fare: fare, PickupMinutes: pickupMinutes},
		AcceptedAt:     accepted,
		CompletedAt:    accepted.Add(runtime),
		RuntimeSeconds: int64(runtime / time.Second),
		PickupZone:     "NW1",
		DropoffZone:    "E8",
	}
}

func TestLinkTrips_Outcomes(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Grid
	prev := summaryAt("T1", t0, 20*time.Minute, 12, 4)

	tests := []struct {
		name     string
		accepted time.Duration
		outcome  domain.LinkOutcome
		dead     float64
		next     float64
	}{
		{name: "short gap", accepted: 30 * time.Minute, outcome: domain.LinkLinked, dead: 10, next: 3},
		{name: "gap at the cutoff", accepted: 70 * time.Minute, outcome: domain.LinkLinked, dead: 50, next: 3},
		{name: "gap past the cutoff", accepted: 71 * time.Minute, outcome: domain.LinkBreak},
		{name: "accepted before dropoff", accepted: 15 * time.Minute, outcome: domain.LinkOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := summaryAt("T2", t0.Add(tt.accepted), 10*time.Minute, 8, 3)
			link := LinkTrips(prev, next, cfg)
			assert.Equal(t, tt.outcome, link.Outcome)
			assert.InDelta(t, tt.dead, link.DeadMinutes, 1e-9)
			assert.InDelta(t, tt.next, link.NextPickupMinutes, 1e-9)
			assert.Equal(t, "E8", link.DropoffZone)
		})
	}
}

func TestPreviousTrip_LatestAcceptanceBefore(t *testing.T) {
	t.Parallel()

	a := summaryAt("T1", t0, 20*time.Minute, 12, 4)
	b := summaryAt("T2", t0.Add(30*time.Minute), 20*time.Minute, 12, 4)
	c := summaryAt("T3", t0.Add(60*time.Minute), 20*time.Minute, 12, 4)

	assert.Equal(t, b, previousTrip([]*domain.SummaryRecord{c, a, b}, c))
	assert.Nil(t, previousTrip([]*domain.SummaryRecord{a, b, c}, a))
}

func TestComputeDayEffective(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Grid
	day := ComputeDayEffective("2025-03-14", []*domain.SummaryRecord{
		summaryAt("T3", t0.Add(3*time.Hour), 20*time.Minute, 10, 5),
		summaryAt("T1", t0, 20*time.Minute, 12, 4),
		summaryAt("T2", t0.Add(30*time.Minute), 20*time.Minute, 12, 2),
	}, cfg)

	assert.Equal(t, 3, day.Trips)
	assert.InDelta(t, 34, day.Fare, 1e-9)
	assert.InDelta(t, 60, day.RuntimeMinutes, 1e-9)
	assert.InDelta(t, 10, day.DeadMinutes, 1e-9, "T2 to T3 is a break")
	assert.InDelta(t, 2, day.NextPickupMinutes, 1e-9)
	assert.InDelta(t, 34/(72.0/60), day.HourlyInclNext, 1e-9)
}

func TestRenderZoneReport_DropoffHeaderAndEffectiveColumns(t *testing.T) {
	t.Parallel()

	cell := domain.NewGridCell(domain.ZoneKindDropoff, "E8", "North East London")
	cell.Observe(domain.ZoneSample{ActualHourly: 36, RuntimeMinutes: 20, At: t0})
	cell.Observe(domain.ZoneSample{Linked: true, ActualHourly: 36, RuntimeMinutes: 20, DeadMinutes: 10, At: t0})

	days := []DayEffective{{Day: "2025-03-14", Trips: 2, RuntimeMinutes: 40, DeadMinutes: 10, HourlyInclNext: 28.8}}
	body := string(RenderZoneReport(domain.ZoneKindDropoff, []*domain.GridCell{cell}, days, t0))

	lines := strings.Split(body, "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "2025-03-14 | eff £/hr incl next=28.80 | trips=2 | run/dead/next=40/10/0m", lines[1])
	assert.Contains(t, body, "dead=10.0m dead+next=10.0m eff£/hr=24.00 incl-next=24.00 linked=1")

	pickup := string(RenderZoneReport(domain.ZoneKindPickup, nil, days, t0))
	assert.NotContains(t, pickup, "eff £/hr incl next", "the day line belongs to the dropoff report")
}
