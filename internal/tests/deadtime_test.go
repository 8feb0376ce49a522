package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/service"
)

// runTrip drives one trip through offer, accept and complete with the given
// accept offset and runtime.
func runTrip(t *testing.T, h *harness, offer domain.Offer, at time.Time, accept, runtime time.Duration) *service.Result {
	t.Helper()
	ctx := context.Background()

	_, err := h.pipeline.SubmitStructuredOffer(ctx, offer, at)
	require.NoError(t, err)
	_, err = h.pipeline.Accept(ctx, at.Add(accept))
	require.NoError(t, err)
	res, err := h.pipeline.Complete(ctx, at.Add(accept+runtime))
	require.NoError(t, err)
	return res
}

func linkEntries(t *testing.T, h *harness) []*domain.DeadTimeLink {
	t.Helper()
	entries, err := h.guard.Entries(context.Background())
	require.NoError(t, err)
	var links []*domain.DeadTimeLink
	for _, e := range entries {
		if e.Action == domain.GuardrailLinked {
			require.NotNil(t, e.Link)
			links = append(links, e.Link)
		}
	}
	return links
}

// ──────────────────────────────────────────────
// 1. DEAD-TIME LINKING
// ──────────────────────────────────────────────

func TestDeadTime_ChargesGapToPreviousDropoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	first := runTrip(t, h, camdenToHackney(12.00), t0, 2*time.Minute, 20*time.Minute)
	second := runTrip(t, h, camdenToHackney(12.00), t0.Add(30*time.Minute), 2*time.Minute, 20*time.Minute)

	links := linkEntries(t, h)
	require.Len(t, links, 1)
	assert.Equal(t, first.Summary.TripID, links[0].TripID)
	assert.Equal(t, second.Summary.TripID, links[0].NextTripID)
	assert.Equal(t, domain.LinkLinked, links[0].Outcome)
	assert.InDelta(t, 10, links[0].GapMinutes, 1e-9)
	assert.InDelta(t, 10, links[0].DeadMinutes, 1e-9)
	assert.InDelta(t, 4, links[0].NextPickupMinutes, 1e-9)

	cell, err := h.grid.Get(ctx, domain.ZoneKindDropoff, "E8")
	require.NoError(t, err)
	assert.Equal(t, 2, cell.TripCount, "a link sample is not a trip")
	assert.Equal(t, 2, cell.EffectiveCount)
	assert.Equal(t, 1, cell.LinkedCount)
	assert.InDelta(t, 5, cell.MeanDeadMinutes, 1e-9)
	assert.InDelta(t, 7, cell.MeanDeadWithNextMinutes, 1e-9)
	// £36/hr over 20 minutes: 24 with 10 dead, 36*20/34 with the next pickup too.
	assert.InDelta(t, (24.0+36.0)/2, cell.MeanEffectiveHourly, 1e-9)
	assert.InDelta(t, (36.0*20/34+36.0)/2, cell.MeanEffectiveHourlyInclNext, 1e-9)

	pickup, err := h.grid.Get(ctx, domain.ZoneKindPickup, "NW1")
	require.NoError(t, err)
	assert.InDelta(t, 4, pickup.MeanPickupMinutes, 1e-9)
	assert.InDelta(t, 30, pickup.MeanEffectiveHourly, 1e-9)

	report, err := h.reports.Read(ctx, domain.ZoneKindDropoff)
	require.NoError(t, err)
	assert.Contains(t, string(report), testDay+" | eff £/hr incl next=26.67 | trips=2 | run/dead/next=40/10/4m")
}

func TestDeadTime_LongGapIsBreak(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	runTrip(t, h, camdenToHackney(12.00), t0, 2*time.Minute, 20*time.Minute)
	runTrip(t, h, camdenToHackney(12.00), t0.Add(73*time.Minute), 2*time.Minute, 20*time.Minute)

	links := linkEntries(t, h)
	require.Len(t, links, 1)
	assert.Equal(t, domain.LinkBreak, links[0].Outcome)
	assert.InDelta(t, 53, links[0].GapMinutes, 1e-9)
	assert.Zero(t, links[0].DeadMinutes)

	cell, err := h.grid.Get(ctx, domain.ZoneKindDropoff, "E8")
	require.NoError(t, err)
	assert.Zero(t, cell.LinkedCount)
	assert.InDelta(t, 36, cell.MeanEffectiveHourly, 1e-9)
}

func TestDeadTime_CapBoundsLinkedGap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *config.Config) {
		c.Grid.MaxLinkGap = 90 * time.Minute
		c.Grid.DeadTimeCap = 15 * time.Minute
	})

	runTrip(t, h, camdenToHackney(12.00), t0, 2*time.Minute, 20*time.Minute)
	runTrip(t, h, camdenToHackney(12.00), t0.Add(60*time.Minute), 2*time.Minute, 20*time.Minute)

	links := linkEntries(t, h)
	require.Len(t, links, 1)
	assert.Equal(t, domain.LinkLinked, links[0].Outcome)
	assert.InDelta(t, 40, links[0].GapMinutes, 1e-9)
	assert.InDelta(t, 15, links[0].DeadMinutes, 1e-9)
}

func TestDeadTime_ReplayWritesLinkOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	runTrip(t, h, camdenToHackney(12.00), t0, 2*time.Minute, 20*time.Minute)

	at := t0.Add(30 * time.Minute)
	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.00), at)
	require.NoError(t, err)
	_, err = h.pipeline.Accept(ctx, at.Add(2*time.Minute))
	require.NoError(t, err)

	h.guard.AppendError = ErrInjected
	_, err = h.pipeline.Complete(ctx, at.Add(22*time.Minute))
	require.ErrorIs(t, err, service.ErrIOFailure)
	assert.Empty(t, linkEntries(t, h))

	h.guard.AppendError = nil
	_, err = h.pipeline.Recover(ctx)
	require.NoError(t, err)
	_, err = h.pipeline.Recover(ctx)
	require.NoError(t, err)

	assert.Len(t, linkEntries(t, h), 1)
	cell, err := h.grid.Get(ctx, domain.ZoneKindDropoff, "E8")
	require.NoError(t, err)
	assert.Equal(t, 1, cell.LinkedCount, "the link sample rides on the trip's ledger entry")
}

// ──────────────────────────────────────────────
// 2. SEVERE DELAY
// ──────────────────────────────────────────────

func TestSevereDelay_FlagsEveryTripUntilCleared(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	// Estimate 18 minutes: 32 minutes is 14 over, traffic 10.
	first := runTrip(t, h, camdenToHackney(14.00), t0, 2*time.Minute, 32*time.Minute)
	require.NotNil(t, first.Flag)
	assert.Equal(t, domain.GuardrailSevereDelay, first.Flag.Reason)
	assert.Equal(t, "E8", first.Flag.Zone)
	assert.InDelta(t, 14, first.Flag.Value, 1e-9)
	assert.True(t, first.Summary.CompletedAt.Equal(first.Flag.CompletedAt))
	assert.Equal(t, domain.NotificationGuardrail, h.sender.Last().Type)

	second := runTrip(t, h, camdenToHackney(14.00), t0.Add(2*time.Hour), 2*time.Minute, 38*time.Minute)
	require.NotNil(t, second.Flag, "a flagged zone still logs each severe trip")
	assert.Equal(t, domain.GuardrailSevereDelay, second.Flag.Reason)

	mild := runTrip(t, h, camdenToHackney(14.00), t0.Add(4*time.Hour), 2*time.Minute, 22*time.Minute)
	assert.Nil(t, mild.Flag)

	status, err := h.pipeline.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.BadDropoffs, 1)
	bad := status.BadDropoffs[0]
	assert.Equal(t, "E8", bad.Zone)
	assert.InDelta(t, 20, bad.MaxDelayMinutes, 1e-9)
	assert.Equal(t, []string{first.Summary.TripID, second.Summary.TripID}, bad.Trips)
	require.Len(t, bad.CompletedTimes, 2)
	assert.True(t, second.Summary.CompletedAt.Equal(bad.CompletedTimes[1]))
	require.Len(t, status.Flags, 1)

	require.NoError(t, h.pipeline.ClearGuardrail(ctx, "E8", "roadworks"))
	status, err = h.pipeline.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.BadDropoffs)
	assert.Empty(t, status.Flags)
}

func TestSevereDelay_NeedsHeaviestTraffic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	// 10 minutes over an 18 minute estimate is traffic 8.
	res := runTrip(t, h, camdenToHackney(14.00), t0, 2*time.Minute, 28*time.Minute)
	assert.Equal(t, 8, res.Summary.TrafficLevel)
	assert.Nil(t, res.Flag)
	assert.Zero(t, h.guard.CountAction(domain.GuardrailFlagged))
}
