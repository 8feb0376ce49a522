package service

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/repository"
	"onisai/internal/zone"
)

// GridUpdater folds archived trips into the pickup and dropoff grids and
// charges the dead time before each acceptance to the previous dropoff zone.
type GridUpdater struct {
	grid     repository.GridRepository
	archive  repository.ArchiveRepository
	guardLog repository.GuardrailRepository
	reports  repository.ReportRepository
	cfg      config.GridConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewGridUpdater creates a new GridUpdater.
func NewGridUpdater(
	grid repository.GridRepository,
	archive repository.ArchiveRepository,
	guardLog repository.GuardrailRepository,
	reports repository.ReportRepository,
	cfg config.GridConfig,
	logger *zap.Logger,
) *GridUpdater {
	return &GridUpdater{
		grid:     grid,
		archive:  archive,
		guardLog: guardLog,
		reports:  reports,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Update applies a summary to one pickup and one dropoff cell, links it to
// the previous trip of its day and rewrites both zone reports. The dead-time
// sample for the previous dropoff zone rides in the same Apply call so the
// processed-trip ledger covers it. It returns false when the trip was
// already applied.
func (g *GridUpdater) Update(ctx context.Context, summary *domain.SummaryRecord) (bool, error) {
	summaries, err := g.archive.ListSummaries(ctx, summary.Day)
	if err != nil {
		return false, fmt.Errorf("failed to list summaries: %w", err)
	}

	samples := ZoneSamples(summary)
	var link *domain.DeadTimeLink
	if prev := previousTrip(summaries, summary); prev != nil {
		l := LinkTrips(prev, summary, g.cfg)
		link = &l
		if l.Outcome == domain.LinkLinked {
			samples = append(samples, LinkSample(prev, l))
		}
	}

	var applied bool
	if err := withRetry(ctx, "apply grid update", func() error {
		var err error
		applied, err = g.grid.Apply(ctx, summary.TripID, samples)
		return err
	}); err != nil {
		return false, err
	}

	if applied {
		g.logger.Info("grid updated",
			zap.String("trip_id", summary.TripID),
			zap.String("pickup_zone", summary.PickupZone),
			zap.String("dropoff_zone", summary.DropoffZone),
		)
	} else {
		g.logger.Debug("grid already holds trip", zap.String("trip_id", summary.TripID))
	}

	if link != nil {
		if err := g.recordLink(ctx, link); err != nil {
			return applied, err
		}
	}

	if err := g.RefreshReports(ctx, summary.Day); err != nil {
		return applied, err
	}
	return applied, nil
}

// recordLink appends the link to the guardrail log unless a replay already
// wrote it.
func (g *GridUpdater) recordLink(ctx context.Context, link *domain.DeadTimeLink) error {
	entries, err := g.guardLog.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read guardrail log: %w", err)
	}
	for _, e := range entries {
		if e.Action == domain.GuardrailLinked && e.Link != nil && e.Link.NextTripID == link.NextTripID {
			return nil
		}
	}

	entry := domain.GuardrailEntry{
		Action: domain.GuardrailLinked,
		Flag:   domain.GuardrailFlag{Zone: link.DropoffZone, TripID: link.TripID, FlaggedAt: g.now()},
		Link:   link,
	}
	if err := withRetry(ctx, "append dead-time link", func() error {
		return g.guardLog.Append(ctx, entry)
	}); err != nil {
		return err
	}

	g.logger.Info("dead time linked",
		zap.String("trip_id", link.TripID),
		zap.String("next_trip_id", link.NextTripID),
		zap.String("outcome", string(link.Outcome)),
		zap.Float64("dead_minutes", link.DeadMinutes),
	)
	return nil
}

// RefreshReports regenerates both zone reports from the grid. A non-empty
// day adds that day's effective hourly rate to the dropoff header.
func (g *GridUpdater) RefreshReports(ctx context.Context, day string) error {
	var days []DayEffective
	if day != "" {
		summaries, err := g.archive.ListSummaries(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to list summaries: %w", err)
		}
		days = append(days, ComputeDayEffective(day, summaries, g.cfg))
	}

	for _, kind := range []domain.ZoneKind{domain.ZoneKindPickup, domain.ZoneKindDropoff} {
		cells, err := g.grid.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to list %s cells: %w", kind, err)
		}
		body := RenderZoneReport(kind, cells, days, g.now())
		if err := withRetry(ctx, "write zone report", func() error {
			return g.reports.Write(ctx, kind, body)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Cells returns the grid of one kind sorted by zone key.
func (g *GridUpdater) Cells(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZoneKind, kind)
	}
	return g.grid.List(ctx, kind)
}

// ZoneSamples splits a summary into its pickup and dropoff contributions.
func ZoneSamples(summary *domain.SummaryRecord) []domain.ZoneSample {
	base := domain.ZoneSample{
		Scored:       summary.Metrics != nil,
		DelayMinutes: summary.DelayMinutes,
		At:           summary.CompletedAt,

		ActualHourly:   ActualHourly(summary),
		RuntimeMinutes: runtimeMinutes(summary),
		PickupMinutes:  float64(summary.Offer.PickupMinutes),
	}
	if m := summary.Metrics; m != nil {
		base.PerMile = m.PerMile
		base.PerMinute = m.PerMinute
		base.Hourly = m.HourlyAdjusted
		base.Verdict = m.Verdict
	}

	pickup, dropoff := base, base
	pickup.Kind, pickup.Zone = domain.ZoneKindPickup, summary.PickupZone
	pickup.Group = zone.Group(summary.PickupZone)
	dropoff.Kind, dropoff.Zone = domain.ZoneKindDropoff, summary.DropoffZone
	dropoff.Group = zone.Group(summary.DropoffZone)
	return []domain.ZoneSample{pickup, dropoff}
}

// ActualHourly is the fare earned per hour of accept-to-complete runtime,
// or zero without a runtime.
func ActualHourly(summary *domain.SummaryRecord) float64 {
	runtime := runtimeMinutes(summary)
	if runtime <= 0 {
		return 0
	}
	return summary.Offer.Fare / (runtime / 60)
}

func runtimeMinutes(summary *domain.SummaryRecord) float64 {
	return float64(summary.RuntimeSeconds) / 60
}

// previousTrip returns the summary accepted last before s, or nil.
func previousTrip(summaries []*domain.SummaryRecord, s *domain.SummaryRecord) *domain.SummaryRecord {
	var prev *domain.SummaryRecord
	for _, c := range summaries {
		if c.TripID == s.TripID || !c.AcceptedAt.Before(s.AcceptedAt) {
			continue
		}
		if prev == nil || c.AcceptedAt.After(prev.AcceptedAt) {
			prev = c
		}
	}
	return prev
}

// LinkTrips measures the gap between prev's dropoff and next's acceptance.
// A gap over MaxLinkGap is a break; an acceptance before the dropoff is an
// overlap. Only a LINKED outcome carries dead time, capped at DeadTimeCap.
func LinkTrips(prev, next *domain.SummaryRecord, cfg config.GridConfig) domain.DeadTimeLink {
	link := domain.DeadTimeLink{
		TripID:         prev.TripID,
		NextTripID:     next.TripID,
		DropoffZone:    prev.DropoffZone,
		CompletedAt:    prev.CompletedAt,
		NextAcceptedAt: next.AcceptedAt,
	}
	gap := next.AcceptedAt.Sub(prev.CompletedAt)
	link.GapMinutes = gap.Minutes()
	switch {
	case gap < 0:
		link.Outcome = domain.LinkOverlap
	case gap > cfg.MaxLinkGap:
		link.Outcome = domain.LinkBreak
	default:
		link.Outcome = domain.LinkLinked
		link.DeadMinutes = math.Min(gap.Minutes(), cfg.DeadTimeCap.Minutes())
		link.NextPickupMinutes = float64(next.Offer.PickupMinutes)
	}
	return link
}

// LinkSample charges a link's dead time to the dropoff cell of prev.
func LinkSample(prev *domain.SummaryRecord, link domain.DeadTimeLink) domain.ZoneSample {
	return domain.ZoneSample{
		Kind:              domain.ZoneKindDropoff,
		Zone:              prev.DropoffZone,
		Group:             zone.Group(prev.DropoffZone),
		At:                link.NextAcceptedAt,
		ActualHourly:      ActualHourly(prev),
		RuntimeMinutes:    runtimeMinutes(prev),
		Linked:            true,
		DeadMinutes:       link.DeadMinutes,
		NextPickupMinutes: link.NextPickupMinutes,
	}
}

// DayEffective is one day's earnings once every linked idle minute is
// charged against the fares.
type DayEffective struct {
	Day               string  `json:"day"`
	Trips             int     `json:"trips"`
	Fare              float64 `json:"fare"`
	RuntimeMinutes    float64 `json:"runtime_minutes"`
	DeadMinutes       float64 `json:"dead_minutes"`
	NextPickupMinutes float64 `json:"next_pickup_minutes"`
	HourlyInclNext    float64 `json:"hourly_incl_next"`
}

// ComputeDayEffective links a day's summaries in acceptance order and
// divides the total fare by runtime plus dead time plus next pickup drives.
func ComputeDayEffective(day string, summaries []*domain.SummaryRecord, cfg config.GridConfig) DayEffective {
	ordered := make([]*domain.SummaryRecord, 0, len(summaries))
	for _, s := range summaries {
		if s.RuntimeSeconds > 0 {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].AcceptedAt.Before(ordered[j].AcceptedAt) })

	d := DayEffective{Day: day, Trips: len(ordered)}
	for i, s := range ordered {
		d.Fare += s.Offer.Fare
		d.RuntimeMinutes += runtimeMinutes(s)
		if i == 0 {
			continue
		}
		if l := LinkTrips(ordered[i-1], s, cfg); l.Outcome == domain.LinkLinked {
			d.DeadMinutes += l.DeadMinutes
			d.NextPickupMinutes += l.NextPickupMinutes
		}
	}
	if total := d.RuntimeMinutes + d.DeadMinutes + d.NextPickupMinutes; total > 0 {
		d.HourlyInclNext = d.Fare / (total / 60)
	}
	return d
}

// RenderZoneReport renders the human-readable zone summary: one section per
// zone group, cells sorted by zone key within it. The dropoff report opens
// with one effective hourly line per day.
func RenderZoneReport(kind domain.ZoneKind, cells []*domain.GridCell, days []DayEffective, at time.Time) []byte {
	byGroup := make(map[string][]*domain.GridCell)
	for _, c := range cells {
		group := c.Group
		if group == "" {
			group = zone.Group(c.Zone)
		}
		byGroup[group] = append(byGroup[group], c)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s zone summary | zones=%d | generated %s\n",
		kind, len(cells), at.Format(time.RFC3339))
	if kind == domain.ZoneKindDropoff {
		for _, d := range days {
			fmt.Fprintf(&b, "%s | eff £/hr incl next=%.2f | trips=%d | run/dead/next=%.0f/%.0f/%.0fm\n",
				d.Day, d.HourlyInclNext, d.Trips, d.RuntimeMinutes, d.DeadMinutes, d.NextPickupMinutes)
		}
	}

	for _, group := range zone.GroupNames() {
		grouped := byGroup[group]
		if len(grouped) == 0 {
			continue
		}
		sort.Slice(grouped, func(i, j int) bool { return grouped[i].Zone < grouped[j].Zone })

		fmt.Fprintf(&b, "\n== %s ==\n", group)
		for _, c := range grouped {
			fmt.Fprintf(&b, "%-10s trips=%d scored=%d £/mi=%.2f £/min=%.2f £/hr=%.2f delay=%+.1fm G/M/B=%d/%d/%d",
				c.Zone, c.TripCount, c.ScoredCount, c.MeanPerMile, c.MeanPerMinute, c.MeanHourly, c.MeanDelay,
				c.Verdicts.Good, c.Verdicts.Marginal, c.Verdicts.Bad)
			if kind == domain.ZoneKindPickup {
				fmt.Fprintf(&b, " pu=%.1fm eff£/hr=%.2f", c.MeanPickupMinutes, c.MeanEffectiveHourly)
			} else {
				fmt.Fprintf(&b, " dead=%.1fm dead+next=%.1fm eff£/hr=%.2f incl-next=%.2f linked=%d",
					c.MeanDeadMinutes, c.MeanDeadWithNextMinutes, c.MeanEffectiveHourly, c.MeanEffectiveHourlyInclNext, c.LinkedCount)
			}
			fmt.Fprintf(&b, " last=%s\n", c.LastUpdated.Format(time.RFC3339))
		}
	}
	return b.Bytes()
}
