package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/repository"
)

// GuardrailDetector flags dropoff zones whose mean economics fall below
// the configured thresholds, and single trips that ran badly late in the
// heaviest traffic.
type GuardrailDetector struct {
	grid   repository.GridRepository
	log    repository.GuardrailRepository
	cfg    config.GuardrailConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewGuardrailDetector creates a new GuardrailDetector.
func NewGuardrailDetector(
	grid repository.GridRepository,
	log repository.GuardrailRepository,
	cfg config.GuardrailConfig,
	logger *zap.Logger,
) *GuardrailDetector {
	return &GuardrailDetector{grid: grid, log: log, cfg: cfg, logger: logger, now: time.Now}
}

// Check evaluates a summary and its dropoff zone. A severe-delay trip is
// always logged, even in a zone already flagged. It returns the new flag, or
// nil when the zone passes, lacks samples or is already flagged.
func (d *GuardrailDetector) Check(ctx context.Context, summary *domain.SummaryRecord) (*domain.GuardrailFlag, error) {
	entries, err := d.log.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail log: %w", err)
	}

	severe, err := d.checkSevere(ctx, summary, entries)
	if err != nil {
		return nil, err
	}
	if severe != nil {
		return severe, nil
	}

	cell, err := d.grid.Get(ctx, domain.ZoneKindDropoff, summary.DropoffZone)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dropoff cell: %w", err)
	}

	reason, value, threshold, ok := d.evaluate(cell)
	if !ok {
		return nil, nil
	}
	for _, f := range repository.ActiveFlags(entries) {
		if f.Zone == cell.Zone {
			return nil, nil
		}
	}

	flag := domain.GuardrailFlag{
		Zone:        cell.Zone,
		Reason:      reason,
		Value:       value,
		Threshold:   threshold,
		SampleCount: cell.ScoredCount,
		TripID:      summary.TripID,
		FlaggedAt:   d.now(),
	}
	if err := withRetry(ctx, "append guardrail flag", func() error {
		return d.log.Append(ctx, domain.GuardrailEntry{Action: domain.GuardrailFlagged, Flag: flag})
	}); err != nil {
		return nil, err
	}

	d.logger.Warn("dropoff zone flagged",
		zap.String("zone", flag.Zone),
		zap.String("reason", string(flag.Reason)),
		zap.Float64("value", flag.Value),
		zap.Float64("threshold", flag.Threshold),
		zap.Int("samples", flag.SampleCount),
	)
	return &flag, nil
}

// checkSevere flags a trip whose delay reached SevereDelayMinutes at
// SevereTrafficLevel; a zero SevereDelayMinutes disables the rule. A replay
// finds the trip's entry and adds nothing.
func (d *GuardrailDetector) checkSevere(ctx context.Context, summary *domain.SummaryRecord, entries []domain.GuardrailEntry) (*domain.GuardrailFlag, error) {
	if d.cfg.SevereDelayMinutes <= 0 || summary.DelayMinutes < d.cfg.SevereDelayMinutes || summary.TrafficLevel < d.cfg.SevereTrafficLevel {
		return nil, nil
	}
	for _, e := range entries {
		if e.Action == domain.GuardrailFlagged && e.Flag.Reason == domain.GuardrailSevereDelay && e.Flag.TripID == summary.TripID {
			return nil, nil
		}
	}

	flag := domain.GuardrailFlag{
		Zone:        summary.DropoffZone,
		Reason:      domain.GuardrailSevereDelay,
		Value:       summary.DelayMinutes,
		Threshold:   d.cfg.SevereDelayMinutes,
		SampleCount: 1,
		TripID:      summary.TripID,
		CompletedAt: summary.CompletedAt,
		FlaggedAt:   d.now(),
	}
	if err := withRetry(ctx, "append severe delay", func() error {
		return d.log.Append(ctx, domain.GuardrailEntry{Action: domain.GuardrailFlagged, Flag: flag})
	}); err != nil {
		return nil, err
	}

	d.logger.Warn("severe dropoff delay",
		zap.String("zone", flag.Zone),
		zap.String("trip_id", flag.TripID),
		zap.Float64("delay_minutes", flag.Value),
		zap.Int("traffic_level", summary.TrafficLevel),
	)
	return &flag, nil
}

func (d *GuardrailDetector) evaluate(cell *domain.GridCell) (domain.GuardrailReason, float64, float64, bool) {
	if cell.ScoredCount < d.cfg.MinSamples {
		return "", 0, 0, false
	}
	switch {
	case cell.MeanPerMile < d.cfg.PerMileThreshold:
		return domain.GuardrailLowPerMile, cell.MeanPerMile, d.cfg.PerMileThreshold, true
	case cell.MeanPerMinute < d.cfg.PerMinuteThreshold:
		return domain.GuardrailLowPerMinute, cell.MeanPerMinute, d.cfg.PerMinuteThreshold, true
	case d.cfg.DelayThreshold > 0 && cell.MeanDelay > d.cfg.DelayThreshold:
		return domain.GuardrailChronicDelay, cell.MeanDelay, d.cfg.DelayThreshold, true
	default:
		return "", 0, 0, false
	}
}

// Active returns the zones currently flagged.
func (d *GuardrailDetector) Active(ctx context.Context) ([]domain.GuardrailFlag, error) {
	entries, err := d.log.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail log: %w", err)
	}
	return repository.ActiveFlags(entries), nil
}

// BadDropoffs returns the zones with severe-delay trips since their last
// review, worst first.
func (d *GuardrailDetector) BadDropoffs(ctx context.Context) ([]domain.BadDropoff, error) {
	entries, err := d.log.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail log: %w", err)
	}
	return repository.BadDropoffs(entries), nil
}

// Clear records an external review of a flagged zone.
func (d *GuardrailDetector) Clear(ctx context.Context, zoneKey, note string) error {
	zoneKey = strings.ToUpper(strings.TrimSpace(zoneKey))

	active, err := d.Active(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, f := range active {
		if f.Zone == zoneKey {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrZoneNotFlagged, zoneKey)
	}

	entry := domain.GuardrailEntry{
		Action: domain.GuardrailCleared,
		Flag:   domain.GuardrailFlag{Zone: zoneKey, FlaggedAt: d.now()},
		Note:   note,
	}
	if err := withRetry(ctx, "append guardrail clear", func() error {
		return d.log.Append(ctx, entry)
	}); err != nil {
		return err
	}

	d.logger.Info("guardrail cleared", zap.String("zone", zoneKey))
	return nil
}
