package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/repository"
	"onisai/internal/zone"
)

// Archiver moves a finished trip from the unified log into the day logs.
type Archiver struct {
	log      repository.UnifiedLogRepository
	archive  repository.ArchiveRepository
	metrics  config.MetricsConfig
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	log repository.UnifiedLogRepository,
	archive repository.ArchiveRepository,
	metrics config.MetricsConfig,
	location *time.Location,
	logger *zap.Logger,
) *Archiver {
	return &Archiver{
		log:      log,
		archive:  archive,
		metrics:  metrics,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// Write appends the RAW line and, for a completed trip, the SUMMARY line.
// Each day log is checked for the trip first, so a re-run only writes what
// is missing.
func (a *Archiver) Write(ctx context.Context, ledger *domain.TripLedger, trip *domain.Trip) (*domain.SummaryRecord, error) {
	if trip.Open() {
		return nil, fmt.Errorf("%w: trip %s is still %s", ErrInvalidTransition, trip.ID, trip.State)
	}

	day := a.Day(trip)
	label := domain.ArchiveCompleted
	if trip.State == domain.TripStateDeclined {
		label = domain.ArchiveRejected
	}

	hasRaw, err := a.archive.HasRaw(ctx, day, trip.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check raw log: %w", err)
	}
	if !hasRaw {
		raw := &domain.RawRecord{
			TripID:     trip.ID,
			Day:        day,
			Label:      label,
			Lines:      rawLines(ledger.Records[trip.ID]),
			ArchivedAt: a.now(),
		}
		if err := withRetry(ctx, "append raw", func() error {
			return a.archive.AppendRaw(ctx, raw)
		}); err != nil {
			return nil, err
		}
	}

	var summary *domain.SummaryRecord
	if label == domain.ArchiveCompleted {
		summary, err = a.writeSummary(ctx, day, trip)
		if err != nil {
			return nil, err
		}
	}

	a.logger.Info("trip archived",
		zap.String("trip_id", trip.ID),
		zap.String("day", day),
		zap.String("label", string(label)),
	)
	return summary, nil
}

// Prune removes an archived trip's lines from the unified log.
func (a *Archiver) Prune(ctx context.Context, trip *domain.Trip) error {
	if err := withRetry(ctx, "prune unified log", func() error {
		return a.log.Prune(ctx, trip.ID)
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPartialArchive, trip.ID, err)
	}
	return nil
}

// Day is the day partition of a trip: the local day it was offered.
func (a *Archiver) Day(trip *domain.Trip) string {
	return trip.OfferedAt.In(a.location).Format(domain.DayLayout)
}

func (a *Archiver) writeSummary(ctx context.Context, day string, trip *domain.Trip) (*domain.SummaryRecord, error) {
	has, err := a.archive.HasSummary(ctx, day, trip.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check summary log: %w", err)
	}
	if has {
		summary, err := a.archive.GetSummary(ctx, day, trip.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read summary: %w", err)
		}
		return summary, nil
	}

	summary := a.BuildSummary(day, trip)
	if err := withRetry(ctx, "append summary", func() error {
		return a.archive.AppendSummary(ctx, summary)
	}); err != nil {
		return nil, err
	}
	return summary, nil
}

// BuildSummary derives the SUMMARY record of a completed trip, computing
// metrics when the OFFER line carried none.
func (a *Archiver) BuildSummary(day string, trip *domain.Trip) *domain.SummaryRecord {
	metrics := trip.Metrics
	if metrics == nil {
		m, err := CalculateMetrics(trip.Offer, a.metrics)
		if err != nil && !errors.Is(err, ErrDegenerateOffer) {
			a.logger.Warn("metrics unavailable", zap.String("trip_id", trip.ID), zap.Error(err))
		}
		metrics = m
	}

	runtime := trip.Runtime()
	runtimeMinutes := runtime.Minutes()
	delay := runtimeMinutes - float64(trip.Offer.DurationMinutes)

	return &domain.SummaryRecord{
		TripID:         trip.ID,
		Day:            day,
		Offer:          trip.Offer,
		Metrics:        metrics,
		Scored:         metrics != nil,
		OfferedAt:      trip.OfferedAt,
		AcceptedAt:     trip.AcceptedAt,
		CompletedAt:    trip.CompletedAt,
		RuntimeSeconds: int64(runtime / time.Second),
		DelayMinutes:   math.Round(delay*100) / 100,
		DelayFlagged:   math.Abs(delay) >= DelayFlagMinutes,
		TrafficLevel:   TrafficLevel(runtimeMinutes, float64(trip.Offer.DurationMinutes)),
		PickupZone:     zone.Key(trip.Offer.PickupLabel),
		DropoffZone:    zone.Key(trip.Offer.DropoffLabel),
		SummarizedAt:   a.now(),
	}
}

func rawLines(records []domain.LogRecord) []string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Line != "" {
			lines = append(lines, rec.Line)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", rec.Kind, rec.TripID, rec.At.Format(time.RFC3339)))
	}
	return lines
}
