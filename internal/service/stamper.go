package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// EventStamper appends lifecycle stamps for the open trip.
type EventStamper struct {
	log    repository.UnifiedLogRepository
	logger *zap.Logger
}

// NewEventStamper creates a new EventStamper.
func NewEventStamper(log repository.UnifiedLogRepository, logger *zap.Logger) *EventStamper {
	return &EventStamper{log: log, logger: logger}
}

// Ledger loads and folds the unified log.
func (s *EventStamper) Ledger(ctx context.Context) (*domain.TripLedger, error) {
	records, err := s.log.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unified log: %w", err)
	}
	return domain.FoldLog(records), nil
}

// OpenTrip returns the open trip, or nil when there is none.
func (s *EventStamper) OpenTrip(ctx context.Context) (*domain.Trip, error) {
	ledger, err := s.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return s.openTrip(ledger), nil
}

func (s *EventStamper) openTrip(ledger *domain.TripLedger) *domain.Trip {
	open := ledger.OpenTrips()
	if len(open) == 0 {
		return nil
	}
	if len(open) > 1 {
		s.logger.Warn("more than one open trip in unified log, using newest",
			zap.Int("open", len(open)),
			zap.String("trip_id", open[len(open)-1].ID),
		)
	}
	return open[len(open)-1]
}

// Stamp appends a kind stamp at the given time to the open trip. The log is
// left untouched when there is no open trip or kind is not its successor.
func (s *EventStamper) Stamp(ctx context.Context, kind domain.LogRecordKind, at time.Time) (*domain.Trip, error) {
	next, ok := kind.StampState()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a stamp", ErrInvalidTransition, kind)
	}

	ledger, err := s.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	trip := s.openTrip(ledger)
	if trip == nil {
		return nil, ErrNoOpenTrip
	}
	if !trip.State.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: trip %s is %s, cannot become %s", ErrInvalidTransition, trip.ID, trip.State, next)
	}

	rec := domain.LogRecord{Kind: kind, TripID: trip.ID, At: at}
	if err := withRetry(ctx, "append stamp", func() error {
		return s.log.Append(ctx, rec)
	}); err != nil {
		return nil, err
	}

	stamped := *trip
	stamped.State = next
	switch next {
	case domain.TripStateAccepted:
		stamped.AcceptedAt = at
	case domain.TripStateCompleted:
		stamped.CompletedAt = at
	case domain.TripStateDeclined:
		stamped.DeclinedAt = at
	}

	s.logger.Info("trip stamped",
		zap.String("trip_id", stamped.ID),
		zap.String("state", string(stamped.State)),
	)
	return &stamped, nil
}

// Tap advances the open trip by one step: OFFERED becomes ACCEPTED and
// ACCEPTED becomes COMPLETED.
func (s *EventStamper) Tap(ctx context.Context, at time.Time) (*domain.Trip, error) {
	trip, err := s.OpenTrip(ctx)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrNoOpenTrip
	}

	switch trip.State {
	case domain.TripStateOffered:
		return s.Stamp(ctx, domain.LogRecordAccepted, at)
	case domain.TripStateAccepted:
		return s.Stamp(ctx, domain.LogRecordCompleted, at)
	default:
		return nil, fmt.Errorf("%w: trip %s is %s", ErrInvalidTransition, trip.ID, trip.State)
	}
}
