package repository

import (
	"context"

	"onisai/internal/domain"
)

// GridRepository stores zone grid cells and the processed-trip ledger.
type GridRepository interface {
	// Apply folds the samples of one trip into their cells and records the
	// trip as processed in a single transaction. Returns false without
	// touching any cell if the trip was already processed.
	Apply(ctx context.Context, tripID string, samples []domain.ZoneSample) (bool, error)

	// Get retrieves one cell. Returns ErrNotFound if the zone has no trips.
	Get(ctx context.Context, kind domain.ZoneKind, zone string) (*domain.GridCell, error)

	// List returns every cell of one side, sorted by zone key.
	List(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error)
}
