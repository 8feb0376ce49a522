package repository

import (
	"context"

	"onisai/internal/domain"
)

// UnifiedLogRepository is the append-only working log of in-flight trips.
type UnifiedLogRepository interface {
	// Load returns every complete record in append order, each with its
	// stored line. A torn trailing line is not returned.
	Load(ctx context.Context) ([]domain.LogRecord, error)

	// Append writes one record as a single line. The write is all-or-nothing:
	// on failure the log is restored to its previous length.
	Append(ctx context.Context, rec domain.LogRecord) error

	// Prune atomically removes every line belonging to the given trip.
	// Lines of other trips are kept byte-for-byte.
	Prune(ctx context.Context, tripID string) error

	// Swap atomically replaces the whole log with the given records.
	Swap(ctx context.Context, records []domain.LogRecord) error
}
