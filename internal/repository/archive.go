package repository

import (
	"context"

	"onisai/internal/domain"
)

// ArchiveRepository holds the day-partitioned RAW and SUMMARY logs.
type ArchiveRepository interface {
	// HasRaw reports whether a RAW record exists for the trip on that day.
	HasRaw(ctx context.Context, day, tripID string) (bool, error)

	// AppendRaw appends one RAW record to its day log.
	AppendRaw(ctx context.Context, rec *domain.RawRecord) error

	// HasSummary reports whether a SUMMARY record exists for the trip on that day.
	HasSummary(ctx context.Context, day, tripID string) (bool, error)

	// AppendSummary appends one SUMMARY record to its day log.
	AppendSummary(ctx context.Context, rec *domain.SummaryRecord) error

	// GetSummary retrieves the SUMMARY record of a trip.
	// Returns ErrNotFound if it was never written.
	GetSummary(ctx context.Context, day, tripID string) (*domain.SummaryRecord, error)

	// ListSummaries returns every SUMMARY record of a day in write order.
	ListSummaries(ctx context.Context, day string) ([]*domain.SummaryRecord, error)
}
