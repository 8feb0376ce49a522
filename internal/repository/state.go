package repository

import (
	"context"

	"onisai/internal/domain"
)

// StateRepository persists the pipeline resume cursor.
type StateRepository interface {
	// Get returns the stored state, or the zero state if none was saved.
	Get(ctx context.Context) (domain.ProcessState, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state domain.ProcessState) error
}

// ReportRepository receives the regenerated human-readable zone reports.
type ReportRepository interface {
	// Write replaces the report for one side of the grid.
	Write(ctx context.Context, kind domain.ZoneKind, body []byte) error

	// Read returns the current report body. Returns ErrNotFound if none exists.
	Read(ctx context.Context, kind domain.ZoneKind) ([]byte, error)
}
