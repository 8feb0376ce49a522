package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// Reports is a file implementation of repository.ReportRepository.
type Reports struct {
	layout Layout
}

// NewReports creates a report sink under the given layout.
func NewReports(layout Layout) *Reports {
	return &Reports{layout: layout}
}

// Write replaces the report for one side of the grid.
func (r *Reports) Write(ctx context.Context, kind domain.ZoneKind, body []byte) error {
	return writeAtomic(r.layout.ZoneReport(kind), body)
}

// Read returns the current report body.
func (r *Reports) Read(ctx context.Context, kind domain.ZoneKind) ([]byte, error) {
	data, err := os.ReadFile(r.layout.ZoneReport(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s report: %w", kind, err)
	}
	return data, nil
}

var _ repository.ReportRepository = (*Reports)(nil)
