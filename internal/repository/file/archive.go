package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// Archive is a file implementation of repository.ArchiveRepository.
// Each day has one RAW and one SUMMARY file holding a JSON object per line.
type Archive struct {
	mu     sync.Mutex
	layout Layout
}

// NewArchive creates an archive under the given layout.
func NewArchive(layout Layout) *Archive {
	return &Archive{layout: layout}
}

type tripKey struct {
	TripID string `json:"trip_id"`
}

// HasRaw reports whether a RAW record exists for the trip on that day.
func (a *Archive) HasRaw(ctx context.Context, day, tripID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return containsTrip(a.layout.RawLog(day), tripID)
}

// AppendRaw appends one RAW record to its day log.
func (a *Archive) AppendRaw(ctx context.Context, rec *domain.RawRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode raw record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return appendLine(a.layout.RawLog(rec.Day), string(data))
}

// HasSummary reports whether a SUMMARY record exists for the trip on that day.
func (a *Archive) HasSummary(ctx context.Context, day, tripID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return containsTrip(a.layout.SummaryLog(day), tripID)
}

// AppendSummary appends one SUMMARY record to its day log.
func (a *Archive) AppendSummary(ctx context.Context, rec *domain.SummaryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode summary record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return appendLine(a.layout.SummaryLog(rec.Day), string(data))
}

// GetSummary retrieves the SUMMARY record of a trip.
func (a *Archive) GetSummary(ctx context.Context, day, tripID string) (*domain.SummaryRecord, error) {
	summaries, err := a.ListSummaries(ctx, day)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.TripID == tripID {
			return s, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListSummaries returns every SUMMARY record of a day in write order.
// Lines that do not decode are skipped.
func (a *Archive) ListSummaries(ctx context.Context, day string) ([]*domain.SummaryRecord, error) {
	a.mu.Lock()
	lines, err := readLines(a.layout.SummaryLog(day))
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.SummaryRecord, 0, len(lines))
	for _, ln := range lines {
		var s domain.SummaryRecord
		if err := json.Unmarshal([]byte(ln), &s); err != nil {
			continue
		}
		summaries = append(summaries, &s)
	}
	return summaries, nil
}

func containsTrip(path, tripID string) (bool, error) {
	lines, err := readLines(path)
	if err != nil {
		return false, err
	}
	for _, ln := range lines {
		var k tripKey
		if err := json.Unmarshal([]byte(ln), &k); err != nil {
			continue
		}
		if k.TripID == tripID {
			return true, nil
		}
	}
	return false, nil
}

var _ repository.ArchiveRepository = (*Archive)(nil)
