package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// GuardrailRepository is a SQL implementation of repository.GuardrailRepository.
type GuardrailRepository struct {
	db *DB
}

// NewGuardrailRepository creates a new SQL guardrail repository.
func NewGuardrailRepository(db *DB) *GuardrailRepository {
	return &GuardrailRepository{db: db}
}

// Append writes one guardrail entry.
func (r *GuardrailRepository) Append(ctx context.Context, entry domain.GuardrailEntry) error {
	query := `
		INSERT INTO guardrail_log (action, zone, reason, value, threshold, sample_count, trip_id, completed_at, at, note, link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	f := entry.Flag
	var link []byte
	if entry.Link != nil {
		var err error
		if link, err = json.Marshal(entry.Link); err != nil {
			return fmt.Errorf("failed to encode dead-time link: %w", err)
		}
	}
	completed := ""
	if !f.CompletedAt.IsZero() {
		completed = formatTime(f.CompletedAt)
	}
	_, err := r.db.db.ExecContext(ctx, r.db.rebind(query),
		string(entry.Action),
		f.Zone,
		string(f.Reason),
		f.Value,
		f.Threshold,
		f.SampleCount,
		f.TripID,
		completed,
		formatTime(f.FlaggedAt),
		entry.Note,
		string(link),
	)
	if err != nil {
		return fmt.Errorf("failed to append guardrail entry: %w", err)
	}
	return nil
}

// Entries returns every entry in insertion order.
func (r *GuardrailRepository) Entries(ctx context.Context) ([]domain.GuardrailEntry, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT action, zone, reason, value, threshold, sample_count, trip_id, completed_at, at, note, link
		FROM guardrail_log ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.GuardrailEntry
	for rows.Next() {
		var e domain.GuardrailEntry
		var action, reason, completed, at, link string
		if err := rows.Scan(
			&action,
			&e.Flag.Zone,
			&reason,
			&e.Flag.Value,
			&e.Flag.Threshold,
			&e.Flag.SampleCount,
			&e.Flag.TripID,
			&completed,
			&at,
			&e.Note,
			&link,
		); err != nil {
			return nil, err
		}
		e.Action = domain.GuardrailAction(action)
		e.Flag.Reason = domain.GuardrailReason(reason)
		if e.Flag.FlaggedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		if e.Flag.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		if link != "" {
			e.Link = &domain.DeadTimeLink{}
			if err := json.Unmarshal([]byte(link), e.Link); err != nil {
				return nil, fmt.Errorf("failed to decode dead-time link: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ repository.GuardrailRepository = (*GuardrailRepository)(nil)
