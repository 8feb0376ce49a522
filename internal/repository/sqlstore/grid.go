package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// GridRepository is a SQL implementation of repository.GridRepository.
type GridRepository struct {
	db  *DB
	now func() time.Time
}

// NewGridRepository creates a new SQL grid repository.
func NewGridRepository(db *DB) *GridRepository {
	return &GridRepository{db: db, now: time.Now}
}

const cellColumns = `kind, zone, zone_group, trip_count, scored_count, unscored_count,
	sum_per_mile, sum_per_minute, sum_hourly, mean_per_mile, mean_per_minute, mean_hourly, mean_delay,
	good, marginal, bad, first_seen, last_updated,
	effective_count, linked_count, sum_pickup_minutes, sum_dead_minutes, sum_next_pickup_minutes,
	sum_effective_hourly, sum_effective_hourly_incl_next`

// Apply records the trip in processed_trips and folds its samples into the
// cells in one transaction. A trip already in processed_trips is a no-op.
func (r *GridRepository) Apply(ctx context.Context, tripID string, samples []domain.ZoneSample) (bool, error) {
	applied := false
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.db.rebind(
			`INSERT INTO processed_trips (trip_id, processed_at) VALUES ($1, $2) ON CONFLICT (trip_id) DO NOTHING`),
			tripID, formatTime(r.now()),
		)
		if err != nil {
			return fmt.Errorf("failed to record processed trip: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		for _, s := range samples {
			if !s.Kind.Valid() {
				return fmt.Errorf("invalid zone kind %q", s.Kind)
			}
			cell, err := r.getCell(ctx, tx, s.Kind, s.Zone)
			if errors.Is(err, repository.ErrNotFound) {
				cell = domain.NewGridCell(s.Kind, s.Zone, s.Group)
			} else if err != nil {
				return err
			}
			cell.Observe(s)
			if err := r.upsertCell(ctx, tx, cell); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Get retrieves one cell.
func (r *GridRepository) Get(ctx context.Context, kind domain.ZoneKind, zone string) (*domain.GridCell, error) {
	return r.getCell(ctx, r.db.db, kind, zone)
}

// List returns every cell of one side sorted by zone key.
func (r *GridRepository) List(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error) {
	rows, err := r.db.db.QueryContext(ctx, r.db.rebind(
		`SELECT `+cellColumns+` FROM grid_cells WHERE kind = $1 ORDER BY zone`), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []*domain.GridCell
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

func (r *GridRepository) getCell(ctx context.Context, q Querier, kind domain.ZoneKind, zone string) (*domain.GridCell, error) {
	row := q.QueryRowContext(ctx, r.db.rebind(
		`SELECT `+cellColumns+` FROM grid_cells WHERE kind = $1 AND zone = $2`), string(kind), zone)
	cell, err := scanCell(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return cell, err
}

func (r *GridRepository) upsertCell(ctx context.Context, q Querier, c *domain.GridCell) error {
	query := `
		INSERT INTO grid_cells (` + cellColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (kind, zone) DO UPDATE SET
			zone_group = EXCLUDED.zone_group,
			trip_count = EXCLUDED.trip_count,
			scored_count = EXCLUDED.scored_count,
			unscored_count = EXCLUDED.unscored_count,
			sum_per_mile = EXCLUDED.sum_per_mile,
			sum_per_minute = EXCLUDED.sum_per_minute,
			sum_hourly = EXCLUDED.sum_hourly,
			mean_per_mile = EXCLUDED.mean_per_mile,
			mean_per_minute = EXCLUDED.mean_per_minute,
			mean_hourly = EXCLUDED.mean_hourly,
			mean_delay = EXCLUDED.mean_delay,
			good = EXCLUDED.good,
			marginal = EXCLUDED.marginal,
			bad = EXCLUDED.bad,
			last_updated = EXCLUDED.last_updated,
			effective_count = EXCLUDED.effective_count,
			linked_count = EXCLUDED.linked_count,
			sum_pickup_minutes = EXCLUDED.sum_pickup_minutes,
			sum_dead_minutes = EXCLUDED.sum_dead_minutes,
			sum_next_pickup_minutes = EXCLUDED.sum_next_pickup_minutes,
			sum_effective_hourly = EXCLUDED.sum_effective_hourly,
			sum_effective_hourly_incl_next = EXCLUDED.sum_effective_hourly_incl_next
	`
	_, err := q.ExecContext(ctx, r.db.rebind(query),
		string(c.Kind),
		c.Zone,
		c.Group,
		c.TripCount,
		c.ScoredCount,
		c.UnscoredCount,
		c.SumPerMile,
		c.SumPerMinute,
		c.SumHourly,
		c.MeanPerMile,
		c.MeanPerMinute,
		c.MeanHourly,
		c.MeanDelay,
		c.Verdicts.Good,
		c.Verdicts.Marginal,
		c.Verdicts.Bad,
		formatTime(c.FirstSeen),
		formatTime(c.LastUpdated),
		c.EffectiveCount,
		c.LinkedCount,
		c.SumPickupMinutes,
		c.SumDeadMinutes,
		c.SumNextPickupMinutes,
		c.SumEffectiveHourly,
		c.SumEffectiveHourlyInclNext,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %s cell %s: %w", c.Kind, c.Zone, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCell(s scanner) (*domain.GridCell, error) {
	var c domain.GridCell
	var kind, firstSeen, lastUpdated string
	err := s.Scan(
		&kind,
		&c.Zone,
		&c.Group,
		&c.TripCount,
		&c.ScoredCount,
		&c.UnscoredCount,
		&c.SumPerMile,
		&c.SumPerMinute,
		&c.SumHourly,
		&c.MeanPerMile,
		&c.MeanPerMinute,
		&c.MeanHourly,
		&c.MeanDelay,
		&c.Verdicts.Good,
		&c.Verdicts.Marginal,
		&c.Verdicts.Bad,
		&firstSeen,
		&lastUpdated,
		&c.EffectiveCount,
		&c.LinkedCount,
		&c.SumPickupMinutes,
		&c.SumDeadMinutes,
		&c.SumNextPickupMinutes,
		&c.SumEffectiveHourly,
		&c.SumEffectiveHourlyInclNext,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = domain.ZoneKind(kind)
	if c.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if c.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	c.RecomputeEffective()
	return &c, nil
}

var _ repository.GridRepository = (*GridRepository)(nil)
