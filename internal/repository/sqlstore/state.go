package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// StateRepository is a SQL implementation of repository.StateRepository.
// The state is a single row with id 1.
type StateRepository struct {
	db *DB
}

// NewStateRepository creates a new SQL state repository.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the stored state, or the zero state when none was saved.
func (r *StateRepository) Get(ctx context.Context) (domain.ProcessState, error) {
	var s domain.ProcessState
	var updatedAt string
	err := r.db.db.QueryRowContext(ctx, `
		SELECT last_ocr_hash, last_archived_trip, last_gridded_trip, last_guarded_trip, updated_at
		FROM process_state WHERE id = 1
	`).Scan(&s.LastOCRHash, &s.LastArchivedTrip, &s.LastGriddedTrip, &s.LastGuardedTrip, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessState{}, nil
	}
	if err != nil {
		return domain.ProcessState{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.ProcessState{}, err
	}
	return s, nil
}

// Save replaces the stored state.
func (r *StateRepository) Save(ctx context.Context, s domain.ProcessState) error {
	query := `
		INSERT INTO process_state (id, last_ocr_hash, last_archived_trip, last_gridded_trip, last_guarded_trip, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			last_ocr_hash = EXCLUDED.last_ocr_hash,
			last_archived_trip = EXCLUDED.last_archived_trip,
			last_gridded_trip = EXCLUDED.last_gridded_trip,
			last_guarded_trip = EXCLUDED.last_guarded_trip,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.db.ExecContext(ctx, r.db.rebind(query),
		s.LastOCRHash, s.LastArchivedTrip, s.LastGriddedTrip, s.LastGuardedTrip, formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save process state: %w", err)
	}
	return nil
}

var _ repository.StateRepository = (*StateRepository)(nil)
