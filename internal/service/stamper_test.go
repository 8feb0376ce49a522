package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onisai/internal/domain"
	"onisai/internal/repository/file"
)

var t0 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newStamper(t *testing.T) (*EventStamper, *file.UnifiedLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "UnifiedDB.txt")
	log := file.NewUnifiedLog(path)
	return NewEventStamper(log, zap.NewNop()), log, path
}

func appendOffer(t *testing.T, log *file.UnifiedLog, id string, at time.Time) {
	t.Helper()
	require.NoError(t, log.Append(context.Background(), domain.LogRecord{
		Kind:   domain.LogRecordOffer,
		TripID: id,
		At:     at,
		Offer:  &domain.Offer{Fare: 12.5, DistanceMiles: 4.2, DurationMinutes: 18, PickupLabel: "A", DropoffLabel: "B"},
	}))
}

func TestStamp_AcceptThenComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, log, _ := newStamper(t)
	appendOffer(t, log, "T1", t0)

	trip, err := s.Stamp(ctx, domain.LogRecordAccepted, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateAccepted, trip.State)
	assert.Equal(t, t0.Add(time.Minute), trip.AcceptedAt)

	trip, err = s.Stamp(ctx, domain.LogRecordCompleted, t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateCompleted, trip.State)
	assert.Equal(t, 19*time.Minute, trip.Runtime())

	open, err := s.OpenTrip(ctx)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestStamp_InvalidTransitionLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, log, path := newStamper(t)
	appendOffer(t, log, "T1", t0)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = s.Stamp(ctx, domain.LogRecordCompleted, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Stamp(ctx, domain.LogRecordOffer, t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStamp_NoOpenTrip(t *testing.T) {
	t.Parallel()

	s, _, path := newStamper(t)
	_, err := s.Stamp(context.Background(), domain.LogRecordAccepted, t0)
	assert.ErrorIs(t, err, ErrNoOpenTrip)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStamp_UsesNewestOpenTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, log, _ := newStamper(t)
	appendOffer(t, log, "T1", t0)
	appendOffer(t, log, "T2", t0.Add(time.Minute))

	trip, err := s.Stamp(ctx, domain.LogRecordDeclined, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "T2", trip.ID)
	assert.Equal(t, domain.TripStateDeclined, trip.State)
}

func TestTap_Sequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, log, _ := newStamper(t)

	_, err := s.Tap(ctx, t0)
	assert.ErrorIs(t, err, ErrNoOpenTrip)

	appendOffer(t, log, "T1", t0)
	trip, err := s.Tap(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateAccepted, trip.State)

	trip, err = s.Tap(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateCompleted, trip.State)

	_, err = s.Tap(ctx, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	records, err := log.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
