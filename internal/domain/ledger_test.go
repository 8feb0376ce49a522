package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func offerRecord(id string, at time.Time) LogRecord {
	return LogRecord{
		Kind:   LogRecordOffer,
		TripID: id,
		At:     at,
		Offer:  &Offer{Fare: 12.5, DistanceMiles: 4.2, DurationMinutes: 18},
	}
}

func stamp(kind LogRecordKind, id string, at time.Time) LogRecord {
	return LogRecord{Kind: kind, TripID: id, At: at}
}

func TestTripState_Transitions(t *testing.T) {
	t.Parallel()

	assert.True(t, TripStateOffered.CanTransitionTo(TripStateAccepted))
	assert.True(t, TripStateOffered.CanTransitionTo(TripStateDeclined))
	assert.True(t, TripStateAccepted.CanTransitionTo(TripStateCompleted))

	assert.False(t, TripStateOffered.CanTransitionTo(TripStateCompleted))
	assert.False(t, TripStateAccepted.CanTransitionTo(TripStateAccepted))
	assert.False(t, TripStateAccepted.CanTransitionTo(TripStateDeclined))
	assert.False(t, TripStateCompleted.CanTransitionTo(TripStateAccepted))
	assert.False(t, TripStateDeclined.CanTransitionTo(TripStateAccepted))
}

func TestFoldLog_Lifecycle(t *testing.T) {
	t.Parallel()

	id := TripIDFromTime(t0)
	ledger := FoldLog([]LogRecord{
		offerRecord(id, t0),
		stamp(LogRecordAccepted, id, t0.Add(time.Minute)),
		stamp(LogRecordCompleted, id, t0.Add(20*time.Minute)),
	})

	require.Len(t, ledger.Trips, 1)
	trip := ledger.Trips[0]
	assert.Equal(t, "T20250314-093000", trip.ID)
	assert.Equal(t, TripStateCompleted, trip.State)
	assert.Equal(t, 19*time.Minute, trip.Runtime())
	assert.Equal(t, "2025-03-14", trip.Day())
	assert.Empty(t, ledger.OpenTrips())
	assert.Len(t, ledger.Finished(), 1)
	assert.Len(t, ledger.Records[id], 3)
}

func TestFoldLog_IgnoresInvalidStamps(t *testing.T) {
	t.Parallel()

	id := TripIDFromTime(t0)
	ledger := FoldLog([]LogRecord{
		stamp(LogRecordAccepted, "T-orphan", t0),
		offerRecord(id, t0),
		stamp(LogRecordCompleted, id, t0.Add(time.Minute)),
		offerRecord(id, t0.Add(2*time.Minute)),
	})

	require.Len(t, ledger.Trips, 1)
	assert.Equal(t, TripStateOffered, ledger.Trips[0].State)
	assert.Len(t, ledger.OpenTrips(), 1)
	assert.Nil(t, ledger.Trip("T-orphan"))
}

func TestTripIDHelpers(t *testing.T) {
	t.Parallel()

	base := TripIDFromTime(t0)
	assert.Equal(t, base, TripIDWithSuffix(base, 1))
	assert.Equal(t, base+"-2", TripIDWithSuffix(base, 2))

	day, ok := DayFromTripID(base + "-3")
	require.True(t, ok)
	assert.Equal(t, "2025-03-14", day)

	_, ok = DayFromTripID("nope")
	assert.False(t, ok)
}

func TestProcessState_Pending(t *testing.T) {
	t.Parallel()

	s := ProcessState{LastArchivedTrip: "T1", LastGriddedTrip: "T0", LastGuardedTrip: "T0"}
	assert.True(t, s.PendingGrid())
	assert.False(t, s.PendingGuard())

	s.LastGriddedTrip = "T1"
	assert.False(t, s.PendingGrid())
	assert.True(t, s.PendingGuard())
}
