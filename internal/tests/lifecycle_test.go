package tests

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/service"
)

// ──────────────────────────────────────────────
// 1. OFFER → ACCEPT → COMPLETE
// ──────────────────────────────────────────────

func TestLifecycle_CompletedTripIsArchivedAndGridded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	res, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)
	id := res.Trip.ID
	assert.Equal(t, "T20250314-093000", id)
	require.NotNil(t, res.Trip.Metrics)
	assert.Equal(t, domain.VerdictGood, res.Trip.Metrics.Verdict)

	_, err = h.pipeline.Accept(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)

	res, err = h.pipeline.Complete(ctx, t0.Add(24*time.Minute+30*time.Second))
	require.NoError(t, err)

	require.NotNil(t, res.Summary)
	assert.Equal(t, int64(19*60+30), res.Summary.RuntimeSeconds)
	assert.InDelta(t, 1.5, res.Summary.DelayMinutes, 1e-9)
	assert.False(t, res.Summary.DelayFlagged)
	assert.Equal(t, 3, res.Summary.TrafficLevel)
	assert.Equal(t, "NW1", res.Summary.PickupZone)
	assert.Equal(t, "E8", res.Summary.DropoffZone)

	assert.Equal(t, 1, res.Totals.Trips)
	assert.InDelta(t, 12.50, res.Totals.Earnings, 1e-9)
	assert.Equal(t, 20, res.Totals.DriveMinutes)

	raw := h.archive.Raw(testDay)
	require.Len(t, raw, 1)
	assert.Equal(t, domain.ArchiveCompleted, raw[0].Label)
	assert.Len(t, raw[0].Lines, 3)
	assert.Len(t, h.archive.Summaries(testDay), 1)
	assert.Equal(t, 0, h.log.Len(), "archived trip must be pruned from the unified log")

	cell, err := h.grid.Get(ctx, domain.ZoneKindDropoff, "E8")
	require.NoError(t, err)
	assert.Equal(t, 1, cell.TripCount)
	assert.Equal(t, "North East London", cell.Group)
	_, err = h.grid.Get(ctx, domain.ZoneKindPickup, "NW1")
	require.NoError(t, err)

	state, _ := h.state.Get(ctx)
	assert.Equal(t, id, state.LastArchivedTrip)
	assert.Equal(t, id, state.LastGriddedTrip)
	assert.Equal(t, id, state.LastGuardedTrip)

	assert.Equal(t,
		[]domain.NotificationType{domain.NotificationOffer, domain.NotificationAccepted, domain.NotificationCompleted},
		notificationTypes(h.sender.Sent()))
	assert.Equal(t, "Drive: 0h 20m of 10h | Left: 9h 40m", h.sender.Last().Lines[3])

	_, err = h.reports.Read(ctx, domain.ZoneKindDropoff)
	assert.NoError(t, err)
	assert.Equal(t, h.locker.AcquireCallCount, h.locker.ReleaseCallCount)
}

func TestLifecycle_OfferWhileOpenIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)
	before := h.log.Len()

	_, err = h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(9.00), t0.Add(time.Minute))
	assert.ErrorIs(t, err, service.ErrTripAlreadyOpen)
	assert.Equal(t, before, h.log.Len())
	assert.Equal(t, domain.NotificationFailure, h.sender.Last().Type)
}

func TestLifecycle_SupersedeDeclinesOfferedTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, func(c *config.Config) { c.Pipeline.OfferPolicy = config.OfferPolicySupersede })

	first, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)

	second, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(9.00), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.Trip.ID, second.Superseded)

	raw := h.archive.Raw(testDay)
	require.Len(t, raw, 1)
	assert.Equal(t, domain.ArchiveRejected, raw[0].Label)
	assert.Empty(t, h.archive.Summaries(testDay))
	assert.Zero(t, h.grid.ApplyCallCount)

	status, err := h.pipeline.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.OpenTrip)
	assert.Equal(t, second.Trip.ID, status.OpenTrip.ID)
}

func TestLifecycle_SupersedeNeverTouchesAcceptedTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, func(c *config.Config) { c.Pipeline.OfferPolicy = config.OfferPolicySupersede })

	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)
	_, err = h.pipeline.Accept(ctx, t0.Add(time.Minute))
	require.NoError(t, err)

	_, err = h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(9.00), t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, service.ErrTripAlreadyOpen)
}

// ──────────────────────────────────────────────
// 2. STAMP VALIDATION
// ──────────────────────────────────────────────

func TestStamp_NoOpenTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.pipeline.Accept(context.Background(), t0)

	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.ErrorIs(t, err, service.ErrNoOpenTrip)
	assert.Zero(t, h.log.AppendCallCount)
}

func TestStamp_WrongSuccessorLeavesLogUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)

	_, err = h.pipeline.Complete(ctx, t0.Add(time.Minute))
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Equal(t, 1, h.log.Len())

	_, err = h.pipeline.Accept(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = h.pipeline.Decline(ctx, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Equal(t, 2, h.log.Len())
}

func TestTap_AdvancesOneStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)

	res, err := h.pipeline.Tap(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateAccepted, res.Trip.State)

	res, err = h.pipeline.Tap(ctx, t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateCompleted, res.Trip.State)
	assert.NotNil(t, res.Summary)

	_, err = h.pipeline.Tap(ctx, t0.Add(21*time.Minute))
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestDecline_ArchivesRejectedWithoutGrid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)

	res, err := h.pipeline.Decline(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.TripStateDeclined, res.Trip.State)
	assert.Equal(t, domain.NotificationDeclined, res.Notification.Type)

	raw := h.archive.Raw(testDay)
	require.Len(t, raw, 1)
	assert.Equal(t, domain.ArchiveRejected, raw[0].Label)
	assert.Empty(t, h.archive.Summaries(testDay))
	assert.Zero(t, h.grid.ApplyCallCount)
	assert.Equal(t, 0, h.log.Len())

	state, _ := h.state.Get(ctx)
	assert.Empty(t, state.LastArchivedTrip)
}

// ──────────────────────────────────────────────
// 3. OFFER INTAKE EDGE CASES
// ──────────────────────────────────────────────

func TestOffer_TripIDCollisionIsSuffixed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	first, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)
	_, err = h.pipeline.Decline(ctx, t0)
	require.NoError(t, err)

	second, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(9.00), t0)
	require.NoError(t, err)
	assert.Equal(t, first.Trip.ID+"-2", second.Trip.ID)
}

const ocrCard = `UberX
£12.50
4.92
5 min (0.8 mi) away
Camden High St, London NW1 7JE
18 min (4.2 mi) trip
Mare St, London E8 3PB, UK
Accept`

func TestOffer_DuplicateOCRTextIsSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	res, err := h.pipeline.SubmitOffer(ctx, ocrCard, t0)
	require.NoError(t, err)
	assert.Equal(t, "Camden High St, London NW1 7JE", res.Trip.Offer.PickupLabel)
	assert.Equal(t, "Mare St, London E8 3PB", res.Trip.Offer.DropoffLabel)

	sentBefore := len(h.sender.Sent())
	_, err = h.pipeline.SubmitOffer(ctx, ocrCard, t0.Add(time.Minute))
	assert.ErrorIs(t, err, service.ErrDuplicateOffer)
	assert.Len(t, h.sender.Sent(), sentBefore, "duplicates are skipped without a failure payload")
	assert.Equal(t, 1, h.log.Len())
}

func TestOffer_NotAnOffer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.pipeline.SubmitOffer(context.Background(), "Messages\nYou are online", t0)
	assert.ErrorIs(t, err, service.ErrNotAnOffer)
	assert.Equal(t, 0, h.log.Len())
}

func TestOffer_DegenerateIsLoggedUnscored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	offer := camdenToHackney(7.00)
	offer.DistanceMiles = 0
	res, err := h.pipeline.SubmitStructuredOffer(ctx, offer, t0)
	require.NoError(t, err)
	assert.Nil(t, res.Trip.Metrics)
	assert.Contains(t, res.Notification.Lines[0], "UNSCORED")

	_, err = h.pipeline.Accept(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	res, err = h.pipeline.Complete(ctx, t0.Add(15*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Summary.Scored)

	cell, err := h.grid.Get(ctx, domain.ZoneKindDropoff, "E8")
	require.NoError(t, err)
	assert.Equal(t, 1, cell.UnscoredCount)
	assert.Zero(t, cell.MeanPerMile)
}

func TestOffer_NonFiniteStructuredOfferNeverReachesLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	bad := []func(*domain.Offer){
		func(o *domain.Offer) { o.Fare = math.Inf(1) },
		func(o *domain.Offer) { o.Fare = math.NaN() },
		func(o *domain.Offer) { o.DistanceMiles = math.Inf(-1) },
		func(o *domain.Offer) { o.PickupMiles = math.NaN() },
		func(o *domain.Offer) { o.DurationMinutes = 10_000 },
		func(o *domain.Offer) { o.Fare = 1e9 },
	}
	for _, mutate := range bad {
		offer := camdenToHackney(12.50)
		mutate(&offer)
		_, err := h.pipeline.SubmitStructuredOffer(ctx, offer, t0)
		require.ErrorIs(t, err, service.ErrMalformedOffer)
	}
	assert.Equal(t, 0, h.log.Len())
	assert.Zero(t, h.log.AppendCallCount)

	// The log stays loadable: recovery and the next offer proceed.
	_, err := h.pipeline.Recover(ctx)
	require.NoError(t, err)
	res := completeTrip(t, h, 12.50, t0.Add(time.Minute))
	assert.True(t, res.Summary.Scored)
}

// ──────────────────────────────────────────────
// 4. STORE FAILURES AND LOCKING
// ──────────────────────────────────────────────

func TestStoreWrite_RetriedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)
	h.log.AppendFailures = 1

	_, err := h.pipeline.SubmitStructuredOffer(ctx, camdenToHackney(12.50), t0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.log.AppendCallCount)
	assert.Equal(t, 1, h.log.Len())
}

func TestStoreWrite_SecondFailureIsIOFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.log.AppendError = ErrInjected

	_, err := h.pipeline.SubmitStructuredOffer(context.Background(), camdenToHackney(12.50), t0)
	assert.ErrorIs(t, err, service.ErrIOFailure)
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, int32(2), h.log.AppendCallCount)
	assert.Equal(t, domain.NotificationFailure, h.sender.Last().Type)
}

func TestLock_HeldLockFailsFast(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.locker.AcquireError = service.ErrLockHeld

	_, err := h.pipeline.Tap(context.Background(), t0)
	assert.True(t, errors.Is(err, service.ErrLockHeld))
	assert.Zero(t, h.log.AppendCallCount)
}

func TestNotification_DeliveryFailureDoesNotFailPipeline(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.sender.SendError = ErrInjected

	res, err := h.pipeline.SubmitStructuredOffer(context.Background(), camdenToHackney(12.50), t0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Notification.ID)
}
