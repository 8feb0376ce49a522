package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onisai/internal/domain"
)

type recordingSender struct {
	sent []domain.Notification
	err  error
}

func (r *recordingSender) Send(ctx context.Context, n domain.Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func scoredTrip(star float64, verdict domain.Verdict, pickup domain.PickupProximity) *domain.Trip {
	return &domain.Trip{
		ID:    "T20250314-093000",
		Offer: domain.Offer{Fare: 12.5, DistanceMiles: 4.2, DurationMinutes: 18, StarRating: star},
		Metrics: &domain.Metrics{
			PerMinute:           0.694,
			PerMinuteInclPickup: 0.568,
			Verdict:             verdict,
			Pickup:              pickup,
		},
		State: domain.TripStateOffered,
	}
}

func TestHeadline(t *testing.T) {
	t.Parallel()

	s := NewNotificationService(&recordingSender{}, 4.50, zap.NewNop())

	assert.Equal(t, "CLOSE | ✅ GOOD | ⭐ 4.92",
		s.Headline(scoredTrip(4.92, domain.VerdictGood, domain.PickupClose)))
	assert.Equal(t, "❌ DECLINE (⭐ 4.31) | ⚠️ SLIGHTLY FAR | ⚠️ MARGINAL",
		s.Headline(scoredTrip(4.31, domain.VerdictMarginal, domain.PickupSlightlyFar)))
	assert.Equal(t, "❌ TOO FAR | ❌ BAD | ⭐ 0.00",
		s.Headline(scoredTrip(0, domain.VerdictBad, domain.PickupTooFar)), "an unread rating is not a decline")

	unscored := scoredTrip(4.8, domain.VerdictGood, domain.PickupClose)
	unscored.Metrics = nil
	assert.Equal(t, "UNSCORED | ⭐ 4.80", s.Headline(unscored))
}

func TestNotifyOffer_Lines(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	s := NewNotificationService(sender, 4.50, zap.NewNop())
	totals := ComputeDayTotals("2025-03-14", []*domain.SummaryRecord{
		{Offer: domain.Offer{Fare: 40}, RuntimeSeconds: 95 * 60},
	}, 10*time.Hour)

	n := s.NotifyOffer(context.Background(), scoredTrip(4.92, domain.VerdictGood, domain.PickupClose), totals)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, n.ID, sender.sent[0].ID)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, domain.VerdictGood, n.Verdict)
	assert.Equal(t, []string{
		"CLOSE | ✅ GOOD | ⭐ 4.92",
		"£/min £0.69 | £0.57 incl",
		"Total so far: £40.00",
		"Drive: 1h 35m of 10h | Left: 8h 25m",
	}, n.Lines)
}

func TestNotify_DeliveryFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: errors.New("push gateway down")}
	s := NewNotificationService(sender, 4.50, zap.NewNop())

	n := s.NotifyFailure(context.Background(), "complete", ErrPartialArchive)
	assert.Equal(t, domain.NotificationFailure, n.Type)
	assert.Equal(t, []string{ErrPartialArchive.Error()}, n.Lines)
	assert.Len(t, sender.sent, 1)
}

func TestNotifyGuardrail(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	s := NewNotificationService(sender, 4.50, zap.NewNop())

	n := s.NotifyGuardrail(context.Background(), &domain.GuardrailFlag{
		Zone: "E8", Reason: domain.GuardrailLowPerMile, Value: 1.19, Threshold: 1.5, SampleCount: 3,
	})
	assert.Equal(t, "Guardrail: E8 flagged", n.Title)
	assert.Equal(t, []string{"LOW_PER_MILE 1.19 < 1.50 over 3 trips"}, n.Lines)
}

func TestNotifyGuardrail_SevereDelay(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	s := NewNotificationService(sender, 4.50, zap.NewNop())

	n := s.NotifyGuardrail(context.Background(), &domain.GuardrailFlag{
		Zone: "EC2", Reason: domain.GuardrailSevereDelay, Value: 14, Threshold: 5, SampleCount: 1, TripID: "T1",
	})
	assert.Equal(t, "Guardrail: bad dropoff EC2", n.Title)
	assert.Equal(t, []string{"SEVERE_DELAY +14.0m in heavy traffic"}, n.Lines)
}
