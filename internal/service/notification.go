package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onisai/internal/domain"
)

// Sender delivers a notification to the driver.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the notification.
func (s *LogSender) Send(ctx context.Context, n domain.Notification) error {
	s.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("trip_id", n.TripID),
		zap.String("title", n.Title),
		zap.Strings("lines", n.Lines),
	)
	return nil
}

// NotificationService builds the status payloads shown after each tap.
type NotificationService struct {
	sender        Sender
	logger        *zap.Logger
	lowStarRating float64
	now           func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender Sender, lowStarRating float64, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		sender:        sender,
		logger:        logger,
		lowStarRating: lowStarRating,
		now:           time.Now,
	}
}

// NotifyOffer sends the offer card verdict.
func (s *NotificationService) NotifyOffer(ctx context.Context, trip *domain.Trip, totals domain.DayTotals) domain.Notification {
	o := trip.Offer
	n := domain.Notification{
		Type:   domain.NotificationOffer,
		TripID: trip.ID,
		Title:  fmt.Sprintf("Offer £%.2f | %.1f mi | %d min", o.Fare, o.DistanceMiles, o.DurationMinutes),
		Lines: []string{
			s.Headline(trip),
			rateLine(trip.Metrics),
			totalLine(totals),
			driveLine(totals),
		},
		Data: map[string]any{
			"pickup":  o.PickupLabel,
			"dropoff": o.DropoffLabel,
		},
	}
	if trip.Metrics != nil {
		n.Verdict = trip.Metrics.Verdict
	}
	return s.send(ctx, n)
}

// NotifyAccepted confirms the accept stamp.
func (s *NotificationService) NotifyAccepted(ctx context.Context, trip *domain.Trip, totals domain.DayTotals) domain.Notification {
	return s.send(ctx, domain.Notification{
		Type:   domain.NotificationAccepted,
		TripID: trip.ID,
		Title:  "Trip accepted",
		Lines: []string{
			fmt.Sprintf("%s -> %s", trip.Offer.PickupLabel, trip.Offer.DropoffLabel),
			totalLine(totals),
			driveLine(totals),
		},
		Data: map[string]any{"accepted_at": trip.AcceptedAt},
	})
}

// NotifyDeclined confirms an offer was dismissed.
func (s *NotificationService) NotifyDeclined(ctx context.Context, trip *domain.Trip, totals domain.DayTotals) domain.Notification {
	return s.send(ctx, domain.Notification{
		Type:   domain.NotificationDeclined,
		TripID: trip.ID,
		Title:  fmt.Sprintf("Offer declined £%.2f", trip.Offer.Fare),
		Lines:  []string{totalLine(totals), driveLine(totals)},
	})
}

// NotifyCompleted reports the archived trip and the updated day totals.
func (s *NotificationService) NotifyCompleted(ctx context.Context, summary *domain.SummaryRecord, totals domain.DayTotals) domain.Notification {
	runtime := time.Duration(summary.RuntimeSeconds) * time.Second
	delay := fmt.Sprintf("%+.1fm vs est", summary.DelayMinutes)
	if summary.DelayFlagged {
		delay += " FLAGGED"
	}

	n := domain.Notification{
		Type:   domain.NotificationCompleted,
		TripID: summary.TripID,
		Title:  fmt.Sprintf("Trip completed £%.2f", summary.Offer.Fare),
		Lines: []string{
			fmt.Sprintf("Runtime %s (%s) | traffic %d/10", FormatHM(runtime), delay, summary.TrafficLevel),
			fmt.Sprintf("%s -> %s", summary.PickupZone, summary.DropoffZone),
			totalLine(totals),
			driveLine(totals),
		},
		Data: map[string]any{
			"runtime_seconds": summary.RuntimeSeconds,
			"traffic_level":   summary.TrafficLevel,
		},
	}
	if summary.Metrics != nil {
		n.Verdict = summary.Metrics.Verdict
	}
	return s.send(ctx, n)
}

// NotifyGuardrail reports a newly flagged dropoff zone.
func (s *NotificationService) NotifyGuardrail(ctx context.Context, flag *domain.GuardrailFlag) domain.Notification {
	if flag.Reason == domain.GuardrailSevereDelay {
		return s.send(ctx, domain.Notification{
			Type:   domain.NotificationGuardrail,
			TripID: flag.TripID,
			Title:  fmt.Sprintf("Guardrail: bad dropoff %s", flag.Zone),
			Lines: []string{
				fmt.Sprintf("%s +%.1fm in heavy traffic", flag.Reason, flag.Value),
			},
		})
	}
	comparison := "<"
	if flag.Reason == domain.GuardrailChronicDelay {
		comparison = ">"
	}
	return s.send(ctx, domain.Notification{
		Type:   domain.NotificationGuardrail,
		TripID: flag.TripID,
		Title:  fmt.Sprintf("Guardrail: %s flagged", flag.Zone),
		Lines: []string{
			fmt.Sprintf("%s %.2f %s %.2f over %d trips", flag.Reason, flag.Value, comparison, flag.Threshold, flag.SampleCount),
		},
	})
}

// NotifyFailure sends the short failure payload for a failed invocation.
func (s *NotificationService) NotifyFailure(ctx context.Context, op string, err error) domain.Notification {
	return s.send(ctx, domain.Notification{
		Type:  domain.NotificationFailure,
		Title: "OnisAI " + op + " failed",
		Lines: []string{err.Error()},
	})
}

// Headline is the first line of the offer payload: a decline warning for a
// low rated rider, pickup proximity, verdict and star rating.
func (s *NotificationService) Headline(trip *domain.Trip) string {
	var parts []string
	star := trip.Offer.StarRating
	lowStar := star > 0 && star < s.lowStarRating
	if lowStar {
		parts = append(parts, fmt.Sprintf("❌ DECLINE (⭐ %.2f)", star))
	}

	if m := trip.Metrics; m != nil {
		parts = append(parts, pickupLabel(m.Pickup), verdictLabel(m.Verdict))
	} else {
		parts = append(parts, "UNSCORED")
	}

	if !lowStar {
		parts = append(parts, fmt.Sprintf("⭐ %.2f", star))
	}
	return strings.Join(parts, " | ")
}

func pickupLabel(p domain.PickupProximity) string {
	switch p {
	case domain.PickupSlightlyFar:
		return "⚠️ SLIGHTLY FAR"
	case domain.PickupTooFar:
		return "❌ TOO FAR"
	default:
		return "CLOSE"
	}
}

func verdictLabel(v domain.Verdict) string {
	switch v {
	case domain.VerdictGood:
		return "✅ GOOD"
	case domain.VerdictBad:
		return "❌ BAD"
	default:
		return "⚠️ MARGINAL"
	}
}

func rateLine(m *domain.Metrics) string {
	if m == nil {
		return "£/min n/a"
	}
	return fmt.Sprintf("£/min £%.2f | £%.2f incl", m.PerMinute, m.PerMinuteInclPickup)
}

func totalLine(t domain.DayTotals) string {
	return fmt.Sprintf("Total so far: £%.2f", t.Earnings)
}

func driveLine(t domain.DayTotals) string {
	return fmt.Sprintf("Drive: %s of %s | Left: %s",
		FormatHM(time.Duration(t.DriveMinutes)*time.Minute), formatLimit(t.DriveLimit), FormatHM(t.RemainingLimit))
}

func formatLimit(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return FormatHM(d)
}

// send delivers n. Delivery failures are logged and not retried.
func (s *NotificationService) send(ctx context.Context, n domain.Notification) domain.Notification {
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()

	if err := s.sender.Send(ctx, n); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("type", string(n.Type)),
			zap.String("trip_id", n.TripID),
			zap.Error(err),
		)
	}
	return n
}
