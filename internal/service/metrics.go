package service

import (
	"math"

	"onisai/internal/config"
	"onisai/internal/domain"
)

// DelayFlagMinutes is the runtime overrun, in either direction, at which a
// summary is marked FLAGGED.
const DelayFlagMinutes = 2.0

// CalculateMetrics derives the trip economics of an offer. It returns
// ErrDegenerateOffer, and no metrics, when distance or duration is not
// positive.
func CalculateMetrics(offer domain.Offer, cfg config.MetricsConfig) (*domain.Metrics, error) {
	if offer.DistanceMiles <= 0 || offer.DurationMinutes <= 0 {
		return nil, ErrDegenerateOffer
	}

	minutes := float64(offer.DurationMinutes)
	perMinute := offer.Fare / minutes
	adjusted := offer.Fare / math.Max(minutes+float64(cfg.OverheadMinutes), 1) * 60

	m := &domain.Metrics{
		PerMile:             offer.Fare / offer.DistanceMiles,
		PerMinute:           perMinute,
		PerMinuteInclPickup: offer.Fare / (minutes + float64(max(offer.PickupMinutes, 0))),
		Hourly:              perMinute * 60,
		HourlyAdjusted:      adjusted,
		FuelTrip:            offer.DistanceMiles * cfg.CostPerMile,
		FuelPickup:          math.Max(offer.PickupMiles, 0) * cfg.CostPerMile,
		Verdict:             VerdictFor(adjusted, cfg),
		Pickup:              ClassifyPickup(offer.PickupMiles, offer.PickupMinutes, offer.DistanceMiles, offer.DurationMinutes),
	}
	m.FuelTotal = m.FuelTrip + m.FuelPickup
	return m, nil
}

// VerdictFor grades an adjusted hourly rate.
func VerdictFor(hourlyAdjusted float64, cfg config.MetricsConfig) domain.Verdict {
	switch {
	case hourlyAdjusted >= cfg.GoodHourly:
		return domain.VerdictGood
	case hourlyAdjusted < cfg.BadHourly:
		return domain.VerdictBad
	default:
		return domain.VerdictMarginal
	}
}

type pickupBand struct {
	closeMiles float64
	closeMins  int
	farMiles   float64
	farMins    int
}

// Pickup limits per trip band.
var (
	shortBand  = pickupBand{closeMiles: 1.0, closeMins: 5, farMiles: 1.5, farMins: 8}
	mediumBand = pickupBand{closeMiles: 1.5, closeMins: 8, farMiles: 2.0, farMins: 10}
	longBand   = pickupBand{closeMiles: 2.5, closeMins: 10, farMiles: 3.5, farMins: 14}
)

// ClassifyPickup grades the pickup leg relative to the length of the trip:
// a long trip tolerates a further pickup.
func ClassifyPickup(pickupMiles float64, pickupMins int, tripMiles float64, tripMins int) domain.PickupProximity {
	band := shortBand
	switch {
	case tripMiles >= 10 || tripMins >= 25:
		band = longBand
	case tripMiles >= 5 || tripMins >= 10:
		band = mediumBand
	}

	switch {
	case pickupMiles <= band.closeMiles && pickupMins <= band.closeMins:
		return domain.PickupClose
	case pickupMiles <= band.farMiles || pickupMins <= band.farMins:
		return domain.PickupSlightlyFar
	default:
		return domain.PickupTooFar
	}
}

// TrafficLevel rates how far the runtime overran the estimate on a 1 to 10
// scale. Close agreement on a long trip counts as light traffic.
func TrafficLevel(runtimeMinutes, estimateMinutes float64) int {
	delta := runtimeMinutes - estimateMinutes
	if estimateMinutes >= 20 && math.Abs(delta) <= 0.1*estimateMinutes {
		return 2
	}
	switch {
	case delta <= 1:
		return 1
	case delta <= 3:
		return 3
	case delta <= 5:
		return 5
	case delta <= 8:
		return 6
	case delta <= 12:
		return 8
	default:
		return 10
	}
}

// RoundedMinutes converts seconds to whole minutes, rounding 30s and up.
func RoundedMinutes(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int((seconds + 30) / 60)
}
