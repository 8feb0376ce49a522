package domain

// Offer is a structured offer card as extracted from OCR text.
type Offer struct {
	Fare            float64 `json:"fare"`
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes int     `json:"duration_minutes"`
	PickupMiles     float64 `json:"pickup_miles"`
	PickupMinutes   int     `json:"pickup_minutes"`
	StarRating      float64 `json:"star_rating"`
	PickupLabel     string  `json:"pickup_label"`
	DropoffLabel    string  `json:"dropoff_label"`
}

// UnknownLabel is used when no address could be read from the card.
const UnknownLabel = "Unknown"

// Verdict classifies whether an offer is worth taking.
type Verdict string

const (
	VerdictGood     Verdict = "GOOD"
	VerdictMarginal Verdict = "MARGINAL"
	VerdictBad      Verdict = "BAD"
)

// PickupProximity classifies the pickup leg relative to the trip length.
type PickupProximity string

const (
	PickupClose       PickupProximity = "CLOSE"
	PickupSlightlyFar PickupProximity = "SLIGHTLY_FAR"
	PickupTooFar      PickupProximity = "TOO_FAR"
)

// Metrics holds the derived economics of an offer.
type Metrics struct {
	PerMile             float64         `json:"per_mile"`
	PerMinute           float64         `json:"per_minute"`
	PerMinuteInclPickup float64         `json:"per_minute_incl_pickup"`
	Hourly              float64         `json:"hourly"`
	HourlyAdjusted      float64         `json:"hourly_adjusted"`
	FuelTrip            float64         `json:"fuel_trip"`
	FuelPickup          float64         `json:"fuel_pickup"`
	FuelTotal           float64         `json:"fuel_total"`
	Verdict             Verdict         `json:"verdict"`
	Pickup              PickupProximity `json:"pickup"`
}
