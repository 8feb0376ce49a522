package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onisai/internal/config"
	"onisai/internal/domain"
)

const card = `UberX
£12.50
4.92
5 min (0.8 mi) away
Camden High St, London NW1 7JE
18 min (4.2 mi) trip
Mare St, London E8 3PB, UK
Accept`

func newParser() *OfferParser {
	return NewOfferParser(config.Default().Parser)
}

func TestParse_OfferCard(t *testing.T) {
	t.Parallel()

	offer, err := newParser().Parse(card)
	require.NoError(t, err)

	assert.Equal(t, 12.50, offer.Fare)
	assert.Equal(t, 4.2, offer.DistanceMiles)
	assert.Equal(t, 18, offer.DurationMinutes)
	assert.Equal(t, 0.8, offer.PickupMiles)
	assert.Equal(t, 5, offer.PickupMinutes)
	assert.Equal(t, 4.92, offer.StarRating)
	assert.Equal(t, "Camden High St, London NW1 7JE", offer.PickupLabel)
	assert.Equal(t, "Mare St, London E8 3PB", offer.DropoffLabel)
}

func TestParse_HoursAndMinutes(t *testing.T) {
	t.Parallel()

	text := "£48.20\n6 mins (1.2 mi) away\nKing's Cross, London N1C 4AB\n1 hr 12 min (31.5 mi) trip\nHeathrow Terminal 5, TW6 2GA"
	offer, err := newParser().Parse(text)
	require.NoError(t, err)
	assert.Equal(t, 72, offer.DurationMinutes)
	assert.Equal(t, 31.5, offer.DistanceMiles)
	assert.Equal(t, 6, offer.PickupMinutes)
	assert.Zero(t, offer.StarRating)
}

func TestParse_CurrencyMisreadIsRepaired(t *testing.T) {
	t.Parallel()

	text := "E9.8O\n3 min (0.5 mi) away\nMare St E8 3PB\n14 min (3.1 mi) trip\nOld St EC1V 9NR"
	offer, err := newParser().Parse(text)
	require.NoError(t, err)
	assert.Equal(t, 9.80, offer.Fare)
	assert.Equal(t, "Mare St E8 3PB", offer.PickupLabel)
}

func TestParse_FareIsLargestAmountAboveMinimum(t *testing.T) {
	t.Parallel()

	text := "£1.50 booking fee\n£14.75\n£11.00 after fees\n4 min (0.6 mi) away\nA\n20 min (5.0 mi) trip\nB"
	offer, err := newParser().Parse(text)
	require.NoError(t, err)
	assert.Equal(t, 14.75, offer.Fare)
	assert.Equal(t, "A", offer.PickupLabel)
	assert.Equal(t, "B", offer.DropoffLabel)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want error
	}{
		{name: "no offer content", text: "You're online\nFinding trips", want: ErrNotAnOffer},
		{name: "empty", text: "", want: ErrNotAnOffer},
		{name: "fare below minimum", text: "£1.20\n2 min (0.3 mi) away\n9 min (2.0 mi) trip", want: ErrMalformedOffer},
		{name: "single row", text: "£12.00\n18 min (4.2 mi) trip", want: ErrMalformedOffer},
		{name: "zero distance", text: "£12.00\n2 min (0.3 mi) away\n9 min (0 mi) trip", want: ErrMalformedOffer},
		{name: "too long", text: "£90.00\n2 min (0.3 mi) away\n5 hr 10 min (20 mi) trip", want: ErrMalformedOffer},
		{name: "too far", text: "£90.00\n2 min (0.3 mi) away\n90 min (180 mi) trip", want: ErrMalformedOffer},
	}

	p := newParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeOCR(t *testing.T) {
	t.Parallel()

	got := NormalizeOCR("  £ 12.5O \r\nCamden   High St\r")
	assert.Equal(t, "£12.50\nCamden High St\n", got)
}

func TestValidate_StructuredOffer(t *testing.T) {
	t.Parallel()

	p := newParser()
	good := domain.Offer{Fare: 12.50, DistanceMiles: 4.2, DurationMinutes: 18, PickupMiles: 0.8, PickupMinutes: 4, StarRating: 4.9}
	require.NoError(t, p.Validate(good))

	degenerate := good
	degenerate.DistanceMiles, degenerate.DurationMinutes = 0, 0
	assert.NoError(t, p.Validate(degenerate), "zero distance and duration score as degenerate")

	tests := []struct {
		name   string
		mutate func(*domain.Offer)
	}{
		{name: "NaN fare", mutate: func(o *domain.Offer) { o.Fare = math.NaN() }},
		{name: "infinite fare", mutate: func(o *domain.Offer) { o.Fare = math.Inf(1) }},
		{name: "infinite distance", mutate: func(o *domain.Offer) { o.DistanceMiles = math.Inf(1) }},
		{name: "NaN pickup distance", mutate: func(o *domain.Offer) { o.PickupMiles = math.NaN() }},
		{name: "NaN star rating", mutate: func(o *domain.Offer) { o.StarRating = math.NaN() }},
		{name: "fare at minimum", mutate: func(o *domain.Offer) { o.Fare = 2.00 }},
		{name: "fare over maximum", mutate: func(o *domain.Offer) { o.Fare = 5000 }},
		{name: "negative distance", mutate: func(o *domain.Offer) { o.DistanceMiles = -1 }},
		{name: "negative pickup minutes", mutate: func(o *domain.Offer) { o.PickupMinutes = -3 }},
		{name: "trip too long", mutate: func(o *domain.Offer) { o.DurationMinutes = 241 }},
		{name: "pickup too long", mutate: func(o *domain.Offer) { o.PickupMinutes = 300 }},
		{name: "trip too far", mutate: func(o *domain.Offer) { o.DistanceMiles = 151 }},
		{name: "pickup too far", mutate: func(o *domain.Offer) { o.PickupMiles = 200 }},
		{name: "star rating past five", mutate: func(o *domain.Offer) { o.StarRating = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := good
			tt.mutate(&o)
			assert.ErrorIs(t, p.Validate(o), ErrMalformedOffer)
		})
	}
}
