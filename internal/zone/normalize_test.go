package zone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"full postcode", "10 Downing St, London SW1A 2AA", "SW1A"},
		{"postcode without space", "Camden NW16XE", "NW1"},
		{"inward digit misread", "Regent's Park NW1 GXE", "NW1"},
		{"outcode digit misread", "Westminster SWIA 1AA", "SW1A"},
		{"rail hub", "Paddington Station, Praed St", "@PAD"},
		{"airport short code needs a word", "Heathrow T5", "@LHR"},
		{"bare outcode", "Hackney E8", "E8"},
		{"plain label", "Camden Market!", "CAMDEN MARKET"},
		{"blank", "   ", UnknownKey},
		{"unknown placeholder", "Unknown", UnknownKey},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Key(tt.label))
		})
	}
}

func TestKey_TruncatesLongLabels(t *testing.T) {
	t.Parallel()

	key := Key("The Very Long Name Of A Shopping Centre Somewhere Outside Town")
	assert.LessOrEqual(t, len(key), maxLabelKeyLen)
	assert.Equal(t, "THE VERY LONG NAME OF A SHOPPING CENTRE", key)
}

func TestSpecial_ShortKeywordsMatchWholeWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "@STN", Special("Stansted Airport"))
	assert.Equal(t, "@LCY", Special("LCY arrivals"))
	assert.Empty(t, Special("Kelcyn Road"))
}

func TestGroup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "North West London", Group("NW1"))
	assert.Equal(t, "City/Central", Group("EC1"))
	assert.Equal(t, "North East London", Group("IG1"), "first listed group wins")
	assert.Equal(t, "Outer East London", Group("RM10"))
	assert.Equal(t, GroupSpecial, Group("@LHR"))
	assert.Equal(t, GroupUnassigned, Group("ZZ9"))
	assert.Equal(t, GroupUnassigned, Group("CAMDEN MARKET"))
}
