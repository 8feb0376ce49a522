package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"onisai/internal/config"
	"onisai/internal/domain"
)

var (
	// A currency symbol, or an OCR misread of one, followed by an amount
	// whose digits may themselves be misread.
	currencyRe = regexp.MustCompile(`[E€£]\s*([0-9OoIl]{1,4}[.,][0-9OoIl]{2})`)

	fareRe = regexp.MustCompile(`£\s*(\d+\.\d+)`)
	starRe = regexp.MustCompile(`(\d\.\d{2})`)

	// "[N hr] M min ... (D mi)". Groups: hours, minutes, miles.
	timeDistRe = regexp.MustCompile(`(?i)(?:(\d+)\s*(?:hours?|hrs?)\s*)?(\d+)\s*(?:minutes?|mins?)[^\n]*?\(\s*(\d+(?:\.\d+)?)\s*mi\s*\)`)

	postcodeRe   = regexp.MustCompile(`(?i)\b([A-Z]{1,2}\d{1,2}[A-Z]?)\s*([0-9][A-Z]{2})\b`)
	bulletRe     = regexp.MustCompile(`^[•\-]\s*`)
	tripWordRe   = regexp.MustCompile(`(?i)\btrip\b`)
	placeRe      = regexp.MustCompile(`\bPI\b`)
	w1gRe        = regexp.MustCompile(`\bWIG\b`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

var countryTokens = []string{" GB", " UK", " gb", " uk"}

// Overlay text the driver app draws next to addresses on the card.
var overlayStopwords = []string{
	"Confirm", "Towards your destination", "a Long trip",
	"Exclusive", "Priority", "Match", "PIN", "4*", "5*",
	"fast charger", "Fast charger", "From stack", "Reserve",
}

var sectionMarkers = []string{"🔋", "📍", "🏁", "🚗", "💰", "⭐", "🛣", "⏱", "📏", "💸", "STATUS", "⚠️", "——————"}

// OfferParser extracts a structured offer from OCR text of an offer card.
type OfferParser struct {
	cfg config.ParserConfig
}

// NewOfferParser creates a new OfferParser.
func NewOfferParser(cfg config.ParserConfig) *OfferParser {
	return &OfferParser{cfg: cfg}
}

// Validate applies the card limits to an offer extracted elsewhere. Zero
// distance or duration is accepted; such an offer scores as degenerate.
func (p *OfferParser) Validate(o domain.Offer) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"fare", o.Fare},
		{"distance", o.DistanceMiles},
		{"pickup distance", o.PickupMiles},
		{"star rating", o.StarRating},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrMalformedOffer, f.name)
		}
	}

	switch {
	case o.Fare <= p.cfg.MinFare:
		return fmt.Errorf("%w: fare must exceed £%.2f", ErrMalformedOffer, p.cfg.MinFare)
	case o.Fare > p.cfg.MaxFare:
		return fmt.Errorf("%w: fare £%.2f exceeds £%.2f", ErrMalformedOffer, o.Fare, p.cfg.MaxFare)
	case o.DistanceMiles < 0 || o.PickupMiles < 0 || o.DurationMinutes < 0 || o.PickupMinutes < 0:
		return fmt.Errorf("%w: distances and durations must not be negative", ErrMalformedOffer)
	case o.DurationMinutes > p.cfg.MaxTripMinutes || o.PickupMinutes > p.cfg.MaxTripMinutes:
		return fmt.Errorf("%w: duration exceeds %d min", ErrMalformedOffer, p.cfg.MaxTripMinutes)
	case o.DistanceMiles > p.cfg.MaxTripMiles || o.PickupMiles > p.cfg.MaxTripMiles:
		return fmt.Errorf("%w: distance exceeds %.0f mi", ErrMalformedOffer, p.cfg.MaxTripMiles)
	case o.StarRating != 0 && (o.StarRating < 1 || o.StarRating > 5):
		return fmt.Errorf("%w: star rating %.2f outside 1..5", ErrMalformedOffer, o.StarRating)
	}
	return nil
}

type timeDistRow struct {
	line    int
	minutes int
	miles   float64
}

// Parse returns the offer on the card. It fails with ErrNotAnOffer when the
// text has no currency amount and no time/distance row, and with
// ErrMalformedOffer when it looks like an offer but cannot be trusted.
func (p *OfferParser) Parse(text string) (*domain.Offer, error) {
	text = NormalizeOCR(text)
	lines := strings.Split(text, "\n")

	var rows []timeDistRow
	for i, ln := range lines {
		m := timeDistRe.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		miles, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		rows = append(rows, timeDistRow{line: i, minutes: hours*60 + mins, miles: miles})
	}

	amounts := fareRe.FindAllStringSubmatch(text, -1)
	if len(amounts) == 0 && len(rows) == 0 {
		return nil, ErrNotAnOffer
	}

	fare := 0.0
	for _, a := range amounts {
		v, err := strconv.ParseFloat(a[1], 64)
		if err == nil && v > p.cfg.MinFare && v <= p.cfg.MaxFare && v > fare {
			fare = v
		}
	}
	if fare <= 0 {
		return nil, fmt.Errorf("%w: no fare above £%.2f", ErrMalformedOffer, p.cfg.MinFare)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: trip time/distance row missing", ErrMalformedOffer)
	}

	pickup, trip := rows[0], rows[1]
	switch {
	case trip.minutes <= 0 || trip.miles <= 0:
		return nil, fmt.Errorf("%w: trip duration and distance must be positive", ErrMalformedOffer)
	case trip.minutes > p.cfg.MaxTripMinutes:
		return nil, fmt.Errorf("%w: trip of %d min exceeds %d", ErrMalformedOffer, trip.minutes, p.cfg.MaxTripMinutes)
	case trip.miles > p.cfg.MaxTripMiles:
		return nil, fmt.Errorf("%w: trip of %.1f mi exceeds %.0f", ErrMalformedOffer, trip.miles, p.cfg.MaxTripMiles)
	}

	return &domain.Offer{
		Fare:            fare,
		DistanceMiles:   trip.miles,
		DurationMinutes: trip.minutes,
		PickupMiles:     pickup.miles,
		PickupMinutes:   pickup.minutes,
		StarRating:      starRating(lines),
		PickupLabel:     orUnknown(collectAddress(lines, pickup.line, true)),
		DropoffLabel:    orUnknown(collectAddress(lines, trip.line, false)),
	}, nil
}

// NormalizeOCR canonicalizes line endings, spacing and currency misreads.
func NormalizeOCR(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		ln = repairCurrency(ln)
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(ln, " "))
	}
	return strings.Join(lines, "\n")
}

func repairCurrency(line string) string {
	matches := currencyRe.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return line
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, amtStart, amtEnd := m[0], m[2], m[3]
		amount := line[amtStart:amtEnd]
		// The E of a word or a postcode stays as it is.
		if line[start] == 'E' && start > 0 && isWordByte(line[start-1]) {
			continue
		}
		if !strings.ContainsAny(amount, "0123456789") {
			continue
		}
		if amtEnd < len(line) && isWordByte(line[amtEnd]) {
			continue
		}
		b.WriteString(line[last:start])
		b.WriteString("£")
		b.WriteString(repairDigits(amount))
		last = amtEnd
	}
	b.WriteString(line[last:])
	return b.String()
}

func repairDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'O', 'o':
			return '0'
		case 'I', 'l':
			return '1'
		case ',':
			return '.'
		}
		return r
	}, s)
}

func isWordByte(c byte) bool {
	return c == '_' || c < 0x80 && (unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)))
}

// starRating is the first d.dd on a line that carries neither a currency
// amount nor a time/distance row.
func starRating(lines []string) float64 {
	for _, ln := range lines {
		if strings.Contains(ln, "£") || timeDistRe.MatchString(ln) {
			continue
		}
		m := starRe.FindString(ln)
		if m == "" {
			continue
		}
		v, err := strconv.ParseFloat(m, 64)
		if err == nil && v >= 1 && v <= 5 {
			return v
		}
	}
	return 0
}

// collectAddress gathers the address lines following the row at index row.
func collectAddress(lines []string, row int, pickup bool) string {
	var out []string
	for i := row + 1; i < len(lines); i++ {
		s := strings.TrimSpace(bulletRe.ReplaceAllString(lines[i], ""))
		if s == "" || hasSectionMarker(s) {
			break
		}
		if pickup && tripWordRe.MatchString(s) {
			break
		}
		if startsWithOverlay(s) || strings.HasPrefix(strings.ToLower(s), "a long trip") {
			break
		}

		if cleaned := cleanAddressLine(s); cleaned != "" {
			out = append(out, cleaned)
		}
		if hasTerminal(s) {
			break
		}
	}

	addr := multiSpaceRe.ReplaceAllString(strings.Join(out, " "), " ")
	return strings.Trim(addr, " ,.;-")
}

func cleanAddressLine(s string) string {
	s = truncateAtTerminal(s)
	s = stripOverlays(s)
	s = placeRe.ReplaceAllString(s, "Pl")
	return w1gRe.ReplaceAllString(s, "W1G")
}

func truncateAtTerminal(s string) string {
	if loc := postcodeRe.FindStringIndex(s); loc != nil {
		return strings.TrimRight(s[:loc[1]], " ,.;-")
	}
	for _, tok := range countryTokens {
		if pos := strings.Index(s, tok); pos != -1 {
			return strings.TrimRight(s[:pos+len(tok)], " ,.;-")
		}
	}
	return s
}

func stripOverlays(s string) string {
	for _, w := range overlayStopwords {
		if pos := strings.Index(s, w); pos != -1 {
			s = s[:pos]
			break
		}
	}
	return strings.TrimRight(s, " ,.;-")
}

func hasTerminal(s string) bool {
	if postcodeRe.MatchString(s) {
		return true
	}
	for _, tok := range countryTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func startsWithOverlay(s string) bool {
	for _, w := range overlayStopwords {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}

func hasSectionMarker(s string) bool {
	for _, m := range sectionMarkers {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

func orUnknown(label string) string {
	if label == "" {
		return domain.UnknownLabel
	}
	return label
}
