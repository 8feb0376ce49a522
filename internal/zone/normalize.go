// Package zone turns free-text pickup and dropoff labels into grid keys.
package zone

import (
	"regexp"
	"strings"
)

// SpecialPrefix marks keys for airports and rail hubs.
const SpecialPrefix = "@"

// UnknownKey is used when a label carries nothing usable.
const UnknownKey = "UNKNOWN"

const maxLabelKeyLen = 40

var (
	fullPostcodeRe = regexp.MustCompile(`\b([A-Z]{1,2}\d{1,2}[A-Z]?)\s*\d[A-Z]{2}\b`)
	bareOutcodeRe  = regexp.MustCompile(`\b([A-Z]{1,2}\d{1,2}[A-Z]?)\b`)
	inwardNoiseRe  = regexp.MustCompile(`(\s)([ILOSBZG])([A-Z]{2})\b`)
	outcodeNoiseRe = regexp.MustCompile(`\b([A-Z]{1,2})([ILOSBZG])([A-Z])\b`)
	nonKeyCharRe   = regexp.MustCompile(`[^A-Z0-9 ]+`)
	spaceRunRe     = regexp.MustCompile(`\s+`)
)

var digitFix = map[string]string{
	"I": "1", "L": "1", "O": "0", "S": "5", "B": "8", "Z": "2", "G": "6",
}

type specialArea struct {
	code     string
	keywords []string
}

var specialAreas = []specialArea{
	{"@PAD", []string{"PADDINGTON"}},
	{"@KGX", []string{"KING'S CROSS", "KINGS CROSS", "KING S CROSS", "KGX"}},
	{"@STP", []string{"ST PANCRAS", "ST. PANCRAS", "STPANCRAS"}},
	{"@EUS", []string{"EUSTON"}},
	{"@VIC", []string{"VICTORIA STATION", "VICTORIA LONDON"}},
	{"@WAT", []string{"WATERLOO"}},
	{"@LST", []string{"LIVERPOOL STREET", "LIVERPOOL ST"}},
	{"@LHR", []string{
		"HEATHROW", "LHR", "TERMINAL 2", "TERMINAL 3", "TERMINAL 4", "TERMINAL 5",
		"SHORT STAY", "SHORT-STAY", "SHORTSTAY", "POD PARKING", "HEATHROW EXPRESS",
		"CENTRAL TERMINAL AREA",
	}},
	{"@LGW", []string{"GATWICK", "LGW", "NORTH TERMINAL", "SOUTH TERMINAL"}},
	{"@LTN", []string{"LUTON AIRPORT", "LTN", "LONDON LUTON"}},
	{"@STN", []string{"STANSTED", "STN", "LONDON STANSTED"}},
	{"@LCY", []string{"LONDON CITY AIRPORT", "CITY AIRPORT", "LCY"}},
	{"@SEN", []string{"SOUTHEND AIRPORT"}},
	{"@BQH", []string{"BIGGIN HILL", "BQH"}},
}

// Key derives the grid key for a label. Resolution order: a full UK
// postcode (after OCR digit repair) yields its outcode, then a known
// special area, then a bare outcode, then the normalized label itself.
func Key(label string) string {
	upper := strings.ToUpper(strings.TrimSpace(label))
	if upper == "" || upper == strings.ToUpper(UnknownKey) {
		return UnknownKey
	}

	if m := fullPostcodeRe.FindStringSubmatch(repairPostcodeNoise(upper)); m != nil {
		return m[1]
	}
	if code := Special(upper); code != "" {
		return code
	}
	if m := bareOutcodeRe.FindStringSubmatch(upper); m != nil {
		return m[1]
	}

	key := nonKeyCharRe.ReplaceAllString(upper, " ")
	key = strings.TrimSpace(spaceRunRe.ReplaceAllString(key, " "))
	if key == "" {
		return UnknownKey
	}
	if len(key) > maxLabelKeyLen {
		key = strings.TrimSpace(key[:maxLabelKeyLen])
	}
	return key
}

// Special returns the special-area code a label mentions, or "".
func Special(label string) string {
	upper := strings.ToUpper(label)
	words := " " + spaceRunRe.ReplaceAllString(nonKeyCharRe.ReplaceAllString(upper, " "), " ") + " "
	for _, area := range specialAreas {
		for _, kw := range area.keywords {
			if strings.Contains(upper, kw) {
				if len(kw) <= 3 && !strings.Contains(words, " "+kw+" ") {
					continue
				}
				return area.code
			}
		}
	}
	return ""
}

// repairPostcodeNoise swaps letters OCR commonly reads in place of digits
// at the digit positions of a postcode.
func repairPostcodeNoise(s string) string {
	s = inwardNoiseRe.ReplaceAllStringFunc(s, func(m string) string {
		p := inwardNoiseRe.FindStringSubmatch(m)
		return p[1] + digitFix[p[2]] + p[3]
	})
	return outcodeNoiseRe.ReplaceAllStringFunc(s, func(m string) string {
		p := outcodeNoiseRe.FindStringSubmatch(m)
		return p[1] + digitFix[p[2]] + p[3]
	})
}
