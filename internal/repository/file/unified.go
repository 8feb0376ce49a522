package file

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

const fieldSep = "\t"

var errBadRecord = errors.New("malformed unified log line")

// UnifiedLog is a file implementation of repository.UnifiedLogRepository.
//
// Line format, tab separated:
//
//	OFFER     <trip-id> <rfc3339> key=value ...
//	ACCEPTED  <trip-id> <rfc3339>
//	COMPLETED <trip-id> <rfc3339>
//	DECLINED  <trip-id> <rfc3339>
type UnifiedLog struct {
	mu   sync.Mutex
	path string
}

// NewUnifiedLog creates a unified log stored at path.
func NewUnifiedLog(path string) *UnifiedLog {
	return &UnifiedLog{path: path}
}

// Load returns every decodable complete line in append order.
func (u *UnifiedLog) Load(ctx context.Context) ([]domain.LogRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	lines, err := readLines(u.path)
	if err != nil {
		return nil, err
	}

	records := make([]domain.LogRecord, 0, len(lines))
	for _, ln := range lines {
		rec, err := DecodeRecord(ln)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Append writes one record as a single line.
func (u *UnifiedLog) Append(ctx context.Context, rec domain.LogRecord) error {
	line, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return appendLine(u.path, line)
}

// Prune removes every line whose trip ID field matches tripID.
func (u *UnifiedLog) Prune(ctx context.Context, tripID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	lines, err := readLines(u.path)
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(lines))
	for _, ln := range lines {
		if lineTripID(ln) == tripID {
			continue
		}
		kept = append(kept, ln)
	}
	if len(kept) == len(lines) {
		return nil
	}
	return writeAtomic(u.path, joinLines(kept))
}

// Swap replaces the log with the given records.
func (u *UnifiedLog) Swap(ctx context.Context, records []domain.LogRecord) error {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		line, err := EncodeRecord(rec)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	return writeAtomic(u.path, joinLines(lines))
}

func lineTripID(line string) string {
	parts := strings.SplitN(line, fieldSep, 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// EncodeRecord renders a record as one unified log line.
func EncodeRecord(rec domain.LogRecord) (string, error) {
	if rec.TripID == "" || strings.ContainsAny(rec.TripID, "\t\r\n ") {
		return "", fmt.Errorf("%w: invalid trip id %q", errBadRecord, rec.TripID)
	}

	fields := []string{string(rec.Kind), rec.TripID, rec.At.Format(time.RFC3339)}

	switch rec.Kind {
	case domain.LogRecordOffer:
		if rec.Offer == nil {
			return "", fmt.Errorf("%w: offer line without offer", errBadRecord)
		}
		o := rec.Offer
		fields = append(fields,
			kv("fare", formatFloat(o.Fare)),
			kv("miles", formatFloat(o.DistanceMiles)),
			kv("minutes", strconv.Itoa(o.DurationMinutes)),
			kv("pickup_miles", formatFloat(o.PickupMiles)),
			kv("pickup_minutes", strconv.Itoa(o.PickupMinutes)),
			kv("star", formatFloat(o.StarRating)),
			kv("pickup", cleanLabel(o.PickupLabel)),
			kv("dropoff", cleanLabel(o.DropoffLabel)),
		)
		if m := rec.Metrics; m != nil {
			fields = append(fields,
				kv("per_mile", formatFloat(m.PerMile)),
				kv("per_minute", formatFloat(m.PerMinute)),
				kv("per_minute_incl", formatFloat(m.PerMinuteInclPickup)),
				kv("hourly", formatFloat(m.Hourly)),
				kv("hourly_adj", formatFloat(m.HourlyAdjusted)),
				kv("fuel_trip", formatFloat(m.FuelTrip)),
				kv("fuel_pickup", formatFloat(m.FuelPickup)),
				kv("fuel_total", formatFloat(m.FuelTotal)),
				kv("verdict", string(m.Verdict)),
				kv("pickup_status", string(m.Pickup)),
			)
		}
	case domain.LogRecordAccepted, domain.LogRecordCompleted, domain.LogRecordDeclined:
	default:
		return "", fmt.Errorf("%w: unknown kind %q", errBadRecord, rec.Kind)
	}

	return strings.Join(fields, fieldSep), nil
}

// DecodeRecord parses one unified log line.
func DecodeRecord(line string) (domain.LogRecord, error) {
	fields := strings.Split(line, fieldSep)
	if len(fields) < 3 {
		return domain.LogRecord{}, errBadRecord
	}

	at, err := time.Parse(time.RFC3339, fields[2])
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w: %v", errBadRecord, err)
	}

	rec := domain.LogRecord{
		Kind:   domain.LogRecordKind(fields[0]),
		TripID: fields[1],
		At:     at,
		Line:   line,
	}

	switch rec.Kind {
	case domain.LogRecordAccepted, domain.LogRecordCompleted, domain.LogRecordDeclined:
		return rec, nil
	case domain.LogRecordOffer:
	default:
		return domain.LogRecord{}, fmt.Errorf("%w: unknown kind %q", errBadRecord, fields[0])
	}

	values := make(map[string]string, len(fields)-3)
	for _, f := range fields[3:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		values[k] = v
	}

	p := fieldParser{values: values}
	offer := &domain.Offer{
		Fare:            p.floatField("fare", true),
		DistanceMiles:   p.floatField("miles", true),
		DurationMinutes: p.intField("minutes", true),
		PickupMiles:     p.floatField("pickup_miles", false),
		PickupMinutes:   p.intField("pickup_minutes", false),
		StarRating:      p.floatField("star", false),
		PickupLabel:     values["pickup"],
		DropoffLabel:    values["dropoff"],
	}
	if p.err != nil {
		return domain.LogRecord{}, p.err
	}
	rec.Offer = offer

	if verdict, ok := values["verdict"]; ok {
		rec.Metrics = &domain.Metrics{
			PerMile:             p.floatField("per_mile", true),
			PerMinute:           p.floatField("per_minute", true),
			PerMinuteInclPickup: p.floatField("per_minute_incl", false),
			Hourly:              p.floatField("hourly", false),
			HourlyAdjusted:      p.floatField("hourly_adj", true),
			FuelTrip:            p.floatField("fuel_trip", false),
			FuelPickup:          p.floatField("fuel_pickup", false),
			FuelTotal:           p.floatField("fuel_total", false),
			Verdict:             domain.Verdict(verdict),
			Pickup:              domain.PickupProximity(values["pickup_status"]),
		}
		if p.err != nil {
			return domain.LogRecord{}, p.err
		}
	}

	return rec, nil
}

type fieldParser struct {
	values map[string]string
	err    error
}

func (p *fieldParser) floatField(key string, required bool) float64 {
	v, ok := p.values[key]
	if !ok {
		if required && p.err == nil {
			p.err = fmt.Errorf("%w: missing %s", errBadRecord, key)
		}
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", errBadRecord, key, err)
	}
	return f
}

func (p *fieldParser) intField(key string, required bool) int {
	v, ok := p.values[key]
	if !ok {
		if required && p.err == nil {
			p.err = fmt.Errorf("%w: missing %s", errBadRecord, key)
		}
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", errBadRecord, key, err)
	}
	return n
}

func kv(k, v string) string {
	return k + "=" + v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cleanLabel(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\r', '\n':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var _ repository.UnifiedLogRepository = (*UnifiedLog)(nil)
