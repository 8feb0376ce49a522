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

const guardSep = " | "

// GuardrailLog is a file implementation of repository.GuardrailRepository.
//
//	2025-03-14T10:02:11Z | FLAGGED | zone=E8 | reason=LOW_PER_MILE | value=1.2 | threshold=1.5 | samples=3 | trip=T20250314-093000
//	2025-03-14T10:40:00Z | LINKED | zone=E8 | trip=T20250314-093000 | next=T20250314-101500 | completed=2025-03-14T10:02:00Z | next_accepted=2025-03-14T10:15:00Z | gap=13 | dead=13 | next_pickup=4 | outcome=LINKED
//	2025-03-15T08:00:00Z | CLEARED | zone=E8 | note=reviewed
type GuardrailLog struct {
	mu   sync.Mutex
	path string
}

// NewGuardrailLog creates a guardrail log stored at path.
func NewGuardrailLog(path string) *GuardrailLog {
	return &GuardrailLog{path: path}
}

// Append writes one entry.
func (g *GuardrailLog) Append(ctx context.Context, entry domain.GuardrailEntry) error {
	line, err := encodeGuardrail(entry)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return appendLine(g.path, line)
}

// Entries returns every decodable entry in log order.
func (g *GuardrailLog) Entries(ctx context.Context) ([]domain.GuardrailEntry, error) {
	g.mu.Lock()
	lines, err := readLines(g.path)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.GuardrailEntry, 0, len(lines))
	for _, ln := range lines {
		e, err := decodeGuardrail(ln)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func encodeGuardrail(e domain.GuardrailEntry) (string, error) {
	f := e.Flag
	if f.Zone == "" {
		return "", errors.New("guardrail entry without zone")
	}
	fields := []string{f.FlaggedAt.UTC().Format(time.RFC3339), string(e.Action), kv("zone", guardValue(f.Zone))}

	switch e.Action {
	case domain.GuardrailFlagged:
		fields = append(fields,
			kv("reason", string(f.Reason)),
			kv("value", formatFloat(f.Value)),
			kv("threshold", formatFloat(f.Threshold)),
			kv("samples", strconv.Itoa(f.SampleCount)),
			kv("trip", guardValue(f.TripID)),
		)
		if !f.CompletedAt.IsZero() {
			fields = append(fields, kv("completed", f.CompletedAt.UTC().Format(time.RFC3339)))
		}
	case domain.GuardrailLinked:
		l := e.Link
		if l == nil {
			return "", errors.New("linked guardrail entry without link")
		}
		fields = append(fields,
			kv("trip", guardValue(l.TripID)),
			kv("next", guardValue(l.NextTripID)),
			kv("completed", l.CompletedAt.UTC().Format(time.RFC3339)),
			kv("next_accepted", l.NextAcceptedAt.UTC().Format(time.RFC3339)),
			kv("gap", formatFloat(l.GapMinutes)),
			kv("dead", formatFloat(l.DeadMinutes)),
			kv("next_pickup", formatFloat(l.NextPickupMinutes)),
			kv("outcome", string(l.Outcome)),
		)
	case domain.GuardrailCleared:
	default:
		return "", fmt.Errorf("unknown guardrail action %q", e.Action)
	}
	if e.Note != "" {
		fields = append(fields, kv("note", guardValue(e.Note)))
	}
	return strings.Join(fields, guardSep), nil
}

func decodeGuardrail(line string) (domain.GuardrailEntry, error) {
	parts := strings.Split(line, guardSep)
	if len(parts) < 3 {
		return domain.GuardrailEntry{}, errors.New("short guardrail line")
	}

	at, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return domain.GuardrailEntry{}, err
	}

	values := make(map[string]string, len(parts)-2)
	for _, p := range parts[2:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			values[k] = v
		}
	}

	e := domain.GuardrailEntry{
		Action: domain.GuardrailAction(parts[1]),
		Note:   values["note"],
		Flag: domain.GuardrailFlag{
			Zone:      values["zone"],
			FlaggedAt: at,
		},
	}
	if e.Flag.Zone == "" {
		return domain.GuardrailEntry{}, errors.New("guardrail line without zone")
	}

	switch e.Action {
	case domain.GuardrailFlagged:
		e.Flag.Reason = domain.GuardrailReason(values["reason"])
		e.Flag.Value, _ = strconv.ParseFloat(values["value"], 64)
		e.Flag.Threshold, _ = strconv.ParseFloat(values["threshold"], 64)
		e.Flag.SampleCount, _ = strconv.Atoi(values["samples"])
		e.Flag.TripID = values["trip"]
		e.Flag.CompletedAt = parseStamp(values["completed"])
	case domain.GuardrailLinked:
		l := &domain.DeadTimeLink{
			TripID:         values["trip"],
			NextTripID:     values["next"],
			DropoffZone:    e.Flag.Zone,
			CompletedAt:    parseStamp(values["completed"]),
			NextAcceptedAt: parseStamp(values["next_accepted"]),
			Outcome:        domain.LinkOutcome(values["outcome"]),
		}
		l.GapMinutes, _ = strconv.ParseFloat(values["gap"], 64)
		l.DeadMinutes, _ = strconv.ParseFloat(values["dead"], 64)
		l.NextPickupMinutes, _ = strconv.ParseFloat(values["next_pickup"], 64)
		e.Flag.TripID = l.TripID
		e.Link = l
	case domain.GuardrailCleared:
	default:
		return domain.GuardrailEntry{}, fmt.Errorf("unknown guardrail action %q", parts[1])
	}
	return e, nil
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func guardValue(s string) string {
	return strings.ReplaceAll(cleanLabel(s), "|", "/")
}

var _ repository.GuardrailRepository = (*GuardrailLog)(nil)
