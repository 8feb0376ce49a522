package repository

import (
	"context"
	"sort"

	"onisai/internal/domain"
)

// GuardrailRepository is the append-only guardrail log.
type GuardrailRepository interface {
	// Append writes one FLAGGED, CLEARED or LINKED entry.
	Append(ctx context.Context, entry domain.GuardrailEntry) error

	// Entries returns every entry in log order.
	Entries(ctx context.Context) ([]domain.GuardrailEntry, error)
}

// ActiveFlags folds guardrail entries into the flags still standing. A zone
// stays flagged from its first FLAGGED entry until a CLEARED entry follows.
func ActiveFlags(entries []domain.GuardrailEntry) []domain.GuardrailFlag {
	active := make(map[string]domain.GuardrailFlag)
	var order []string
	for _, e := range entries {
		switch e.Action {
		case domain.GuardrailFlagged:
			if _, ok := active[e.Flag.Zone]; !ok {
				order = append(order, e.Flag.Zone)
				active[e.Flag.Zone] = e.Flag
			}
		case domain.GuardrailCleared:
			delete(active, e.Flag.Zone)
		}
	}

	flags := make([]domain.GuardrailFlag, 0, len(active))
	seen := make(map[string]bool, len(order))
	for _, zone := range order {
		if f, ok := active[zone]; ok && !seen[zone] {
			seen[zone] = true
			flags = append(flags, f)
		}
	}
	return flags
}

// BadDropoffs folds SEVERE_DELAY entries since each zone's last CLEARED entry
// into one record per zone, keeping the worst delay and every completion time.
func BadDropoffs(entries []domain.GuardrailEntry) []domain.BadDropoff {
	byZone := make(map[string]*domain.BadDropoff)
	for _, e := range entries {
		switch e.Action {
		case domain.GuardrailFlagged:
			if e.Flag.Reason != domain.GuardrailSevereDelay {
				continue
			}
			b, ok := byZone[e.Flag.Zone]
			if !ok {
				b = &domain.BadDropoff{Zone: e.Flag.Zone}
				byZone[e.Flag.Zone] = b
			}
			if e.Flag.Value > b.MaxDelayMinutes {
				b.MaxDelayMinutes = e.Flag.Value
			}
			b.Trips = append(b.Trips, e.Flag.TripID)
			b.CompletedTimes = append(b.CompletedTimes, e.Flag.CompletedAt)
		case domain.GuardrailCleared:
			delete(byZone, e.Flag.Zone)
		}
	}

	out := make([]domain.BadDropoff, 0, len(byZone))
	for _, b := range byZone {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxDelayMinutes != out[j].MaxDelayMinutes {
			return out[i].MaxDelayMinutes > out[j].MaxDelayMinutes
		}
		return out[i].Zone < out[j].Zone
	})
	return out
}
