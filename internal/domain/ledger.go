package domain

import "time"

// LogRecordKind identifies a line in the unified log.
type LogRecordKind string

const (
	LogRecordOffer     LogRecordKind = "OFFER"
	LogRecordAccepted  LogRecordKind = "ACCEPTED"
	LogRecordCompleted LogRecordKind = "COMPLETED"
	LogRecordDeclined  LogRecordKind = "DECLINED"
)

// StampState maps a stamp record kind to the state it moves a trip into.
func (k LogRecordKind) StampState() (TripState, bool) {
	switch k {
	case LogRecordAccepted:
		return TripStateAccepted, true
	case LogRecordCompleted:
		return TripStateCompleted, true
	case LogRecordDeclined:
		return TripStateDeclined, true
	default:
		return "", false
	}
}

// StampKind maps a target state to the stamp record kind that produces it.
func StampKind(s TripState) (LogRecordKind, bool) {
	switch s {
	case TripStateAccepted:
		return LogRecordAccepted, true
	case TripStateCompleted:
		return LogRecordCompleted, true
	case TripStateDeclined:
		return LogRecordDeclined, true
	default:
		return "", false
	}
}

// LogRecord is one logical line of the unified log: either an OFFER line
// creating a trip or a lifecycle stamp referencing a trip ID.
type LogRecord struct {
	Kind    LogRecordKind
	TripID  string
	At      time.Time
	Offer   *Offer   // OFFER lines only
	Metrics *Metrics // OFFER lines only, nil when unscored
	Line    string   // encoded line as stored, set on load
}

// TripLedger is the folded view of the unified log.
type TripLedger struct {
	Trips   []*Trip
	Records map[string][]LogRecord
}

// FoldLog replays unified log records into trips. Stamps referencing an
// unknown trip, or violating the lifecycle, are ignored so that a damaged
// log never blocks the single open slot.
func FoldLog(records []LogRecord) *TripLedger {
	ledger := &TripLedger{Records: make(map[string][]LogRecord)}
	byID := make(map[string]*Trip)

	for _, rec := range records {
		switch rec.Kind {
		case LogRecordOffer:
			if rec.Offer == nil {
				continue
			}
			if _, dup := byID[rec.TripID]; dup {
				continue
			}
			trip := &Trip{
				ID:        rec.TripID,
				Offer:     *rec.Offer,
				Metrics:   rec.Metrics,
				State:     TripStateOffered,
				OfferedAt: rec.At,
			}
			byID[rec.TripID] = trip
			ledger.Trips = append(ledger.Trips, trip)
			ledger.Records[rec.TripID] = append(ledger.Records[rec.TripID], rec)
		default:
			next, ok := rec.Kind.StampState()
			if !ok {
				continue
			}
			trip, found := byID[rec.TripID]
			if !found || !trip.State.CanTransitionTo(next) {
				continue
			}
			trip.State = next
			switch next {
			case TripStateAccepted:
				trip.AcceptedAt = rec.At
			case TripStateCompleted:
				trip.CompletedAt = rec.At
			case TripStateDeclined:
				trip.DeclinedAt = rec.At
			}
			ledger.Records[rec.TripID] = append(ledger.Records[rec.TripID], rec)
		}
	}

	return ledger
}

// OpenTrips returns every trip that has not reached a terminal state.
func (l *TripLedger) OpenTrips() []*Trip {
	var open []*Trip
	for _, t := range l.Trips {
		if t.Open() {
			open = append(open, t)
		}
	}
	return open
}

// Finished returns terminal trips still awaiting archival, oldest first.
func (l *TripLedger) Finished() []*Trip {
	var done []*Trip
	for _, t := range l.Trips {
		if !t.Open() {
			done = append(done, t)
		}
	}
	return done
}

// Trip returns the trip with the given ID, or nil.
func (l *TripLedger) Trip(id string) *Trip {
	for _, t := range l.Trips {
		if t.ID == id {
			return t
		}
	}
	return nil
}
