package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/repository"
)

// Locker serializes pipeline invocations.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// PipelineDeps holds the collaborators of a Pipeline.
type PipelineDeps struct {
	Parser    *OfferParser
	Stamper   *EventStamper
	Archiver  *Archiver
	Grid      *GridUpdater
	Guardrail *GuardrailDetector
	Notifier  *NotificationService
	Archive   repository.ArchiveRepository
	State     repository.StateRepository
	Locker    Locker
	Metrics   config.MetricsConfig
	Config    config.PipelineConfig
	Location  *time.Location
	Logger    *zap.Logger
}

// Pipeline runs one external trigger end to end: recovery of interrupted
// work, the requested step, archival and zone aggregation, notification.
type Pipeline struct {
	parser    *OfferParser
	stamper   *EventStamper
	archiver  *Archiver
	grid      *GridUpdater
	guardrail *GuardrailDetector
	notifier  *NotificationService
	archive   repository.ArchiveRepository
	state     repository.StateRepository
	locker    Locker
	metrics   config.MetricsConfig
	cfg       config.PipelineConfig
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline creates a new Pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Pipeline{
		parser:    deps.Parser,
		stamper:   deps.Stamper,
		archiver:  deps.Archiver,
		grid:      deps.Grid,
		guardrail: deps.Guardrail,
		notifier:  deps.Notifier,
		archive:   deps.Archive,
		state:     deps.State,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		cfg:       deps.Config,
		location:  loc,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Result is the outcome of one pipeline invocation.
type Result struct {
	Trip         *domain.Trip          `json:"trip,omitempty"`
	Summary      *domain.SummaryRecord `json:"summary,omitempty"`
	Flag         *domain.GuardrailFlag `json:"guardrail_flag,omitempty"`
	Superseded   string                `json:"superseded,omitempty"`
	Recovered    []string              `json:"recovered,omitempty"`
	Totals       domain.DayTotals      `json:"totals"`
	Notification domain.Notification   `json:"notification"`
}

// Status is a read-only snapshot of the pipeline.
type Status struct {
	OpenTrip    *domain.Trip           `json:"open_trip,omitempty"`
	Totals      domain.DayTotals       `json:"totals"`
	Flags       []domain.GuardrailFlag `json:"guardrail_flags"`
	BadDropoffs []domain.BadDropoff    `json:"bad_dropoffs"`
	State       domain.ProcessState    `json:"state"`
}

// SubmitOffer parses OCR text of an offer card and opens a trip for it.
// A zero at means now.
func (p *Pipeline) SubmitOffer(ctx context.Context, text string, at time.Time) (*Result, error) {
	return p.run(ctx, "offer", func(ctx context.Context) (*Result, error) {
		hash := ocrHash(text)
		state, err := p.state.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read process state: %w", err)
		}
		if state.LastOCRHash == hash {
			return nil, ErrDuplicateOffer
		}

		offer, err := p.parser.Parse(text)
		if err != nil {
			return nil, err
		}
		return p.openTrip(ctx, *offer, p.at(at), hash)
	})
}

// SubmitStructuredOffer opens a trip for an offer extracted elsewhere. The
// offer must pass the card limits before anything reaches the unified log.
func (p *Pipeline) SubmitStructuredOffer(ctx context.Context, offer domain.Offer, at time.Time) (*Result, error) {
	return p.run(ctx, "offer", func(ctx context.Context) (*Result, error) {
		if err := p.parser.Validate(offer); err != nil {
			return nil, err
		}
		if offer.PickupLabel == "" {
			offer.PickupLabel = domain.UnknownLabel
		}
		if offer.DropoffLabel == "" {
			offer.DropoffLabel = domain.UnknownLabel
		}
		return p.openTrip(ctx, offer, p.at(at), "")
	})
}

// Accept stamps the open trip ACCEPTED.
func (p *Pipeline) Accept(ctx context.Context, at time.Time) (*Result, error) {
	return p.stampAndFinish(ctx, "accept", domain.LogRecordAccepted, at)
}

// Complete stamps the open trip COMPLETED and archives it.
func (p *Pipeline) Complete(ctx context.Context, at time.Time) (*Result, error) {
	return p.stampAndFinish(ctx, "complete", domain.LogRecordCompleted, at)
}

// Decline stamps the open offer DECLINED and archives it as rejected.
func (p *Pipeline) Decline(ctx context.Context, at time.Time) (*Result, error) {
	return p.stampAndFinish(ctx, "decline", domain.LogRecordDeclined, at)
}

// Tap advances the open trip by one step.
func (p *Pipeline) Tap(ctx context.Context, at time.Time) (*Result, error) {
	return p.run(ctx, "tap", func(ctx context.Context) (*Result, error) {
		trip, err := p.stamper.Tap(ctx, p.at(at))
		if err != nil {
			return nil, err
		}
		return p.afterStamp(ctx, trip)
	})
}

// Recover finishes interrupted archival and zone aggregation.
func (p *Pipeline) Recover(ctx context.Context) (*Result, error) {
	return p.run(ctx, "recover", func(ctx context.Context) (*Result, error) {
		totals, err := p.dayTotals(ctx, p.today())
		if err != nil {
			return nil, err
		}
		return &Result{Totals: totals}, nil
	})
}

// Status returns the open trip, today's totals and active guardrail flags.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	trip, err := p.stamper.OpenTrip(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := p.dayTotals(ctx, p.today())
	if err != nil {
		return nil, err
	}
	flags, err := p.guardrail.Active(ctx)
	if err != nil {
		return nil, err
	}
	bad, err := p.guardrail.BadDropoffs(ctx)
	if err != nil {
		return nil, err
	}
	state, err := p.state.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read process state: %w", err)
	}
	if flags == nil {
		flags = []domain.GuardrailFlag{}
	}
	return &Status{OpenTrip: trip, Totals: totals, Flags: flags, BadDropoffs: bad, State: state}, nil
}

// Zones returns the grid cells of one kind.
func (p *Pipeline) Zones(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error) {
	return p.grid.Cells(ctx, kind)
}

// Guardrails returns the active guardrail flags.
func (p *Pipeline) Guardrails(ctx context.Context) ([]domain.GuardrailFlag, error) {
	return p.guardrail.Active(ctx)
}

// BadDropoffs returns the zones with severe-delay trips since their last review.
func (p *Pipeline) BadDropoffs(ctx context.Context) ([]domain.BadDropoff, error) {
	return p.guardrail.BadDropoffs(ctx)
}

// ClearGuardrail records the review of a flagged zone.
func (p *Pipeline) ClearGuardrail(ctx context.Context, zoneKey, note string) error {
	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return p.guardrail.Clear(ctx, zoneKey, note)
}

func (p *Pipeline) run(ctx context.Context, op string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	txn := newrelic.FromContext(ctx)
	defer txn.StartSegment("pipeline/" + op).End()

	release, err := p.locker.Acquire(ctx)
	if err != nil {
		return nil, p.fail(ctx, op, err)
	}
	defer release()

	recovered, err := p.recover(ctx)
	if err != nil {
		return nil, p.fail(ctx, op, fmt.Errorf("recovery failed: %w", err))
	}

	res, err := fn(ctx)
	if err != nil {
		return nil, p.fail(ctx, op, err)
	}
	res.Recovered = recovered
	if res.Trip != nil {
		txn.AddAttribute("tripId", res.Trip.ID)
	}
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrDuplicateOffer) {
		p.logger.Info("duplicate offer text skipped")
		return err
	}
	newrelic.FromContext(ctx).NoticeError(err)
	p.logger.Error("pipeline step failed", zap.String("op", op), zap.Error(err))
	p.notifier.NotifyFailure(ctx, op, err)
	return err
}

func (p *Pipeline) stampAndFinish(ctx context.Context, op string, kind domain.LogRecordKind, at time.Time) (*Result, error) {
	return p.run(ctx, op, func(ctx context.Context) (*Result, error) {
		trip, err := p.stamper.Stamp(ctx, kind, p.at(at))
		if err != nil {
			return nil, err
		}
		return p.afterStamp(ctx, trip)
	})
}

func (p *Pipeline) afterStamp(ctx context.Context, trip *domain.Trip) (*Result, error) {
	switch trip.State {
	case domain.TripStateAccepted:
		totals, err := p.dayTotals(ctx, p.archiver.Day(trip))
		if err != nil {
			return nil, err
		}
		return &Result{
			Trip:         trip,
			Totals:       totals,
			Notification: p.notifier.NotifyAccepted(ctx, trip, totals),
		}, nil

	case domain.TripStateDeclined:
		if err := p.finish(ctx, trip.ID, nil); err != nil {
			return nil, err
		}
		totals, err := p.dayTotals(ctx, p.archiver.Day(trip))
		if err != nil {
			return nil, err
		}
		return &Result{
			Trip:         trip,
			Totals:       totals,
			Notification: p.notifier.NotifyDeclined(ctx, trip, totals),
		}, nil

	case domain.TripStateCompleted:
		res := &Result{Trip: trip}
		if err := p.finish(ctx, trip.ID, res); err != nil {
			return nil, err
		}
		totals, err := p.dayTotals(ctx, p.archiver.Day(trip))
		if err != nil {
			return nil, err
		}
		res.Totals = totals
		if res.Summary != nil {
			res.Notification = p.notifier.NotifyCompleted(ctx, res.Summary, totals)
		}
		if res.Flag != nil {
			p.notifier.NotifyGuardrail(ctx, res.Flag)
		}
		return res, nil

	default:
		return nil, fmt.Errorf("%w: unexpected state %s", ErrInvalidTransition, trip.State)
	}
}

func (p *Pipeline) openTrip(ctx context.Context, offer domain.Offer, at time.Time, hash string) (*Result, error) {
	ledger, err := p.stamper.Ledger(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if open := lastOpen(ledger); open != nil {
		if p.cfg.OfferPolicy != config.OfferPolicySupersede || open.State != domain.TripStateOffered {
			return nil, fmt.Errorf("%w: %s is %s", ErrTripAlreadyOpen, open.ID, open.State)
		}
		if _, err := p.stamper.Stamp(ctx, domain.LogRecordDeclined, at); err != nil {
			return nil, err
		}
		if err := p.finish(ctx, open.ID, nil); err != nil {
			return nil, err
		}
		p.logger.Info("open offer superseded", zap.String("trip_id", open.ID))
		res.Superseded = open.ID

		if ledger, err = p.stamper.Ledger(ctx); err != nil {
			return nil, err
		}
	}

	metrics, err := CalculateMetrics(offer, p.metrics)
	if err != nil {
		p.logger.Warn("offer logged unscored", zap.Error(err))
	}

	local := at.In(p.location)
	id, err := p.allocateTripID(ctx, ledger, local)
	if err != nil {
		return nil, err
	}

	rec := domain.LogRecord{Kind: domain.LogRecordOffer, TripID: id, At: local, Offer: &offer, Metrics: metrics}
	if err := withRetry(ctx, "append offer", func() error {
		return p.stamper.log.Append(ctx, rec)
	}); err != nil {
		return nil, err
	}

	if hash != "" {
		if err := p.updateState(ctx, func(s *domain.ProcessState) { s.LastOCRHash = hash }); err != nil {
			return nil, err
		}
	}

	trip := &domain.Trip{ID: id, Offer: offer, Metrics: metrics, State: domain.TripStateOffered, OfferedAt: local}
	p.logger.Info("offer logged",
		zap.String("trip_id", id),
		zap.Float64("fare", offer.Fare),
		zap.Bool("scored", metrics != nil),
	)

	totals, err := p.dayTotals(ctx, local.Format(domain.DayLayout))
	if err != nil {
		return nil, err
	}
	res.Trip = trip
	res.Totals = totals
	res.Notification = p.notifier.NotifyOffer(ctx, trip, totals)
	return res, nil
}

// allocateTripID derives the trip ID from the offer time, suffixing it when
// the unified log or the day's RAW log already uses it.
func (p *Pipeline) allocateTripID(ctx context.Context, ledger *domain.TripLedger, at time.Time) (string, error) {
	base := domain.TripIDFromTime(at)
	day := at.Format(domain.DayLayout)
	for n := 1; ; n++ {
		id := domain.TripIDWithSuffix(base, n)
		if _, inLog := ledger.Records[id]; inLog {
			continue
		}
		archived, err := p.archive.HasRaw(ctx, day, id)
		if err != nil {
			return "", fmt.Errorf("failed to check raw log: %w", err)
		}
		if !archived {
			return id, nil
		}
	}
}

// recover archives every finished trip left in the unified log, then replays
// zone aggregation for the last archived trip if the state cursor lags.
func (p *Pipeline) recover(ctx context.Context) ([]string, error) {
	ledger, err := p.stamper.Ledger(ctx)
	if err != nil {
		return nil, err
	}

	var recovered []string
	for _, trip := range ledger.Finished() {
		p.logger.Info("recovering finished trip", zap.String("trip_id", trip.ID), zap.String("state", string(trip.State)))
		if err := p.finishTrip(ctx, ledger, trip, nil); err != nil {
			return recovered, err
		}
		recovered = append(recovered, trip.ID)
	}

	state, err := p.state.Get(ctx)
	if err != nil {
		return recovered, fmt.Errorf("failed to read process state: %w", err)
	}
	if !state.PendingGrid() && !state.PendingGuard() {
		return recovered, nil
	}

	id := state.LastArchivedTrip
	day, ok := domain.DayFromTripID(id)
	if !ok {
		return recovered, fmt.Errorf("cannot derive day of trip %q", id)
	}
	summary, err := p.archive.GetSummary(ctx, day, id)
	if err != nil {
		return recovered, fmt.Errorf("failed to read summary of %s: %w", id, err)
	}
	p.logger.Info("replaying zone aggregation", zap.String("trip_id", id))
	if _, err := p.aggregate(ctx, summary); err != nil {
		return recovered, err
	}
	return append(recovered, id), nil
}

// finish archives a trip that was just stamped terminal.
func (p *Pipeline) finish(ctx context.Context, tripID string, res *Result) error {
	ledger, err := p.stamper.Ledger(ctx)
	if err != nil {
		return err
	}
	trip := ledger.Trip(tripID)
	if trip == nil {
		return fmt.Errorf("%w: trip %s vanished from unified log", ErrIOFailure, tripID)
	}
	return p.finishTrip(ctx, ledger, trip, res)
}

// finishTrip writes the day logs, advances the archive cursor, prunes the
// unified log and, for a completed trip, runs zone aggregation.
func (p *Pipeline) finishTrip(ctx context.Context, ledger *domain.TripLedger, trip *domain.Trip, res *Result) error {
	summary, err := p.archiver.Write(ctx, ledger, trip)
	if err != nil {
		return err
	}

	if summary != nil {
		if err := p.updateState(ctx, func(s *domain.ProcessState) { s.LastArchivedTrip = trip.ID }); err != nil {
			return err
		}
	}
	if err := p.archiver.Prune(ctx, trip); err != nil {
		return err
	}
	if summary == nil {
		return nil
	}

	flag, err := p.aggregate(ctx, summary)
	if err != nil {
		return err
	}
	if res != nil {
		res.Summary = summary
		res.Flag = flag
	}
	return nil
}

// aggregate runs the grid update and the guardrail check for a summary,
// advancing the state cursor after each.
func (p *Pipeline) aggregate(ctx context.Context, summary *domain.SummaryRecord) (*domain.GuardrailFlag, error) {
	if _, err := p.grid.Update(ctx, summary); err != nil {
		return nil, err
	}
	if err := p.updateState(ctx, func(s *domain.ProcessState) { s.LastGriddedTrip = summary.TripID }); err != nil {
		return nil, err
	}

	flag, err := p.guardrail.Check(ctx, summary)
	if err != nil {
		return nil, err
	}
	if err := p.updateState(ctx, func(s *domain.ProcessState) { s.LastGuardedTrip = summary.TripID }); err != nil {
		return nil, err
	}
	return flag, nil
}

func (p *Pipeline) updateState(ctx context.Context, mutate func(*domain.ProcessState)) error {
	state, err := p.state.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read process state: %w", err)
	}
	mutate(&state)
	state.UpdatedAt = p.now()
	return withRetry(ctx, "save process state", func() error {
		return p.state.Save(ctx, state)
	})
}

func (p *Pipeline) dayTotals(ctx context.Context, day string) (domain.DayTotals, error) {
	summaries, err := p.archive.ListSummaries(ctx, day)
	if err != nil {
		return domain.DayTotals{}, fmt.Errorf("failed to list summaries: %w", err)
	}
	return ComputeDayTotals(day, summaries, p.cfg.DriveLimit), nil
}

func (p *Pipeline) at(t time.Time) time.Time {
	if t.IsZero() {
		return p.now()
	}
	return t
}

func (p *Pipeline) today() string {
	return p.now().In(p.location).Format(domain.DayLayout)
}

func lastOpen(ledger *domain.TripLedger) *domain.Trip {
	open := ledger.OpenTrips()
	if len(open) == 0 {
		return nil
	}
	return open[len(open)-1]
}

func ocrHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
