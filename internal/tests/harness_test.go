package tests

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"onisai/internal/config"
	"onisai/internal/domain"
	"onisai/internal/service"
)

var t0 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

const testDay = "2025-03-14"

type harness struct {
	log      *MockUnifiedLog
	archive  *MockArchiveRepository
	grid     *MockGridRepository
	guard    *MockGuardrailRepository
	state    *MockStateRepository
	reports  *MockReportRepository
	sender   *MockSender
	locker   *MockLocker
	cfg      *config.Config
	pipeline *service.Pipeline
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Pipeline.Location = "UTC"
	for _, opt := range opts {
		opt(cfg)
	}

	h := &harness{
		log:     NewMockUnifiedLog(),
		archive: NewMockArchiveRepository(),
		grid:    NewMockGridRepository(),
		guard:   NewMockGuardrailRepository(),
		state:   NewMockStateRepository(),
		reports: NewMockReportRepository(),
		sender:  NewMockSender(),
		locker:  NewMockLocker(),
		cfg:     cfg,
	}

	logger := zap.NewNop()
	loc := time.UTC
	h.pipeline = service.NewPipeline(service.PipelineDeps{
		Parser:    service.NewOfferParser(cfg.Parser),
		Stamper:   service.NewEventStamper(h.log, logger),
		Archiver:  service.NewArchiver(h.log, h.archive, cfg.Metrics, loc, logger),
		Grid:      service.NewGridUpdater(h.grid, h.archive, h.guard, h.reports, cfg.Grid, logger),
		Guardrail: service.NewGuardrailDetector(h.grid, h.guard, cfg.Guardrail, logger),
		Notifier:  service.NewNotificationService(h.sender, cfg.Pipeline.LowStarRating, logger),
		Archive:   h.archive,
		State:     h.state,
		Locker:    h.locker,
		Metrics:   cfg.Metrics,
		Config:    cfg.Pipeline,
		Location:  loc,
		Logger:    logger,
	})
	return h
}

func camdenToHackney(fare float64) domain.Offer {
	return domain.Offer{
		Fare:            fare,
		DistanceMiles:   4.2,
		DurationMinutes: 18,
		PickupMiles:     0.8,
		PickupMinutes:   4,
		StarRating:      4.92,
		PickupLabel:     "Camden High St, London NW1 7JE",
		DropoffLabel:    "Mare St, London E8 3PB",
	}
}

func notificationTypes(sent []domain.Notification) []domain.NotificationType {
	types := make([]domain.NotificationType, 0, len(sent))
	for _, n := range sent {
		types = append(types, n.Type)
	}
	return types
}
