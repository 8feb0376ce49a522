package app

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"onisai/internal/config"
)

// NewTelemetry starts the New Relic application when enabled. It returns nil
// when New Relic is disabled or has no license key.
func NewTelemetry(cfg config.NewRelicConfig, logger *zap.Logger) (*newrelic.Application, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil, nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize New Relic: %w", err)
	}
	logger.Info("new relic enabled", zap.String("app", cfg.AppName))
	return nrApp, nil
}
