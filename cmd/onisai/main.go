package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"onisai/internal/app"
	"onisai/internal/config"
	"onisai/internal/service"
)

var (
	// Global flags
	configPath string
	verbose    bool
	atFlag     string

	logger *zap.Logger
)

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitRejected
	exitConflict
	exitBusy
	exitIO
)

var rootCmd = &cobra.Command{
	Use:   "onisai",
	Short: "OnisAI - trip offer scoring and zone tracking",
	Long: `onisai scores ride-hail offers, records each trip's lifecycle, archives
completed trips into day logs and keeps pickup/dropoff zone statistics.

Each command is one trigger: it recovers interrupted work first, runs its
step and prints the resulting status payload as JSON.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $ONISAI_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		offerCmd,
		acceptCmd,
		completeCmd,
		declineCmd,
		tapCmd,
		recoverCmd,
		statusCmd,
		zonesCmd,
		guardrailCmd,
		notificationsCmd,
		serveCmd,
		watchCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "onisai:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, service.ErrNotAnOffer),
		errors.Is(err, service.ErrMalformedOffer),
		errors.Is(err, service.ErrDegenerateOffer),
		errors.Is(err, service.ErrInvalidZoneKind):
		return exitRejected
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrTripAlreadyOpen),
		errors.Is(err, service.ErrDuplicateOffer),
		errors.Is(err, service.ErrZoneNotFlagged):
		return exitConflict
	case errors.Is(err, service.ErrLockHeld):
		return exitBusy
	case errors.Is(err, service.ErrIOFailure), errors.Is(err, service.ErrPartialArchive):
		return exitIO
	default:
		return exitFailure
	}
}

// openContainer loads the config and wires the pipeline.
func openContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg, logger)
}

// runTrigger runs one pipeline call inside a telemetry transaction and
// prints its payload.
func runTrigger(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) (any, error)) error {
	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, end := c.StartTransaction(ctx, "cli/"+cmd.Name())
	defer end()

	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stampTime parses --at; empty means now.
func stampTime() (time.Time, error) {
	if atFlag == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, atFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", atFlag, err)
	}
	return at, nil
}
