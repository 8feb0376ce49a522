package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"onisai/internal/app"
	"onisai/internal/domain"
	"onisai/internal/service"
)

var offerFlags struct {
	fare          float64
	distance      float64
	minutes       int
	pickupMiles   float64
	pickupMinutes int
	star          float64
	pickup        string
	dropoff       string
}

var offerCmd = &cobra.Command{
	Use:   "offer [file|-]",
	Short: "Score an offer and open a trip for it",
	Long: `Reads OCR text of an offer card from a file or stdin, parses and scores it
and opens a new trip. With --fare the offer is taken from flags instead.

Example:
  onisai offer card.txt
  onisai offer --fare 12.50 --distance 4.2 --minutes 18 --pickup "NW1" --dropoff "E8"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOffer,
}

var acceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Stamp the open trip as accepted",
	Args:  cobra.NoArgs,
	RunE:  stampCommand((*service.Pipeline).Accept),
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Stamp the open trip as completed and archive it",
	Args:  cobra.NoArgs,
	RunE:  stampCommand((*service.Pipeline).Complete),
}

var declineCmd = &cobra.Command{
	Use:   "decline",
	Short: "Decline the open offer",
	Args:  cobra.NoArgs,
	RunE:  stampCommand((*service.Pipeline).Decline),
}

var tapCmd = &cobra.Command{
	Use:   "tap",
	Short: "Advance the open trip one step (accept, then complete)",
	Args:  cobra.NoArgs,
	RunE:  stampCommand((*service.Pipeline).Tap),
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Finish interrupted archival and aggregation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.Recover(ctx)
		})
	},
}

func init() {
	f := offerCmd.Flags()
	f.Float64Var(&offerFlags.fare, "fare", 0, "fare in pounds")
	f.Float64Var(&offerFlags.distance, "distance", 0, "trip distance in miles")
	f.IntVar(&offerFlags.minutes, "minutes", 0, "estimated trip duration in minutes")
	f.Float64Var(&offerFlags.pickupMiles, "pickup-miles", 0, "distance to pickup in miles")
	f.IntVar(&offerFlags.pickupMinutes, "pickup-minutes", 0, "time to pickup in minutes")
	f.Float64Var(&offerFlags.star, "star", 0, "rider star rating")
	f.StringVar(&offerFlags.pickup, "pickup", "", "pickup address label")
	f.StringVar(&offerFlags.dropoff, "dropoff", "", "dropoff address label")

	for _, cmd := range []*cobra.Command{offerCmd, acceptCmd, completeCmd, declineCmd, tapCmd} {
		cmd.Flags().StringVar(&atFlag, "at", "", "event time, RFC3339 (default now)")
	}
}

func runOffer(cmd *cobra.Command, args []string) error {
	at, err := stampTime()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("fare") {
		offer := domain.Offer{
			Fare:            offerFlags.fare,
			DistanceMiles:   offerFlags.distance,
			DurationMinutes: offerFlags.minutes,
			PickupMiles:     offerFlags.pickupMiles,
			PickupMinutes:   offerFlags.pickupMinutes,
			StarRating:      offerFlags.star,
			PickupLabel:     offerFlags.pickup,
			DropoffLabel:    offerFlags.dropoff,
		}
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.SubmitStructuredOffer(ctx, offer, at)
		})
	}

	text, err := readOfferText(cmd, args)
	if err != nil {
		return err
	}
	return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
		return c.Pipeline.SubmitOffer(ctx, text, at)
	})
}

func readOfferText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read offer file: %w", err)
	}
	return string(data), nil
}

type stampFunc func(p *service.Pipeline, ctx context.Context, at time.Time) (*service.Result, error)

func stampCommand(fn stampFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		at, err := stampTime()
		if err != nil {
			return err
		}
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return fn(c.Pipeline, ctx, at)
		})
	}
}
