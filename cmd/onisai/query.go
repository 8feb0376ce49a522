package main

import (
	"context"

	"github.com/spf13/cobra"

	"onisai/internal/app"
	"onisai/internal/domain"
)

var clearNote string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the open trip, today's totals and active guardrail flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.Status(ctx)
		})
	},
}

var zonesCmd = &cobra.Command{
	Use:       "zones [pickup|dropoff]",
	Short:     "List zone grid cells",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(domain.ZoneKindPickup), string(domain.ZoneKindDropoff)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := domain.ZoneKindPickup
		if len(args) == 1 {
			kind = domain.ZoneKind(args[0])
		}
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.Zones(ctx, kind)
		})
	},
}

var guardrailCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Review flagged dropoff zones",
}

var guardrailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active guardrail flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.Guardrails(ctx)
		})
	},
}

var guardrailBadCmd = &cobra.Command{
	Use:   "bad",
	Short: "List dropoff zones with severe-delay trips since their last review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Pipeline.BadDropoffs(ctx)
		})
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications waiting in the outbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			return c.Outbox.Pending(ctx)
		})
	},
}

var guardrailClearCmd = &cobra.Command{
	Use:   "clear [zone]",
	Short: "Clear the active flag of a dropoff zone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		zone := args[0]
		return runTrigger(cmd, func(ctx context.Context, c *app.Container) (any, error) {
			if err := c.Pipeline.ClearGuardrail(ctx, zone, clearNote); err != nil {
				return nil, err
			}
			return map[string]string{"cleared": zone}, nil
		})
	},
}

func init() {
	guardrailClearCmd.Flags().StringVar(&clearNote, "note", "", "review note")
	guardrailCmd.AddCommand(guardrailListCmd, guardrailBadCmd, guardrailClearCmd)
}
