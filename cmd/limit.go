package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
)

var limitCmd = &cobra.Command{
	Use:   "limit <percent>",
	Short: "Set the vehicle charge limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := parsePercent(args[0])
		if err != nil {
			return err
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			if err := svc.SelectVehicle(ctx); err != nil {
				return err
			}
			if err := svc.Limit(ctx, pct); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charge limit set to %d%%\n", pct)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(limitCmd)
}
