package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
)

var chargeCmd = &cobra.Command{
	Use:   "charge [curve]",
	Short: "Run a charging session on a curve until it ends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		curve := ""
		if len(args) == 1 {
			curve = args[0]
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			if err := svc.Preflight(ctx); err != nil {
				return fmt.Errorf("preflight: %w", err)
			}
			sess, err := svc.Charge(ctx, curve)
			if err != nil {
				return err
			}
			err = sess.Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "session %s ended: %s\n", sess.ID, sess.Reason())
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(chargeCmd)
}
