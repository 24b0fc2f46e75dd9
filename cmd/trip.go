package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
)

var tripCmd = &cobra.Command{
	Use:   "trip <hours> <percent>",
	Short: "Reach a charge level before departing in the given hours",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, pct, err := parseTripArgs(args)
		if err != nil {
			return err
		}
		return withService(func(ctx context.Context, svc *app.Service) error {
			if err := svc.Preflight(ctx); err != nil {
				return fmt.Errorf("preflight: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charging to %d%% by %s\n", pct, time.Now().Add(in).Format("15:04"))
			return svc.Trip(ctx, in, pct)
		})
	},
}

func init() {
	rootCmd.AddCommand(tripCmd)
}

// parseTripArgs reads fractional hours and a target percentage.
func parseTripArgs(args []string) (time.Duration, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("usage: trip <hours> <percent>")
	}
	hours, err := strconv.ParseFloat(args[0], 64)
	if err != nil || hours <= 0 {
		return 0, 0, fmt.Errorf("invalid hours %q", args[0])
	}
	pct, err := parsePercent(args[1])
	if err != nil {
		return 0, 0, err
	}
	return time.Duration(hours * float64(time.Hour)), pct, nil
}

func parsePercent(s string) (int, error) {
	pct, err := strconv.Atoi(s)
	if err != nil || pct <= 0 || pct > 100 {
		return 0, fmt.Errorf("invalid percentage %q", s)
	}
	return pct, nil
}
