package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgrieve/TeslaChargingManager/app"
	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/simulator"
)

var simulateOpts struct {
	duration time.Duration
	speed    float64
	solarKW  float64
	battery  int
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [curve]",
	Short: "Dry run a session against a simulated site and vehicle",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.DurationVar(&simulateOpts.duration, "duration", 2*time.Hour, "simulated time to run")
	f.Float64Var(&simulateOpts.speed, "speed", 0, "simulated seconds per wall second")
	f.Float64Var(&simulateOpts.solarKW, "solar", 0, "solar generation in kW")
	f.IntVar(&simulateOpts.battery, "battery", 0, "starting battery level")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := config.Read(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Tesla.AccessToken == "" {
		cfg.Tesla.AccessToken = "simulated"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sim := cfg.Simulator
	if simulateOpts.speed > 0 {
		sim.Speed = simulateOpts.speed
	}
	if simulateOpts.solarKW > 0 {
		sim.SolarKW = simulateOpts.solarKW
		sim.Profile = nil
	}
	if simulateOpts.battery > 0 {
		sim.BatteryLevel = simulateOpts.battery
	}

	clock := simulator.NewClock(sim.Speed)
	loc := vehicle.Location{Latitude: cfg.Site.Latitude, Longitude: cfg.Site.Longitude}
	car := simulator.NewVehicle(sim, loc, clock.Now)
	site := simulator.NewSite(sim, car, loc, clock.Now)
	car.SetVehicleID(simulator.VehicleID)
	svc := app.NewWithDeps(cfg, site, car)
	defer svc.Close()
	svc.Loop().SetClock(clock)
	if err := svc.StartConsumers(); err != nil {
		return err
	}
	if err := svc.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	curve := ""
	if len(args) == 1 {
		curve = args[0]
	}
	wall := time.Duration(float64(simulateOpts.duration) / sim.Speed)
	ctx, cancel := context.WithTimeout(ctx, wall)
	defer cancel()
	sess, err := svc.Charge(ctx, curve)
	if err != nil {
		return err
	}
	if err := sess.Wait(); err != nil {
		return err
	}

	st, err := car.ChargeState(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s ended: %s\n", sess.ID, sess.Reason())
	fmt.Fprintf(cmd.OutOrStdout(), "battery %d%% of %d%%, %.2f kWh added, %d commands\n",
		st.BatteryLevel, st.ChargeLimitSOC, st.ChargeEnergyAdded, len(car.Commands()))
	return nil
}
