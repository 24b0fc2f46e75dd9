package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drgrieve/TeslaChargingManager/app/plugins"
	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

var curvesCmd = &cobra.Command{
	Use:   "curves",
	Short: "Print the configured charge curves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Read(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Charging.Validate(); err != nil {
			return fmt.Errorf("charging: %w", err)
		}
		out, err := marshalCurves(cfg.Charging.DefaultCurve, cfg.Charging.Curves)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the telemetry sources and metrics sinks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(map[string][]string{
			"telemetry": plugins.Sources(),
			"metrics":   plugins.Sinks(),
		})
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(curvesCmd, pluginsCmd)
}

func marshalCurves(def string, curves []model.ChargeCurve) ([]byte, error) {
	return yaml.Marshal(struct {
		Default string              `yaml:"default"`
		Curves  []model.ChargeCurve `yaml:"curves"`
	}{def, curves})
}
