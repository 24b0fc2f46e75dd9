package main

import (
	"os"

	"github.com/drgrieve/TeslaChargingManager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
