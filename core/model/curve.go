package model

import "fmt"

// ChargePoint maps a state of charge threshold to a grid buffer in kW.
type ChargePoint struct {
	SOC    int     `json:"soc" yaml:"soc"`
	Buffer float64 `json:"buffer" yaml:"buffer"`
}

// ChargeCurve is a named list of ChargePoints sorted ascending by SOC.
type ChargeCurve struct {
	Name   string        `json:"name" yaml:"name"`
	Points []ChargePoint `json:"points" yaml:"points"`
}

// BufferAt returns the buffer of the first point whose SOC exceeds
// batteryLevel. Past the last threshold the last point's buffer is kept.
func (c ChargeCurve) BufferAt(batteryLevel int) float64 {
	if len(c.Points) == 0 {
		return 0
	}
	for _, p := range c.Points {
		if p.SOC > batteryLevel {
			return p.Buffer
		}
	}
	return c.Points[len(c.Points)-1].Buffer
}

// Validate ensures the curve is named and strictly ascending.
func (c ChargeCurve) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("charge curve name is required")
	}
	if len(c.Points) == 0 {
		return fmt.Errorf("charge curve %s has no points", c.Name)
	}
	for i, p := range c.Points {
		if p.SOC < 0 || p.SOC > 100 {
			return fmt.Errorf("charge curve %s: soc %d out of range", c.Name, p.SOC)
		}
		if i > 0 && p.SOC <= c.Points[i-1].SOC {
			return fmt.Errorf("charge curve %s: points must be ascending by soc", c.Name)
		}
	}
	return nil
}
