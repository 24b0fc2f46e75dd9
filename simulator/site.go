package simulator

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

// Site is a house with solar panels and the simulated vehicle on its
// charger. Grid power balances generation against home load and charging.
type Site struct {
	cfg     Config
	vehicle *Vehicle
	loc     vehicle.Location
	now     func() time.Time
	start   time.Time

	mu    sync.Mutex
	noise *distuv.Normal
}

// NewSite couples v to a site at loc.
func NewSite(cfg Config, v *Vehicle, loc vehicle.Location, now func() time.Time) *Site {
	cfg.SetDefaults()
	s := &Site{cfg: cfg, vehicle: v, loc: loc, now: now, start: now()}
	if cfg.NoiseKW > 0 {
		s.noise = &distuv.Normal{Mu: 0, Sigma: cfg.NoiseKW, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)}
	}
	return s
}

func (s *Site) solarAt(elapsed time.Duration) float64 {
	solar := s.cfg.SolarKW
	for _, step := range s.cfg.Profile {
		if elapsed >= time.Duration(step.AfterSeconds)*time.Second {
			solar = step.SolarKW
		}
	}
	if s.noise != nil {
		s.mu.Lock()
		solar += s.noise.Rand()
		s.mu.Unlock()
	}
	return max(solar, 0)
}

// Telemetry reports the current power flows.
func (s *Site) Telemetry(context.Context) (model.Telemetry, error) {
	now := s.now()
	solar := s.solarAt(now.Sub(s.start))
	load := s.cfg.LoadKW + s.vehicle.DrawKW()
	return model.Telemetry{
		GridKW:    load - solar,
		SolarKW:   solar,
		LoadKW:    load,
		Timestamp: now,
		Weather:   &model.Weather{Daytime: solar > 0, Description: "simulated"},
	}, nil
}

// SiteLocation returns where the site and the vehicle are.
func (s *Site) SiteLocation(context.Context) (vehicle.Location, error) { return s.loc, nil }
