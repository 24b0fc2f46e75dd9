package vehicle

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoVehicle is returned when no awake vehicle is parked at the site.
	ErrNoVehicle = errors.New("no vehicle at site")
	// ErrVehicleMoving is returned when the vehicle at the site is driving.
	ErrVehicleMoving = errors.New("vehicle is moving")
)

// Summary identifies a vehicle on the account.
type Summary struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
}

// Asleep reports whether the vehicle must be woken before it answers.
func (s Summary) Asleep() bool { return s.State == "asleep" }

// DriveState is the position and speed of a vehicle.
type DriveState struct {
	Location Location
	Speed    *float64
}

// Finder lists account vehicles and their drive state.
type Finder interface {
	Vehicles(ctx context.Context) ([]Summary, error)
	DriveState(ctx context.Context, id int64) (*DriveState, error)
}

// Select returns the first awake vehicle within maxDistance metres of site.
// Sleeping vehicles are skipped so they are not woken.
func Select(ctx context.Context, f Finder, site Location, maxDistance float64) (Summary, error) {
	list, err := f.Vehicles(ctx)
	if err != nil {
		return Summary{}, err
	}
	closest := math.Inf(1)
	asleep := false
	for _, v := range list {
		if v.Asleep() {
			asleep = true
			continue
		}
		ds, err := f.DriveState(ctx, v.ID)
		if err != nil {
			return Summary{}, fmt.Errorf("drive state %d: %w", v.ID, err)
		}
		d := Distance(ds.Location, site)
		if d < maxDistance {
			if ds.Speed != nil && *ds.Speed > 0 {
				return Summary{}, fmt.Errorf("%w at %.0f", ErrVehicleMoving, *ds.Speed)
			}
			return v, nil
		}
		closest = math.Min(closest, d)
	}
	if math.IsInf(closest, 1) {
		if asleep {
			return Summary{}, fmt.Errorf("%w: all vehicles asleep", ErrNoVehicle)
		}
		return Summary{}, ErrNoVehicle
	}
	return Summary{}, fmt.Errorf("%w: closest is %.0fm", ErrNoVehicle, closest)
}
