// Package vehicle defines the charge client consumed by the control loop and
// helpers shared by its implementations.
package vehicle

import (
	"context"

	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// Client reads the charger state of one vehicle and issues charge commands.
type Client interface {
	ChargeState(ctx context.Context) (*model.ChargeState, error)
	SetChargingAmps(ctx context.Context, amps int) error
	// StartCharging is idempotent: a vehicle that is already charging is
	// reported as success.
	StartCharging(ctx context.Context) error
	StopCharging(ctx context.Context) error
	SetChargeLimit(ctx context.Context, percent int) error
}

// SetChargeLimitIfLower raises the charge limit to percent when the current
// limit is lower. It returns true when a command was issued.
func SetChargeLimitIfLower(ctx context.Context, c Client, percent int) (bool, error) {
	st, err := c.ChargeState(ctx)
	if err != nil {
		return false, err
	}
	if st == nil || percent <= st.ChargeLimitSOC {
		return false, nil
	}
	return true, c.SetChargeLimit(ctx, percent)
}
