package vehicle

import (
	"context"
	"sync"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/model"
)

// CachedClient wraps a Client and serves the last charge state without a
// fetch while the charger is known to be Stopped. The entry expires after
// StoppedTTL and every command invalidates it.
type CachedClient struct {
	next       Client
	stoppedTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	state   *model.ChargeState
	fetched time.Time
}

// NewCachedClient returns a caching decorator around next.
func NewCachedClient(next Client, stoppedTTL time.Duration) *CachedClient {
	return &CachedClient{next: next, stoppedTTL: stoppedTTL, now: time.Now}
}

// SetClock overrides the time source.
func (c *CachedClient) SetClock(now func() time.Time) { c.now = now }

func (c *CachedClient) ChargeState(ctx context.Context) (*model.ChargeState, error) {
	c.mu.Lock()
	if c.state != nil && c.state.ChargingState == model.Stopped && c.now().Sub(c.fetched) < c.stoppedTTL {
		st := *c.state
		c.mu.Unlock()
		return &st, nil
	}
	c.mu.Unlock()

	st, err := c.next.ChargeState(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st == nil {
		c.state = nil
		return nil, nil
	}
	cp := *st
	c.state = &cp
	c.fetched = c.now()
	return st, nil
}

// Invalidate drops the cached entry so the next read fetches.
func (c *CachedClient) Invalidate() {
	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()
}

func (c *CachedClient) SetChargingAmps(ctx context.Context, amps int) error {
	defer c.Invalidate()
	return c.next.SetChargingAmps(ctx, amps)
}

func (c *CachedClient) StartCharging(ctx context.Context) error {
	defer c.Invalidate()
	return c.next.StartCharging(ctx)
}

func (c *CachedClient) StopCharging(ctx context.Context) error {
	defer c.Invalidate()
	return c.next.StopCharging(ctx)
}

func (c *CachedClient) SetChargeLimit(ctx context.Context, percent int) error {
	defer c.Invalidate()
	return c.next.SetChargeLimit(ctx, percent)
}
