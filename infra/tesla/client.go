// Package tesla talks to the Tesla owner API.
package tesla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/events"
	"github.com/drgrieve/TeslaChargingManager/core/logger"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

// ErrNoVehicleSelected is returned by vehicle calls before SetVehicleID.
var ErrNoVehicleSelected = errors.New("no vehicle selected")

// Command rejections that mean the vehicle is already in the wanted state.
var alreadyDone = map[string]string{
	events.CommandStart: "is_charging",
	events.CommandStop:  "not_charging",
}

// Client implements vehicle.Client and vehicle.Finder over HTTP.
type Client struct {
	http       *http.Client
	base       string
	maxRetries uint64
	vehicleID  atomic.Int64
	log        logger.Logger
	backOff    func() backoff.BackOff
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tesla api status %d: %s", e.Code, e.Body)
}

// Is maps 408 Request Timeout, which the API returns for sleeping vehicles,
// to vehicle.ErrUnavailable.
func (e *StatusError) Is(target error) bool {
	return target == vehicle.ErrUnavailable && e.Code == http.StatusRequestTimeout
}

// NewClient authenticates every request with the configured bearer token.
func NewClient(cfg config.TeslaConfig, log logger.Logger) *Client {
	base := &http.Client{Timeout: cfg.Timeout()}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"}))
	hc.Timeout = cfg.Timeout()
	c := &Client{
		http:       hc,
		base:       strings.TrimSuffix(cfg.BaseURL, "/"),
		maxRetries: uint64(cfg.MaxRetries),
		log:        log,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	c.vehicleID.Store(cfg.VehicleID)
	return c
}

// SetVehicleID selects the vehicle used by charge calls.
func (c *Client) SetVehicleID(id int64) { c.vehicleID.Store(id) }

// VehicleID returns the selected vehicle, zero when none.
func (c *Client) VehicleID() int64 { return c.vehicleID.Load() }

func retryable(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// do sends the request, retrying timeouts and server errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}
	attempt := 0
	op := func() error {
		attempt++
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.log.Debugf("%s %s attempt %d: %v", method, path, attempt, err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if retryable(resp.StatusCode) {
				c.log.Debugf("%s %s attempt %d: %v", method, path, attempt, serr)
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backOff(), c.maxRetries), ctx)
	return backoff.Retry(op, b)
}

func (c *Client) vehiclePath(suffix string) (string, error) {
	id := c.VehicleID()
	if id == 0 {
		return "", ErrNoVehicleSelected
	}
	return fmt.Sprintf("/api/1/vehicles/%d/%s", id, suffix), nil
}

// ChargeState returns the charger state of the selected vehicle.
func (c *Client) ChargeState(ctx context.Context) (*model.ChargeState, error) {
	path, err := c.vehiclePath("data_request/charge_state")
	if err != nil {
		return nil, err
	}
	var res chargeStateResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", vehicle.ErrUnavailable, res.Error)
	}
	if res.Response == nil {
		return nil, fmt.Errorf("%w: empty charge state", vehicle.ErrUnavailable)
	}
	return res.Response, nil
}

func (c *Client) command(ctx context.Context, name string, body any) error {
	path, err := c.vehiclePath("command/" + name)
	if err != nil {
		return err
	}
	var res commandResponse
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return err
	}
	if res.Error != "" {
		return &vehicle.CommandError{Command: name, Reason: res.Error, Retryable: true}
	}
	if res.Response == nil {
		return &vehicle.CommandError{Command: name, Reason: "empty response", Retryable: true}
	}
	if res.Response.Result {
		return nil
	}
	if done, ok := alreadyDone[name]; ok && res.Response.Reason == done {
		c.log.Debugf("%s: %s", name, res.Response.Reason)
		return nil
	}
	return &vehicle.CommandError{
		Command:   name,
		Reason:    res.Response.Reason,
		Retryable: res.Response.Reason == "could_not_wake_buses",
	}
}

// SetChargingAmps sets the requested charge current.
func (c *Client) SetChargingAmps(ctx context.Context, amps int) error {
	return c.command(ctx, events.CommandSetAmps, map[string]int{"charging_amps": amps})
}

// StartCharging starts charging. A vehicle already charging is a success.
func (c *Client) StartCharging(ctx context.Context) error {
	return c.command(ctx, events.CommandStart, nil)
}

// StopCharging stops charging. A vehicle that is not charging is a success.
func (c *Client) StopCharging(ctx context.Context) error {
	return c.command(ctx, events.CommandStop, nil)
}

// SetChargeLimit sets the charge limit in percent.
func (c *Client) SetChargeLimit(ctx context.Context, percent int) error {
	return c.command(ctx, events.CommandSetLimit, map[string]int{"percent": percent})
}

// Vehicles lists the vehicles on the account.
func (c *Client) Vehicles(ctx context.Context) ([]vehicle.Summary, error) {
	var res vehiclesResponse
	if err := c.do(ctx, http.MethodGet, "/api/1/vehicles", nil, &res); err != nil {
		return nil, err
	}
	return res.Response, nil
}

// DriveState returns the position and speed of vehicle id.
func (c *Client) DriveState(ctx context.Context, id int64) (*vehicle.DriveState, error) {
	var res driveStateResponse
	path := fmt.Sprintf("/api/1/vehicles/%d/data_request/drive_state", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	if res.Response == nil {
		return nil, fmt.Errorf("%w: %s", vehicle.ErrUnavailable, res.Error)
	}
	return &vehicle.DriveState{
		Location: vehicle.Location{Latitude: res.Response.Latitude, Longitude: res.Response.Longitude},
		Speed:    res.Response.Speed,
	}, nil
}

var (
	_ vehicle.Client = (*Client)(nil)
	_ vehicle.Finder = (*Client)(nil)
)
