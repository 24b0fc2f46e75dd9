package tesla

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgrieve/TeslaChargingManager/config"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.TeslaConfig{BaseURL: srv.URL + "/", AccessToken: "secret", VehicleID: 42, MaxRetries: 2}
	cfg.SetDefaults()
	c := NewClient(cfg, logger.NopLogger{})
	c.backOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestChargeStateSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/1/vehicles/42/data_request/charge_state", r.URL.Path)
		_, _ = io.WriteString(w, `{"response":{"charging_state":"Charging","battery_level":55,"charge_limit_soc":80,
			"charger_actual_current":10,"charge_current_request":12,"charge_current_request_max":32,
			"charger_voltage":238,"charger_phases":1,"minutes_to_full_charge":95,"ideal_battery_range":150}}`)
	})
	st, err := c.ChargeState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Charging, st.ChargingState)
	assert.Equal(t, 55, st.BatteryLevel)
	assert.Equal(t, 32, st.ChargeCurrentRequestMax)
	assert.Equal(t, 1, st.Phases())
	assert.InDelta(t, 150*model.MilesToKilometres, st.RangeKm(), 1e-9)
}

func TestChargeStateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"response":{"charging_state":"Stopped","battery_level":40}}`)
	})
	st, err := c.ChargeState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Stopped, st.ChargingState)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSleepingVehicleIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusRequestTimeout)
		_, _ = io.WriteString(w, `{"error":"vehicle unavailable"}`)
	})
	_, err := c.ChargeState(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, vehicle.ErrUnavailable))
	assert.Equal(t, int32(3), calls.Load(), "one try plus two retries")
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.ChargeState(context.Background())
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.Code)
	assert.False(t, errors.Is(err, vehicle.ErrUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSetChargingAmpsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/1/vehicles/42/command/set_charging_amps", r.URL.Path)
		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 9, body["charging_amps"])
		_, _ = io.WriteString(w, `{"response":{"result":true,"reason":""}}`)
	})
	require.NoError(t, c.SetChargingAmps(context.Background(), 9))
}

func TestCommandRejections(t *testing.T) {
	tests := []struct {
		name      string
		call      func(*Client) error
		reply     string
		wantErr   bool
		retryable bool
	}{
		{"start while charging", func(c *Client) error { return c.StartCharging(context.Background()) },
			`{"response":{"result":false,"reason":"is_charging"}}`, false, false},
		{"stop while stopped", func(c *Client) error { return c.StopCharging(context.Background()) },
			`{"response":{"result":false,"reason":"not_charging"}}`, false, false},
		{"start complete", func(c *Client) error { return c.StartCharging(context.Background()) },
			`{"response":{"result":false,"reason":"complete"}}`, true, false},
		{"wake failure", func(c *Client) error { return c.SetChargeLimit(context.Background(), 90) },
			`{"response":{"result":false,"reason":"could_not_wake_buses"}}`, true, true},
		{"api error", func(c *Client) error { return c.StopCharging(context.Background()) },
			`{"response":null,"error":"vehicle unavailable"}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.reply)
			})
			err := tt.call(c)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, vehicle.ErrCommandRejected))
			assert.Equal(t, tt.retryable, errors.Is(err, vehicle.ErrUnavailable))
		})
	}
}

func TestNoVehicleSelected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	c.SetVehicleID(0)
	_, err := c.ChargeState(context.Background())
	assert.ErrorIs(t, err, ErrNoVehicleSelected)
}

func TestFinderSelectsVehicleAtSite(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/1/vehicles":
			_, _ = io.WriteString(w, `{"response":[{"id":1,"display_name":"Away","state":"online"},
				{"id":2,"display_name":"Sleepy","state":"asleep"},
				{"id":3,"display_name":"Home","state":"online"}],"count":3}`)
		case "/api/1/vehicles/1/data_request/drive_state":
			_, _ = io.WriteString(w, `{"response":{"latitude":-33.80,"longitude":151.20,"speed":null}}`)
		case "/api/1/vehicles/3/data_request/drive_state":
			_, _ = io.WriteString(w, `{"response":{"latitude":-33.8688,"longitude":151.2093,"speed":null}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	site := vehicle.Location{Latitude: -33.8688, Longitude: 151.2093}
	v, err := vehicle.Select(context.Background(), c, site, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.ID)
	assert.Equal(t, "Home", v.DisplayName)
}
