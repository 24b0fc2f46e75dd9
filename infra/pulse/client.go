// Package pulse reads site power from the Pulse energy monitoring API.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/drgrieve/TeslaChargingManager/core/factory"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/power"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

// Config holds the Pulse account settings.
type Config struct {
	URL          string `json:"url"`
	CognitoURL   string `json:"cognito_url"`
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
	// SiteID defaults to the first site of the account.
	SiteID         int `json:"site_id"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// SetDefaults applies the Cognito endpoint and timeout.
func (c *Config) SetDefaults() {
	if c.CognitoURL == "" {
		c.CognitoURL = DefaultCognitoURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch {
	case c.URL == "":
		return errors.New("url is required")
	case c.ClientID == "":
		return errors.New("client_id is required")
	case c.RefreshToken == "":
		return errors.New("refresh_token is required")
	}
	return nil
}

// ErrNoSite is returned when the account has no sites.
var ErrNoSite = errors.New("pulse account has no sites")

// Client is a power.Source backed by the Pulse live summary.
type Client struct {
	http *http.Client
	base string

	mu     sync.Mutex
	siteID int
}

func init() {
	_ = power.RegisterSource("pulse", func(conf map[string]any) (power.Source, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewClient(c)
	})
}

// NewClient builds a client with an id token refreshed from Cognito as needed.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.ReuseTokenSource(nil, &cognitoSource{
		ctx:          ctx,
		http:         base,
		url:          cfg.CognitoURL,
		clientID:     cfg.ClientID,
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
	})
	hc := oauth2.NewClient(ctx, src)
	hc.Timeout = base.Timeout
	return &Client{http: hc, base: strings.TrimSuffix(cfg.URL, "/"), siteID: cfg.SiteID}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pulse %s: status %d", path, resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

// User returns the account owning the refresh token.
func (c *Client) User(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/prod/v1/user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SiteID resolves the configured site, falling back to the first site of
// the account.
func (c *Client) SiteID(ctx context.Context) (int, error) {
	c.mu.Lock()
	id := c.siteID
	c.mu.Unlock()
	if id != 0 {
		return id, nil
	}
	u, err := c.User(ctx)
	if err != nil {
		return 0, err
	}
	if len(u.SiteIDs) == 0 {
		return 0, ErrNoSite
	}
	c.mu.Lock()
	c.siteID = u.SiteIDs[0]
	c.mu.Unlock()
	return u.SiteIDs[0], nil
}

// Site returns the site details.
func (c *Client) Site(ctx context.Context) (*Site, error) {
	id, err := c.SiteID(ctx)
	if err != nil {
		return nil, err
	}
	var s Site
	if err := c.get(ctx, fmt.Sprintf("/prod/v1/sites/%d", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LiveSummary returns the latest power summary.
func (c *Client) LiveSummary(ctx context.Context) (*Summary, error) {
	id, err := c.SiteID(ctx)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := c.get(ctx, fmt.Sprintf("/prod/v1/sites/%d/live_data_summary", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Telemetry implements power.Source.
func (c *Client) Telemetry(ctx context.Context) (model.Telemetry, error) {
	s, err := c.LiveSummary(ctx)
	if err != nil {
		return model.Telemetry{}, err
	}
	t := model.Telemetry{GridKW: s.Grid, SolarKW: s.Solar, LoadKW: s.Consumption, Timestamp: time.Now()}
	if ts, err := time.Parse(time.RFC3339, s.LastUpdated); err == nil {
		t.Timestamp = ts
	}
	if s.Weather != nil {
		t.Weather = &model.Weather{
			Daytime:      s.Weather.Daytime,
			TemperatureC: s.Weather.Temperature,
			Description:  s.Weather.Description,
		}
	}
	return t, nil
}

// SiteLocation implements power.Locator.
func (c *Client) SiteLocation(ctx context.Context) (vehicle.Location, error) {
	s, err := c.Site(ctx)
	if err != nil {
		return vehicle.Location{}, err
	}
	return vehicle.Location{Latitude: s.Lat, Longitude: s.Lon}, nil
}

var (
	_ power.Source  = (*Client)(nil)
	_ power.Locator = (*Client)(nil)
)
