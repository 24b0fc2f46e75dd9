package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/factory"
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/power"
)

// SourceConfig selects the topics carrying site power readings. Payloads are
// plain numbers or JSON objects holding Field.
type SourceConfig struct {
	Connection Config `json:"connection"`
	GridTopic  string `json:"grid_topic"`
	SolarTopic string `json:"solar_topic"`
	// LoadTopic is optional; load is derived from solar and grid without it.
	LoadTopic string `json:"load_topic"`
	Field     string `json:"field"`
	// Unit is "W" or "kW".
	Unit          string `json:"unit"`
	InvertGrid    bool   `json:"invert_grid"`
	MaxAgeSeconds int    `json:"max_age_seconds"`
}

type reading struct {
	value float64
	at    time.Time
}

// Source keeps the latest reading of each topic.
type Source struct {
	cfg    SourceConfig
	scale  float64
	maxAge time.Duration
	client *Client
	now    func() time.Time

	mu       sync.Mutex
	readings map[string]reading
}

func init() {
	_ = power.RegisterSource("mqtt", func(conf map[string]any) (power.Source, error) {
		var c SourceConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		cli, err := Connect(c.Connection, "mqtt_source")
		if err != nil {
			return nil, err
		}
		s, err := NewSource(c)
		if err != nil {
			cli.Disconnect()
			return nil, err
		}
		if err := s.Attach(cli); err != nil {
			cli.Disconnect()
			return nil, err
		}
		return s, nil
	})
}

// NewSource validates cfg. Call Attach to start receiving readings.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.GridTopic == "" || cfg.SolarTopic == "" {
		return nil, fmt.Errorf("grid_topic and solar_topic are required")
	}
	scale := 0.001
	switch strings.ToLower(cfg.Unit) {
	case "", "w":
	case "kw":
		scale = 1
	default:
		return nil, fmt.Errorf("unknown unit %s", cfg.Unit)
	}
	maxAge := time.Duration(cfg.MaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	return &Source{cfg: cfg, scale: scale, maxAge: maxAge, now: time.Now, readings: make(map[string]reading)}, nil
}

// Attach subscribes to the configured topics.
func (s *Source) Attach(c *Client) error {
	s.client = c
	for _, topic := range []string{s.cfg.GridTopic, s.cfg.SolarTopic, s.cfg.LoadTopic} {
		if topic == "" {
			continue
		}
		if err := c.Subscribe(topic, "telemetry", s.handle); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) handle(topic string, payload []byte) {
	v, err := parseValue(payload, s.cfg.Field)
	if err != nil {
		if s.client != nil {
			s.client.logger.Warnf("ignoring %s payload: %v", topic, err)
		}
		return
	}
	v *= s.scale
	if topic == s.cfg.GridTopic && s.cfg.InvertGrid {
		v = -v
	}
	s.mu.Lock()
	s.readings[topic] = reading{value: v, at: s.now()}
	s.mu.Unlock()
}

func parseValue(payload []byte, field string) (float64, error) {
	text := strings.TrimSpace(string(payload))
	if field == "" {
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v, nil
		}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return 0, fmt.Errorf("not a number or JSON object")
	}
	if field == "" {
		field = "value"
	}
	switch v := obj[field].(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("field %s missing", field)
}

// Telemetry returns the latest readings, or a zero reading while any topic
// is missing or stale.
func (s *Source) Telemetry(context.Context) (model.Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	fresh := func(topic string) (reading, bool) {
		r, ok := s.readings[topic]
		return r, ok && now.Sub(r.at) <= s.maxAge
	}
	grid, ok := fresh(s.cfg.GridTopic)
	if !ok {
		return model.Telemetry{}, nil
	}
	solar, ok := fresh(s.cfg.SolarTopic)
	if !ok {
		return model.Telemetry{}, nil
	}
	t := model.Telemetry{GridKW: grid.value, SolarKW: solar.value, LoadKW: solar.value + grid.value, Timestamp: grid.at}
	if solar.at.Before(t.Timestamp) {
		t.Timestamp = solar.at
	}
	if s.cfg.LoadTopic != "" {
		load, ok := fresh(s.cfg.LoadTopic)
		if !ok {
			return model.Telemetry{}, nil
		}
		t.LoadKW = load.value
	}
	return t, nil
}

// Close disconnects from the broker.
func (s *Source) Close() error {
	if s.client != nil {
		s.client.Disconnect()
	}
	return nil
}
