package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/infra/logger"
)

// InfluxSink writes charging events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	site     string
	log      logger.Logger
}

// InfluxConfig holds the connection settings of an InfluxSink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Site is added as a tag to every point.
	Site string `json:"site"`
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		site:     cfg.Site,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) point(measurement, session string, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	p := write.NewPointWithMeasurement(measurement).SetTime(at)
	if s.site != "" {
		p.AddTag("site", s.site)
	}
	if session != "" {
		p.AddTag("session_id", session)
	}
	return p
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStatus writes one charging_status point per iteration.
func (s *InfluxSink) RecordStatus(ev events.StatusEvent) error {
	p := s.point("charging_status", ev.SessionID, ev.Time).
		AddTag("curve", ev.Curve).
		AddTag("charging_state", ev.State.String()).
		AddField("solar_kw", round3(ev.SolarKW)).
		AddField("load_kw", round3(ev.LoadKW)).
		AddField("grid_kw", round3(ev.GridKW)).
		AddField("buffer_kw", round3(ev.BufferKW)).
		AddField("amps", ev.Amps).
		AddField("battery_level", ev.BatteryLevel).
		AddField("charge_limit", ev.ChargeLimit).
		AddField("loop_seconds", round3(ev.LoopDuration.Seconds()))
	return s.write(p)
}

// RecordCommand writes a vehicle_command point.
func (s *InfluxSink) RecordCommand(ev events.CommandEvent) error {
	p := s.point("vehicle_command", ev.SessionID, ev.Time).
		AddTag("command", ev.Name).
		AddField("amps", ev.Amps).
		AddField("ok", ev.Err == nil)
	if ev.Reason != "" {
		p.AddField("reason", ev.Reason)
	}
	if ev.Err != nil {
		p.AddField("error", ev.Err.Error())
	}
	return s.write(p)
}

// RecordSafety writes a safety_event point.
func (s *InfluxSink) RecordSafety(ev events.SafetyEvent) error {
	p := s.point("safety_event", ev.SessionID, ev.Time).
		AddTag("kind", string(ev.Kind)).
		AddTag("action", ev.Action).
		AddField("elapsed_seconds", round3(ev.Elapsed.Seconds())).
		AddField("limit_seconds", round3(ev.Limit.Seconds())).
		AddField("grid_kw", round3(ev.GridKW))
	return s.write(p)
}

// RecordSession writes a charging_session point.
func (s *InfluxSink) RecordSession(ev events.SessionEvent) error {
	p := s.point("charging_session", ev.SessionID, ev.Time).
		AddTag("phase", ev.Phase).
		AddTag("curve", ev.Curve).
		AddTag("mode", ev.Mode).
		AddField("reason", ev.Reason)
	return s.write(p)
}

// RecordTripStage writes a trip_stage point.
func (s *InfluxSink) RecordTripStage(ev events.TripStageEvent) error {
	p := s.point("trip_stage", "", ev.Time).
		AddField("stage", ev.Stage).
		AddField("target_soc", ev.TargetSOC).
		AddField("battery_level", ev.BatteryLevel).
		AddField("projected_minutes", round3(ev.ProjectedMinutes)).
		AddField("remaining_minutes", round3(ev.RemainingMinutes))
	return s.write(p)
}

// RecordStats writes a charging_stats point.
func (s *InfluxSink) RecordStats(ev events.StatsEvent) error {
	p := s.point("charging_stats", ev.SessionID, ev.Time).
		AddField("battery_level", ev.BatteryLevel).
		AddField("charge_limit", ev.ChargeLimit).
		AddField("range_km", round3(ev.RangeKm)).
		AddField("full_range_km", round3(ev.FullRangeKm)).
		AddField("energy_added_kwh", round3(ev.EnergyAddedKWh)).
		AddField("time_to_full_hours", round3(ev.TimeToFullHours)).
		AddField("grid_mean_kw", round3(ev.GridMeanKW)).
		AddField("grid_stddev_kw", round3(ev.GridStdDevKW)).
		AddField("amps_mean", round3(ev.AmpsMean)).
		AddField("samples", ev.Samples)
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
