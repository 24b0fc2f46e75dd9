package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (b *bodyRecorder) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bodies) == 0 {
		return ""
	}
	return b.bodies[len(b.bodies)-1]
}

func TestInfluxSink_RecordStatus(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket", Site: "home"})
	defer func() { _ = sink.Close() }()
	now := time.Unix(1700000000, 0)
	ev := events.StatusEvent{
		SessionID: "s1", Curve: "Solar", SolarKW: 4.1234, LoadKW: 1, GridKW: -2.5, BufferKW: 0.5,
		State: model.Charging, BatteryLevel: 60, ChargeLimit: 90, Amps: 10, LoopDuration: 15 * time.Second, Time: now,
	}
	if err := sink.RecordStatus(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("charging_status").
		AddTag("site", "home").
		AddTag("session_id", "s1").
		AddTag("curve", "Solar").
		AddTag("charging_state", "Charging").
		AddField("solar_kw", 4.123).
		AddField("load_kw", 1.0).
		AddField("grid_kw", -2.5).
		AddField("buffer_kw", 0.5).
		AddField("amps", 10).
		AddField("battery_level", 60).
		AddField("charge_limit", 90).
		AddField("loop_seconds", 15.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if rec.last() != expected {
		t.Errorf("unexpected body:\n%s\nwant:\n%s", rec.last(), expected)
	}
}

func TestInfluxSink_RecordCommand(t *testing.T) {
	rec := &bodyRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b"})
	defer func() { _ = sink.Close() }()
	if err := sink.RecordCommand(events.CommandEvent{SessionID: "s1", Name: events.CommandStop, Reason: "sustained_draw", Err: errors.New("asleep")}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	body := rec.last()
	for _, want := range []string{"vehicle_command,", "command=charge_stop", "ok=false", `error="asleep"`, `reason="sustained_draw"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("body %q missing %q", body, want)
		}
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
