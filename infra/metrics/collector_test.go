package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/drgrieve/TeslaChargingManager/core/events"
	coremetrics "github.com/drgrieve/TeslaChargingManager/core/metrics"
	"github.com/drgrieve/TeslaChargingManager/internal/eventbus"
)

type countingSink struct {
	coremetrics.NopSink
	mu       sync.Mutex
	status   int
	commands int
	trips    int
}

func (c *countingSink) RecordStatus(events.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status++
	return nil
}

func (c *countingSink) RecordCommand(events.CommandEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands++
	return nil
}

func (c *countingSink) RecordTripStage(events.TripStageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips++
	return nil
}

func (c *countingSink) counts() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.commands, c.trips
}

type statusOnly struct{ n int }

func (s *statusOnly) RecordStatus(events.StatusEvent) error { s.n++; return nil }

func TestEventCollectorDispatchesByType(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &countingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	deadline := time.Now().Add(time.Second)
	for {
		bus.Publish(events.StatusEvent{})
		bus.Publish(events.CommandEvent{Name: events.CommandStart})
		bus.Publish(events.TripStageEvent{Stage: 1})
		s, c, tr := sink.counts()
		if s > 0 && c > 0 && tr > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events not recorded: %d %d %d", s, c, tr)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecordSkipsUnsupportedRecorders(t *testing.T) {
	s := &statusOnly{}
	if err := record(s, events.SafetyEvent{Kind: events.SafetyMaxDraw}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := record(s, events.StatusEvent{}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if s.n != 1 {
		t.Fatalf("expected one status record, got %d", s.n)
	}
}
